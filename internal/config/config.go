// Package config loads server configuration from an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the server configuration.
type Config struct {
	Addr        string `yaml:"addr"`
	WebDir      string `yaml:"web_dir"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	Store       string `yaml:"store"`
	DatabaseURL string `yaml:"database_url"`

	SessionTTL      time.Duration `yaml:"session_ttl"`
	InitialUser     string        `yaml:"initial_user"`
	InitialPassword string        `yaml:"initial_password"`

	OIDC        OIDC        `yaml:"oidc"`
	ForwardAuth ForwardAuth `yaml:"forward_auth"`
}

// ForwardAuth configures identity headers set by an authenticating reverse
// proxy. It is off unless Header is set, and the header is only honored on
// requests whose peer address is inside TrustedProxies.
type ForwardAuth struct {
	Header         string   `yaml:"header"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Enabled reports whether forward auth headers should be honored at all.
func (f ForwardAuth) Enabled() bool {
	return f.Header != ""
}

// Prefixes parses TrustedProxies. Bare addresses are treated as single-host
// prefixes.
func (f ForwardAuth) Prefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(f.TrustedProxies))
	for _, raw := range f.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// OIDC configures optional single sign-on.
type OIDC struct {
	Issuer       string `yaml:"issuer"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
}

// Enabled reports whether enough is configured to attempt SSO.
func (o OIDC) Enabled() bool {
	return o.Issuer != "" && o.ClientID != ""
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Addr:        ":8080",
		WebDir:      "web",
		Environment: "production",
		LogLevel:    "info",
		Store:       StorePostgres,
		SessionTTL:  72 * time.Hour,
	}
}

// Load reads path (if non-empty and present), then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"ADDR":                &c.Addr,
		"WEB_DIR":             &c.WebDir,
		"ENVIRONMENT":         &c.Environment,
		"LOG_LEVEL":           &c.LogLevel,
		"STORE":               &c.Store,
		"DATABASE_URL":        &c.DatabaseURL,
		"INITIAL_USER":        &c.InitialUser,
		"INITIAL_PASSWORD":    &c.InitialPassword,
		"OIDC_ISSUER":         &c.OIDC.Issuer,
		"OIDC_CLIENT_ID":      &c.OIDC.ClientID,
		"OIDC_CLIENT_SECRET":  &c.OIDC.ClientSecret,
		"OIDC_REDIRECT_URL":   &c.OIDC.RedirectURL,
		"FORWARD_AUTH_HEADER": &c.ForwardAuth.Header,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.ForwardAuth.TrustedProxies = strings.Split(v, ",")
	}

	if v := os.Getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}
	return nil
}

// Validate checks for settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %q or %q)", c.Store, StorePostgres, StoreMemory)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.SessionTTL)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if (c.InitialUser == "") != (c.InitialPassword == "") {
		return errors.New("INITIAL_USER and INITIAL_PASSWORD must be set together")
	}
	if c.OIDC.Enabled() && c.OIDC.RedirectURL == "" {
		return errors.New("OIDC_REDIRECT_URL is required when OIDC is configured")
	}
	if c.ForwardAuth.Enabled() {
		prefixes, err := c.ForwardAuth.Prefixes()
		if err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		if len(prefixes) == 0 {
			return errors.New("TRUSTED_PROXIES is required when FORWARD_AUTH_HEADER is set")
		}
	}
	return nil
}

// IsDevelopment reports whether the server runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Logger builds the process logger for this configuration.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.IsDevelopment() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
