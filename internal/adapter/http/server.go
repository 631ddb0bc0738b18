// Package adapthttp implements the HTTP adapter for the application.
package adapthttp

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"soma/internal/app"
	"soma/internal/domain"
)

// OIDCConfig holds the SSO provider. The zero value disables SSO.
type OIDCConfig struct {
	Enabled      bool
	Provider     *oidc.Provider
	OAuth2Config oauth2.Config
}

// NewOIDCConfig discovers the issuer and builds the OAuth2 client settings.
func NewOIDCConfig(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) (OIDCConfig, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return OIDCConfig{}, fmt.Errorf("oidc discovery: %w", err)
	}
	return OIDCConfig{
		Enabled:  true,
		Provider: provider,
		OAuth2Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithOIDC enables SSO login.
func WithOIDC(cfg OIDCConfig) Option {
	return func(s *Server) { s.oidcConfig = cfg }
}

// WithClock replaces the clock used for chart range cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithForwardAuth honors an identity header set by an authenticating reverse
// proxy. The header is ignored unless the request's peer address falls inside
// one of trusted; without this option it is always ignored.
func WithForwardAuth(header string, trusted []netip.Prefix) Option {
	return func(s *Server) {
		s.forwardHeader = http.CanonicalHeaderKey(header)
		s.trustedProxies = trusted
	}
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	measurements domain.MeasurementRepository
	authSvc      *app.AuthService
	webDir       string
	oidcConfig   OIDCConfig
	logger       *zap.Logger
	now          func() time.Time

	forwardHeader  string
	trustedProxies []netip.Prefix

	disableAuth bool
}

// New creates a Server wired to the given repository and auth service.
func New(measurements domain.MeasurementRepository, authSvc *app.AuthService, webDir string, opts ...Option) *Server {
	s := &Server{
		measurements: measurements,
		authSvc:      authSvc,
		webDir:       webDir,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// WithoutAuth makes every request act as a fixed development user.
func (s *Server) WithoutAuth() *Server {
	s.disableAuth = true
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger, withNoCache)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})
		api.Get("/config", s.handleConfig)
		api.Get("/catalog", s.handleCatalog)

		api.Post("/register", s.handleRegister)
		api.Post("/login", s.handleLogin)
		api.Post("/logout", s.handleLogout)
		api.Post("/setup", s.handleSetupUser)
		api.Get("/auth/sso/login", s.handleSSOLogin)
		api.Get("/auth/sso/callback", s.handleSSOCallback)

		api.Group(func(p chi.Router) {
			p.Use(s.authMiddleware)
			p.Get("/me", s.handleMe)

			p.Route("/measurements", func(m chi.Router) {
				m.Get("/", s.handleListMeasurements)
				m.Post("/", s.handleAddMeasurement)
				m.Get("/history", s.handleHistory)
				m.Get("/chart", s.handleChart)
				m.Get("/chart.png", s.handleChartPNG)
				m.Get("/summary", s.handleSummary)
				m.Put("/{id}", s.handleUpdateMeasurement)
				m.Delete("/{id}", s.handleDeleteMeasurement)
			})
		})
	})

	r.Handle("/*", spaFromDisk(s.webDir))
	return r
}

// storeFor returns the measurement store of the authenticated user.
func (s *Server) storeFor(r *http.Request) domain.MeasurementStore {
	return app.ForUser(s.measurements, userFromContext(r).ID)
}
