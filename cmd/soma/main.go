// Command soma serves the measurement API and the web client.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	adapthttp "soma/internal/adapter/http"
	"soma/internal/adapter/memory"
	"soma/internal/adapter/postgres"
	"soma/internal/app"
	"soma/internal/config"
	"soma/internal/domain"
)

const sessionPurgeInterval = time.Hour

func main() {
	var configPath string
	var noAuth bool

	root := &cobra.Command{
		Use:           "soma",
		Short:         "Body measurement tracker server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger, noAuth)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", os.Getenv("SOMA_CONFIG"), "path to a YAML config file")
	root.Flags().BoolVar(&noAuth, "no-auth", false, "serve every request as a development user (development only)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "soma:", err)
		os.Exit(1)
	}
}

type backend struct {
	measurements domain.MeasurementRepository
	users        domain.UserRepository
	sessions     domain.SessionRepository
	close        func() error
}

func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		db := memory.New()
		return &backend{measurements: db, users: db, sessions: db.NewSessionRepo(), close: func() error { return nil }}, nil
	default:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		return &backend{measurements: db, users: db, sessions: postgres.NewSessionRepo(db), close: db.Close}, nil
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, noAuth bool) error {
	if noAuth && !cfg.IsDevelopment() {
		return errors.New("--no-auth is only allowed in development")
	}

	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = be.close() }()
	logger.Info("store ready", zap.String("store", cfg.Store))

	authSvc := app.NewAuthService(be.users, be.sessions, app.WithSessionTTL(cfg.SessionTTL))
	if cfg.InitialUser != "" {
		if err := authSvc.CreateInitialUser(ctx, cfg.InitialUser, cfg.InitialPassword); err != nil {
			logger.Warn("initial user not created", zap.String("username", cfg.InitialUser), zap.Error(err))
		}
	}

	opts := []adapthttp.Option{adapthttp.WithLogger(logger)}
	if cfg.OIDC.Enabled() {
		oidcCfg, err := adapthttp.NewOIDCConfig(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID, cfg.OIDC.ClientSecret, cfg.OIDC.RedirectURL)
		if err != nil {
			return err
		}
		opts = append(opts, adapthttp.WithOIDC(oidcCfg))
		logger.Info("sso enabled", zap.String("issuer", cfg.OIDC.Issuer))
	}
	if cfg.ForwardAuth.Enabled() {
		// Validate already rejected unparseable proxies.
		trusted, err := cfg.ForwardAuth.Prefixes()
		if err != nil {
			return err
		}
		opts = append(opts, adapthttp.WithForwardAuth(cfg.ForwardAuth.Header, trusted))
		logger.Info("forward auth enabled",
			zap.String("header", cfg.ForwardAuth.Header),
			zap.Strings("trusted_proxies", cfg.ForwardAuth.TrustedProxies),
		)
	}

	srv := adapthttp.New(be.measurements, authSvc, cfg.WebDir, opts...)
	if noAuth {
		srv = srv.WithoutAuth()
		logger.Warn("authentication disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(sessionPurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := authSvc.PurgeExpiredSessions(gctx); err != nil {
					logger.Warn("session purge failed", zap.Error(err))
				}
			}
		}
	})
	return g.Wait()
}
