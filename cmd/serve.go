package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-seed/pkg/handlers"
	"github.com/ekaya-inc/ekaya-seed/pkg/middleware"
	"github.com/ekaya-inc/ekaya-seed/pkg/retry"
	"github.com/ekaya-inc/ekaya-seed/pkg/services"
)

const (
	shutdownTimeout = 10 * time.Second
	// writeMargin covers validation and encoding after the last model call.
	writeMargin = 30 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the seed API over HTTP",
		Long: `Serve POST /api/seeds, /api/seeds/prompt and /api/seeds/validate plus
GET /health and /ping. One generation runs at a time; concurrent requests
get 409 Conflict.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

// newMux wires the HTTP routes.
func (a *app) newMux() http.Handler {
	svc := services.NewSeedGenerationService(a.factory(), services.SeedGenerationConfig{
		Retry: a.retryConfig(),
	}, a.logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(a.cfg, a.logger).RegisterRoutes(mux)
	handlers.NewSeedHandler(svc, a.cfg, a.logger.Named("http")).RegisterRoutes(mux)

	return middleware.RequestLogger(a.logger.Named("http"))(mux)
}

func (a *app) retryConfig() *retry.Config {
	return retry.DefaultConfig().WithRetries(a.cfg.LLM.Retries)
}

// writeTimeout bounds a response by the worst case of every attempt running
// to the client timeout, each followed by the longest jittered backoff.
func writeTimeout(clientTimeout time.Duration, rc *retry.Config) time.Duration {
	attempts := time.Duration(rc.MaxRetries + 1)
	backoff := time.Duration(float64(rc.MaxDelay) * (1 + rc.JitterFactor))
	return attempts*(clientTimeout+backoff) + writeMargin
}

func (a *app) serve(ctx context.Context) error {
	defer func() { _ = a.logger.Sync() }()

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           a.newMux(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout(a.cfg.LLM.Timeout, a.retryConfig()),
	}

	tls := a.cfg.TLSCertPath != "" && a.cfg.TLSKeyPath != ""
	a.logger.Info("Starting ekaya-seed",
		zap.String("addr", srv.Addr),
		zap.String("base_url", a.cfg.BaseURL),
		zap.String("version", a.cfg.Version),
		zap.String("env", a.cfg.Env),
		zap.Bool("tls", tls),
		zap.String("default_model", a.cfg.LLM.Model),
		zap.String("default_dialect", a.cfg.Seed.Dialect))

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls {
			err = srv.ListenAndServeTLS(a.cfg.TLSCertPath, a.cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return &ExitError{Code: ExitGeneral, Message: "server failed", Err: err}
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return &ExitError{Code: ExitGeneral, Message: "shutdown", Err: err}
	}
	return nil
}
