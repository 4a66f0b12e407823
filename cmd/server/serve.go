package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iudanet/prescient/internal/server/middleware"
	"github.com/iudanet/prescient/internal/server/scoring"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server. SIGINT/SIGTERM shut it down gracefully;
SIGHUP re-reads token.secret_file and rotates the signing secret.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("failed to close resources", slog.Any("error", err))
		}
	}()

	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.AuthRequests > 0 {
		proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
		if err != nil {
			return fmt.Errorf("invalid ratelimit.trusted_proxies: %w", err)
		}
		limiter = middleware.NewRateLimiter(cfg.RateLimit.AuthRequests, cfg.RateLimit.AuthWindow, logger,
			middleware.WithTrustedProxies(proxies))
		defer limiter.Stop()
	}

	predictor := scoring.NewHTTPPredictor(cfg.Scoring.Endpoint, cfg.Scoring.Timeout)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           a.handler(predictor, limiter),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go a.watchSecret(ctx, hup)

	if cfg.Reset.SingleUse {
		go a.runPurge(ctx, cfg.Reset.PurgeInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started",
			slog.String("address", cfg.Server.Address),
			slog.String("storage", cfg.Storage.Driver),
			slog.String("version", Version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}
