package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/iudanet/prescient/internal/config"
	"github.com/iudanet/prescient/internal/crypto"
	"github.com/iudanet/prescient/internal/server/auth"
	"github.com/iudanet/prescient/internal/server/handlers"
	"github.com/iudanet/prescient/internal/server/mail"
	"github.com/iudanet/prescient/internal/server/metrics"
	"github.com/iudanet/prescient/internal/server/middleware"
	"github.com/iudanet/prescient/internal/server/scoring"
	"github.com/iudanet/prescient/internal/server/storage"
	"github.com/iudanet/prescient/internal/server/storage/boltdb"
	"github.com/iudanet/prescient/internal/server/storage/postgres"
	"github.com/iudanet/prescient/internal/server/storage/sqlite"
	"github.com/iudanet/prescient/internal/server/token"
)

// backend - хранилище вместе с проверкой доступности и закрытием
type backend interface {
	storage.Store
	Ping(ctx context.Context) error
	Close() error
}

// app связывает компоненты сервера
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      backend
	tokens     *token.Service
	metrics    *metrics.Metrics
	dispatcher *mail.Dispatcher
	auth       *auth.Service
}

// openStore открывает хранилище выбранного драйвера и применяет миграции
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (backend, error) {
	var (
		store backend
		err   error
	)
	switch cfg.Driver {
	case config.DriverSQLite:
		var s *sqlite.Storage
		s, err = sqlite.New(ctx, cfg.DSN)
		store = s
	case config.DriverBolt:
		var s *boltdb.Storage
		s, err = boltdb.New(ctx, cfg.DSN)
		store = s
	case config.DriverPostgres:
		var s *postgres.Storage
		s, err = postgres.Open(ctx, cfg.DSN, logger)
		store = s
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	secret, err := cfg.Token.LoadSecret()
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewService(token.Config{
		Secret:     secret,
		Issuer:     cfg.Token.Issuer,
		SessionTTL: cfg.Token.SessionTTL,
		ResetTTL:   cfg.Token.ResetTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		tokens:  tokens,
		metrics: metrics.New(),
	}

	var mailer mail.Sender
	switch cfg.Mail.Driver {
	case config.MailDriverSMTP:
		mailer = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			From:     cfg.Mail.SMTP.From,
			LinkTTL:  cfg.Token.ResetTTL,
			Insecure: cfg.Mail.SMTP.Insecure,
		})
	default:
		mailer = mail.NewLogSender(logger)
	}
	if cfg.Mail.Async {
		a.dispatcher = mail.NewDispatcher(mailer, cfg.Mail.QueueSize, logger,
			mail.WithResultHook(a.metrics.MailDelivery))
		mailer = a.dispatcher
	}

	a.auth, err = auth.NewService(auth.Deps{
		Store:  store,
		Ledger: store,
		Hasher: crypto.NewPBKDF2Hasher(),
		Tokens: tokens,
		Mailer: mailer,
		Logger: logger,
	}, auth.Config{
		ResetLinkBase:  cfg.Reset.LinkBase,
		SingleUseReset: cfg.Reset.SingleUse,
	}, auth.WithRecorder(a.metrics))
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	return a, nil
}

// handler собирает HTTP API. limiter может быть nil.
func (a *app) handler(predictor scoring.Predictor, limiter *middleware.RateLimiter) http.Handler {
	return handlers.NewRouter(handlers.RouterConfig{
		Logger:        a.logger,
		Auth:          handlers.NewAuthHandler(a.logger, a.auth),
		Health:        handlers.NewHealthHandler(a.logger, a.store, Version),
		Predict:       handlers.NewPredictHandler(a.logger, predictor, a.metrics),
		Authenticator: a.auth,
		AuthLimiter:   limiter,
		Metrics:       a.metrics.Handler(),
		Observer:      a.metrics,
	})
}

// bootstrap создает начальный аккаунт, если это включено
func (a *app) bootstrap(ctx context.Context) error {
	if !a.cfg.Bootstrap.Enabled {
		return nil
	}

	seeded, err := a.auth.Bootstrap(ctx, auth.BootstrapAccount{
		Username: a.cfg.Bootstrap.Username,
		Email:    a.cfg.Bootstrap.Email,
		Password: a.cfg.Bootstrap.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to seed bootstrap account: %w", err)
	}
	if seeded {
		a.logger.WarnContext(ctx, "bootstrap account created, change its password",
			slog.String("username", a.cfg.Bootstrap.Username))
	}
	return nil
}

// reloadSecret перечитывает секрет подписи; все выданные токены становятся недействительны
func (a *app) reloadSecret(ctx context.Context) error {
	if a.cfg.Token.Secret != "" {
		return errors.New("token.secret is set inline, rotation needs token.secret_file")
	}

	secret, err := a.cfg.Token.LoadSecret()
	if err != nil {
		return err
	}
	if err := a.tokens.Rotate(secret); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "token signing secret rotated")
	return nil
}

// watchSecret ротирует секрет по каждому сигналу из reload
func (a *app) watchSecret(ctx context.Context, reload <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reload:
			if err := a.reloadSecret(ctx); err != nil {
				a.logger.ErrorContext(ctx, "failed to rotate token secret", slog.Any("error", err))
			}
		}
	}
}

// runPurge периодически удаляет истекшие записи использованных reset токенов
func (a *app) runPurge(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.auth.PurgeConsumedResetTokens(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "failed to purge consumed reset tokens", slog.Any("error", err))
				continue
			}
			if n > 0 {
				a.logger.DebugContext(ctx, "purged consumed reset tokens", slog.Int("count", n))
			}
		}
	}
}

// Close дожидается отправки писем и закрывает хранилище
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mail dispatcher: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	return errors.Join(errs...)
}
