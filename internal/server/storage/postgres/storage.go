// Package postgres implements storage.Store on PostgreSQL.
package postgres

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/iudanet/prescient/internal/server/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	connectAttempts  = 5
	connectBaseDelay = 500 * time.Millisecond
)

// poolIface is the subset of pgxpool.Pool used by the store; pgxmock implements it in tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ storage.Store = (*Storage)(nil)

// Storage implements storage.Store using PostgreSQL.
type Storage struct {
	pool poolIface
	now  func() time.Time
}

// New wraps an existing pool. Migrations are expected to be applied.
func New(pool poolIface) *Storage {
	return &Storage{
		pool: pool,
		now:  time.Now,
	}
}

// Open connects to dsn, retrying while the server is unreachable, and applies migrations.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("PG_CONFIG_INVALID").Wrap(err)
	}

	var pool *pgxpool.Pool
	backoff := retry.WithMaxRetries(connectAttempts, retry.NewExponential(connectBaseDelay))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			logger.WarnContext(ctx, "postgres is not reachable, retrying",
				slog.String("host", cfg.ConnConfig.Host),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("PG_CONNECT_FAILED").With("host", cfg.ConnConfig.Host).Wrap(err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return New(pool), nil
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("PG_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		_ = db.Close()
	}()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
