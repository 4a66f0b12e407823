package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/iudanet/prescient/internal/models"
	"github.com/iudanet/prescient/internal/server/storage"
)

const selectAccount = `SELECT id, username, email, password_digest, is_active, created_at, updated_at
		 FROM accounts `

// FindByUsername retrieves an account by username.
func (s *Storage) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	account, err := scanAccount(s.pool.QueryRow(ctx, selectAccount+`WHERE username = $1`, username))
	if err != nil && !errors.Is(err, storage.ErrAccountNotFound) {
		return nil, oops.With("operation", "find account by username").With("username", username).Wrap(err)
	}
	return account, err
}

// FindByEmail retrieves an account by email.
func (s *Storage) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	account, err := scanAccount(s.pool.QueryRow(ctx, selectAccount+`WHERE email = $1`, email))
	if err != nil && !errors.Is(err, storage.ErrAccountNotFound) {
		return nil, oops.With("operation", "find account by email").Wrap(err)
	}
	return account, err
}

// Insert creates a new account.
func (s *Storage) Insert(ctx context.Context, account *models.Account) error {
	return insertAccount(ctx, s.pool, account)
}

// UpdatePassword replaces the password digest of an account.
func (s *Storage) UpdatePassword(ctx context.Context, username, digest string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET password_digest = $1, updated_at = $2 WHERE username = $3`,
		digest, s.now().UTC(), username)
	if err != nil {
		return oops.With("operation", "update password").With("username", username).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// SetActive activates or deactivates an account.
func (s *Storage) SetActive(ctx context.Context, username string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET is_active = $1, updated_at = $2 WHERE username = $3`,
		active, s.now().UTC(), username)
	if err != nil {
		return oops.With("operation", "set account active").With("username", username).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}

// SeedBootstrap inserts the bootstrap account at most once.
// The marker row is written first, so a concurrent seeder blocks on it and then sees it.
func (s *Storage) SeedBootstrap(ctx context.Context, account *models.Account) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}

	seeded, err := seedBootstrap(ctx, tx, account, s.now())
	if err != nil {
		_ = tx.Rollback(ctx)
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}

	return seeded, nil
}

func seedBootstrap(ctx context.Context, tx pgx.Tx, account *models.Account, now time.Time) (bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO meta (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		storage.BootstrapMarker, now.UTC().Format(time.RFC3339))
	if err != nil {
		return false, oops.With("operation", "write bootstrap marker").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	var count int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return false, oops.With("operation", "count accounts").Wrap(err)
	}
	if count > 0 {
		return false, nil
	}

	if err := insertAccount(ctx, tx, account); err != nil {
		return false, err
	}

	return true, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAccount(ctx context.Context, db execer, account *models.Account) error {
	_, err := db.Exec(ctx,
		`INSERT INTO accounts (id, username, email, password_digest, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordDigest,
		account.IsActive,
		account.CreatedAt.UTC(),
		account.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", storage.ErrAccountConflict, account.Username)
		}
		return oops.With("operation", "insert account").With("username", account.Username).Wrap(err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordDigest,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}
