package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/prescient/internal/models"
	"github.com/iudanet/prescient/internal/server/storage"
)

const selectAccount = `
	SELECT id, username, email, password_digest, is_active, created_at, updated_at
	FROM accounts
`

// rowScanner общий интерфейс для *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	return account, nil
}

// FindByUsername retrieves account by username
func (s *Storage) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, selectAccount+`WHERE username = ?`, username))
}

// FindByEmail retrieves account by email
func (s *Storage) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, selectAccount+`WHERE email = ?`, email))
}

// Insert creates a new account
func (s *Storage) Insert(ctx context.Context, account *models.Account) error {
	return insertAccount(ctx, s.db, account)
}

// execer позволяет выполнять вставку как в БД, так и внутри транзакции
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAccount(ctx context.Context, db execer, account *models.Account) error {
	query := `
		INSERT INTO accounts (id, username, email, password_digest, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordDigest,
		account.IsActive,
		account.CreatedAt.UTC(),
		account.UpdatedAt.UTC(),
	)
	if err != nil {
		// UNIQUE по username и email: из конкурирующих вставок проходит только одна
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", storage.ErrAccountConflict, account.Username)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// UpdatePassword replaces password digest of the account
func (s *Storage) UpdatePassword(ctx context.Context, username, digest string) error {
	query := `UPDATE accounts SET password_digest = ?, updated_at = ? WHERE username = ?`

	result, err := s.db.ExecContext(ctx, query, digest, time.Now().UTC(), username)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return checkAffected(result)
}

// SetActive activates or deactivates the account
func (s *Storage) SetActive(ctx context.Context, username string, active bool) error {
	query := `UPDATE accounts SET is_active = ?, updated_at = ? WHERE username = ?`

	result, err := s.db.ExecContext(ctx, query, active, time.Now().UTC(), username)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}

	return checkAffected(result)
}

// SeedBootstrap inserts the bootstrap account at most once
func (s *Storage) SeedBootstrap(ctx context.Context, account *models.Account) (seeded bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Маркер уже есть: сидинг выполнялся раньше, ничего не трогаем
	var marker string
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, storage.BootstrapMarker).Scan(&marker)
	switch {
	case err == nil:
		return false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("failed to read bootstrap marker: %w", err)
	}

	var count int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count accounts: %w", err)
	}

	if count == 0 {
		if err = insertAccount(ctx, tx, account); err != nil {
			return false, err
		}
		seeded = true
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`,
		storage.BootstrapMarker, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("failed to write bootstrap marker: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit bootstrap: %w", err)
	}

	return seeded, nil
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}
