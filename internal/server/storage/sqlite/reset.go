package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/prescient/internal/server/storage"
)

// MarkConsumed records reset token key as used
func (s *Storage) MarkConsumed(ctx context.Context, key string, expiresAt time.Time) error {
	query := `INSERT INTO consumed_reset_tokens (key, expires_at) VALUES (?, ?)`

	if _, err := s.db.ExecContext(ctx, query, key, expiresAt.Unix()); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrTokenConsumed
		}
		return fmt.Errorf("failed to mark reset token consumed: %w", err)
	}

	return nil
}

// PurgeExpired removes consumed token records that expired at or before now
func (s *Storage) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	query := `DELETE FROM consumed_reset_tokens WHERE expires_at <= ?`

	result, err := s.db.ExecContext(ctx, query, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(rows), nil
}
