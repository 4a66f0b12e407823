package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/iudanet/prescient/internal/server/storage"
)

// MarkConsumed records a reset token key as used.
func (s *Storage) MarkConsumed(ctx context.Context, key string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO consumed_reset_tokens (key, expires_at) VALUES ($1, $2)`,
		key, expiresAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrTokenConsumed
		}
		return oops.With("operation", "mark reset token consumed").Wrap(err)
	}
	return nil
}

// PurgeExpired removes consumed token records that expired at or before now.
func (s *Storage) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM consumed_reset_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, oops.With("operation", "purge consumed reset tokens").Wrap(err)
	}
	return int(tag.RowsAffected()), nil
}
