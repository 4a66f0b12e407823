package storage

import (
	"context"
	"time"
)

// ResetLedger records consumed password reset tokens
type ResetLedger interface {
	// MarkConsumed records key as used until expiresAt
	// Returns ErrTokenConsumed if key was already recorded
	MarkConsumed(ctx context.Context, key string, expiresAt time.Time) error

	// PurgeExpired removes records which expired at or before now
	// Returns number of deleted records
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Store is implemented by every storage backend
type Store interface {
	AccountStore
	ResetLedger
}
