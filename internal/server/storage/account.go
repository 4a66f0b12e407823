package storage

import (
	"context"

	"github.com/iudanet/prescient/internal/models"
)

// BootstrapMarker is the meta key recording that bootstrap seeding already ran.
const BootstrapMarker = "bootstrap_seeded"

// AccountStore defines interface for account persistence
type AccountStore interface {
	// FindByUsername retrieves account by username
	// Returns ErrAccountNotFound if account doesn't exist
	FindByUsername(ctx context.Context, username string) (*models.Account, error)

	// FindByEmail retrieves account by email
	// Returns ErrAccountNotFound if account doesn't exist
	FindByEmail(ctx context.Context, email string) (*models.Account, error)

	// Insert creates a new account
	// Returns ErrAccountConflict if username or email is already taken
	Insert(ctx context.Context, account *models.Account) error

	// UpdatePassword replaces password digest of the account
	// Returns ErrAccountNotFound if account doesn't exist
	UpdatePassword(ctx context.Context, username, digest string) error

	// SetActive activates or deactivates the account
	// Returns ErrAccountNotFound if account doesn't exist
	SetActive(ctx context.Context, username string, active bool) error

	// SeedBootstrap inserts account only if seeding never ran and the store is empty.
	// The BootstrapMarker is persisted in the same transaction, so seeding happens at most once.
	// Returns true if the account was inserted
	SeedBootstrap(ctx context.Context, account *models.Account) (bool, error)

	// Ping checks that storage is reachable
	Ping(ctx context.Context) error

	// Close releases storage resources
	Close() error
}
