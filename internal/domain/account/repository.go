package account

import (
	"context"
)

// Repository defines operations for account persistence
type Repository interface {
	// Upsert inserts or updates an account
	Upsert(ctx context.Context, acc *Account) error

	// GetByID retrieves an account by id
	GetByID(ctx context.Context, id string) (*Account, error)

	// GetByUser retrieves all accounts for a user, core first then satellites
	// in connection order
	GetByUser(ctx context.Context, userID string) ([]*Account, error)

	// SetConnected updates the connection flag for an account
	SetConnected(ctx context.Context, id string, connected bool) error

	// Delete removes an account
	Delete(ctx context.Context, id string) error

	// DeleteByUser removes all accounts for a user (network reset)
	DeleteByUser(ctx context.Context, userID string) error
}

// ManualModeIndex reports whether an account is currently flagged as
// manually trading. The flag itself is written by the live trading surface,
// outside this service.
type ManualModeIndex interface {
	IsManualModeActive(ctx context.Context, accountID string) (bool, error)
}
