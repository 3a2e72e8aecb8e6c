package account

import (
	"context"
)

// ConnectionProvider talks to the broker aggregation backend. Connect
// performs the credential handshake and returns the resulting account;
// ListAccounts reports the backend's current view of a user's accounts,
// used to refresh balances and connection flags.
type ConnectionProvider interface {
	Connect(ctx context.Context, userID, broker string, env Environment) (*Account, error)
	ListAccounts(ctx context.Context, userID string) ([]*Account, error)
}
