package workers

import (
	"context"
	"time"

	"tradinglab/internal/services/network"
)

// AccountSyncWorker refreshes balances and connection flags for every live
// network from the broker backend. A dropped connection shows up here as
// reduced total power; topology is never changed by the sync.
type AccountSyncWorker struct {
	*BaseWorker
	networks *network.Service
}

// NewAccountSyncWorker creates an account sync worker
func NewAccountSyncWorker(networks *network.Service, interval time.Duration, enabled bool) *AccountSyncWorker {
	return &AccountSyncWorker{
		BaseWorker: NewBaseWorker("account_sync", interval, enabled),
		networks:   networks,
	}
}

// Run refreshes each live network once
func (w *AccountSyncWorker) Run(ctx context.Context) error {
	start := time.Now()

	users := w.networks.Users()
	var failed int
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := w.networks.Refresh(ctx, userID); err != nil {
			failed++
			w.Log().Warnw("Account refresh failed",
				"user_id", userID,
				"error", err)
		}
	}

	duration := time.Since(start)
	if failed > 0 {
		w.Log().Infow("Account sync finished with failures",
			"users", len(users),
			"failed", failed,
			"duration", duration)
	}
	w.RecordRun(duration)

	return nil
}
