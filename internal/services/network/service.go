package network

import (
	"context"
	"sync"

	"github.com/dustin/go-humanize"

	"tradinglab/internal/domain/account"
	"tradinglab/internal/events"
	"tradinglab/internal/metrics"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

// Service owns the per-user account networks. Domain operations run on the
// aggregate; the service wraps them with persistence, metrics and the
// NetworkUpdated event.
type Service struct {
	repo      account.Repository
	provider  account.ConnectionProvider
	publisher events.Publisher
	log       *logger.Logger

	mu       sync.Mutex
	networks map[string]*account.Network
}

// NewService creates a network service
func NewService(repo account.Repository, provider account.ConnectionProvider, publisher events.Publisher) *Service {
	return &Service{
		repo:      repo,
		provider:  provider,
		publisher: publisher,
		log:       logger.Get().With("component", "network_service"),
		networks:  make(map[string]*account.Network),
	}
}

// network returns the in-memory aggregate for a user, rebuilding it from
// the repository on first touch. Caller must hold the service mutex.
func (s *Service) network(ctx context.Context, userID string) (*account.Network, error) {
	if n, ok := s.networks[userID]; ok {
		return n, nil
	}

	accounts, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load network accounts: user_id=%s", userID)
	}

	n := account.NewNetwork()
	for _, acc := range accounts {
		switch acc.Role {
		case account.RoleCore:
			if err := n.SetCore(acc); err != nil {
				s.log.Warnw("Skipping extra core account from storage",
					"user_id", userID,
					"account_id", acc.ID,
					"error", err)
			}
		case account.RoleSatellite:
			if err := n.AddSatellite(acc); err != nil {
				s.log.Warnw("Skipping orphaned satellite from storage",
					"user_id", userID,
					"account_id", acc.ID,
					"error", err)
			}
		}
	}
	s.refreshState(n)

	s.networks[userID] = n
	return n, nil
}

// Snapshot returns a copy of the user's network for read-only use
func (s *Service) Snapshot(ctx context.Context, userID string) (account.Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.network(ctx, userID)
	if err != nil {
		return account.Network{}, err
	}

	return s.copyNetwork(n), nil
}

func (s *Service) copyNetwork(n *account.Network) account.Network {
	copied := account.Network{State: n.State}
	if n.Core != nil {
		core := *n.Core
		copied.Core = &core
	}
	for _, sat := range n.Satellites {
		c := *sat
		copied.Satellites = append(copied.Satellites, &c)
	}
	return copied
}

// ConnectCore performs the broker handshake and installs the result as the
// network core
func (s *Service) ConnectCore(ctx context.Context, userID, broker string, env account.Environment) (*account.Account, error) {
	if !env.Valid() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown environment: %s", env)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.network(ctx, userID)
	if err != nil {
		return nil, err
	}

	if n.Core != nil && n.Core.Connected {
		return nil, errors.Wrapf(errors.ErrDuplicateCore, "core %s is still connected", n.Core.ID)
	}

	n.State = account.NetworkConnecting
	acc, err := s.provider.Connect(ctx, userID, broker, env)
	if err != nil {
		n.State = account.NetworkError
		s.emitUpdate(userID, n)
		return nil, errors.Wrap(err, "core account connection failed")
	}

	if err := n.SetCore(acc); err != nil {
		return nil, err
	}
	s.refreshState(n)

	if err := s.repo.Upsert(ctx, acc); err != nil {
		s.log.Errorw("Failed to persist core account",
			"user_id", userID,
			"account_id", acc.ID,
			"error", err)
	}

	s.log.Infow("Core account connected",
		"user_id", userID,
		"account_id", acc.ID,
		"broker", broker)
	s.emitUpdate(userID, n)

	return acc, nil
}

// ConnectSatellite performs the broker handshake and appends the result as
// a satellite
func (s *Service) ConnectSatellite(ctx context.Context, userID, broker string, env account.Environment) (*account.Account, error) {
	if !env.Valid() {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown environment: %s", env)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.network(ctx, userID)
	if err != nil {
		return nil, err
	}

	if n.Core == nil {
		return nil, errors.ErrNoCoreAccount
	}

	n.State = account.NetworkSynchronizing
	acc, err := s.provider.Connect(ctx, userID, broker, env)
	if err != nil {
		s.refreshState(n)
		s.emitUpdate(userID, n)
		return nil, errors.Wrap(err, "satellite account connection failed")
	}

	if err := n.AddSatellite(acc); err != nil {
		s.refreshState(n)
		return nil, err
	}
	s.refreshState(n)

	if err := s.repo.Upsert(ctx, acc); err != nil {
		s.log.Errorw("Failed to persist satellite account",
			"user_id", userID,
			"account_id", acc.ID,
			"error", err)
	}

	s.log.Infow("Satellite account connected",
		"user_id", userID,
		"account_id", acc.ID,
		"broker", broker)
	s.emitUpdate(userID, n)

	return acc, nil
}

// RemoveSatellite drops a satellite from the network. Removing an unknown
// id is a no-op.
func (s *Service) RemoveSatellite(ctx context.Context, userID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.network(ctx, userID)
	if err != nil {
		return err
	}

	if _, ok := n.Lookup(accountID); !ok {
		return nil
	}

	n.RemoveSatellite(accountID)
	s.refreshState(n)

	if err := s.repo.Delete(ctx, accountID); err != nil {
		s.log.Errorw("Failed to delete satellite account",
			"user_id", userID,
			"account_id", accountID,
			"error", err)
	}

	s.emitUpdate(userID, n)
	return nil
}

// Reset drops the whole network. The core is never removed alone.
func (s *Service) Reset(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.network(ctx, userID)
	if err != nil {
		return err
	}

	n.Reset()

	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		s.log.Errorw("Failed to delete network accounts",
			"user_id", userID,
			"error", err)
	}

	s.emitUpdate(userID, n)
	return nil
}

// Refresh reapplies the backend's current view of a user's accounts to the
// live network: balances and connection flags only, topology stands. Called
// by the account sync worker.
func (s *Service) Refresh(ctx context.Context, userID string) error {
	latest, err := s.provider.ListAccounts(ctx, userID)
	if err != nil {
		return errors.Wrapf(err, "failed to list accounts: user_id=%s", userID)
	}

	byID := make(map[string]*account.Account, len(latest))
	for _, acc := range latest {
		byID[acc.ID] = acc
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.network(ctx, userID)
	if err != nil {
		return err
	}

	changed := false
	for _, acc := range n.Accounts() {
		fresh, ok := byID[acc.ID]
		if !ok {
			// Backend no longer knows the account; treat as disconnected
			if acc.Connected {
				acc.Connected = false
				changed = true
			}
			continue
		}
		if !acc.Balance.Equal(fresh.Balance) || acc.Connected != fresh.Connected {
			acc.Balance = fresh.Balance
			acc.Connected = fresh.Connected
			changed = true
		}

		if err := s.repo.Upsert(ctx, acc); err != nil {
			s.log.Errorw("Failed to persist refreshed account",
				"user_id", userID,
				"account_id", acc.ID,
				"error", err)
		}
	}

	if changed {
		s.refreshState(n)
		s.emitUpdate(userID, n)
	}

	return nil
}

// Users lists the users with a live in-memory network
func (s *Service) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]string, 0, len(s.networks))
	for userID := range s.networks {
		users = append(users, userID)
	}
	return users
}

// refreshState derives the network state from the aggregate
func (s *Service) refreshState(n *account.Network) {
	switch {
	case n.Core == nil:
		n.State = account.NetworkIdle
	case n.FullySynchronized():
		n.State = account.NetworkActive
	default:
		n.State = account.NetworkSynchronizing
	}
}

func (s *Service) emitUpdate(userID string, n *account.Network) {
	power := n.TotalPower()
	metrics.NetworkTotalPower.WithLabelValues(userID).Set(power.InexactFloat64())
	coreCount := 0
	if n.Core != nil {
		coreCount = 1
	}
	metrics.NetworkAccounts.WithLabelValues(userID, "core").Set(float64(coreCount))
	metrics.NetworkAccounts.WithLabelValues(userID, "satellite").Set(float64(len(n.Satellites)))

	event := &events.NetworkUpdatedEvent{
		BaseEvent:      events.NewBaseEvent(events.TypeNetworkUpdated, userID),
		State:          string(n.State),
		TotalPower:     power.String(),
		TotalPowerText: humanize.CommafWithDigits(power.InexactFloat64(), 2),
		ActiveAccounts: n.ActiveAccounts(),
		SatelliteCount: len(n.Satellites),
		Synchronized:   n.FullySynchronized(),
	}

	if err := s.publisher.PublishNetworkUpdated(event); err != nil {
		s.log.Warnw("Failed to publish network update", "user_id", userID, "error", err)
	}
}
