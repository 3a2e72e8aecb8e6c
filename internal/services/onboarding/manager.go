package onboarding

import (
	"context"
	"sync"

	"tradinglab/internal/domain/onboarding"
	"tradinglab/internal/events"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

// Manager owns the per-user onboarding sessions. A session is created on
// first touch after login, seeded from the store, and evicted on logout.
// Nothing here is global; the manager itself is injected where needed.
type Manager struct {
	store     onboarding.Store
	publisher events.Publisher
	log       *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager
func NewManager(store onboarding.Store, publisher events.Publisher) *Manager {
	return &Manager{
		store:     store,
		publisher: publisher,
		log:       logger.Get().With("component", "onboarding_manager"),
		sessions:  make(map[string]*Session),
	}
}

// Session returns the live session for a user, creating it from persisted
// state on first touch. A missing or malformed stored state yields a fresh
// session at the first step.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "user id is required")
	}

	m.mu.RLock()
	session, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return session, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Lost the race; another caller created it
	if session, ok := m.sessions[userID]; ok {
		return session, nil
	}

	state, err := m.store.Load(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load onboarding state: user_id=%s", userID)
	}
	if state == nil {
		state = onboarding.NewState()
		m.log.Infow("Starting fresh onboarding session", "user_id", userID)
	} else {
		m.log.Infow("Resuming onboarding session",
			"user_id", userID,
			"step", state.CurrentStep)
	}

	session = NewSession(userID, state, m.store, m.publisher)
	m.sessions[userID] = session

	return session, nil
}

// Evict drops a user's session on logout. The state already lives in the
// store from the last mutation; eviction only frees the in-memory handle.
func (m *Manager) Evict(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[userID]; ok {
		delete(m.sessions, userID)
		m.log.Infow("Evicted onboarding session", "user_id", userID)
	}
}

// Active returns the number of live sessions
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// Each calls fn for every live session. Used by the account sync worker.
func (m *Manager) Each(fn func(*Session)) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		fn(s)
	}
}
