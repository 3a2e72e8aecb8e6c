package onboarding

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradinglab/internal/domain/onboarding"
	"tradinglab/internal/events"
	pkgerrors "tradinglab/pkg/errors"
)

// memoryStore is an in-memory onboarding.Store for tests
type memoryStore struct {
	mu     sync.Mutex
	states map[string]*onboarding.State

	saveErr   error
	saveCalls int
	delCalls  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: make(map[string]*onboarding.State)}
}

func (s *memoryStore) Load(_ context.Context, userID string) (*onboarding.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (s *memoryStore) Save(_ context.Context, userID string, state *onboarding.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	copied := *state
	copied.CompletedSteps = append([]onboarding.Step(nil), state.CompletedSteps...)
	s.states[userID] = &copied
	return nil
}

func (s *memoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delCalls++
	delete(s.states, userID)
	return nil
}

// recordingPublisher captures emitted events
type recordingPublisher struct {
	events.NoopPublisher

	mu          sync.Mutex
	stepChanges []*events.StepChangedEvent
	completions []*events.OnboardingCompletedEvent
}

func (p *recordingPublisher) PublishStepChanged(event *events.StepChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stepChanges = append(p.stepChanges, event)
	return nil
}

func (p *recordingPublisher) PublishOnboardingCompleted(event *events.OnboardingCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completions = append(p.completions, event)
	return nil
}

func newTestSession(t *testing.T) (*Session, *memoryStore, *recordingPublisher) {
	t.Helper()
	store := newMemoryStore()
	pub := &recordingPublisher{}
	return NewSession("user-1", nil, store, pub), store, pub
}

func TestSession_NextStep(t *testing.T) {
	ctx := context.Background()
	session, store, pub := newTestSession(t)

	state, err := session.NextStep(ctx)
	require.NoError(t, err)

	assert.Equal(t, onboarding.StepStrategyActivation, state.CurrentStep)
	assert.Equal(t, []onboarding.Step{onboarding.StepAccountConnection}, state.CompletedSteps)
	assert.InDelta(t, 33.33, state.Progress(), 0.01)

	require.Len(t, pub.stepChanges, 1)
	assert.Equal(t, "account_connection", pub.stepChanges[0].FromStep)
	assert.Equal(t, "strategy_activation", pub.stepChanges[0].ToStep)
	assert.Equal(t, 1, store.saveCalls)
}

func TestSession_NextStep_TerminalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	session, _, _ := newTestSession(t)

	for i := 0; i < len(onboarding.Steps); i++ {
		_, err := session.NextStep(ctx)
		require.NoError(t, err)
	}

	state := session.State()
	require.Equal(t, onboarding.StepCompleted, state.CurrentStep)
	completed := state.CompletedSteps

	// Repeated calls at the terminal step change nothing
	for i := 0; i < 3; i++ {
		state, err := session.NextStep(ctx)
		require.NoError(t, err)
		assert.Equal(t, onboarding.StepCompleted, state.CurrentStep)
		assert.Equal(t, completed, state.CompletedSteps)
	}
}

func TestSession_PreviousStep_DoesNotUncomplete(t *testing.T) {
	ctx := context.Background()
	session, _, _ := newTestSession(t)

	_, err := session.NextStep(ctx)
	require.NoError(t, err)

	state, err := session.PreviousStep(ctx)
	require.NoError(t, err)

	assert.Equal(t, onboarding.StepAccountConnection, state.CurrentStep)
	assert.True(t, state.HasCompleted(onboarding.StepAccountConnection))
}

func TestSession_PreviousStep_NoopAtFirstStep(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	state, err := session.PreviousStep(ctx)
	require.NoError(t, err)

	assert.Equal(t, onboarding.StepAccountConnection, state.CurrentStep)
	assert.Equal(t, 0, store.saveCalls)
}

func TestSession_SkipToStep(t *testing.T) {
	ctx := context.Background()
	session, _, _ := newTestSession(t)

	state, err := session.SkipToStep(ctx, onboarding.StepNetworkAmplification)
	require.NoError(t, err)

	assert.Equal(t, onboarding.StepNetworkAmplification, state.CurrentStep)
	// Skipping does not retroactively complete intermediate steps
	assert.Empty(t, state.CompletedSteps)
}

func TestSession_SkipToStep_UnknownStepRejected(t *testing.T) {
	ctx := context.Background()
	session, store, pub := newTestSession(t)

	state, err := session.SkipToStep(ctx, onboarding.Step("TELEPORT"))
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrInvalidStep))

	// No partial mutation
	assert.Equal(t, onboarding.StepAccountConnection, state.CurrentStep)
	assert.Empty(t, state.CompletedSteps)
	assert.Empty(t, pub.stepChanges)
	assert.Equal(t, 0, store.saveCalls)
}

func TestSession_CompleteOnboarding(t *testing.T) {
	ctx := context.Background()
	session, _, pub := newTestSession(t)

	state, err := session.CompleteOnboarding(ctx)
	require.NoError(t, err)

	assert.Equal(t, onboarding.StepCompleted, state.CurrentStep)
	assert.True(t, state.HasCompleted(onboarding.StepAccountConnection))
	assert.True(t, state.HasCompleted(onboarding.StepStrategyActivation))
	assert.True(t, state.HasCompleted(onboarding.StepNetworkAmplification))
	assert.Equal(t, float64(100), state.Progress())
	assert.True(t, state.Complete())

	require.Len(t, pub.completions, 1)
}

func TestSession_ResetOnboarding(t *testing.T) {
	ctx := context.Background()
	session, store, _ := newTestSession(t)

	_, err := session.SelectStrategy(ctx, "momentum-breakout")
	require.NoError(t, err)
	_, err = session.NextStep(ctx)
	require.NoError(t, err)

	state, err := session.ResetOnboarding(ctx)
	require.NoError(t, err)

	assert.Equal(t, onboarding.StepAccountConnection, state.CurrentStep)
	assert.Empty(t, state.CompletedSteps)
	assert.Empty(t, state.SelectedStrategy)
	assert.Nil(t, state.StrategyConfig)
	assert.Equal(t, 1, store.delCalls)
}

func TestSession_PersistenceFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	store.saveErr = pkgerrors.ErrPersistence
	session := NewSession("user-1", nil, store, &recordingPublisher{})

	state, err := session.NextStep(ctx)
	require.NoError(t, err)

	// Save failed but the transition stands
	assert.Equal(t, onboarding.StepStrategyActivation, state.CurrentStep)
}

func TestSession_SetStrategyConfig_ClampsQuantity(t *testing.T) {
	ctx := context.Background()
	session, _, _ := newTestSession(t)

	state, err := session.SetStrategyConfig(ctx, onboarding.StrategyConfig{Ticker: "ES", Quantity: 500})
	require.NoError(t, err)
	assert.Equal(t, 99, state.StrategyConfig.Quantity)

	state, err = session.SetStrategyConfig(ctx, onboarding.StrategyConfig{Ticker: "NQ"})
	require.NoError(t, err)
	assert.Equal(t, 1, state.StrategyConfig.Quantity)

	_, err = session.SetStrategyConfig(ctx, onboarding.StrategyConfig{})
	require.Error(t, err)
}

func TestSession_ConcurrentTransitionsStaySerialized(t *testing.T) {
	ctx := context.Background()
	session, _, _ := newTestSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = session.NextStep(ctx)
		}()
	}
	wg.Wait()

	state := session.State()
	assert.Equal(t, onboarding.StepCompleted, state.CurrentStep)
	// The completed set never loses an entry under concurrent transitions
	assert.Len(t, state.CompletedSteps, len(onboarding.Steps)-1)
}

func TestManager_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	manager := NewManager(store, &recordingPublisher{})

	session, err := manager.Session(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, manager.Active())

	// Same handle on second touch
	again, err := manager.Session(ctx, "user-1")
	require.NoError(t, err)
	assert.Same(t, session, again)

	_, err = session.NextStep(ctx)
	require.NoError(t, err)

	manager.Evict("user-1")
	assert.Equal(t, 0, manager.Active())

	// Re-login resumes from the persisted state
	resumed, err := manager.Session(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, onboarding.StepStrategyActivation, resumed.State().CurrentStep)
}

func TestManager_RejectsEmptyUserID(t *testing.T) {
	manager := NewManager(newMemoryStore(), &recordingPublisher{})

	_, err := manager.Session(context.Background(), "")
	require.Error(t, err)
}
