package onboarding

import (
	"context"
	"sync"
	"time"

	"tradinglab/internal/domain/onboarding"
	"tradinglab/internal/events"
	"tradinglab/internal/metrics"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

// Session drives the onboarding step machine for one authenticated user.
// All transitions are serialized by the session mutex; the persistence
// write is always the last effect of a mutation and never rolls back
// in-memory state when it fails.
type Session struct {
	userID    string
	store     onboarding.Store
	publisher events.Publisher
	log       *logger.Logger

	mu    sync.Mutex
	state *onboarding.State
}

// NewSession creates a session around an existing state. Use Manager to get
// sessions with state loaded from the store.
func NewSession(userID string, state *onboarding.State, store onboarding.Store, publisher events.Publisher) *Session {
	if state == nil {
		state = onboarding.NewState()
	}

	return &Session{
		userID:    userID,
		store:     store,
		publisher: publisher,
		log:       logger.Get().With("component", "onboarding_session", "user_id", userID),
		state:     state,
	}
}

// UserID returns the owning user id
func (s *Session) UserID() string {
	return s.userID
}

// State returns a snapshot of the current state
func (s *Session) State() onboarding.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

// snapshot copies the state under the caller's lock
func (s *Session) snapshot() onboarding.State {
	copied := *s.state
	copied.CompletedSteps = append([]onboarding.Step(nil), s.state.CompletedSteps...)
	if s.state.StrategyConfig != nil {
		cfg := *s.state.StrategyConfig
		copied.StrategyConfig = &cfg
	}
	return copied
}

// NextStep advances to the immediate successor and marks the step being
// left as completed. No-op at the terminal step.
func (s *Session) NextStep(ctx context.Context) (onboarding.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state.CurrentStep
	next, ok := from.Next()
	if !ok {
		// Terminal; repeated calls never change the state
		return s.snapshot(), nil
	}

	s.state.MarkCompleted(from)
	s.state.CurrentStep = next
	metrics.RecordStepTransition(from.String(), next.String(), nil)

	s.emitStepChanged(from, next)
	if next == onboarding.StepCompleted {
		s.emitCompleted()
		metrics.OnboardingCompletions.Inc()
	}
	s.persist(ctx)

	return s.snapshot(), nil
}

// PreviousStep moves to the immediate predecessor. Completion is monotonic;
// going back never un-completes a step. No-op at the first step.
func (s *Session) PreviousStep(ctx context.Context) (onboarding.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state.CurrentStep
	prev, ok := from.Previous()
	if !ok {
		return s.snapshot(), nil
	}

	s.state.CurrentStep = prev
	metrics.RecordStepTransition(from.String(), prev.String(), nil)

	s.emitStepChanged(from, prev)
	s.persist(ctx)

	return s.snapshot(), nil
}

// SkipToStep jumps directly to a step. Used when an external event, like a
// broker OAuth callback, determines the correct position. Intermediate
// steps are not retroactively completed. An unknown step is rejected and
// the machine stays where it was.
func (s *Session) SkipToStep(ctx context.Context, step onboarding.Step) (onboarding.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state.CurrentStep
	if !step.Valid() {
		metrics.RecordStepTransition(from.String(), step.String(), errors.ErrInvalidStep)
		return s.snapshot(), errors.Wrapf(errors.ErrInvalidStep, "unknown step: %s", step)
	}

	if step == from {
		return s.snapshot(), nil
	}

	s.state.CurrentStep = step
	metrics.RecordStepTransition(from.String(), step.String(), nil)

	s.emitStepChanged(from, step)
	s.persist(ctx)

	return s.snapshot(), nil
}

// CompleteOnboarding force-finishes the flow: every preceding step is
// marked completed, progress reaches 100 and the completion signal is
// emitted.
func (s *Session) CompleteOnboarding(ctx context.Context) (onboarding.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state.CurrentStep
	for _, step := range onboarding.Steps {
		if step == onboarding.StepCompleted {
			break
		}
		s.state.MarkCompleted(step)
	}
	s.state.CurrentStep = onboarding.StepCompleted

	if from != onboarding.StepCompleted {
		metrics.RecordStepTransition(from.String(), onboarding.StepCompleted.String(), nil)
		s.emitStepChanged(from, onboarding.StepCompleted)
	}
	s.emitCompleted()
	metrics.OnboardingCompletions.Inc()
	s.persist(ctx)

	return s.snapshot(), nil
}

// ResetOnboarding returns the machine to its initial state field by field
// and discards the persisted copy.
func (s *Session) ResetOnboarding(ctx context.Context) (onboarding.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state.CurrentStep
	s.state.CurrentStep = onboarding.StepAccountConnection
	s.state.CompletedSteps = []onboarding.Step{}
	s.state.SelectedStrategy = ""
	s.state.StrategyConfig = nil
	s.state.UpdatedAt = time.Now()

	metrics.OnboardingResets.Inc()
	if from != onboarding.StepAccountConnection {
		s.emitStepChanged(from, onboarding.StepAccountConnection)
	}

	if err := s.store.Delete(ctx, s.userID); err != nil {
		s.log.Errorw("Failed to discard persisted onboarding state", "error", err)
		metrics.StatePersistenceFailures.WithLabelValues("delete").Inc()
	}

	return s.snapshot(), nil
}

// SelectStrategy records the chosen strategy
func (s *Session) SelectStrategy(ctx context.Context, strategyID string) (onboarding.State, error) {
	if strategyID == "" {
		return s.State(), errors.NewValidationError("strategy_id", "is required", strategyID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.SelectedStrategy = strategyID
	s.persist(ctx)

	return s.snapshot(), nil
}

// SetStrategyConfig stores the strategy configuration. Quantity is clamped
// to the 1..99 contract, zero meaning "use the default of 1".
func (s *Session) SetStrategyConfig(ctx context.Context, cfg onboarding.StrategyConfig) (onboarding.State, error) {
	if cfg.Ticker == "" {
		return s.State(), errors.NewValidationError("ticker", "is required", cfg.Ticker)
	}

	if cfg.Quantity < 1 {
		cfg.Quantity = 1
	}
	if cfg.Quantity > 99 {
		cfg.Quantity = 99
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.StrategyConfig = &cfg
	s.persist(ctx)

	return s.snapshot(), nil
}

// persist saves the state as the last effect of a mutation. Failures are
// logged and counted; in-memory state stands.
func (s *Session) persist(ctx context.Context) {
	s.state.UpdatedAt = time.Now()

	if err := s.store.Save(ctx, s.userID, s.state); err != nil {
		s.log.Errorw("Failed to persist onboarding state",
			"step", s.state.CurrentStep,
			"error", err)
		metrics.StatePersistenceFailures.WithLabelValues("save").Inc()
	}
}

func (s *Session) emitStepChanged(from, to onboarding.Step) {
	event := &events.StepChangedEvent{
		BaseEvent:      events.NewBaseEvent(events.TypeStepChanged, s.userID),
		FromStep:       from.String(),
		ToStep:         to.String(),
		CompletedSteps: stepStrings(s.state.CompletedSteps),
		Progress:       s.state.Progress(),
	}

	if err := s.publisher.PublishStepChanged(event); err != nil {
		s.log.Warnw("Failed to publish step change", "error", err)
	}
}

func (s *Session) emitCompleted() {
	event := &events.OnboardingCompletedEvent{
		BaseEvent:      events.NewBaseEvent(events.TypeOnboardingCompleted, s.userID),
		CompletedSteps: stepStrings(s.state.CompletedSteps),
	}

	if err := s.publisher.PublishOnboardingCompleted(event); err != nil {
		s.log.Warnw("Failed to publish onboarding completion", "error", err)
	}
}

func stepStrings(steps []onboarding.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.String()
	}
	return out
}
