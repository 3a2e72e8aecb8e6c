package activation

import (
	"context"

	"tradinglab/internal/domain/account"
	"tradinglab/internal/domain/activation"
	"tradinglab/internal/events"
	"tradinglab/internal/metrics"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

// Coordinator decides whether an activation request may proceed and owns
// the single submission to the backend. The manual-mode guard is advisory:
// it inspects the index at decision time without holding a lock, so a
// simultaneous manual-mode toggle can slip past it. That race is accepted.
type Coordinator struct {
	manualMode account.ManualModeIndex
	submitter  activation.Submitter
	publisher  events.Publisher
	log        *logger.Logger
}

// NewCoordinator creates an activation coordinator
func NewCoordinator(manualMode account.ManualModeIndex, submitter activation.Submitter, publisher events.Publisher) *Coordinator {
	return &Coordinator{
		manualMode: manualMode,
		submitter:  submitter,
		publisher:  publisher,
		log:        logger.Get().With("component", "activation_coordinator"),
	}
}

// ValidateShape checks the request's structural invariants without
// touching external state
func (c *Coordinator) ValidateShape(req *activation.Request) error {
	return req.Validate()
}

// ResolveAccountIDs returns the ordered set of account ids the request
// touches, leader first for group requests
func (c *Coordinator) ResolveAccountIDs(req *activation.Request) []string {
	return req.AccountIDs()
}

// CheckManualModeConflict runs the manual-mode guard. Only activations are
// checked; deactivation is always permitted. Conflicting ids keep
// resolution order and the first one is surfaced to the user.
func (c *Coordinator) CheckManualModeConflict(ctx context.Context, userID string, req *activation.Request) (activation.ConflictCheckResult, error) {
	if !req.IsActivation() {
		return activation.ConflictCheckResult{}, nil
	}

	var conflicting []string
	for _, id := range req.AccountIDs() {
		active, err := c.manualMode.IsManualModeActive(ctx, id)
		if err != nil {
			return activation.ConflictCheckResult{}, errors.Wrapf(err, "manual mode lookup failed: account_id=%s", id)
		}
		if active {
			conflicting = append(conflicting, id)
		}
	}

	if len(conflicting) == 0 {
		return activation.ConflictCheckResult{}, nil
	}

	result := activation.ConflictCheckResult{
		Blocked:               true,
		ConflictingAccountIDs: conflicting,
	}

	metrics.ConflictsBlocked.WithLabelValues(string(req.Kind)).Inc()
	c.log.Infow("Activation blocked by manual mode",
		"user_id", userID,
		"account_id", result.First(),
		"conflicts", len(conflicting))

	event := &events.ConflictDetectedEvent{
		BaseEvent:             events.NewBaseEvent(events.TypeConflictDetected, userID),
		AccountID:             result.First(),
		ConflictingAccountIDs: conflicting,
		Message:               "activation.conflict.manual_mode",
	}
	if err := c.publisher.PublishConflictDetected(event); err != nil {
		c.log.Warnw("Failed to publish conflict event", "error", err)
	}

	return result, nil
}

// Submit is the gated activation call. The request is validated, guarded
// and then handed to the backend once. Callers own exactly-once semantics
// per run; a blocked request returns ManualModeConflictError and never
// reaches the backend.
func (c *Coordinator) Submit(ctx context.Context, userID string, req *activation.Request) error {
	if err := c.ValidateShape(req); err != nil {
		return err
	}

	result, err := c.CheckManualModeConflict(ctx, userID, req)
	if err != nil {
		return err
	}
	if result.Blocked {
		return errors.NewManualModeConflictError(result.ConflictingAccountIDs)
	}

	if err := c.submitter.Submit(ctx, req); err != nil {
		return errors.NewActivationSubmissionError("", err)
	}

	c.log.Infow("Activation submitted",
		"user_id", userID,
		"kind", req.Kind,
		"direction", req.Direction,
		"ticker", req.Ticker)

	return nil
}
