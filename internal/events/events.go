package events

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants
const (
	TypeStepChanged         = "onboarding.step_changed"
	TypeProgressChanged     = "onboarding.progress_changed"
	TypeOnboardingCompleted = "onboarding.completed"
	TypeConflictDetected    = "activation.conflict_detected"
	TypeActivationSucceeded = "activation.succeeded"
	TypeActivationFailed    = "activation.failed"
	TypeNetworkUpdated      = "network.updated"
)

// BaseEvent carries the common envelope fields
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates an envelope with defaults
func NewBaseEvent(eventType, userID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Version:   "1.0",
	}
}

// StepChangedEvent is emitted on every onboarding step transition
type StepChangedEvent struct {
	BaseEvent
	FromStep       string   `json:"from_step"`
	ToStep         string   `json:"to_step"`
	CompletedSteps []string `json:"completed_steps"`
	Progress       float64  `json:"progress"`
}

// ProgressChangedEvent is emitted when a sequencer run advances
type ProgressChangedEvent struct {
	BaseEvent
	RequestID string  `json:"request_id"`
	Stage     string  `json:"stage"`
	Message   string  `json:"message"`
	Progress  float64 `json:"progress"`
}

// OnboardingCompletedEvent is the completion signal consumed by the
// celebratory UI
type OnboardingCompletedEvent struct {
	BaseEvent
	CompletedSteps []string `json:"completed_steps"`
}

// ConflictDetectedEvent is emitted when the manual-mode guard blocks an
// activation. AccountID is the id surfaced to the user; Message is a
// placeholder the presentation layer localizes.
type ConflictDetectedEvent struct {
	BaseEvent
	AccountID             string   `json:"account_id"`
	ConflictingAccountIDs []string `json:"conflicting_account_ids"`
	Message               string   `json:"message"`
}

// ActivationSucceededEvent is the terminal success signal for a run
type ActivationSucceededEvent struct {
	BaseEvent
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"`
	Ticker    string `json:"ticker"`
}

// ActivationFailedEvent is the terminal failure signal for a run
type ActivationFailedEvent struct {
	BaseEvent
	RequestID string  `json:"request_id"`
	Kind      string  `json:"kind"`
	Stage     string  `json:"stage"`
	Progress  float64 `json:"progress"`
	Reason    string  `json:"reason"`
}

// NetworkUpdatedEvent reports the current network aggregate
type NetworkUpdatedEvent struct {
	BaseEvent
	State          string `json:"state"`
	TotalPower     string `json:"total_power"`
	TotalPowerText string `json:"total_power_text"` // humanized, e.g. "152,400"
	ActiveAccounts int    `json:"active_accounts"`
	SatelliteCount int    `json:"satellite_count"`
	Synchronized   bool   `json:"synchronized"`
}

// Publisher delivers presentation events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishStepChanged(event *StepChangedEvent) error
	PublishProgress(event *ProgressChangedEvent) error
	PublishOnboardingCompleted(event *OnboardingCompletedEvent) error
	PublishConflictDetected(event *ConflictDetectedEvent) error
	PublishActivationSucceeded(event *ActivationSucceededEvent) error
	PublishActivationFailed(event *ActivationFailedEvent) error
	PublishNetworkUpdated(event *NetworkUpdatedEvent) error
}
