package onboarding

import (
	"time"
)

// Step is one stage in the fixed onboarding sequence
type Step string

const (
	StepAccountConnection    Step = "account_connection"
	StepStrategyActivation   Step = "strategy_activation"
	StepNetworkAmplification Step = "network_amplification" // optional post-success enhancement
	StepCompleted            Step = "completed"
)

// Steps is the fixed traversal order
var Steps = []Step{
	StepAccountConnection,
	StepStrategyActivation,
	StepNetworkAmplification,
	StepCompleted,
}

// Valid checks if step is a known value
func (s Step) Valid() bool {
	for _, step := range Steps {
		if s == step {
			return true
		}
	}
	return false
}

// String returns string representation
func (s Step) String() string {
	return string(s)
}

// index returns the step's position in the fixed order, or -1
func (s Step) index() int {
	for i, step := range Steps {
		if s == step {
			return i
		}
	}
	return -1
}

// Next returns the immediate successor, ok=false at the terminal step
func (s Step) Next() (Step, bool) {
	i := s.index()
	if i < 0 || i >= len(Steps)-1 {
		return s, false
	}
	return Steps[i+1], true
}

// Previous returns the immediate predecessor, ok=false at the first step
func (s Step) Previous() (Step, bool) {
	i := s.index()
	if i <= 0 {
		return s, false
	}
	return Steps[i-1], true
}

// StrategyConfig is the user's chosen configuration for the strategy step
type StrategyConfig struct {
	Ticker     string `json:"ticker"`
	Quantity   int    `json:"quantity"`
	WebhookRef string `json:"webhook_ref"`
}

// State is the persisted onboarding state for one user session
type State struct {
	CurrentStep      Step            `json:"current_step"`
	CompletedSteps   []Step          `json:"completed_steps"` // insertion order; membership is what matters
	SelectedStrategy string          `json:"selected_strategy,omitempty"`
	StrategyConfig   *StrategyConfig `json:"strategy_config,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewState creates the default state for a fresh user
func NewState() *State {
	return &State{
		CurrentStep:    StepAccountConnection,
		CompletedSteps: []Step{},
		UpdatedAt:      time.Now(),
	}
}

// HasCompleted reports membership in the completed set
func (s *State) HasCompleted(step Step) bool {
	for _, c := range s.CompletedSteps {
		if c == step {
			return true
		}
	}
	return false
}

// MarkCompleted adds a step to the completed set. Completion is monotonic;
// adding twice is a no-op.
func (s *State) MarkCompleted(step Step) {
	if s.HasCompleted(step) {
		return
	}
	s.CompletedSteps = append(s.CompletedSteps, step)
}

// Progress is the derived completion percentage, clamped to 100.
// The terminal step does not count toward the denominator.
func (s *State) Progress() float64 {
	total := len(Steps) - 1
	progress := float64(len(s.CompletedSteps)) / float64(total) * 100
	if progress > 100 {
		return 100
	}
	return progress
}

// Complete reports whether onboarding is finished. Network amplification is
// optional and does not gate completion.
func (s *State) Complete() bool {
	return s.HasCompleted(StepStrategyActivation)
}
