package events

// NoopPublisher discards all events. Used in tests and when the event
// pipeline is disabled.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that drops everything
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (p *NoopPublisher) PublishStepChanged(*StepChangedEvent) error                 { return nil }
func (p *NoopPublisher) PublishProgress(*ProgressChangedEvent) error                { return nil }
func (p *NoopPublisher) PublishOnboardingCompleted(*OnboardingCompletedEvent) error { return nil }
func (p *NoopPublisher) PublishConflictDetected(*ConflictDetectedEvent) error       { return nil }
func (p *NoopPublisher) PublishActivationSucceeded(*ActivationSucceededEvent) error { return nil }
func (p *NoopPublisher) PublishActivationFailed(*ActivationFailedEvent) error       { return nil }
func (p *NoopPublisher) PublishNetworkUpdated(*NetworkUpdatedEvent) error           { return nil }
