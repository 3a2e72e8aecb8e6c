package events

// MultiPublisher fans events out to several publishers. The first error
// is returned after all publishers have been tried.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a fan-out publisher
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

func (m *MultiPublisher) each(fn func(Publisher) error) error {
	var first error
	for _, p := range m.publishers {
		if err := fn(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiPublisher) PublishStepChanged(event *StepChangedEvent) error {
	return m.each(func(p Publisher) error { return p.PublishStepChanged(event) })
}

func (m *MultiPublisher) PublishProgress(event *ProgressChangedEvent) error {
	return m.each(func(p Publisher) error { return p.PublishProgress(event) })
}

func (m *MultiPublisher) PublishOnboardingCompleted(event *OnboardingCompletedEvent) error {
	return m.each(func(p Publisher) error { return p.PublishOnboardingCompleted(event) })
}

func (m *MultiPublisher) PublishConflictDetected(event *ConflictDetectedEvent) error {
	return m.each(func(p Publisher) error { return p.PublishConflictDetected(event) })
}

func (m *MultiPublisher) PublishActivationSucceeded(event *ActivationSucceededEvent) error {
	return m.each(func(p Publisher) error { return p.PublishActivationSucceeded(event) })
}

func (m *MultiPublisher) PublishActivationFailed(event *ActivationFailedEvent) error {
	return m.each(func(p Publisher) error { return p.PublishActivationFailed(event) })
}

func (m *MultiPublisher) PublishNetworkUpdated(event *NetworkUpdatedEvent) error {
	return m.each(func(p Publisher) error { return p.PublishNetworkUpdated(event) })
}
