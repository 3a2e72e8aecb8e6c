package kafka

// Topic definitions for Kafka event streaming
const (
	// Onboarding lifecycle events
	TopicOnboardingSteps     = "onboarding.steps"
	TopicOnboardingProgress  = "onboarding.progress"
	TopicOnboardingCompleted = "onboarding.completed"

	// Activation events
	TopicActivationResults   = "activation.results"
	TopicActivationConflicts = "activation.conflicts"

	// Network events
	TopicNetworkUpdates = "network.updates"
)
