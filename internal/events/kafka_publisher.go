package events

import (
	"context"
	"time"

	"tradinglab/internal/adapters/kafka"
	"tradinglab/pkg/logger"
)

const publishTimeout = 5 * time.Second

// KafkaPublisher publishes presentation events to Kafka as JSON
type KafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewKafkaPublisher creates a new Kafka event publisher
func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		log:      logger.Get().With("component", "event_publisher"),
	}
}

func (p *KafkaPublisher) publish(topic, key string, event interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return p.producer.Publish(ctx, topic, key, event)
}

// PublishStepChanged publishes a step transition
func (p *KafkaPublisher) PublishStepChanged(event *StepChangedEvent) error {
	return p.publish(kafka.TopicOnboardingSteps, event.UserID, event)
}

// PublishProgress publishes a sequencer progress update
func (p *KafkaPublisher) PublishProgress(event *ProgressChangedEvent) error {
	return p.publish(kafka.TopicOnboardingProgress, event.UserID, event)
}

// PublishOnboardingCompleted publishes the completion signal
func (p *KafkaPublisher) PublishOnboardingCompleted(event *OnboardingCompletedEvent) error {
	return p.publish(kafka.TopicOnboardingCompleted, event.UserID, event)
}

// PublishConflictDetected publishes a manual-mode conflict
func (p *KafkaPublisher) PublishConflictDetected(event *ConflictDetectedEvent) error {
	return p.publish(kafka.TopicActivationConflicts, event.UserID, event)
}

// PublishActivationSucceeded publishes a terminal activation success
func (p *KafkaPublisher) PublishActivationSucceeded(event *ActivationSucceededEvent) error {
	return p.publish(kafka.TopicActivationResults, event.UserID, event)
}

// PublishActivationFailed publishes a terminal activation failure
func (p *KafkaPublisher) PublishActivationFailed(event *ActivationFailedEvent) error {
	return p.publish(kafka.TopicActivationResults, event.UserID, event)
}

// PublishNetworkUpdated publishes the network aggregate
func (p *KafkaPublisher) PublishNetworkUpdated(event *NetworkUpdatedEvent) error {
	return p.publish(kafka.TopicNetworkUpdates, event.UserID, event)
}
