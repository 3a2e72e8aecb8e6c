package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tradinglab/internal/domain/onboarding"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

// OnboardingStateRepository implements onboarding.Store using Redis
type OnboardingStateRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewOnboardingStateRepository creates a new onboarding state repository
func NewOnboardingStateRepository(client *redis.Client, ttl time.Duration) *OnboardingStateRepository {
	return &OnboardingStateRepository{
		client: client,
		ttl:    ttl,
		log:    logger.Get().With("component", "onboarding_state_repository"),
	}
}

// Load retrieves the persisted state for a user. A missing or malformed
// entry yields (nil, nil) so the caller starts a fresh session.
func (r *OnboardingStateRepository) Load(ctx context.Context, userID string) (*onboarding.State, error) {
	key := r.getKey(userID)

	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load onboarding state from redis: user_id=%s", userID)
	}

	var state onboarding.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		r.log.Warnw("Discarding malformed onboarding state", "user_id", userID, "error", err)
		return nil, nil
	}

	if !state.CurrentStep.Valid() {
		r.log.Warnw("Discarding onboarding state with unknown step",
			"user_id", userID,
			"step", state.CurrentStep)
		return nil, nil
	}

	return &state, nil
}

// Save stores the state with the configured TTL
func (r *OnboardingStateRepository) Save(ctx context.Context, userID string, state *onboarding.State) error {
	key := r.getKey(userID)

	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal onboarding state: user_id=%s", userID)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to save onboarding state to redis: user_id=%s: %v", userID, err)
	}

	return nil
}

// Delete removes the persisted state
func (r *OnboardingStateRepository) Delete(ctx context.Context, userID string) error {
	key := r.getKey(userID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "failed to delete onboarding state from redis: user_id=%s: %v", userID, err)
	}

	return nil
}

func (r *OnboardingStateRepository) getKey(userID string) string {
	return fmt.Sprintf("onboarding:%s", userID)
}
