package onboarding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradinglab/internal/domain/onboarding"
)

func TestStepOrder(t *testing.T) {
	next, ok := onboarding.StepAccountConnection.Next()
	require.True(t, ok)
	assert.Equal(t, onboarding.StepStrategyActivation, next)

	_, ok = onboarding.StepCompleted.Next()
	assert.False(t, ok)

	prev, ok := onboarding.StepStrategyActivation.Previous()
	require.True(t, ok)
	assert.Equal(t, onboarding.StepAccountConnection, prev)

	_, ok = onboarding.StepAccountConnection.Previous()
	assert.False(t, ok)
}

func TestStepValid(t *testing.T) {
	assert.True(t, onboarding.StepNetworkAmplification.Valid())
	assert.False(t, onboarding.Step("welcome_back").Valid())
}

func TestStateProgress(t *testing.T) {
	s := onboarding.NewState()
	assert.Equal(t, onboarding.StepAccountConnection, s.CurrentStep)
	assert.Zero(t, s.Progress())

	s.MarkCompleted(onboarding.StepAccountConnection)
	assert.InDelta(t, 33.33, s.Progress(), 0.01)

	s.MarkCompleted(onboarding.StepStrategyActivation)
	assert.InDelta(t, 66.66, s.Progress(), 0.01)

	s.MarkCompleted(onboarding.StepNetworkAmplification)
	assert.Equal(t, float64(100), s.Progress())
}

func TestMarkCompletedMonotonic(t *testing.T) {
	s := onboarding.NewState()
	s.MarkCompleted(onboarding.StepAccountConnection)
	s.MarkCompleted(onboarding.StepAccountConnection)
	assert.Len(t, s.CompletedSteps, 1)
}

func TestComplete(t *testing.T) {
	s := onboarding.NewState()
	assert.False(t, s.Complete())

	// network amplification alone does not finish onboarding
	s.MarkCompleted(onboarding.StepAccountConnection)
	s.MarkCompleted(onboarding.StepNetworkAmplification)
	assert.False(t, s.Complete())

	s.MarkCompleted(onboarding.StepStrategyActivation)
	assert.True(t, s.Complete())
}
