package activation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradinglab/internal/domain/activation"
	"tradinglab/internal/events"
	pkgerrors "tradinglab/pkg/errors"
)

// MockManualModeIndex is a mock for account.ManualModeIndex
type MockManualModeIndex struct {
	mock.Mock
}

func (m *MockManualModeIndex) IsManualModeActive(ctx context.Context, accountID string) (bool, error) {
	args := m.Called(ctx, accountID)
	return args.Bool(0), args.Error(1)
}

// MockSubmitter is a mock for activation.Submitter
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, req *activation.Request) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

type activationRecorder struct {
	events.NoopPublisher

	mu        sync.Mutex
	conflicts []*events.ConflictDetectedEvent
	progress  []*events.ProgressChangedEvent
	succeeded []*events.ActivationSucceededEvent
	failed    []*events.ActivationFailedEvent
}

func (p *activationRecorder) PublishConflictDetected(event *events.ConflictDetectedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conflicts = append(p.conflicts, event)
	return nil
}

func (p *activationRecorder) PublishProgress(event *events.ProgressChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, event)
	return nil
}

func (p *activationRecorder) PublishActivationSucceeded(event *events.ActivationSucceededEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.succeeded = append(p.succeeded, event)
	return nil
}

func (p *activationRecorder) PublishActivationFailed(event *events.ActivationFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, event)
	return nil
}

func singleRequest() *activation.Request {
	return &activation.Request{
		Kind:       activation.KindSingle,
		Direction:  activation.DirectionActivate,
		Ticker:     "ES",
		WebhookRef: "W1",
		AccountID:  "A1",
		Quantity:   2,
	}
}

func multipleRequest() *activation.Request {
	return &activation.Request{
		Kind:               activation.KindMultiple,
		Direction:          activation.DirectionActivate,
		Ticker:             "NQ",
		WebhookRef:         "W2",
		LeaderAccountID:    "L1",
		FollowerAccountIDs: []string{"F1", "F2"},
		LeaderQuantity:     2,
		FollowerQuantity:   1,
		GroupName:          "grp",
	}
}

func TestCoordinator_CheckManualModeConflict_SingleBlocked(t *testing.T) {
	ctx := context.Background()
	index := new(MockManualModeIndex)
	submitter := new(MockSubmitter)
	rec := &activationRecorder{}
	coord := NewCoordinator(index, submitter, rec)

	index.On("IsManualModeActive", ctx, "A1").Return(true, nil)

	result, err := coord.CheckManualModeConflict(ctx, "user-1", singleRequest())
	require.NoError(t, err)

	assert.True(t, result.Blocked)
	assert.Equal(t, []string{"A1"}, result.ConflictingAccountIDs)
	assert.Equal(t, "A1", result.First())

	require.Len(t, rec.conflicts, 1)
	assert.Equal(t, "A1", rec.conflicts[0].AccountID)
	submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestCoordinator_CheckManualModeConflict_MultipleClear(t *testing.T) {
	ctx := context.Background()
	index := new(MockManualModeIndex)
	coord := NewCoordinator(index, new(MockSubmitter), &activationRecorder{})

	for _, id := range []string{"L1", "F1", "F2"} {
		index.On("IsManualModeActive", ctx, id).Return(false, nil)
	}

	req := multipleRequest()
	result, err := coord.CheckManualModeConflict(ctx, "user-1", req)
	require.NoError(t, err)

	assert.False(t, result.Blocked)
	assert.Equal(t, []string{"L1", "F1", "F2"}, coord.ResolveAccountIDs(req))
}

func TestCoordinator_CheckManualModeConflict_OrderPreserved(t *testing.T) {
	ctx := context.Background()
	index := new(MockManualModeIndex)
	coord := NewCoordinator(index, new(MockSubmitter), &activationRecorder{})

	index.On("IsManualModeActive", ctx, "L1").Return(false, nil)
	index.On("IsManualModeActive", ctx, "F1").Return(true, nil)
	index.On("IsManualModeActive", ctx, "F2").Return(true, nil)

	result, err := coord.CheckManualModeConflict(ctx, "user-1", multipleRequest())
	require.NoError(t, err)

	assert.True(t, result.Blocked)
	assert.Equal(t, []string{"F1", "F2"}, result.ConflictingAccountIDs)
	assert.Equal(t, "F1", result.First())
}

func TestCoordinator_DeactivationSkipsConflictCheck(t *testing.T) {
	ctx := context.Background()
	index := new(MockManualModeIndex)
	coord := NewCoordinator(index, new(MockSubmitter), &activationRecorder{})

	req := singleRequest()
	req.Direction = activation.DirectionDeactivate

	result, err := coord.CheckManualModeConflict(ctx, "user-1", req)
	require.NoError(t, err)

	assert.False(t, result.Blocked)
	index.AssertNotCalled(t, "IsManualModeActive", mock.Anything, mock.Anything)
}

func TestCoordinator_Submit(t *testing.T) {
	ctx := context.Background()
	index := new(MockManualModeIndex)
	submitter := new(MockSubmitter)
	coord := NewCoordinator(index, submitter, &activationRecorder{})

	req := singleRequest()
	index.On("IsManualModeActive", ctx, "A1").Return(false, nil)
	submitter.On("Submit", ctx, req).Return(nil)

	require.NoError(t, coord.Submit(ctx, "user-1", req))
	submitter.AssertNumberOfCalls(t, "Submit", 1)
}

func TestCoordinator_Submit_BackendFailureIsTyped(t *testing.T) {
	ctx := context.Background()
	index := new(MockManualModeIndex)
	submitter := new(MockSubmitter)
	coord := NewCoordinator(index, submitter, &activationRecorder{})

	req := singleRequest()
	cause := pkgerrors.New("backend rejected activation")
	index.On("IsManualModeActive", ctx, "A1").Return(false, nil)
	submitter.On("Submit", ctx, req).Return(cause)

	err := coord.Submit(ctx, "user-1", req)
	require.Error(t, err)

	var submissionErr *pkgerrors.ActivationSubmissionError
	require.True(t, pkgerrors.As(err, &submissionErr))
	assert.True(t, pkgerrors.Is(err, cause))
}

func TestCoordinator_Submit_BlockedNeverReachesBackend(t *testing.T) {
	ctx := context.Background()
	index := new(MockManualModeIndex)
	submitter := new(MockSubmitter)
	coord := NewCoordinator(index, submitter, &activationRecorder{})

	index.On("IsManualModeActive", ctx, "A1").Return(true, nil)

	err := coord.Submit(ctx, "user-1", singleRequest())
	require.Error(t, err)

	var conflict *pkgerrors.ManualModeConflictError
	require.True(t, pkgerrors.As(err, &conflict))
	assert.Equal(t, []string{"A1"}, conflict.ConflictingAccountIDs)
	submitter.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestCoordinator_Submit_RejectsInvalidShape(t *testing.T) {
	coord := NewCoordinator(new(MockManualModeIndex), new(MockSubmitter), &activationRecorder{})

	req := singleRequest()
	req.Quantity = 0

	err := coord.Submit(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrMissingField))
}
