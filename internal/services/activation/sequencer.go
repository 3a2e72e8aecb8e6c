package activation

import (
	"context"
	"sync"
	"time"

	"tradinglab/internal/domain/activation"
	"tradinglab/internal/events"
	"tradinglab/internal/metrics"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

// Stage is one step of the staged activation progress tracker
type Stage string

const (
	StageInitializing      Stage = "initializing"
	StageConfigured        Stage = "configured"
	StageAccountConnecting Stage = "account_connecting"
	StageCoreConnecting    Stage = "core_connecting"
	StageSatellitesSyncing Stage = "satellites_syncing"
	StageNetworkMesh       Stage = "network_mesh"
	StageMarketData        Stage = "market_data_connecting"
	StageActivated         Stage = "activated"
)

// stageStep binds a stage to its target progress and user-facing message key
type stageStep struct {
	Stage   Stage
	Target  float64
	Message string
}

// Stage plans. Targets increase monotonically and reach 100 at activated.
var (
	singlePlan = []stageStep{
		{StageInitializing, 15, "activation.stage.initializing"},
		{StageConfigured, 35, "activation.stage.configured"},
		{StageAccountConnecting, 60, "activation.stage.account_connecting"},
		{StageMarketData, 85, "activation.stage.market_data"},
		{StageActivated, 100, "activation.stage.activated"},
	}

	networkPlan = []stageStep{
		{StageInitializing, 10, "activation.stage.initializing"},
		{StageConfigured, 25, "activation.stage.configured"},
		{StageCoreConnecting, 40, "activation.stage.core_connecting"},
		{StageSatellitesSyncing, 60, "activation.stage.satellites_syncing"},
		{StageNetworkMesh, 75, "activation.stage.network_mesh"},
		{StageMarketData, 90, "activation.stage.market_data"},
		{StageActivated, 100, "activation.stage.activated"},
	}
)

// easingFactor is the per-tick fraction of the remaining distance covered;
// snapTolerance collapses the asymptotic tail onto the target
const (
	easingFactor  = 0.25
	snapTolerance = 0.75
)

func planFor(kind activation.Kind) []stageStep {
	if kind == activation.KindMultiple {
		return networkPlan
	}
	return singlePlan
}

// RunStatus is the externally visible state of a sequencer run
type RunStatus struct {
	RequestID string  `json:"request_id"`
	Stage     Stage   `json:"stage"`
	Progress  float64 `json:"progress"`
	Terminal  bool    `json:"terminal"`
	Succeeded bool    `json:"succeeded"`
	Reason    string  `json:"reason,omitempty"`
}

// Sequencer walks the staged progress table for an activation request,
// submits through the coordinator exactly once per run and emits the
// terminal event. At most one run per request id is active at a time; a
// finished run's status is retained so a halted stage stays inspectable.
type Sequencer struct {
	coordinator *Coordinator
	publisher   events.Publisher
	newTicker   TickerFactory
	stageHold   time.Duration
	log         *logger.Logger

	mu   sync.Mutex
	runs map[string]*RunStatus
}

// NewSequencer creates a sequencer. stageHold is how long a run lingers on
// a completed stage before entering the next one; zero disables the hold.
func NewSequencer(coordinator *Coordinator, publisher events.Publisher, newTicker TickerFactory, stageHold time.Duration) *Sequencer {
	return &Sequencer{
		coordinator: coordinator,
		publisher:   publisher,
		newTicker:   newTicker,
		stageHold:   stageHold,
		log:         logger.Get().With("component", "activation_sequencer"),
		runs:        make(map[string]*RunStatus),
	}
}

// Status reports the last known state of a run
func (s *Sequencer) Status(requestID string) (RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.runs[requestID]
	if !ok {
		return RunStatus{}, false
	}
	return *status, true
}

// Run executes the staged sequence for a request and blocks until it
// terminates. Ticks drive eased progress toward each stage target; the
// submission fires while market data is connecting, before the activated
// stage is entered. A failed run halts at its current stage with its
// progress intact.
func (s *Sequencer) Run(ctx context.Context, userID, requestID string, req *activation.Request) error {
	if err := s.coordinator.ValidateShape(req); err != nil {
		return err
	}

	status, err := s.begin(requestID, req.Kind)
	if err != nil {
		return err
	}

	start := time.Now()
	ticker := s.newTicker()
	defer ticker.Stop()

	plan := planFor(req.Kind)
	for _, step := range plan {
		if step.Stage == StageActivated {
			// The gated call, exactly once per run
			if err := s.coordinator.Submit(ctx, userID, req); err != nil {
				failErr := s.fail(userID, requestID, req, status, err)
				metrics.RecordActivationAttempt(string(req.Kind), string(req.Direction),
					submissionStatus(err), time.Since(start))
				return failErr
			}
		}

		s.setStage(status, step)
		s.emitProgress(userID, requestID, status, step.Message)

		for status.Progress < step.Target {
			select {
			case <-ctx.Done():
				s.finish(requestID, status, false, "cancelled")
				return ctx.Err()
			case <-ticker.Tick():
			}

			s.advance(status, step.Target)
			s.emitProgress(userID, requestID, status, step.Message)
		}

		if s.stageHold > 0 && step.Target < 100 {
			select {
			case <-ctx.Done():
				s.finish(requestID, status, false, "cancelled")
				return ctx.Err()
			case <-time.After(s.stageHold):
			}
		}
	}

	s.finish(requestID, status, true, "")
	metrics.RecordActivationAttempt(string(req.Kind), string(req.Direction), "success", time.Since(start))

	event := &events.ActivationSucceededEvent{
		BaseEvent: events.NewBaseEvent(events.TypeActivationSucceeded, userID),
		RequestID: requestID,
		Kind:      string(req.Kind),
		Ticker:    req.Ticker,
	}
	if err := s.publisher.PublishActivationSucceeded(event); err != nil {
		s.log.Warnw("Failed to publish activation success", "request_id", requestID, "error", err)
	}

	return nil
}

// begin registers a run, rejecting a second active run for the same request
func (s *Sequencer) begin(requestID string, kind activation.Kind) (*RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.runs[requestID]; ok && !existing.Terminal {
		return nil, errors.Wrapf(errors.ErrRunInFlight, "request %s", requestID)
	}

	status := &RunStatus{
		RequestID: requestID,
		Stage:     planFor(kind)[0].Stage,
	}
	s.runs[requestID] = status
	return status, nil
}

func (s *Sequencer) setStage(status *RunStatus, step stageStep) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status.Stage = step.Stage
}

// advance eases progress toward the target and snaps the asymptotic tail
func (s *Sequencer) advance(status *RunStatus, target float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := status.Progress + (target-status.Progress)*easingFactor
	if target-next < snapTolerance {
		next = target
	}
	status.Progress = next
}

func (s *Sequencer) finish(requestID string, status *RunStatus, succeeded bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status.Terminal = true
	status.Succeeded = succeeded
	status.Reason = reason
}

// fail terminates a run in place: the stage and progress reached so far
// are retained, never reset. The returned error carries the halted stage.
func (s *Sequencer) fail(userID, requestID string, req *activation.Request, status *RunStatus, cause error) error {
	inner := cause
	var typed *errors.ActivationSubmissionError
	if errors.As(cause, &typed) {
		inner = typed.Err
	}
	submissionErr := errors.NewActivationSubmissionError(string(status.Stage), inner)
	s.finish(requestID, status, false, submissionErr.Error())

	snapshot, _ := s.Status(requestID)
	metrics.SequencerStageFailures.WithLabelValues(string(snapshot.Stage)).Inc()
	s.log.Errorw("Activation run failed",
		"request_id", requestID,
		"stage", snapshot.Stage,
		"progress", snapshot.Progress,
		"error", cause)

	event := &events.ActivationFailedEvent{
		BaseEvent: events.NewBaseEvent(events.TypeActivationFailed, userID),
		RequestID: requestID,
		Kind:      string(req.Kind),
		Stage:     string(snapshot.Stage),
		Progress:  snapshot.Progress,
		Reason:    cause.Error(),
	}
	if err := s.publisher.PublishActivationFailed(event); err != nil {
		s.log.Warnw("Failed to publish activation failure", "request_id", requestID, "error", err)
	}

	return submissionErr
}

func (s *Sequencer) emitProgress(userID, requestID string, status *RunStatus, message string) {
	snapshot, _ := s.Status(requestID)

	event := &events.ProgressChangedEvent{
		BaseEvent: events.NewBaseEvent(events.TypeProgressChanged, userID),
		RequestID: requestID,
		Stage:     string(snapshot.Stage),
		Message:   message,
		Progress:  snapshot.Progress,
	}
	if err := s.publisher.PublishProgress(event); err != nil {
		s.log.Warnw("Failed to publish progress", "request_id", requestID, "error", err)
	}
}

func submissionStatus(err error) string {
	var conflict *errors.ManualModeConflictError
	if errors.As(err, &conflict) {
		return "blocked"
	}
	return "failed"
}
