package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"tradinglab/internal/domain/account"
	"tradinglab/internal/domain/activation"
	"tradinglab/internal/domain/onboarding"
	activationsvc "tradinglab/internal/services/activation"
	networksvc "tradinglab/internal/services/network"
	onboardingsvc "tradinglab/internal/services/onboarding"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

// Handlers exposes the onboarding, network and activation services over JSON
type Handlers struct {
	onboarding  *onboardingsvc.Manager
	networks    *networksvc.Service
	coordinator *activationsvc.Coordinator
	sequencer   *activationsvc.Sequencer
	log         *logger.Logger
}

// NewHandlers creates the HTTP handler set
func NewHandlers(
	manager *onboardingsvc.Manager,
	networks *networksvc.Service,
	coordinator *activationsvc.Coordinator,
	sequencer *activationsvc.Sequencer,
) *Handlers {
	return &Handlers{
		onboarding:  manager,
		networks:    networks,
		coordinator: coordinator,
		sequencer:   sequencer,
		log:         logger.Get().With("component", "api"),
	}
}

// stateResponse wraps onboarding state with its derived fields
type stateResponse struct {
	State    onboarding.State `json:"state"`
	Progress float64          `json:"progress"`
	Complete bool             `json:"complete"`
}

func newStateResponse(state onboarding.State) stateResponse {
	return stateResponse{
		State:    state,
		Progress: state.Progress(),
		Complete: state.Complete(),
	}
}

// userID extracts the caller's user id from header or query
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("user_id")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP status codes
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var validation *errors.ValidationError
	var conflict *errors.ManualModeConflictError

	switch {
	case errors.As(err, &validation),
		errors.Is(err, errors.ErrInvalidInput),
		errors.Is(err, errors.ErrInvalidStep),
		errors.Is(err, errors.ErrMissingField),
		errors.Is(err, errors.ErrInvalidTopology):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.As(err, &conflict),
		errors.Is(err, errors.ErrDuplicateCore),
		errors.Is(err, errors.ErrDuplicateAccount),
		errors.Is(err, errors.ErrNoCoreAccount),
		errors.Is(err, errors.ErrAlreadyExists),
		errors.Is(err, errors.ErrRunInFlight):
		status = http.StatusConflict
	case errors.Is(err, errors.ErrUnavailable), errors.Is(err, errors.ErrTimeout):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.log.Errorw("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// session resolves the onboarding session for the request's user
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*onboardingsvc.Session, bool) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user id"})
		return nil, false
	}
	session, err := h.onboarding.Session(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return session, true
}

// --- Onboarding ---

func (h *Handlers) OnboardingState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(session.State()))
}

func (h *Handlers) OnboardingNext(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	state, err := session.NextStep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (h *Handlers) OnboardingBack(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	state, err := session.PreviousStep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (h *Handlers) OnboardingSkip(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Step string `json:"step"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Wrap(errors.ErrInvalidInput, "invalid request body"))
		return
	}
	state, err := session.SkipToStep(r.Context(), onboarding.Step(req.Step))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (h *Handlers) OnboardingComplete(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	state, err := session.CompleteOnboarding(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (h *Handlers) OnboardingReset(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	state, err := session.ResetOnboarding(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (h *Handlers) SelectStrategy(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		StrategyID string `json:"strategy_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Wrap(errors.ErrInvalidInput, "invalid request body"))
		return
	}
	state, err := session.SelectStrategy(r.Context(), req.StrategyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (h *Handlers) SetStrategyConfig(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var cfg onboarding.StrategyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeError(w, r, errors.Wrap(errors.ErrInvalidInput, "invalid request body"))
		return
	}
	state, err := session.SetStrategyConfig(r.Context(), cfg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

// Logout drops the in-memory session; persisted state survives for resume
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user id"})
		return
	}
	h.onboarding.Evict(id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Account network ---

type connectAccountRequest struct {
	Broker      string `json:"broker"`
	Environment string `json:"environment"`
}

func (h *Handlers) NetworkSnapshot(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user id"})
		return
	}
	network, err := h.networks.Snapshot(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, network)
}

func (h *Handlers) ConnectCore(w http.ResponseWriter, r *http.Request) {
	h.connectAccount(w, r, h.networks.ConnectCore)
}

func (h *Handlers) ConnectSatellite(w http.ResponseWriter, r *http.Request) {
	h.connectAccount(w, r, h.networks.ConnectSatellite)
}

func (h *Handlers) connectAccount(
	w http.ResponseWriter,
	r *http.Request,
	connect func(context.Context, string, string, account.Environment) (*account.Account, error),
) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user id"})
		return
	}
	var req connectAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Wrap(errors.ErrInvalidInput, "invalid request body"))
		return
	}
	acc, err := connect(r.Context(), id, req.Broker, account.Environment(req.Environment))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (h *Handlers) RemoveSatellite(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user id"})
		return
	}
	if err := h.networks.RemoveSatellite(r.Context(), id, r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ResetNetwork(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user id"})
		return
	}
	if err := h.networks.Reset(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Strategy activation ---

type startActivationRequest struct {
	RequestID string `json:"request_id,omitempty"`
	activation.Request
}

type startActivationResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// StartActivation kicks off an activation run and returns immediately.
// Progress is observable via GET /activation/{id} and the event stream.
func (h *Handlers) StartActivation(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user id"})
		return
	}
	var req startActivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Wrap(errors.ErrInvalidInput, "invalid request body"))
		return
	}

	// Shape problems are reported synchronously, before the run is accepted
	if err := h.coordinator.ValidateShape(&req.Request); err != nil {
		h.writeError(w, r, err)
		return
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	go func() {
		request := req.Request
		if err := h.sequencer.Run(context.Background(), id, requestID, &request); err != nil {
			h.log.Warnw("Activation run ended with error",
				"user_id", id,
				"request_id", requestID,
				"error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, startActivationResponse{
		RequestID: requestID,
		Status:    "accepted",
	})
}

func (h *Handlers) ActivationStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := h.sequencer.Status(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown activation run"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// CheckConflicts runs the manual-mode guard without submitting anything
func (h *Handlers) CheckConflicts(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing user id"})
		return
	}
	var req activation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, errors.Wrap(errors.ErrInvalidInput, "invalid request body"))
		return
	}
	if err := h.coordinator.ValidateShape(&req); err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.coordinator.CheckManualModeConflict(r.Context(), id, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
