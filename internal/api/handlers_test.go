package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradinglab/internal/domain/account"
	"tradinglab/internal/domain/activation"
	"tradinglab/internal/domain/onboarding"
	"tradinglab/internal/events"
	activationsvc "tradinglab/internal/services/activation"
	networksvc "tradinglab/internal/services/network"
	onboardingsvc "tradinglab/internal/services/onboarding"
)

type memStore struct {
	mu     sync.Mutex
	states map[string]*onboarding.State
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]*onboarding.State)}
}

func (s *memStore) Load(_ context.Context, userID string) (*onboarding.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID], nil
}

func (s *memStore) Save(_ context.Context, userID string, state *onboarding.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.states[userID] = &copied
	return nil
}

func (s *memStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

type memRepo struct {
	mu       sync.Mutex
	accounts map[string]*account.Account
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: make(map[string]*account.Account)}
}

func (r *memRepo) Upsert(_ context.Context, acc *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *acc
	r.accounts[acc.ID] = &copied
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acc, ok := r.accounts[id]; ok {
		copied := *acc
		return &copied, nil
	}
	return nil, nil
}

func (r *memRepo) GetByUser(_ context.Context, userID string) ([]*account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*account.Account
	for _, acc := range r.accounts {
		if acc.UserID == userID {
			copied := *acc
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memRepo) SetConnected(_ context.Context, id string, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if acc, ok := r.accounts[id]; ok {
		acc.Connected = connected
	}
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

func (r *memRepo) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, acc := range r.accounts {
		if acc.UserID == userID {
			delete(r.accounts, id)
		}
	}
	return nil
}

type stubProvider struct {
	mu      sync.Mutex
	counter int
}

func (p *stubProvider) Connect(_ context.Context, userID, broker string, env account.Environment) (*account.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter++
	return &account.Account{
		ID:          fmt.Sprintf("acc-%d", p.counter),
		UserID:      userID,
		Broker:      broker,
		Environment: env,
		Balance:     decimal.NewFromInt(50000),
		Connected:   true,
		ConnectedAt: time.Now(),
	}, nil
}

func (p *stubProvider) ListAccounts(_ context.Context, _ string) ([]*account.Account, error) {
	return nil, nil
}

type stubIndex struct {
	manual map[string]bool
}

func (i *stubIndex) IsManualModeActive(_ context.Context, accountID string) (bool, error) {
	return i.manual[accountID], nil
}

type stubSubmitter struct {
	mu    sync.Mutex
	count int
}

func (s *stubSubmitter) Submit(_ context.Context, _ *activation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

func (s *stubSubmitter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

type testEnv struct {
	handlers  *Handlers
	submitter *stubSubmitter
	index     *stubIndex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	publisher := &events.NoopPublisher{}
	index := &stubIndex{manual: make(map[string]bool)}
	submitter := &stubSubmitter{}

	coordinator := activationsvc.NewCoordinator(index, submitter, publisher)
	sequencer := activationsvc.NewSequencer(coordinator, publisher, func() activationsvc.Ticker {
		ticker := activationsvc.NewManualTicker()
		ticker.Step(1000)
		return ticker
	}, 0)

	manager := onboardingsvc.NewManager(newMemStore(), publisher)
	networks := networksvc.NewService(newMemRepo(), &stubProvider{}, publisher)

	return &testEnv{
		handlers:  NewHandlers(manager, networks, coordinator, sequencer),
		submitter: submitter,
		index:     index,
	}
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(dest))
}

func TestOnboardingState_RequiresUser(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handlers.OnboardingState, http.MethodGet, "/onboarding/state", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOnboardingNext_AdvancesStep(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handlers.OnboardingNext, http.MethodPost, "/onboarding/next", "user-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp stateResponse
	decode(t, rec, &resp)
	assert.Equal(t, onboarding.StepStrategyActivation, resp.State.CurrentStep)
	assert.InDelta(t, 33.33, resp.Progress, 0.01)
	assert.False(t, resp.Complete)
}

func TestOnboardingSkip_UnknownStepRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handlers.OnboardingSkip, http.MethodPost, "/onboarding/skip", "user-1",
		map[string]string{"step": "teleportation"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetStrategyConfig_ClampsQuantity(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handlers.SetStrategyConfig, http.MethodPost, "/onboarding/strategy/config", "user-1",
		onboarding.StrategyConfig{Ticker: "ES", Quantity: 500})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp stateResponse
	decode(t, rec, &resp)
	require.NotNil(t, resp.State.StrategyConfig)
	assert.Equal(t, 99, resp.State.StrategyConfig.Quantity)
}

func TestConnectCore_ThenDuplicateConflicts(t *testing.T) {
	env := newTestEnv(t)
	body := connectAccountRequest{Broker: "tradovate", Environment: "demo"}

	rec := doJSON(t, env.handlers.ConnectCore, http.MethodPost, "/network/core", "user-1", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var acc account.Account
	decode(t, rec, &acc)
	assert.Equal(t, account.RoleCore, acc.Role)
	assert.True(t, acc.Connected)

	rec = doJSON(t, env.handlers.ConnectCore, http.MethodPost, "/network/core", "user-1", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestConnectSatellite_WithoutCoreRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handlers.ConnectSatellite, http.MethodPost, "/network/satellites", "user-1",
		connectAccountRequest{Broker: "tradovate", Environment: "demo"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartActivation_RunsToCompletion(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handlers.StartActivation, http.MethodPost, "/activation", "user-1",
		startActivationRequest{
			RequestID: "run-1",
			Request: activation.Request{
				Kind:       activation.KindSingle,
				Direction:  activation.DirectionActivate,
				Ticker:     "ES",
				WebhookRef: "wh-1",
				AccountID:  "acc-1",
				Quantity:   2,
			},
		})

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp startActivationResponse
	decode(t, rec, &resp)
	assert.Equal(t, "run-1", resp.RequestID)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/activation/run-1", nil)
		req.SetPathValue("id", "run-1")
		poll := httptest.NewRecorder()
		env.handlers.ActivationStatus(poll, req)
		if poll.Code != http.StatusOK {
			return false
		}
		var status activationsvc.RunStatus
		if err := json.NewDecoder(poll.Body).Decode(&status); err != nil {
			return false
		}
		return status.Terminal && status.Succeeded && status.Progress == 100
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, env.submitter.calls())
}

func TestStartActivation_InvalidShapeRejectedSynchronously(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.handlers.StartActivation, http.MethodPost, "/activation", "user-1",
		startActivationRequest{
			Request: activation.Request{
				Kind:      activation.KindSingle,
				Direction: activation.DirectionActivate,
				Ticker:    "ES",
				AccountID: "acc-1",
				// quantity missing
			},
		})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.submitter.calls())
}

func TestActivationStatus_UnknownRun(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/activation/ghost", nil)
	req.SetPathValue("id", "ghost")
	rec := httptest.NewRecorder()
	env.handlers.ActivationStatus(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckConflicts_ReportsBlockedAccounts(t *testing.T) {
	env := newTestEnv(t)
	env.index.manual["acc-1"] = true

	rec := doJSON(t, env.handlers.CheckConflicts, http.MethodPost, "/activation/check", "user-1",
		activation.Request{
			Kind:       activation.KindSingle,
			Direction:  activation.DirectionActivate,
			Ticker:     "ES",
			WebhookRef: "wh-1",
			AccountID:  "acc-1",
			Quantity:   1,
		})

	require.Equal(t, http.StatusOK, rec.Code)
	var result activation.ConflictCheckResult
	decode(t, rec, &result)
	assert.True(t, result.Blocked)
	assert.Equal(t, []string{"acc-1"}, result.ConflictingAccountIDs)
}

func TestLogout_EvictsSession(t *testing.T) {
	env := newTestEnv(t)

	doJSON(t, env.handlers.OnboardingNext, http.MethodPost, "/onboarding/next", "user-1", nil)
	rec := doJSON(t, env.handlers.Logout, http.MethodPost, "/onboarding/logout", "user-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// persisted state survives eviction, session resumes where it left off
	rec = doJSON(t, env.handlers.OnboardingState, http.MethodGet, "/onboarding/state", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp stateResponse
	decode(t, rec, &resp)
	assert.Equal(t, onboarding.StepStrategyActivation, resp.State.CurrentStep)
}
