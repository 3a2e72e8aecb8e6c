package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"tradinglab/internal/adapters/config"
	"tradinglab/internal/domain/account"
	"tradinglab/internal/domain/activation"
	"tradinglab/internal/metrics"
	"tradinglab/pkg/errors"
	"tradinglab/pkg/logger"
)

// Compile-time checks
var (
	_ account.ManualModeIndex    = (*Client)(nil)
	_ account.ConnectionProvider = (*Client)(nil)
	_ activation.Submitter       = (*Client)(nil)
)

// Client is the HTTP client for the trading backend. It implements the
// manual-mode index, the broker connection provider, and activation
// submission. All calls share one rate limiter.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewClient creates a new backend client
func NewClient(cfg config.BackendConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.APIToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		log:        logger.Get().With("component", "backend_client"),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "backend rate limiter")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build backend request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordBackendAPICall(path, time.Since(start), err)
	if err != nil {
		return errors.Wrapf(errors.ErrUnavailable, "backend request failed: %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(errors.ErrNotFound, "%s %s", method, path)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.Wrapf(errors.ErrUnauthorized, "%s %s: status %d", method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf("backend returned %d for %s %s: %s", resp.StatusCode, method, path, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "failed to decode backend response: %s %s", method, path)
		}
	}

	return nil
}

// IsManualModeActive reports whether an account is currently flagged as
// manually trading
func (c *Client) IsManualModeActive(ctx context.Context, accountID string) (bool, error) {
	var res struct {
		AccountID  string `json:"account_id"`
		ManualMode bool   `json:"manual_mode"`
	}

	path := fmt.Sprintf("/api/accounts/%s/manual-mode", url.PathEscape(accountID))
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			// Unknown accounts are not manual; the shape validator already
			// rejected empty ids
			return false, nil
		}
		return false, err
	}

	return res.ManualMode, nil
}

type connectRequest struct {
	UserID      string `json:"user_id"`
	Broker      string `json:"broker"`
	Environment string `json:"environment"`
}

type accountResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Broker      string    `json:"broker"`
	Environment string    `json:"environment"`
	Nickname    string    `json:"nickname"`
	Balance     string    `json:"balance"`
	Connected   bool      `json:"connected"`
	ConnectedAt time.Time `json:"connected_at"`
}

func (r *accountResponse) toDomain() (*account.Account, error) {
	balance, err := decimal.NewFromString(r.Balance)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid balance for account %s", r.ID)
	}

	return &account.Account{
		ID:          r.ID,
		UserID:      r.UserID,
		Broker:      r.Broker,
		Environment: account.Environment(r.Environment),
		Nickname:    r.Nickname,
		Balance:     balance,
		Connected:   r.Connected,
		ConnectedAt: r.ConnectedAt,
	}, nil
}

// Connect performs the broker credential handshake and returns the
// connected account
func (c *Client) Connect(ctx context.Context, userID, broker string, env account.Environment) (*account.Account, error) {
	var res accountResponse

	body := connectRequest{
		UserID:      userID,
		Broker:      broker,
		Environment: env.String(),
	}
	if err := c.do(ctx, http.MethodPost, "/api/accounts/connect", body, &res); err != nil {
		return nil, err
	}

	return res.toDomain()
}

// ListAccounts returns the backend's current view of a user's accounts
func (c *Client) ListAccounts(ctx context.Context, userID string) ([]*account.Account, error) {
	var res struct {
		Accounts []accountResponse `json:"accounts"`
	}

	path := "/api/accounts?user_id=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}

	accounts := make([]*account.Account, 0, len(res.Accounts))
	for i := range res.Accounts {
		acc, err := res.Accounts[i].toDomain()
		if err != nil {
			c.log.Warnw("Skipping malformed account from backend", "error", err)
			continue
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}

type submitSingleRequest struct {
	StrategyType string `json:"strategy_type"`
	Direction    string `json:"direction"`
	Ticker       string `json:"ticker"`
	WebhookRef   string `json:"webhook_ref"`
	AccountID    string `json:"account_id"`
	Quantity     int    `json:"quantity"`
}

type submitMultipleRequest struct {
	StrategyType       string   `json:"strategy_type"`
	Direction          string   `json:"direction"`
	Ticker             string   `json:"ticker"`
	WebhookRef         string   `json:"webhook_ref"`
	LeaderAccountID    string   `json:"leader_account_id"`
	FollowerAccountIDs []string `json:"follower_account_ids"`
	LeaderQuantity     int      `json:"leader_quantity"`
	FollowerQuantity   int      `json:"follower_quantity"`
	GroupName          string   `json:"group_name"`
}

// Submit sends the activation request to the backend
func (c *Client) Submit(ctx context.Context, req *activation.Request) error {
	switch req.Kind {
	case activation.KindSingle:
		body := submitSingleRequest{
			StrategyType: string(req.Kind),
			Direction:    string(req.Direction),
			Ticker:       req.Ticker,
			WebhookRef:   req.WebhookRef,
			AccountID:    req.AccountID,
			Quantity:     req.Quantity,
		}
		return c.do(ctx, http.MethodPost, "/api/strategies/activate", body, nil)
	case activation.KindMultiple:
		body := submitMultipleRequest{
			StrategyType:       string(req.Kind),
			Direction:          string(req.Direction),
			Ticker:             req.Ticker,
			WebhookRef:         req.WebhookRef,
			LeaderAccountID:    req.LeaderAccountID,
			FollowerAccountIDs: req.FollowerAccountIDs,
			LeaderQuantity:     req.LeaderQuantity,
			FollowerQuantity:   req.FollowerQuantity,
			GroupName:          req.GroupName,
		}
		return c.do(ctx, http.MethodPost, "/api/strategies/activate-group", body, nil)
	}

	return errors.Wrapf(errors.ErrInvalidInput, "unknown activation kind: %s", req.Kind)
}
