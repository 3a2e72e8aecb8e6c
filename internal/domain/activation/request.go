package activation

import (
	"tradinglab/pkg/errors"
)

// Kind distinguishes the two activation request shapes
type Kind string

const (
	// KindSingle targets one account
	KindSingle Kind = "single"
	// KindMultiple targets a leader account plus follower accounts
	KindMultiple Kind = "multiple"
)

// Valid checks if kind is valid
func (k Kind) Valid() bool {
	return k == KindSingle || k == KindMultiple
}

// Direction says whether the request turns a strategy on or off
type Direction string

const (
	DirectionActivate   Direction = "activate"
	DirectionDeactivate Direction = "deactivate"
)

// Quantity bounds enforced by the configuration surface
const (
	MinQuantity = 1
	MaxQuantity = 99
)

// Request is a structured ask to toggle a strategy for one account (single)
// or a leader/followers group (multiple). The Kind tag makes the two shapes
// explicit; single fields and multiple fields are never mixed.
type Request struct {
	Kind      Kind      `json:"kind"`
	Direction Direction `json:"direction"`

	Ticker     string `json:"ticker"`
	WebhookRef string `json:"webhook_ref"`

	// single
	AccountID string `json:"account_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`

	// multiple
	LeaderAccountID    string   `json:"leader_account_id,omitempty"`
	FollowerAccountIDs []string `json:"follower_account_ids,omitempty"`
	LeaderQuantity     int      `json:"leader_quantity,omitempty"`
	FollowerQuantity   int      `json:"follower_quantity,omitempty"`
	GroupName          string   `json:"group_name,omitempty"`
}

// IsActivation reports whether the request transitions a strategy from
// inactive to active. Only activations run the manual-mode conflict check.
func (r *Request) IsActivation() bool {
	return r.Direction != DirectionDeactivate
}

// Validate checks the request shape. It never inspects external state.
func (r *Request) Validate() error {
	if r.Ticker == "" {
		return errors.NewValidationError("ticker", "is required", r.Ticker)
	}
	if r.WebhookRef == "" {
		return errors.NewValidationError("webhook_ref", "is required", r.WebhookRef)
	}

	switch r.Kind {
	case KindSingle:
		return r.validateSingle()
	case KindMultiple:
		return r.validateMultiple()
	default:
		return errors.NewValidationError("kind", "must be single or multiple", string(r.Kind))
	}
}

func (r *Request) validateSingle() error {
	if r.AccountID == "" {
		return errors.NewValidationError("account_id", "is required", r.AccountID)
	}
	if r.Quantity < MinQuantity {
		return errors.NewValidationError("quantity", "must be at least 1", r.Quantity)
	}
	return nil
}

func (r *Request) validateMultiple() error {
	if r.LeaderAccountID == "" {
		return errors.NewValidationError("leader_account_id", "is required", r.LeaderAccountID)
	}
	if r.GroupName == "" {
		return errors.NewValidationError("group_name", "is required", r.GroupName)
	}
	if len(r.FollowerAccountIDs) == 0 {
		return errors.NewValidationError("follower_account_ids", "must not be empty", r.FollowerAccountIDs)
	}
	if r.LeaderQuantity < MinQuantity {
		return errors.NewValidationError("leader_quantity", "must be at least 1", r.LeaderQuantity)
	}
	if r.FollowerQuantity < MinQuantity {
		return errors.NewValidationError("follower_quantity", "must be at least 1", r.FollowerQuantity)
	}
	seen := make(map[string]struct{}, len(r.FollowerAccountIDs))
	for _, id := range r.FollowerAccountIDs {
		if id == r.LeaderAccountID {
			return errors.Wrapf(errors.ErrInvalidTopology,
				"leader %s listed among followers", r.LeaderAccountID)
		}
		if _, dup := seen[id]; dup {
			return errors.Wrapf(errors.ErrInvalidTopology,
				"follower %s listed more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// AccountIDs resolves the full ordered set of account ids the request
// touches: the single account, or the leader first followed by followers in
// their given order.
func (r *Request) AccountIDs() []string {
	switch r.Kind {
	case KindSingle:
		return []string{r.AccountID}
	case KindMultiple:
		ids := make([]string, 0, 1+len(r.FollowerAccountIDs))
		ids = append(ids, r.LeaderAccountID)
		ids = append(ids, r.FollowerAccountIDs...)
		return ids
	}
	return nil
}

// ConflictCheckResult is the outcome of the manual-mode guard. When blocked,
// ConflictingAccountIDs preserves resolution order and its first element is
// the one surfaced to the user.
type ConflictCheckResult struct {
	Blocked               bool     `json:"blocked"`
	ConflictingAccountIDs []string `json:"conflicting_account_ids,omitempty"`
}

// First returns the surfaced account id, empty when not blocked
func (c ConflictCheckResult) First() string {
	if len(c.ConflictingAccountIDs) == 0 {
		return ""
	}
	return c.ConflictingAccountIDs[0]
}
