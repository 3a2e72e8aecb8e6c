package activation

import (
	"context"
)

// Submitter hands a validated, conflict-checked request to the trading
// backend. Implementations must treat a returned error as a failed
// submission; the coordinator never retries on its own.
type Submitter interface {
	Submit(ctx context.Context, req *Request) error
}
