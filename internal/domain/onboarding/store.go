package onboarding

import (
	"context"
)

// Store is the persistence port for onboarding state.
//
// Load returns (nil, nil) when no state exists for the user or when the
// stored payload is malformed; corrupt data is reported by the
// implementation's own logging and never propagates past it.
type Store interface {
	Load(ctx context.Context, userID string) (*State, error)
	Save(ctx context.Context, userID string, state *State) error
	Delete(ctx context.Context, userID string) error
}
