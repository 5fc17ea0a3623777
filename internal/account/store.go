package account

import (
	"context"
	"time"
)

// Store persists accounts. Implementations return sentinel.ErrNotFound for
// unknown ids and sentinel.ErrConflict for duplicate creates.
type Store interface {
	Create(ctx context.Context, acc Account) error
	Get(ctx context.Context, id string) (Account, error)
	// ApplyDelta atomically adjusts the balance and returns the updated
	// account. Implementations reject deltas on closed accounts with
	// sentinel.ErrInvalidState.
	ApplyDelta(ctx context.Context, id string, delta int64, at time.Time) (Account, error)
	// SetStatus transitions the account lifecycle state.
	SetStatus(ctx context.Context, id string, status Status, at time.Time) (Account, error)
}
