// Package cache provides the TTL-keyed query result cache. Backends are
// pluggable behind the Store interface and share identical observable
// semantics: a Get immediately after a Put with positive TTL returns the
// stored value, and an entry is never returned after its TTL elapses.
//
// Values are opaque byte slices; the bus owns result encoding so that the
// in-memory and distributed backends behave identically.
package cache

import (
	"context"
	"time"
)

// Store is the cache backend contract. Implementations must support
// concurrent Get/Put/Evict without corrupting entries.
//
// Get returns sentinel.ErrNotFound (optionally wrapped) for absent or expired
// keys. Backend failures return other errors; the dispatch pipeline treats
// those as a miss and logs them, never failing the overall dispatch.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Evict(ctx context.Context, key string) error
	EvictAll(ctx context.Context) error
}
