package bus

import (
	"context"
	"fmt"

	"relay/internal/dispatch/cache"
	"relay/internal/dispatch/message"
	"relay/internal/dispatch/registry"
)

// QueryBus routes read-intent messages to exactly one handler each and serves
// cacheable queries from the result cache when possible.
type QueryBus struct {
	core *core
}

// NewQueryBus constructs a query bus over the given cache store. A nil store
// disables caching entirely; cacheable queries then always execute.
func NewQueryBus(cacheStore cache.Store, opts ...Option) *QueryBus {
	return &QueryBus{core: newCore(cacheStore, opts...)}
}

// Register binds a handler and its descriptor. Registering over an existing
// binding replaces it (last-write-wins, logged).
func (b *QueryBus) Register(h registry.Handler, desc Descriptor) error {
	return b.core.register(h, desc)
}

// Unregister removes the binding for the given message name. No-op when absent.
func (b *QueryBus) Unregister(name string) {
	b.core.unregister(name)
}

// Has reports whether a handler is bound to the given message name.
func (b *QueryBus) Has(name string) bool {
	return b.core.registry.Has(name)
}

// Dispatch routes the query through the pipeline. Cache hits skip execution
// and are recorded as successes with a cache-hit tag.
func (b *QueryBus) Dispatch(ctx context.Context, q message.Query) (any, error) {
	return b.core.dispatch(ctx, q, kindQuery, &q)
}

// Invalidate evicts the cached result for the given cacheable query.
// Non-cacheable queries are a no-op.
func (b *QueryBus) Invalidate(ctx context.Context, q message.Query) error {
	if b.core.cache == nil {
		return nil
	}
	key := q.CacheKey()
	if key == "" {
		return nil
	}
	if err := b.core.cache.Evict(ctx, key); err != nil {
		return fmt.Errorf("invalidate %q: %w", q.MessageName(), err)
	}
	return nil
}

// InvalidateAll evicts every cached query result.
func (b *QueryBus) InvalidateAll(ctx context.Context) error {
	if b.core.cache == nil {
		return nil
	}
	return b.core.cache.EvictAll(ctx)
}
