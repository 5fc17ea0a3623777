// Package correlation provides context accessors for dispatch-scoped values.
//
// A correlation id ties together every stage of a logical dispatch chain,
// including nested dispatches a handler triggers. The id is carried explicitly
// on the context parameter rather than through ambient shared state, so
// concurrent dispatches sharing worker goroutines can never observe each
// other's ids.
//
// Usage in handlers (read values):
//
//	corrID := correlation.ID(ctx)
//	who := correlation.Initiator(ctx)
//
// Usage in buses and middleware (set values):
//
//	ctx = correlation.WithID(ctx, corrID)
//	ctx = correlation.WithInitiator(ctx, principal)
//
// Usage in tests (inject values):
//
//	ctx = correlation.WithTime(ctx, fixedTime)
package correlation

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	idKey        struct{}
	initiatorKey struct{}
	metaKey      struct{}
	timeKey      struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyID        = idKey{}
	ContextKeyInitiator = initiatorKey{}
	ContextKeyMeta      = metaKey{}
	ContextKeyTime      = timeKey{}
)

// Principal identifies who initiated a dispatch. Populated by transport
// middleware (e.g. from JWT claims) and consumed by the authorization stage.
type Principal struct {
	Subject string
	Tenant  string
	Roles   []string
	Scopes  []string
	// Flags carries feature-flag style toggles custom authorizers may consult.
	Flags map[string]bool
}

// IsZero reports whether no principal has been established.
func (p Principal) IsZero() bool {
	return p.Subject == "" && p.Tenant == "" && len(p.Roles) == 0 && len(p.Scopes) == 0
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasScope reports whether the principal carries the given scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ID retrieves the correlation id from the context. Empty when no dispatch
// chain is active.
func ID(ctx context.Context) string {
	if corrID, ok := ctx.Value(ContextKeyID).(string); ok {
		return corrID
	}
	return ""
}

// WithID injects a correlation id into the context.
func WithID(ctx context.Context, corrID string) context.Context {
	return context.WithValue(ctx, ContextKeyID, corrID)
}

// Initiator retrieves the initiating principal from the context.
// Returns the zero value if not set.
func Initiator(ctx context.Context) Principal {
	if p, ok := ctx.Value(ContextKeyInitiator).(Principal); ok {
		return p
	}
	return Principal{}
}

// WithInitiator injects the initiating principal into the context.
func WithInitiator(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ContextKeyInitiator, p)
}

// Meta retrieves arbitrary trace metadata from the context. The returned map
// must not be mutated.
func Meta(ctx context.Context) map[string]string {
	if m, ok := ctx.Value(ContextKeyMeta).(map[string]string); ok {
		return m
	}
	return nil
}

// WithMeta injects trace metadata into the context, merging over any metadata
// already present. Later keys win.
func WithMeta(ctx context.Context, meta map[string]string) context.Context {
	if len(meta) == 0 {
		return ctx
	}
	merged := make(map[string]string, len(meta))
	for k, v := range Meta(ctx) {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	return context.WithValue(ctx, ContextKeyMeta, merged)
}

// Clear removes the active correlation id, initiator and metadata by
// shadowing them with zero values. Buses call this on every exit path so a
// context reused after a dispatch carries no stale correlation state.
func Clear(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, ContextKeyID, "")
	ctx = context.WithValue(ctx, ContextKeyInitiator, Principal{})
	return context.WithValue(ctx, ContextKeyMeta, map[string]string(nil))
}

// Now retrieves the dispatch-scoped time from context.
// Falls back to time.Now() if not set (for workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for tests that need
// deterministic timestamps without running the full middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyTime, t)
}
