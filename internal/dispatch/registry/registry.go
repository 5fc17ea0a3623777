// Package registry maps message names to their single handler instance.
// Binding is last-write-wins; lookups are safe under concurrent registration.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"relay/internal/dispatch/message"
	"relay/pkg/platform/sentinel"
)

// Handler is business logic bound to exactly one message name.
type Handler interface {
	// MessageName returns the explicit type token this handler is bound to.
	MessageName() string
	// Handle executes the business logic for the given envelope.
	Handle(ctx context.Context, env message.Envelope) (any, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc struct {
	Name string
	Fn   func(ctx context.Context, env message.Envelope) (any, error)
}

func (h HandlerFunc) MessageName() string { return h.Name }

func (h HandlerFunc) Handle(ctx context.Context, env message.Envelope) (any, error) {
	return h.Fn(ctx, env)
}

// Registry stores message-name → handler bindings. All methods are safe for
// concurrent use; readers never observe a partially constructed binding.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *slog.Logger
}

// New constructs an empty registry. A nil logger disables replace warnings.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		handlers: make(map[string]Handler),
		log:      log,
	}
}

// Register binds the handler to its declared message name, overwriting any
// prior binding. Replacing an existing binding is legal but logged, since it
// usually indicates duplicated wiring.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("register: handler is required")
	}
	name := h.MessageName()
	if name == "" {
		return fmt.Errorf("register: handler declares no message name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		r.log.Warn("replacing handler binding", "message", name)
	}
	r.handlers[name] = h
	return nil
}

// Find returns the handler bound to the given message name.
// Returns sentinel.ErrNotFound when no binding exists.
func (r *Registry) Find(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("handler for %q: %w", name, sentinel.ErrNotFound)
	}
	return h, nil
}

// Has reports whether a binding exists for the given message name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Unregister removes the binding for the given message name.
// Unregistering an absent binding is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Names returns the sorted list of registered message names, for diagnostics
// in handler-not-found failures.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
