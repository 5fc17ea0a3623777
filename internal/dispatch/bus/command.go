package bus

import (
	"context"

	"relay/internal/dispatch/message"
	"relay/internal/dispatch/registry"
)

// CommandBus routes write-intent messages to exactly one handler each.
type CommandBus struct {
	core *core
}

// NewCommandBus constructs a command bus. Commands never touch the result
// cache, so none is wired.
func NewCommandBus(opts ...Option) *CommandBus {
	return &CommandBus{core: newCore(nil, opts...)}
}

// Register binds a handler and its descriptor. Registering over an existing
// binding replaces it (last-write-wins, logged).
func (b *CommandBus) Register(h registry.Handler, desc Descriptor) error {
	return b.core.register(h, desc)
}

// Unregister removes the binding for the given message name. No-op when absent.
func (b *CommandBus) Unregister(name string) {
	b.core.unregister(name)
}

// Has reports whether a handler is bound to the given message name.
func (b *CommandBus) Has(name string) bool {
	return b.core.registry.Has(name)
}

// Dispatch routes the command through the pipeline and returns its terminal
// outcome: the handler result, or a single structured *Failure.
func (b *CommandBus) Dispatch(ctx context.Context, cmd message.Command) (any, error) {
	return b.core.dispatch(ctx, cmd, kindCommand, nil)
}
