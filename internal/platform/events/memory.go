package events

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process publisher used in tests and broker-less deployments.
// Published events are retained in order for inspection.
type Memory struct {
	mu     sync.RWMutex
	events []Event
	closed bool
}

// NewMemory constructs an empty in-process publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the event. Returns context errors so callers observe the
// same cancellation behavior as with a real broker.
func (m *Memory) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByType returns published events of the given type, in publish order.
func (m *Memory) ByType(eventType string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
