package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"relay/pkg/platform/sentinel"
)

// Memory is the in-process cache backend. Expiry is lazy: expired entries are
// treated as absent on read and removed then. An optional janitor goroutine
// sweeps expired entries to bound memory; correctness does not depend on it.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source. Tests use this to cross TTL boundaries
// without sleeping.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithJanitor starts a background sweep at the given interval. Call Close to
// stop it.
func WithJanitor(interval time.Duration) MemoryOption {
	return func(m *Memory) {
		m.stop = make(chan struct{})
		go m.sweepLoop(interval)
	}
}

// NewMemory constructs an in-memory cache store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Get returns the value stored under key, or sentinel.ErrNotFound when absent
// or expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("cache entry %q: %w", key, sentinel.ErrNotFound)
	}
	if e.expired(m.now()) {
		// Lazy eviction under the write lock; re-check in case of a
		// concurrent Put with a fresh TTL.
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("cache entry %q: %w", key, sentinel.ErrNotFound)
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Put stores the value under key for ttl. A non-positive ttl stores nothing.
func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: stored, expiresAt: m.now().Add(ttl)}
	return nil
}

// Evict removes the entry under key. Evicting an absent key is a no-op.
func (m *Memory) Evict(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// EvictAll removes every entry.
func (m *Memory) EvictAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
	return nil
}

// Len reports the number of entries, including not-yet-swept expired ones.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the janitor goroutine when one was started.
func (m *Memory) Close() {
	if m.stop != nil {
		m.once.Do(func() { close(m.stop) })
	}
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
		}
	}
}
