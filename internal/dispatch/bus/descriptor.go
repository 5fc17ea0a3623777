package bus

import (
	"fmt"
	"sync"
	"time"

	"relay/internal/dispatch/authorization"
	"relay/internal/dispatch/validation"
)

// Descriptor is the explicit configuration attached to a message type at
// registration time: validation rules, authorization spec, cache TTL and
// execution timeout. It replaces annotation-style metadata with a plain
// struct the buses read on every dispatch.
type Descriptor struct {
	// Name is the message name this descriptor applies to. Defaults to the
	// registered handler's name.
	Name string
	// Result is a human-readable label of the result type, for diagnostics.
	Result string
	// NewResult returns a fresh result instance for decoding cached entries.
	// When nil, cache hits are returned as raw JSON.
	NewResult func() any
	// Rules are the structural validation constraints (phase 1).
	Rules []validation.Rule
	// Business overrides phase-2 validation. When nil, the envelope or the
	// handler may supply it by implementing validation.BusinessValidator.
	Business validation.BusinessValidator
	// Authorization configures the policy/custom sources and combine mode.
	Authorization authorization.Spec
	// CacheTTL overrides the system-wide TTL for cacheable queries of this
	// type. Zero defers to the bus default.
	CacheTTL time.Duration
	// Timeout bounds the execution stage. Zero defers to the bus default.
	Timeout time.Duration
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor: message name is required")
	}
	if err := d.Authorization.Validate(); err != nil {
		return fmt.Errorf("descriptor %q: %w", d.Name, err)
	}
	return nil
}

// descriptorSet stores descriptors keyed by message name, safe for concurrent
// registration and lookup.
type descriptorSet struct {
	mu   sync.RWMutex
	byID map[string]Descriptor
}

func newDescriptorSet() *descriptorSet {
	return &descriptorSet{byID: make(map[string]Descriptor)}
}

func (s *descriptorSet) put(d Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[d.Name] = d
}

func (s *descriptorSet) get(name string) Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[name]
}

func (s *descriptorSet) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, name)
}
