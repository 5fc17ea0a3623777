// Package message defines the immutable request envelopes the dispatch core
// routes: Commands (write intent) and Queries (read intent, optionally
// cacheable). Envelopes are value objects constructed once by callers and
// never mutated afterwards; accessors return copies of any mutable state.
package message

import (
	"time"

	"github.com/google/uuid"

	"relay/pkg/correlation"
)

// Envelope is the read-only view of a message the pipeline and handlers see.
// Both Command and Query satisfy it.
type Envelope interface {
	// MessageID is the unique id assigned at construction.
	MessageID() uuid.UUID
	// MessageName is the explicit type token the registry binds handlers to,
	// e.g. "account.create".
	MessageName() string
	// CreatedAt is the construction timestamp.
	CreatedAt() time.Time
	// CorrelationID ties this message to a logical request chain. Empty when
	// the caller did not supply one.
	CorrelationID() string
	// Initiator identifies who issued the message. Zero when anonymous.
	Initiator() correlation.Principal
	// Meta returns a single metadata value.
	Meta(key string) (string, bool)
	// Metadata returns a copy of the open key/value metadata map.
	Metadata() map[string]string
}

// Message is the shared envelope state. Fields are unexported so a constructed
// message cannot be mutated by pipeline stages or handlers.
type Message struct {
	id        uuid.UUID
	name      string
	createdAt time.Time
	corrID    string
	initiator correlation.Principal
	metadata  map[string]string
}

// Option configures a message at construction time.
type Option func(*Message)

// WithMeta sets a single metadata entry.
func WithMeta(key, value string) Option {
	return func(m *Message) {
		if m.metadata == nil {
			m.metadata = make(map[string]string)
		}
		m.metadata[key] = value
	}
}

// WithMetadata copies all entries of the given map into the message metadata.
func WithMetadata(meta map[string]string) Option {
	return func(m *Message) {
		if len(meta) == 0 {
			return
		}
		if m.metadata == nil {
			m.metadata = make(map[string]string, len(meta))
		}
		for k, v := range meta {
			m.metadata[k] = v
		}
	}
}

// WithCorrelationID attaches a caller-supplied correlation id.
func WithCorrelationID(corrID string) Option {
	return func(m *Message) { m.corrID = corrID }
}

// WithInitiator attaches the issuing principal.
func WithInitiator(p correlation.Principal) Option {
	return func(m *Message) { m.initiator = p }
}

// WithCreatedAt overrides the construction timestamp. Useful for tests that
// need deterministic envelopes.
func WithCreatedAt(t time.Time) Option {
	return func(m *Message) { m.createdAt = t }
}

func newMessage(name string, opts ...Option) Message {
	m := Message{
		id:        uuid.New(),
		name:      name,
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

func (m Message) MessageID() uuid.UUID { return m.id }

func (m Message) MessageName() string { return m.name }

func (m Message) CreatedAt() time.Time { return m.createdAt }

func (m Message) CorrelationID() string { return m.corrID }

func (m Message) Initiator() correlation.Principal { return m.initiator }

func (m Message) Meta(key string) (string, bool) {
	v, ok := m.metadata[key]
	return v, ok
}

func (m Message) Metadata() map[string]string {
	if m.metadata == nil {
		return nil
	}
	out := make(map[string]string, len(m.metadata))
	for k, v := range m.metadata {
		out[k] = v
	}
	return out
}

// Command is a write-intent message handled by exactly one handler.
type Command struct {
	Message
}

// NewCommand constructs a command envelope.
func NewCommand(name string, opts ...Option) Command {
	return Command{Message: newMessage(name, opts...)}
}

// Query is a read-intent message handled by exactly one handler. A query may
// opt into result caching; the cache key is derived deterministically from its
// name and metadata.
type Query struct {
	Message
	cacheable bool
	ttl       time.Duration
}

// NewQuery constructs a non-cacheable query envelope.
func NewQuery(name string, opts ...Option) Query {
	return Query{Message: newMessage(name, opts...)}
}

// AsCacheable returns a copy of the query marked cacheable with the given TTL
// override. A zero ttl defers to the descriptor or system-wide default.
func (q Query) AsCacheable(ttl time.Duration) Query {
	q.cacheable = true
	q.ttl = ttl
	return q
}

// IsCacheable reports whether the query participates in result caching.
func (q Query) IsCacheable() bool { return q.cacheable }

// TTLOverride returns the per-query TTL override, zero when none was set.
func (q Query) TTLOverride() time.Duration { return q.ttl }

// CacheKey returns the deterministic cache key for this query, or the empty
// string when the query is not cacheable. Two queries with identical name and
// metadata always produce the same key.
func (q Query) CacheKey() string {
	if !q.cacheable {
		return ""
	}
	return deriveCacheKey(q.name, q.metadata)
}
