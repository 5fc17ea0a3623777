// Package events publishes domain events emitted by command handlers after a
// state change commits. Publishing is fire-and-forget from the dispatch
// pipeline's point of view: handlers decide whether a publish failure fails
// the command.
package events

import (
	"context"
	"time"
)

// Event is one domain event on its way to a topic.
type Event struct {
	// Topic the event is published to.
	Topic string
	// Type names the event, e.g. "account.created".
	Type string
	// Key selects the partition; typically the aggregate id.
	Key string
	// Payload is JSON-encoded by the publisher.
	Payload any
	// OccurredAt defaults to publish time when zero.
	OccurredAt time.Time
	// CorrelationID ties the event to the dispatch that produced it.
	CorrelationID string
	// Headers are additional transport headers.
	Headers map[string]string
}

// Publisher delivers events to a broker or an in-process sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
