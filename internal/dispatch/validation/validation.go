// Package validation runs the two-phase validation pipeline: structural field
// rules first, then business validation supplied by the message or its
// handler. Violations aggregate into a single Error; validation never mutates
// the envelope.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"relay/internal/dispatch/message"
)

// Violation is one (field, message) failure. Field may be empty for
// message-level business failures.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// Result is a set of violations; an empty set means valid.
type Result struct {
	Violations []Violation
}

// Valid reports whether the result carries no violations.
func (r Result) Valid() bool { return len(r.Violations) == 0 }

// Merge concatenates the violation sets of two results.
func (r Result) Merge(other Result) Result {
	if len(other.Violations) == 0 {
		return r
	}
	merged := make([]Violation, 0, len(r.Violations)+len(other.Violations))
	merged = append(merged, r.Violations...)
	merged = append(merged, other.Violations...)
	return Result{Violations: merged}
}

// Error is the aggregated validation failure for one message. Callers must
// treat it as fatal to the request; the handler is never invoked.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// BusinessValidator is the second validation phase: arbitrary business rules
// that may perform I/O (e.g. call another service). A message or its handler
// may implement it; phase 2 only runs when phase 1 produced zero violations.
type BusinessValidator interface {
	Validate(ctx context.Context, env message.Envelope) error
}

// Service executes the validation pipeline.
type Service struct {
	log *slog.Logger
}

// NewService constructs the validation service.
func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{log: log}
}

// Validate runs structural rules and, only when they all pass, the business
// validator. Returns a single aggregated *Error on any violation, a non-Error
// error when business validation itself failed unexpectedly, nil when valid.
func (s *Service) Validate(ctx context.Context, env message.Envelope, rules []Rule, business BusinessValidator) error {
	structural := Result{}
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if v := rule.Check(env); v != nil {
			structural = structural.Merge(Result{Violations: []Violation{*v}})
		}
	}
	if !structural.Valid() {
		s.log.Debug("structural validation failed",
			"message", env.MessageName(),
			"violations", len(structural.Violations),
		)
		return &Error{Violations: structural.Violations}
	}

	if business == nil {
		return nil
	}
	if err := business.Validate(ctx, env); err != nil {
		var vErr *Error
		if errors.As(err, &vErr) {
			return vErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("business validation: %w", err)
		}
		// Any other business error is a plain violation on the whole message.
		return &Error{Violations: []Violation{{Message: err.Error()}}}
	}
	return nil
}
