// Package authorization evaluates policy and custom authorization sources for
// a message and combines their verdicts per a configurable mode. The gate runs
// before validation so unauthorized callers learn nothing about the shape of a
// request they should not have attempted.
package authorization

import (
	"context"
	"fmt"
	"log/slog"

	"relay/internal/dispatch/message"
)

// Source identifies which authorization source produced a verdict.
type Source string

const (
	SourcePolicy Source = "policy"
	SourceCustom Source = "custom"
)

// Mode selects how the policy and custom sources combine.
type Mode int

const (
	// ModeDefault requires the policy to pass; when it does, the custom
	// authorizer (if any) still runs and may deny.
	ModeDefault Mode = iota
	// ModeEitherPasses allows the message when policy or custom allows. A
	// custom allow can only rescue a policy denial when the spec is marked
	// CustomOverrides.
	ModeEitherPasses
	// ModeCustomOnly skips the policy source entirely.
	ModeCustomOnly
	// ModeBothRequired allows only when both sources allow; the first denial
	// short-circuits.
	ModeBothRequired
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeEitherPasses:
		return "either-passes"
	case ModeCustomOnly:
		return "custom-only"
	case ModeBothRequired:
		return "both-required"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Verdict is the outcome of one authorization source, or of combining several.
type Verdict struct {
	Allowed    bool
	Violations []string
	Source     Source
}

// Allow constructs an allowing verdict.
func Allow(src Source) Verdict {
	return Verdict{Allowed: true, Source: src}
}

// Deny constructs a denying verdict listing the violated rules.
func Deny(src Source, violations ...string) Verdict {
	return Verdict{Allowed: false, Violations: violations, Source: src}
}

// PolicyEvaluator is the pluggable generic rule engine. It receives the
// declarative rules attached to the message type and the envelope (whose
// initiator carries tenant/user/flag data).
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, env message.Envelope, rules RuleSet) (Verdict, error)
}

// CustomAuthorizer is per-message-type business authorization logic.
type CustomAuthorizer interface {
	Authorize(ctx context.Context, env message.Envelope) (Verdict, error)
}

// CustomAuthorizerFunc adapts a function to CustomAuthorizer.
type CustomAuthorizerFunc func(ctx context.Context, env message.Envelope) (Verdict, error)

func (f CustomAuthorizerFunc) Authorize(ctx context.Context, env message.Envelope) (Verdict, error) {
	return f(ctx, env)
}

// Spec is the authorization configuration attached to a message type at
// registration time.
type Spec struct {
	Mode  Mode
	Rules RuleSet
	// Custom is optional business authorization. Nil means the custom source
	// does not apply and counts as allowing.
	Custom CustomAuthorizer
	// CustomOverrides marks the custom source as able to rescue a policy
	// denial under ModeEitherPasses.
	CustomOverrides bool
}

// Validate rejects ambiguous configurations at registration time. The
// override marking has no defined precedence under ModeBothRequired, so the
// combination is refused rather than guessed at.
func (s Spec) Validate() error {
	if s.CustomOverrides && s.Mode == ModeBothRequired {
		return fmt.Errorf("authorization spec: custom-overrides cannot combine with both-required")
	}
	if s.CustomOverrides && s.Custom == nil {
		return fmt.Errorf("authorization spec: custom-overrides requires a custom authorizer")
	}
	return nil
}

// Service combines the policy evaluator with per-message custom authorizers.
type Service struct {
	policy PolicyEvaluator
	log    *slog.Logger
}

// NewService constructs the authorization service. A nil evaluator falls back
// to the built-in principal evaluator.
func NewService(policy PolicyEvaluator, log *slog.Logger) *Service {
	if policy == nil {
		policy = NewPrincipalEvaluator()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{policy: policy, log: log}
}

// Authorize evaluates the configured sources for the envelope and combines
// their verdicts per the spec's mode. A returned error means a source itself
// failed (pipeline-internal error), not that access was denied.
func (s *Service) Authorize(ctx context.Context, env message.Envelope, spec Spec) (Verdict, error) {
	switch spec.Mode {
	case ModeCustomOnly:
		return s.runCustom(ctx, env, spec)

	case ModeBothRequired:
		policy, err := s.runPolicy(ctx, env, spec)
		if err != nil {
			return Verdict{}, err
		}
		if !policy.Allowed {
			return policy, nil
		}
		return s.runCustom(ctx, env, spec)

	case ModeEitherPasses:
		policy, err := s.runPolicy(ctx, env, spec)
		if err != nil {
			return Verdict{}, err
		}
		if policy.Allowed {
			return policy, nil
		}
		custom, err := s.runCustom(ctx, env, spec)
		if err != nil {
			return Verdict{}, err
		}
		if custom.Allowed && spec.Custom != nil && spec.CustomOverrides {
			s.log.Info("custom authorization overrode policy denial",
				"message", env.MessageName(),
				"policy_violations", policy.Violations,
			)
			return custom, nil
		}
		// Combine both denials so the caller sees every violated rule.
		return Deny(SourcePolicy, append(policy.Violations, custom.Violations...)...), nil

	default: // ModeDefault
		policy, err := s.runPolicy(ctx, env, spec)
		if err != nil {
			return Verdict{}, err
		}
		if !policy.Allowed {
			return policy, nil
		}
		return s.runCustom(ctx, env, spec)
	}
}

func (s *Service) runPolicy(ctx context.Context, env message.Envelope, spec Spec) (Verdict, error) {
	v, err := s.policy.Evaluate(ctx, env, spec.Rules)
	if err != nil {
		return Verdict{}, fmt.Errorf("policy evaluation: %w", err)
	}
	v.Source = SourcePolicy
	return v, nil
}

func (s *Service) runCustom(ctx context.Context, env message.Envelope, spec Spec) (Verdict, error) {
	if spec.Custom == nil {
		return Allow(SourceCustom), nil
	}
	v, err := spec.Custom.Authorize(ctx, env)
	if err != nil {
		return Verdict{}, fmt.Errorf("custom authorization: %w", err)
	}
	v.Source = SourceCustom
	return v, nil
}
