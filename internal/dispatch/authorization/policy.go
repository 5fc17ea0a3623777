package authorization

import (
	"context"

	"relay/internal/dispatch/message"
)

// RuleSet is the declarative authorization metadata attached to a message
// type: role, scope and ownership style rules consumed by the policy
// evaluator. An empty rule set places no restriction.
type RuleSet struct {
	// Roles the initiator must carry at least one of.
	Roles []string
	// Scopes the initiator must carry all of.
	Scopes []string
	// OwnerField names a metadata field that must equal the initiator's
	// subject (ownership check). Empty disables the check.
	OwnerField string
	// Tenants restricts the message to initiators of the listed tenants.
	Tenants []string
}

// Empty reports whether the rule set places no restriction.
func (r RuleSet) Empty() bool {
	return len(r.Roles) == 0 && len(r.Scopes) == 0 && r.OwnerField == "" && len(r.Tenants) == 0
}

// PrincipalEvaluator is the built-in policy engine. It checks the declarative
// rule set against the envelope's initiating principal. Rules evaluate in a
// fixed order and every violated rule is reported, so callers see the full
// list rather than the first failure.
type PrincipalEvaluator struct{}

// NewPrincipalEvaluator constructs the built-in evaluator.
func NewPrincipalEvaluator() *PrincipalEvaluator {
	return &PrincipalEvaluator{}
}

// Evaluate applies the rule set to the envelope's initiator.
func (e *PrincipalEvaluator) Evaluate(_ context.Context, env message.Envelope, rules RuleSet) (Verdict, error) {
	if rules.Empty() {
		return Allow(SourcePolicy), nil
	}

	initiator := env.Initiator()
	var violations []string

	if len(rules.Roles) > 0 {
		hasRole := false
		for _, role := range rules.Roles {
			if initiator.HasRole(role) {
				hasRole = true
				break
			}
		}
		if !hasRole {
			violations = append(violations, "missing required role")
		}
	}

	for _, scope := range rules.Scopes {
		if !initiator.HasScope(scope) {
			violations = append(violations, "missing scope "+scope)
		}
	}

	if rules.OwnerField != "" {
		owner, ok := env.Meta(rules.OwnerField)
		if !ok || owner == "" || owner != initiator.Subject {
			violations = append(violations, "initiator does not own "+rules.OwnerField)
		}
	}

	if len(rules.Tenants) > 0 {
		allowed := false
		for _, tenant := range rules.Tenants {
			if initiator.Tenant == tenant {
				allowed = true
				break
			}
		}
		if !allowed {
			violations = append(violations, "tenant not permitted")
		}
	}

	if len(violations) > 0 {
		return Deny(SourcePolicy, violations...), nil
	}
	return Allow(SourcePolicy), nil
}
