package authorization_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"relay/internal/dispatch/authorization"
	"relay/internal/dispatch/authorization/mock"
	"relay/internal/dispatch/message"
	"relay/pkg/correlation"
)

type AuthorizationSuite struct {
	suite.Suite
	service *authorization.Service
	ctx     context.Context
}

func TestAuthorizationSuite(t *testing.T) {
	suite.Run(t, new(AuthorizationSuite))
}

func (s *AuthorizationSuite) SetupTest() {
	s.service = authorization.NewService(nil, nil)
	s.ctx = context.Background()
}

func (s *AuthorizationSuite) adminCommand() message.Command {
	return message.NewCommand("account.create",
		message.WithMeta("owner", "user-1"),
		message.WithInitiator(correlation.Principal{
			Subject: "user-1",
			Tenant:  "acme",
			Roles:   []string{"admin"},
			Scopes:  []string{"accounts:write"},
		}),
	)
}

func allowCustom() authorization.CustomAuthorizer {
	return authorization.CustomAuthorizerFunc(func(context.Context, message.Envelope) (authorization.Verdict, error) {
		return authorization.Allow(authorization.SourceCustom), nil
	})
}

func denyCustom(violations ...string) authorization.CustomAuthorizer {
	return authorization.CustomAuthorizerFunc(func(context.Context, message.Envelope) (authorization.Verdict, error) {
		return authorization.Deny(authorization.SourceCustom, violations...), nil
	})
}

// TestDefaultMode verifies policy-then-custom ordering of the default mode.
func (s *AuthorizationSuite) TestDefaultMode() {
	rules := authorization.RuleSet{Roles: []string{"admin"}, Scopes: []string{"accounts:write"}}

	s.Run("policy pass with no custom allows", func() {
		v, err := s.service.Authorize(s.ctx, s.adminCommand(), authorization.Spec{Rules: rules})
		s.Require().NoError(err)
		s.True(v.Allowed)
	})

	s.Run("policy denial is final, custom never runs", func() {
		customCalled := false
		spec := authorization.Spec{
			Rules: authorization.RuleSet{Roles: []string{"superuser"}},
			Custom: authorization.CustomAuthorizerFunc(func(context.Context, message.Envelope) (authorization.Verdict, error) {
				customCalled = true
				return authorization.Allow(authorization.SourceCustom), nil
			}),
		}

		v, err := s.service.Authorize(s.ctx, s.adminCommand(), spec)
		s.Require().NoError(err)
		s.False(v.Allowed)
		s.Equal(authorization.SourcePolicy, v.Source)
		s.False(customCalled)
	})

	s.Run("custom may still deny after policy pass", func() {
		spec := authorization.Spec{Rules: rules, Custom: denyCustom("limit exceeded")}

		v, err := s.service.Authorize(s.ctx, s.adminCommand(), spec)
		s.Require().NoError(err)
		s.False(v.Allowed)
		s.Equal(authorization.SourceCustom, v.Source)
		s.Contains(v.Violations, "limit exceeded")
	})
}

// TestBothRequired verifies short-circuiting and combined requirements.
func (s *AuthorizationSuite) TestBothRequired() {
	s.Run("policy allows but custom denies with listed violation", func() {
		spec := authorization.Spec{
			Mode:   authorization.ModeBothRequired,
			Custom: denyCustom("limit exceeded"),
		}

		v, err := s.service.Authorize(s.ctx, s.adminCommand(), spec)
		s.Require().NoError(err)
		s.False(v.Allowed)
		s.Equal([]string{"limit exceeded"}, v.Violations)
	})

	s.Run("policy denial short-circuits custom", func() {
		customCalled := false
		spec := authorization.Spec{
			Mode:  authorization.ModeBothRequired,
			Rules: authorization.RuleSet{Tenants: []string{"globex"}},
			Custom: authorization.CustomAuthorizerFunc(func(context.Context, message.Envelope) (authorization.Verdict, error) {
				customCalled = true
				return authorization.Allow(authorization.SourceCustom), nil
			}),
		}

		v, err := s.service.Authorize(s.ctx, s.adminCommand(), spec)
		s.Require().NoError(err)
		s.False(v.Allowed)
		s.False(customCalled)
	})

	s.Run("both allowing passes", func() {
		spec := authorization.Spec{Mode: authorization.ModeBothRequired, Custom: allowCustom()}

		v, err := s.service.Authorize(s.ctx, s.adminCommand(), spec)
		s.Require().NoError(err)
		s.True(v.Allowed)
	})
}

// TestEitherPasses verifies the override-gated rescue semantics.
func (s *AuthorizationSuite) TestEitherPasses() {
	denyingRules := authorization.RuleSet{Roles: []string{"superuser"}}

	s.Run("policy pass alone suffices", func() {
		spec := authorization.Spec{Mode: authorization.ModeEitherPasses, Custom: denyCustom("irrelevant")}

		v, err := s.service.Authorize(s.ctx, s.adminCommand(), spec)
		s.Require().NoError(err)
		s.True(v.Allowed)
	})

	s.Run("custom rescue requires the override marking", func() {
		spec := authorization.Spec{
			Mode:   authorization.ModeEitherPasses,
			Rules:  denyingRules,
			Custom: allowCustom(),
		}

		v, err := s.service.Authorize(s.ctx, s.adminCommand(), spec)
		s.Require().NoError(err)
		s.False(v.Allowed, "custom allow without override must not rescue a policy denial")
	})

	s.Run("override marking lets custom rescue a policy denial", func() {
		spec := authorization.Spec{
			Mode:            authorization.ModeEitherPasses,
			Rules:           denyingRules,
			Custom:          allowCustom(),
			CustomOverrides: true,
		}

		v, err := s.service.Authorize(s.ctx, s.adminCommand(), spec)
		s.Require().NoError(err)
		s.True(v.Allowed)
	})

	s.Run("both denying combines violation lists", func() {
		spec := authorization.Spec{
			Mode:   authorization.ModeEitherPasses,
			Rules:  denyingRules,
			Custom: denyCustom("limit exceeded"),
		}

		v, err := s.service.Authorize(s.ctx, s.adminCommand(), spec)
		s.Require().NoError(err)
		s.False(v.Allowed)
		s.Contains(v.Violations, "missing required role")
		s.Contains(v.Violations, "limit exceeded")
	})
}

// TestCustomOnly verifies the policy source is skipped entirely.
func (s *AuthorizationSuite) TestCustomOnly() {
	ctrl := gomock.NewController(s.T())
	policy := mock.NewMockPolicyEvaluator(ctrl)
	// No Evaluate expectation: any policy call fails the test.
	service := authorization.NewService(policy, nil)

	spec := authorization.Spec{Mode: authorization.ModeCustomOnly, Custom: denyCustom("after hours")}

	v, err := service.Authorize(s.ctx, s.adminCommand(), spec)
	s.Require().NoError(err)
	s.False(v.Allowed)
	s.Equal([]string{"after hours"}, v.Violations)
}

// TestEvaluatorErrors verifies source failures surface as errors, not denials.
func (s *AuthorizationSuite) TestEvaluatorErrors() {
	ctrl := gomock.NewController(s.T())
	policy := mock.NewMockPolicyEvaluator(ctrl)
	policy.EXPECT().
		Evaluate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(authorization.Verdict{}, errors.New("rule store unreachable"))

	service := authorization.NewService(policy, nil)

	_, err := service.Authorize(s.ctx, s.adminCommand(), authorization.Spec{})
	s.Require().Error(err)
	s.Contains(err.Error(), "policy evaluation")
}

// TestSpecValidation verifies ambiguous configurations are rejected up front.
func (s *AuthorizationSuite) TestSpecValidation() {
	s.Run("both-required with override is ambiguous", func() {
		spec := authorization.Spec{
			Mode:            authorization.ModeBothRequired,
			Custom:          allowCustom(),
			CustomOverrides: true,
		}
		s.Error(spec.Validate())
	})

	s.Run("override without custom authorizer is rejected", func() {
		spec := authorization.Spec{Mode: authorization.ModeEitherPasses, CustomOverrides: true}
		s.Error(spec.Validate())
	})

	s.Run("plain specs validate", func() {
		s.NoError(authorization.Spec{}.Validate())
		s.NoError(authorization.Spec{Mode: authorization.ModeBothRequired, Custom: allowCustom()}.Validate())
	})
}

// TestPrincipalEvaluator verifies the built-in rule chain.
func (s *AuthorizationSuite) TestPrincipalEvaluator() {
	eval := authorization.NewPrincipalEvaluator()

	s.Run("empty rule set allows anonymous", func() {
		v, err := eval.Evaluate(s.ctx, message.NewCommand("account.create"), authorization.RuleSet{})
		s.Require().NoError(err)
		s.True(v.Allowed)
	})

	s.Run("ownership check compares metadata field to subject", func() {
		env := message.NewCommand("account.close",
			message.WithMeta("owner", "user-2"),
			message.WithInitiator(correlation.Principal{Subject: "user-1"}),
		)

		v, err := eval.Evaluate(s.ctx, env, authorization.RuleSet{OwnerField: "owner"})
		s.Require().NoError(err)
		s.False(v.Allowed)
		s.Contains(v.Violations, "initiator does not own owner")
	})

	s.Run("all violated rules are listed", func() {
		env := message.NewCommand("account.create",
			message.WithInitiator(correlation.Principal{Subject: "user-1", Tenant: "acme"}),
		)
		rules := authorization.RuleSet{
			Roles:   []string{"admin"},
			Scopes:  []string{"accounts:write"},
			Tenants: []string{"globex"},
		}

		v, err := eval.Evaluate(s.ctx, env, rules)
		s.Require().NoError(err)
		s.False(v.Allowed)
		s.Len(v.Violations, 3)
	})
}
