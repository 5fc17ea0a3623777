package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"relay/internal/dispatch/message"
)

// Rule is a structural constraint declared on a message's metadata fields.
// Rules are pure: they inspect the envelope and report at most one violation.
type Rule interface {
	Check(env message.Envelope) *Violation
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(env message.Envelope) *Violation

func (f RuleFunc) Check(env message.Envelope) *Violation { return f(env) }

// Required reports a violation when the field is absent or blank.
func Required(field string) Rule {
	return RuleFunc(func(env message.Envelope) *Violation {
		v, ok := env.Meta(field)
		if !ok || strings.TrimSpace(v) == "" {
			return &Violation{Field: field, Message: "is required"}
		}
		return nil
	})
}

// Length constrains the field's length to [min, max]. Absent fields pass;
// combine with Required to enforce presence.
func Length(field string, min, max int) Rule {
	return RuleFunc(func(env message.Envelope) *Violation {
		v, ok := env.Meta(field)
		if !ok {
			return nil
		}
		if len(v) < min || len(v) > max {
			return &Violation{Field: field, Message: fmt.Sprintf("length must be between %d and %d", min, max)}
		}
		return nil
	})
}

// Pattern requires the field to match the given regular expression.
// Absent fields pass.
func Pattern(field string, re *regexp.Regexp) Rule {
	return RuleFunc(func(env message.Envelope) *Violation {
		v, ok := env.Meta(field)
		if !ok {
			return nil
		}
		if !re.MatchString(v) {
			return &Violation{Field: field, Message: fmt.Sprintf("must match %s", re.String())}
		}
		return nil
	})
}

// Range requires the field to parse as an integer within [min, max].
// Absent fields pass.
func Range(field string, min, max int64) Rule {
	return RuleFunc(func(env message.Envelope) *Violation {
		v, ok := env.Meta(field)
		if !ok {
			return nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &Violation{Field: field, Message: "must be an integer"}
		}
		if n < min || n > max {
			return &Violation{Field: field, Message: fmt.Sprintf("must be between %d and %d", min, max)}
		}
		return nil
	})
}

// OneOf requires the field to equal one of the allowed values. Absent fields pass.
func OneOf(field string, allowed ...string) Rule {
	return RuleFunc(func(env message.Envelope) *Violation {
		v, ok := env.Meta(field)
		if !ok {
			return nil
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return &Violation{Field: field, Message: fmt.Sprintf("must be one of [%s]", strings.Join(allowed, ", "))}
	})
}
