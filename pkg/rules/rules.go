// Package rules turns an effective field list into one validation rule per
// field plus the initial value map a fresh fill-out session starts from.
package rules

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/goliatone/go-formrules/internal/logging"
	"github.com/goliatone/go-formrules/pkg/expand"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/values"
)

// ErrMalformed is returned for schema shapes that cannot produce a rule, such
// as a selectable field without options.
var ErrMalformed = errors.New("rules: malformed field")

// Rule is the closed description of how one effective field is checked.
type Rule struct {
	Name     string
	Label    string
	Kind     schema.Kind
	Required bool

	MinLength *int
	MaxLength *int
	// Pattern is nil when the declared pattern was empty or failed to compile.
	Pattern       *regexp.Regexp
	PatternSource string

	Min *float64
	Max *float64

	Options       []string
	AcceptedTypes []string
}

// RuleSet is an ordered, name-indexed collection of rules.
type RuleSet struct {
	rules []Rule
	index map[string]int
}

// Rules returns the rules in effective-field order.
func (s RuleSet) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Rule looks up the rule for a qualified name.
func (s RuleSet) Rule(name string) (Rule, bool) {
	idx, ok := s.index[name]
	if !ok {
		return Rule{}, false
	}
	return s.rules[idx], true
}

// Names lists the qualified names covered by the set.
func (s RuleSet) Names() []string {
	out := make([]string, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule.Name)
	}
	return out
}

// Len returns the number of rules.
func (s RuleSet) Len() int {
	return len(s.rules)
}

// Option configures Synthesize.
type Option func(*synthesizer)

// WithLogger receives warnings for skipped constraints.
func WithLogger(logger logging.Logger) Option {
	return func(s *synthesizer) {
		s.logger = logging.OrNop(logger)
	}
}

type synthesizer struct {
	logger logging.Logger
}

// Synthesize builds the rule set and initial values for fields. A pattern
// that fails to compile is logged and skipped; the remaining checks of that
// field still apply. Unknown kinds and selectable fields without options are
// errors.
func Synthesize(fields expand.EffectiveFieldList, opts ...Option) (RuleSet, values.Values, error) {
	s := &synthesizer{logger: logging.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	set := RuleSet{
		rules: make([]Rule, 0, len(fields)),
		index: make(map[string]int, len(fields)),
	}
	initial := make(values.Values, len(fields))

	for _, entry := range fields {
		rule, err := s.rule(entry)
		if err != nil {
			return RuleSet{}, nil, err
		}
		if _, dup := set.index[rule.Name]; dup {
			return RuleSet{}, nil, fmt.Errorf("rules: duplicate rule for %q", rule.Name)
		}
		set.index[rule.Name] = len(set.rules)
		set.rules = append(set.rules, rule)

		if value, ok := InitialValue(rule.Kind); ok {
			initial[rule.Name] = value
		}
	}
	return set, initial, nil
}

func (s *synthesizer) rule(entry expand.Entry) (Rule, error) {
	field := entry.Field
	rule := Rule{
		Name:     entry.Name,
		Label:    entry.Label(),
		Kind:     field.Kind,
		Required: field.Required,
	}

	switch field.Kind {
	case schema.KindText, schema.KindTextarea:
		if c, ok := field.Constraints.(schema.TextConstraints); ok {
			rule.MinLength = c.MinLength
			rule.MaxLength = c.MaxLength
			rule.PatternSource = c.Pattern
			if c.Pattern != "" {
				compiled, err := regexp.Compile(anchor(c.Pattern))
				if err != nil {
					s.logger.Warnw("skipping invalid pattern constraint",
						"field", entry.Name, "pattern", c.Pattern, "error", err)
				} else {
					rule.Pattern = compiled
				}
			}
		}
	case schema.KindNumber:
		if c, ok := field.Constraints.(schema.NumberConstraints); ok {
			rule.Min = c.Min
			rule.Max = c.Max
		}
	case schema.KindRadio, schema.KindSelect:
		if len(field.Options) == 0 {
			return Rule{}, fmt.Errorf("%w: %s field %q declares no options", ErrMalformed, field.Kind, entry.Name)
		}
		rule.Options = append([]string(nil), field.Options...)
	case schema.KindFile:
		if c, ok := field.Constraints.(schema.FileConstraints); ok {
			rule.AcceptedTypes = append([]string(nil), c.AcceptedTypes...)
		}
	case schema.KindEmail, schema.KindDate, schema.KindCheckbox:
	default:
		return Rule{}, fmt.Errorf("rules: field %q: %w: %q", entry.Name, schema.ErrUnknownKind, field.Kind)
	}
	return rule, nil
}

// InitialValue returns the starting value for kind. Number and file fields
// start absent (ok is false).
func InitialValue(kind schema.Kind) (any, bool) {
	switch kind {
	case schema.KindText, schema.KindTextarea, schema.KindEmail,
		schema.KindDate, schema.KindSelect, schema.KindRadio:
		return "", true
	case schema.KindCheckbox:
		return false, true
	case schema.KindNumber, schema.KindFile:
		return nil, false
	default:
		return nil, false
	}
}

// anchor makes the pattern match the whole value, the way HTML pattern
// attributes behave.
func anchor(pattern string) string {
	return "^(?:" + pattern + ")$"
}
