// Package validation applies a rule set to a candidate value map and turns
// violations into user-facing messages that name the field by its label.
// It also maps field errors reported by the submission service back onto
// qualified names.
package validation

import (
	"sort"
	"strings"

	"github.com/goliatone/go-formrules/pkg/rules"
	"github.com/goliatone/go-formrules/pkg/values"
)

// Outcome is the result for one field.
type Outcome struct {
	Valid   bool   `json:"valid"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Report holds one outcome per rule, in rule order.
type Report struct {
	order    []string
	outcomes map[string]Outcome
}

// Valid reports whether every field passed.
func (r Report) Valid() bool {
	for _, outcome := range r.outcomes {
		if !outcome.Valid {
			return false
		}
	}
	return true
}

// Outcome returns the outcome for a qualified name.
func (r Report) Outcome(name string) (Outcome, bool) {
	outcome, ok := r.outcomes[name]
	return outcome, ok
}

// Names lists the validated names in rule order.
func (r Report) Names() []string {
	return append([]string(nil), r.order...)
}

// Invalid lists the names that failed, in rule order.
func (r Report) Invalid() []string {
	var out []string
	for _, name := range r.order {
		if !r.outcomes[name].Valid {
			out = append(out, name)
		}
	}
	return out
}

// Errors returns the failure messages keyed by qualified name, or nil when the
// report is valid.
func (r Report) Errors() map[string]string {
	var out map[string]string
	for _, name := range r.order {
		outcome := r.outcomes[name]
		if outcome.Valid {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[name] = outcome.Message
	}
	return out
}

// Len returns the number of outcomes.
func (r Report) Len() int {
	return len(r.order)
}

// Option configures a Validator.
type Option func(*Validator)

// WithMessages overrides individual message templates.
func WithMessages(overrides Messages) Option {
	return func(v *Validator) {
		v.messages = v.messages.Merge(overrides)
	}
}

// WithTranslator localizes messages through t. Keys are KeyPrefix + code.
func WithTranslator(t Translator) Option {
	return func(v *Validator) {
		v.translator = t
	}
}

// WithLocale selects the locale passed to the Translator.
func WithLocale(locale string) Option {
	return func(v *Validator) {
		v.locale = strings.TrimSpace(locale)
	}
}

// WithMissingTranslation customizes the fallback when a translation fails.
func WithMissingTranslation(handler MissingTranslationHandler) Option {
	return func(v *Validator) {
		if handler != nil {
			v.onMissing = handler
		}
	}
}

// Validator turns rule violations into messages. It holds no per-form state
// and is safe for concurrent use once built.
type Validator struct {
	messages   Messages
	translator Translator
	locale     string
	onMissing  MissingTranslationHandler
}

// New constructs a Validator with English defaults.
func New(opts ...Option) *Validator {
	v := &Validator{
		messages:  DefaultMessages(),
		onMissing: keepFallback,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Validate checks every rule against vals. Each outcome depends only on its
// own rule and value.
func (v *Validator) Validate(set rules.RuleSet, vals values.Values) Report {
	ruleList := set.Rules()
	report := Report{
		order:    make([]string, 0, len(ruleList)),
		outcomes: make(map[string]Outcome, len(ruleList)),
	}
	for _, rule := range ruleList {
		value, _ := vals.Get(rule.Name)
		report.order = append(report.order, rule.Name)
		report.outcomes[rule.Name] = v.Field(rule, value)
	}
	return report
}

// Field checks a single value.
func (v *Validator) Field(rule rules.Rule, value any) Outcome {
	violation := rule.Evaluate(value)
	if violation == nil {
		return Outcome{Valid: true}
	}
	return Outcome{
		Code:    violation.Code,
		Message: v.message(violation.Code, rule.Label, violation.Params),
	}
}

// Subset returns a report restricted to names, preserving order. Names not in
// the report are skipped.
func (r Report) Subset(names []string) Report {
	keep := make(map[string]struct{}, len(names))
	for _, name := range names {
		keep[name] = struct{}{}
	}
	out := Report{outcomes: make(map[string]Outcome, len(names))}
	for _, name := range r.order {
		if _, ok := keep[name]; ok {
			out.order = append(out.order, name)
			out.outcomes[name] = r.outcomes[name]
		}
	}
	return out
}

func (v *Validator) message(code, label string, params map[string]any) string {
	fallback := v.messages.Format(code, label, params)
	if v.translator == nil {
		return fallback
	}
	key := KeyPrefix + code
	msg, err := v.translator.Translate(v.locale, key, translationParams(label, params)...)
	if err != nil || strings.TrimSpace(msg) == "" {
		if err == nil {
			err = ErrMissingTranslator
		}
		return v.onMissing(v.locale, key, fallback, err)
	}
	// Catalog entries may keep placeholders.
	return interpolate(msg, label, params)
}

func keepFallback(_, _, fallback string, _ error) string {
	return fallback
}

// SortedErrors flattens Errors into "name: message" lines in name order.
func (r Report) SortedErrors() []string {
	errs := r.Errors()
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name+": "+errs[name])
	}
	return out
}
