package validation

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-formrules/pkg/rules"
)

// ErrMissingTranslator is passed to a MissingTranslationHandler when no
// Translator is configured.
var ErrMissingTranslator = errors.New("validation: translator not configured")

// Translator resolves a message key for a locale. params alternate between
// placeholder names and values ("label", "Age", "min", "18").
type Translator interface {
	Translate(locale, key string, params ...any) (string, error)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(locale, key string, params ...any) (string, error)

// Translate implements Translator.
func (f TranslatorFunc) Translate(locale, key string, params ...any) (string, error) {
	return f(locale, key, params...)
}

// MissingTranslationHandler decides what to show when a translation fails.
// fallback is the interpolated default message.
type MissingTranslationHandler func(locale, key, fallback string, err error) string

// Messages maps violation codes to templates. Placeholders use braces:
// {label}, {min}, {max}, {pattern}, {options}, {expected}.
type Messages map[string]string

// KeyPrefix namespaces translation keys ("validation.required").
const KeyPrefix = "validation."

// DefaultMessages returns the English templates.
func DefaultMessages() Messages {
	return Messages{
		rules.CodeRequired:  "{label} is required",
		rules.CodeChecked:   "{label} must be checked",
		rules.CodeMinLength: "{label} must be at least {min} characters",
		rules.CodeMaxLength: "{label} must be at most {max} characters",
		rules.CodePattern:   "{label} is not in the expected format",
		rules.CodeNumber:    "{label} must be a number",
		rules.CodeMin:       "{label} must be at least {min}",
		rules.CodeMax:       "{label} must be at most {max}",
		rules.CodeEmail:     "{label} must be a valid email address",
		rules.CodeDate:      "{label} must be a valid date (YYYY-MM-DD)",
		rules.CodeOption:    "{label} must be one of: {options}",
		rules.CodeFile:      "{label} requires a file",
		rules.CodeType:      "{label} has an invalid value",
	}
}

// Merge returns a copy of m with overrides applied.
func (m Messages) Merge(overrides Messages) Messages {
	out := make(Messages, len(m)+len(overrides))
	for code, tmpl := range m {
		out[code] = tmpl
	}
	for code, tmpl := range overrides {
		if strings.TrimSpace(tmpl) != "" {
			out[code] = tmpl
		}
	}
	return out
}

// Format renders the template for code with the given label and params.
func (m Messages) Format(code, label string, params map[string]any) string {
	tmpl, ok := m[code]
	if !ok {
		tmpl = m[rules.CodeType]
	}
	if tmpl == "" {
		tmpl = "{label} is invalid"
	}
	return interpolate(tmpl, label, params)
}

func interpolate(tmpl, label string, params map[string]any) string {
	pairs := []string{"{label}", label}
	for _, key := range sortedKeys(params) {
		pairs = append(pairs, "{"+key+"}", formatParam(params[key]))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// translationParams flattens label and params for a Translator.
func translationParams(label string, params map[string]any) []any {
	out := []any{"label", label}
	for _, key := range sortedKeys(params) {
		out = append(out, key, formatParam(params[key]))
	}
	return out
}

func formatParam(value any) string {
	switch typed := value.(type) {
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func sortedKeys(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
