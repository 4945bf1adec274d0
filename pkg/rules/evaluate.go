package rules

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/values"
)

// Violation codes. Each code has a message template in package validation.
const (
	CodeRequired  = "required"
	CodeChecked   = "checked"
	CodeMinLength = "min_length"
	CodeMaxLength = "max_length"
	CodePattern   = "pattern"
	CodeNumber    = "number"
	CodeMin       = "min"
	CodeMax       = "max"
	CodeEmail     = "email"
	CodeDate      = "date"
	CodeOption    = "option"
	CodeFile      = "file"
	CodeType      = "type"
)

// DateLayout is the calendar date format accepted by date fields.
const DateLayout = "2006-01-02"

// Violation is the first check a value failed.
type Violation struct {
	Code   string
	Params map[string]any
}

func violation(code string, params ...any) *Violation {
	v := &Violation{Code: code}
	if len(params) > 0 {
		v.Params = make(map[string]any, len(params)/2)
		for i := 0; i+1 < len(params); i += 2 {
			key, _ := params[i].(string)
			v.Params[key] = params[i+1]
		}
	}
	return v
}

// Evaluate checks value against the rule and returns the first violation, or
// nil when the value is acceptable. An optional field left empty passes
// without running any constraint.
func (r Rule) Evaluate(value any) *Violation {
	if r.Kind == schema.KindCheckbox {
		return r.evaluateCheckbox(value)
	}

	if values.IsEmpty(value) {
		if r.Required {
			return violation(CodeRequired)
		}
		return nil
	}

	switch r.Kind {
	case schema.KindText, schema.KindTextarea:
		text, ok := value.(string)
		if !ok {
			return violation(CodeType, "expected", "text")
		}
		return r.evaluateText(text)
	case schema.KindNumber:
		n, present, err := values.Number(value)
		if err != nil {
			return violation(CodeNumber)
		}
		if !present {
			if r.Required {
				return violation(CodeRequired)
			}
			return nil
		}
		if r.Min != nil && n < *r.Min {
			return violation(CodeMin, "min", *r.Min)
		}
		if r.Max != nil && n > *r.Max {
			return violation(CodeMax, "max", *r.Max)
		}
		return nil
	case schema.KindEmail:
		text, ok := value.(string)
		if !ok || !ValidEmail(text) {
			return violation(CodeEmail)
		}
		return nil
	case schema.KindDate:
		text, ok := value.(string)
		if !ok {
			return violation(CodeDate)
		}
		if _, err := time.Parse(DateLayout, strings.TrimSpace(text)); err != nil {
			return violation(CodeDate)
		}
		return nil
	case schema.KindRadio, schema.KindSelect:
		text, ok := value.(string)
		if !ok {
			return violation(CodeType, "expected", "option")
		}
		for _, option := range r.Options {
			if option == text {
				return nil
			}
		}
		return violation(CodeOption, "options", strings.Join(r.Options, ", "))
	case schema.KindFile:
		switch value.(type) {
		case values.FileRef, *values.FileRef, string:
			// Accepted types are informational here; the service enforces them.
			return nil
		default:
			return violation(CodeFile)
		}
	default:
		return violation(CodeType, "expected", string(r.Kind))
	}
}

func (r Rule) evaluateText(text string) *Violation {
	length := utf8.RuneCountInString(text)
	if r.MinLength != nil && length < *r.MinLength {
		return violation(CodeMinLength, "min", *r.MinLength)
	}
	if r.MaxLength != nil && length > *r.MaxLength {
		return violation(CodeMaxLength, "max", *r.MaxLength)
	}
	if r.Pattern != nil && !r.Pattern.MatchString(text) {
		return violation(CodePattern, "pattern", r.PatternSource)
	}
	return nil
}

func (r Rule) evaluateCheckbox(value any) *Violation {
	if value == nil {
		if r.Required {
			return violation(CodeChecked)
		}
		return nil
	}
	checked, ok := values.Bool(value)
	if !ok {
		return violation(CodeType, "expected", "checkbox")
	}
	if r.Required && !checked {
		return violation(CodeChecked)
	}
	return nil
}

// ValidEmail reports whether raw is a bare RFC 5322 address with a dotted
// domain. Display-name forms ("Ada <ada@example.com>") are rejected.
func ValidEmail(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.ContainsAny(trimmed, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return false
	}
	at := strings.LastIndexByte(trimmed, '@')
	domain := trimmed[at+1:]
	return at > 0 && strings.Contains(domain, ".") && !strings.HasSuffix(domain, ".")
}
