package schema

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

// Sanitize strips markup from display text (title, description, labels,
// placeholders) so validation messages can interpolate labels verbatim.
// Names and option values are left alone: options are compared byte for byte
// against submitted values.
func Sanitize(form FormSchema) FormSchema {
	form.Title = sanitizeText(form.Title)
	form.Description = sanitizeText(form.Description)
	form.Fields = sanitizeFields(form.Fields)
	return form
}

func sanitizeFields(fields []FieldDefinition) []FieldDefinition {
	for i := range fields {
		field := &fields[i]
		field.Label = sanitizeText(field.Label)
		field.Description = sanitizeText(field.Description)
		field.Placeholder = sanitizeText(field.Placeholder)
		for option, children := range field.Branches {
			field.Branches[option] = sanitizeFields(children)
		}
	}
	return fields
}

func sanitizeText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.ContainsAny(trimmed, "<&") {
		return trimmed
	}
	cleaned := textSanitizer().Sanitize(trimmed)
	// StrictPolicy escapes entities; labels are plain text, not HTML.
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}
