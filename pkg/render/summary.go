// Package render prints the answers of a session as a plain text summary. The
// layout lives in a pongo2 template so deployments can override it without
// recompiling.
package render

import (
	"io"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/session"
	"github.com/goliatone/go-formrules/pkg/values"
)

// SummaryTemplate is the name of the built-in summary template.
const SummaryTemplate = "summary"

// Row is one effective field in a summary.
type Row struct {
	Name    string
	Label   string
	Depth   int
	Display string
	File    bool
	Size    int64
	Errors  []string
}

// Summary is the printable state of a session.
type Summary struct {
	FormID     string
	Title      string
	Rows       []Row
	FormErrors []string
}

// NewSummary snapshots s: every effective field in order with its display
// value and the messages currently reported for it.
func NewSummary(s *session.Session) Summary {
	form := s.Form()
	title := strings.TrimSpace(form.Title)
	if title == "" {
		title = form.ID
	}

	current := s.Values()
	errs := s.Errors()
	summary := Summary{FormID: form.ID, Title: title, FormErrors: s.FormErrors()}
	for _, entry := range s.Fields() {
		row := Row{
			Name:   entry.Name,
			Label:  entry.Label(),
			Depth:  entry.Depth,
			Errors: append([]string(nil), errs[entry.Name]...),
		}
		raw, _ := current.Get(entry.Name)
		row.Display = displayValue(entry.Field.Kind, raw)
		if ref, ok := fileRef(raw); ok {
			row.File = true
			row.Size = ref.Size
		}
		summary.Rows = append(summary.Rows, row)
	}
	return summary
}

func displayValue(kind schema.Kind, raw any) string {
	if kind == schema.KindCheckbox {
		checked, _ := values.Bool(raw)
		if checked {
			return "yes"
		}
		return "no"
	}
	if values.IsEmpty(raw) {
		return ""
	}
	return values.Stringify(raw)
}

func fileRef(raw any) (values.FileRef, bool) {
	switch typed := raw.(type) {
	case values.FileRef:
		return typed, typed.DisplayName() != ""
	case *values.FileRef:
		if typed == nil {
			return values.FileRef{}, false
		}
		return *typed, typed.DisplayName() != ""
	default:
		return values.FileRef{}, false
	}
}

// Invalid lists rows with at least one message, sorted by name.
func (s Summary) Invalid() []string {
	var out []string
	for _, row := range s.Rows {
		if len(row.Errors) > 0 {
			out = append(out, row.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Context converts the summary into template data.
func (s Summary) Context() pongo2.Context {
	rows := make([]map[string]any, 0, len(s.Rows))
	for _, row := range s.Rows {
		rows = append(rows, map[string]any{
			"name":    row.Name,
			"label":   row.Label,
			"indent":  strings.Repeat("  ", row.Depth),
			"display": row.Display,
			"empty":   row.Display == "",
			"file":    row.File,
			"size":    row.Size,
			"errors":  row.Errors,
		})
	}
	return pongo2.Context{
		"form_id":     s.FormID,
		"title":       s.Title,
		"rows":        rows,
		"form_errors": s.FormErrors,
	}
}

// WriteSummary renders the summary template to w.
func (e *Engine) WriteSummary(w io.Writer, summary Summary) error {
	_, err := e.RenderTemplate(SummaryTemplate, summary.Context(), w)
	return err
}
