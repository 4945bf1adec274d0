package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formrules/internal/config"
	"github.com/goliatone/go-formrules/pkg/render"
	"github.com/goliatone/go-formrules/pkg/session"
)

// emit writes v in the resolved format; pretty uses text when given.
func (a *app) emit(v any, text func() string) error {
	return a.emitAs(a.format, v, text)
}

func (a *app) emitAs(format string, v any, text func() string) error {
	switch format {
	case config.OutputPretty:
		if text != nil {
			_, err := io.WriteString(a.stdout, text())
			return err
		}
		return writeJSON(a.stdout, v)
	case config.OutputYAML:
		return writeYAML(a.stdout, v)
	default:
		return writeJSON(a.stdout, v)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML goes through JSON first so json tags and custom marshalers
// decide the shape.
func writeYAML(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	var generic any
	if err := yaml.Unmarshal(payload, &generic); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

type sessionReport struct {
	FormID     string              `json:"formId"`
	Valid      bool                `json:"valid"`
	Errors     map[string][]string `json:"errors,omitempty"`
	FormErrors []string            `json:"formErrors,omitempty"`
	Ignored    []string            `json:"ignored,omitempty"`
}

func (a *app) emitSession(s *session.Session, ignored []string) error {
	errs := s.Errors()
	formErrs := s.FormErrors()
	report := sessionReport{
		FormID:     s.FormID(),
		Valid:      len(errs) == 0 && len(formErrs) == 0,
		Errors:     errs,
		FormErrors: formErrs,
		Ignored:    ignored,
	}
	return a.emit(report, func() string {
		text := a.summaryText(s)
		for _, name := range ignored {
			text += "ignored answer for " + name + "\n"
		}
		return text
	})
}

func (a *app) summaryText(s *session.Session) string {
	engine, err := render.New()
	if err != nil {
		a.logger.Warnw("summary template unavailable", "error", err)
		return ""
	}
	text, err := engine.RenderTemplate(render.SummaryTemplate, render.NewSummary(s).Context())
	if err != nil {
		a.logger.Warnw("summary render failed", "error", err)
		return ""
	}
	return text
}
