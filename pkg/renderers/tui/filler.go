// Package tui fills a form session from the terminal. Fields are asked in
// effective order: a selectable field, then the branch its answer activated,
// then the next sibling. The effective list is re-read after every answer so a
// selection immediately changes what is asked next.
package tui

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-formrules/internal/logging"
	"github.com/goliatone/go-formrules/pkg/expand"
	"github.com/goliatone/go-formrules/pkg/rules"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/session"
	"github.com/goliatone/go-formrules/pkg/validation"
	"github.com/goliatone/go-formrules/pkg/values"
)

// NoneOption is offered on optional selectable fields to leave them unset.
const NoneOption = "(none)"

// Option configures a Filler.
type Option func(*Filler)

// WithPromptDriver overrides the survey driver.
func WithPromptDriver(driver PromptDriver) Option {
	return func(f *Filler) {
		if driver != nil {
			f.driver = driver
		}
	}
}

// WithValidator sets the validator used for inline feedback. It should match
// the one the session was built with so messages agree.
func WithValidator(v *validation.Validator) Option {
	return func(f *Filler) {
		if v != nil {
			f.validator = v
		}
	}
}

// WithLogger sets the filler logger.
func WithLogger(logger logging.Logger) Option {
	return func(f *Filler) {
		f.logger = logging.OrNop(logger)
	}
}

// WithFileReader replaces os.ReadFile for file fields.
func WithFileReader(read func(path string) ([]byte, error)) Option {
	return func(f *Filler) {
		if read != nil {
			f.readFile = read
		}
	}
}

// Filler walks a session and prompts for every effective field.
type Filler struct {
	driver    PromptDriver
	validator *validation.Validator
	logger    logging.Logger
	readFile  func(path string) ([]byte, error)
}

// New constructs a Filler with the survey driver and English messages.
func New(opts ...Option) *Filler {
	f := &Filler{
		driver:    NewSurveyDriver(),
		validator: validation.New(),
		logger:    logging.Nop(),
		readFile:  os.ReadFile,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Fill asks every effective field once, re-prompting until each answer passes
// its rule. Fields that appear because of a later selection are asked when
// reached; fields that vanish are skipped.
func (f *Filler) Fill(ctx context.Context, s *session.Session) error {
	if ctx == nil {
		return errors.New("tui: context is required")
	}
	if s == nil {
		return errors.New("tui: session is required")
	}
	if f.driver == nil {
		return ErrNoDriver
	}

	asked := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, ok := nextEntry(s.Fields(), asked)
		if !ok {
			return nil
		}
		asked[entry.Name] = struct{}{}
		if err := f.askField(ctx, s, entry); err != nil {
			return err
		}
	}
}

// FillInvalid re-asks only the fields named in names, typically the invalid
// ones after a rejected submission. Names no longer effective are skipped.
func (f *Filler) FillInvalid(ctx context.Context, s *session.Session, names []string) error {
	if f.driver == nil {
		return ErrNoDriver
	}
	for _, name := range names {
		entry, ok := s.Fields().Lookup(name)
		if !ok {
			continue
		}
		if err := f.askField(ctx, s, entry); err != nil {
			return err
		}
	}
	return nil
}

func nextEntry(fields expand.EffectiveFieldList, asked map[string]struct{}) (expand.Entry, bool) {
	for _, entry := range fields {
		if _, done := asked[entry.Name]; !done {
			return entry, true
		}
	}
	return expand.Entry{}, false
}

func (f *Filler) askField(ctx context.Context, s *session.Session, entry expand.Entry) error {
	rule, ok := s.Rules().Rule(entry.Name)
	if !ok {
		return fmt.Errorf("tui: no rule for %q", entry.Name)
	}
	current, _ := s.Values().Get(entry.Name)

	p := prompt{
		entry:   entry,
		rule:    rule,
		current: current,
		label:   promptLabel(entry, rule),
		help:    helpText(entry.Field),
	}

	switch rule.Kind {
	case schema.KindRadio, schema.KindSelect:
		return f.askChoice(ctx, s, p)
	case schema.KindCheckbox:
		return f.askCheckbox(ctx, s, p)
	case schema.KindTextarea:
		return f.askTextArea(ctx, s, p)
	case schema.KindFile:
		return f.askFile(ctx, s, p)
	default:
		return f.askInput(ctx, s, p)
	}
}

type prompt struct {
	entry   expand.Entry
	rule    rules.Rule
	current any
	label   string
	help    string
}

func promptLabel(entry expand.Entry, rule rules.Rule) string {
	label := entry.Label()
	if rule.Required {
		label += " *"
	}
	return strings.Repeat("  ", entry.Depth) + label
}

func helpText(field schema.FieldDefinition) string {
	help := strings.TrimSpace(field.Description)
	if placeholder := strings.TrimSpace(field.Placeholder); placeholder != "" {
		if help != "" {
			help += " "
		}
		help += "(e.g. " + placeholder + ")"
	}
	return help
}

// check reports the validation message for value, or "" when it passes.
func (f *Filler) check(rule rules.Rule, value any) string {
	outcome := f.validator.Field(rule, value)
	if outcome.Valid {
		return ""
	}
	return outcome.Message
}

func (f *Filler) reject(ctx context.Context, p prompt, message string) error {
	f.logger.Debugw("answer rejected", "field", p.entry.Name, "reason", message)
	return f.driver.Info(ctx, fmt.Sprintf("Invalid %s: %s", p.entry.Label(), message))
}

func (f *Filler) store(s *session.Session, p prompt, value any) error {
	if err := s.Set(p.entry.Name, value); err != nil {
		return fmt.Errorf("tui: set %q: %w", p.entry.Name, err)
	}
	return nil
}

func (f *Filler) askInput(ctx context.Context, s *session.Session, p prompt) error {
	rule := p.rule
	for {
		response, err := f.driver.Input(ctx, InputConfig{
			Message: p.label,
			Default: values.Stringify(p.current),
			Help:    p.help,
			Validator: func(text string) error {
				if msg := f.check(rule, normalizeInput(rule.Kind, text)); msg != "" {
					return errors.New(msg)
				}
				return nil
			},
		})
		if err != nil {
			return err
		}
		value := normalizeInput(rule.Kind, response)
		if msg := f.check(rule, value); msg != "" {
			if err := f.reject(ctx, p, msg); err != nil {
				return err
			}
			continue
		}
		return f.store(s, p, value)
	}
}

// normalizeInput trims kinds whose value is compared structurally. Free text
// keeps surrounding whitespace so length rules see what was typed.
func normalizeInput(kind schema.Kind, text string) string {
	switch kind {
	case schema.KindNumber, schema.KindEmail, schema.KindDate:
		return strings.TrimSpace(text)
	default:
		return text
	}
}

func (f *Filler) askTextArea(ctx context.Context, s *session.Session, p prompt) error {
	for {
		response, err := f.driver.TextArea(ctx, TextAreaConfig{
			Message: p.label,
			Default: values.Stringify(p.current),
			Help:    p.help,
		})
		if err != nil {
			return err
		}
		if msg := f.check(p.rule, response); msg != "" {
			if err := f.reject(ctx, p, msg); err != nil {
				return err
			}
			continue
		}
		return f.store(s, p, response)
	}
}

func (f *Filler) askCheckbox(ctx context.Context, s *session.Session, p prompt) error {
	current, _ := values.Bool(p.current)
	for {
		checked, err := f.driver.Confirm(ctx, ConfirmConfig{
			Message: p.label,
			Default: current,
			Help:    p.help,
		})
		if err != nil {
			return err
		}
		if msg := f.check(p.rule, checked); msg != "" {
			if err := f.reject(ctx, p, msg); err != nil {
				return err
			}
			continue
		}
		return f.store(s, p, checked)
	}
}

func (f *Filler) askChoice(ctx context.Context, s *session.Session, p prompt) error {
	options := append([]string(nil), p.rule.Options...)
	if !p.rule.Required {
		options = append(options, NoneOption)
	}
	selected, _ := p.current.(string)

	for {
		idx, err := f.driver.Select(ctx, SelectConfig{
			Message:      p.label,
			Options:      options,
			DefaultIndex: indexOf(options, selected),
			Help:         p.help,
		})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(options) {
			if err := f.reject(ctx, p, "choose one of the listed options"); err != nil {
				return err
			}
			continue
		}
		option := options[idx]
		if !p.rule.Required && idx == len(options)-1 {
			option = ""
		}
		if msg := f.check(p.rule, option); msg != "" {
			if err := f.reject(ctx, p, msg); err != nil {
				return err
			}
			continue
		}

		change, err := s.Select(p.entry.Name, option)
		if err != nil {
			return fmt.Errorf("tui: select %q: %w", p.entry.Name, err)
		}
		if len(change.Added) > 0 || len(change.Removed) > 0 {
			f.logger.Debugw("branch changed", "field", p.entry.Name, "option", option,
				"added", change.Added, "removed", change.Removed)
		}
		return nil
	}
}

func (f *Filler) askFile(ctx context.Context, s *session.Session, p prompt) error {
	var current string
	if ref, ok := p.current.(values.FileRef); ok {
		current = ref.Name
	}
	for {
		response, err := f.driver.Input(ctx, InputConfig{
			Message: p.label + " (path)",
			Default: current,
			Help:    p.help,
		})
		if err != nil {
			return err
		}
		path := strings.TrimSpace(response)
		if path == "" {
			if msg := f.check(p.rule, nil); msg != "" {
				if err := f.reject(ctx, p, msg); err != nil {
					return err
				}
				continue
			}
			return f.store(s, p, nil)
		}
		if current != "" && path == current {
			return nil
		}

		ref, err := f.loadFile(path)
		if err != nil {
			if err := f.reject(ctx, p, err.Error()); err != nil {
				return err
			}
			continue
		}
		if !acceptsType(p.rule.AcceptedTypes, ref) {
			msg := "must be one of " + strings.Join(p.rule.AcceptedTypes, ", ")
			if err := f.reject(ctx, p, msg); err != nil {
				return err
			}
			continue
		}
		return f.store(s, p, ref)
	}
}

func (f *Filler) loadFile(path string) (values.FileRef, error) {
	data, err := f.readFile(path)
	if err != nil {
		return values.FileRef{}, fmt.Errorf("cannot read %s", filepath.Base(path))
	}
	return values.FileRef{
		Name:        filepath.Base(path),
		ContentType: contentType(path, data),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

func contentType(path string, data []byte) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(data)
}

// acceptsType matches a file against accept-style entries: extensions
// (".pdf"), exact media types ("application/pdf"), or wildcards ("image/*").
func acceptsType(accepted []string, ref values.FileRef) bool {
	if len(accepted) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(ref.Name))
	media, _, _ := mime.ParseMediaType(ref.ContentType)
	for _, raw := range accepted {
		want := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case want == "":
		case strings.HasPrefix(want, "."):
			if ext == want {
				return true
			}
		case strings.HasSuffix(want, "/*"):
			if strings.HasPrefix(media, strings.TrimSuffix(want, "*")) {
				return true
			}
		case media == want:
			return true
		}
	}
	return false
}
