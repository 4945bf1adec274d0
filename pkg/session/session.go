// Package session drives one fill-out of a form. Every change goes through a
// single synchronous recompute: a selection event re-expands the schema,
// re-synthesizes the rules, drops values for fields that vanished, and
// revalidates before the call returns. Validation therefore never runs
// against a stale effective field list.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-formrules/internal/logging"
	"github.com/goliatone/go-formrules/pkg/expand"
	"github.com/goliatone/go-formrules/pkg/rules"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/submission"
	"github.com/goliatone/go-formrules/pkg/validation"
	"github.com/goliatone/go-formrules/pkg/values"
)

var (
	// ErrSubmissionInFlight rejects a second Submit while one is pending.
	ErrSubmissionInFlight = errors.New("session: submission already in flight")
	// ErrInvalid is matched by *InvalidError.
	ErrInvalid = errors.New("session: values failed validation")
	// ErrUnknownField is returned for names outside the effective field list.
	ErrUnknownField = errors.New("session: field is not part of the effective form")
	// ErrNotSelectable is returned when Select targets a non radio/select field.
	ErrNotSelectable = errors.New("session: field is not selectable")
	// ErrUnknownOption is returned when Select names an option the field does
	// not declare.
	ErrUnknownOption = errors.New("session: unknown option")
	// ErrNoSubmitter is returned by Submit when no Submitter was configured.
	ErrNoSubmitter = errors.New("session: no submitter configured")
)

// InvalidError blocks a submission and carries the full report.
type InvalidError struct {
	Report validation.Report
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("session: %d field(s) failed validation", len(e.Report.Invalid()))
}

// Is makes errors.Is(err, ErrInvalid) match.
func (e *InvalidError) Is(target error) bool {
	return target == ErrInvalid
}

// Submitter delivers a submission to the collaborator service.
type Submitter interface {
	Submit(ctx context.Context, req submission.Request, files []submission.FilePayload) error
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, req submission.Request, files []submission.FilePayload) error

// Submit implements Submitter.
func (f SubmitterFunc) Submit(ctx context.Context, req submission.Request, files []submission.FilePayload) error {
	return f(ctx, req, files)
}

// ServerIssuer is implemented by submission errors that carry field-level
// issues from the service.
type ServerIssuer interface {
	ServerIssues() []validation.ServerIssue
}

// Change describes what a selection event did to the effective field list.
type Change struct {
	Added   []string
	Removed []string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. It is also handed to the expander and
// rule synthesizer.
func WithLogger(logger logging.Logger) Option {
	return func(s *Session) {
		s.logger = logging.OrNop(logger)
	}
}

// WithValidator replaces the default English validator.
func WithValidator(v *validation.Validator) Option {
	return func(s *Session) {
		if v != nil {
			s.validator = v
		}
	}
}

// WithSubmitter sets the transport used by Submit.
func WithSubmitter(submitter Submitter) Option {
	return func(s *Session) {
		s.submitter = submitter
	}
}

// Session is the state of one fill-out. It is safe for concurrent use; the
// lock is released while a submission is on the wire so edits can continue.
type Session struct {
	mu sync.Mutex

	formID    string
	expander  *expand.Expander
	validator *validation.Validator
	submitter Submitter
	logger    logging.Logger

	selection expand.Selection
	fields    expand.EffectiveFieldList
	ruleSet   rules.RuleSet
	values    values.Values
	touched   map[string]struct{}
	report    validation.Report
	server    validation.ErrorMapping

	inFlight   bool
	generation uint64
}

// New validates form and starts a session with empty selections and initial
// values.
func New(form schema.FormSchema, opts ...Option) (*Session, error) {
	if err := schema.Validate(form); err != nil {
		return nil, err
	}

	s := &Session{
		formID:    form.ID,
		validator: validation.New(),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	expander, err := expand.New(form, expand.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.expander = expander

	if err := s.resetLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// FormID returns the id of the form being filled.
func (s *Session) FormID() string {
	return s.formID
}

// Form returns a copy of the schema.
func (s *Session) Form() schema.FormSchema {
	return s.expander.Form()
}

// Fields returns the current effective field list.
func (s *Session) Fields() expand.EffectiveFieldList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(expand.EffectiveFieldList(nil), s.fields...)
}

// Rules returns the rule set for the current effective field list.
func (s *Session) Rules() rules.RuleSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ruleSet
}

// Values returns a copy of the current values.
func (s *Session) Values() values.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

// Selection returns a copy of the current selection state.
func (s *Session) Selection() expand.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Clone()
}

// Select records the option chosen on a selectable field and recomputes the
// effective field list, rules, and validation before returning. An empty
// option clears the selection.
func (s *Session) Select(name, option string) (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectLocked(name, option)
}

func (s *Session) selectLocked(name, option string) (Change, error) {
	entry, ok := s.fields.Lookup(name)
	if !ok {
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if !entry.Field.Selectable() {
		return Change{}, fmt.Errorf("%w: %q", ErrNotSelectable, name)
	}
	if option != "" && !entry.Field.HasOption(option) {
		return Change{}, fmt.Errorf("%w: %q for %q", ErrUnknownOption, option, name)
	}

	if option == "" {
		delete(s.selection, name)
	} else {
		s.selection[name] = option
	}
	s.values[name] = option
	s.touched[name] = struct{}{}
	return s.recomputeLocked()
}

// Set stores a value. Setting a radio or select field is a selection event.
func (s *Session) Set(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.fields.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if entry.Field.Selectable() {
		option, isString := value.(string)
		if !isString && value != nil {
			return fmt.Errorf("session: %q expects an option string, got %T", name, value)
		}
		_, err := s.selectLocked(name, option)
		return err
	}

	s.values[name] = value
	s.touched[name] = struct{}{}
	delete(s.server.Fields, name)
	s.report = s.validator.Validate(s.ruleSet, s.values)
	return nil
}

// Errors returns messages for fields the user has touched, plus any server
// errors still attached to effective fields.
func (s *Session) Errors() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]string)
	for name, message := range s.report.Errors() {
		if _, ok := s.touched[name]; ok {
			out[name] = append(out[name], message)
		}
	}
	for name, messages := range s.server.Fields {
		if s.fields.Contains(name) {
			out[name] = append(out[name], messages...)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FormErrors returns form-level messages from the last failed submission.
func (s *Session) FormErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.server.Form...)
}

// Validate checks every effective field and marks them all as touched.
func (s *Session) Validate() validation.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.fields {
		s.touched[entry.Name] = struct{}{}
	}
	s.report = s.validator.Validate(s.ruleSet, s.values)
	return s.report
}

// InFlight reports whether a submission is pending.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Submit validates, serializes, and sends the current values. Only one
// submission may be pending; edits are allowed meanwhile and do not affect
// the request already built. Cancelling ctx abandons the request without
// touching session state. On success the session is reset.
func (s *Session) Submit(ctx context.Context) (submission.Request, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return submission.Request{}, ErrSubmissionInFlight
	}
	if s.submitter == nil {
		s.mu.Unlock()
		return submission.Request{}, ErrNoSubmitter
	}
	for _, entry := range s.fields {
		s.touched[entry.Name] = struct{}{}
	}
	s.report = s.validator.Validate(s.ruleSet, s.values)
	if !s.report.Valid() {
		report := s.report
		s.mu.Unlock()
		return submission.Request{}, &InvalidError{Report: report}
	}

	req, files := submission.Build(s.formID, s.fields, s.values)
	fields := append(expand.EffectiveFieldList(nil), s.fields...)
	generation := s.generation
	s.inFlight = true
	s.server = validation.ErrorMapping{}
	s.mu.Unlock()

	err := s.submitter.Submit(ctx, req, files)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if err != nil {
		s.logger.Warnw("submission failed", "form", s.formID, "answers", len(req.Answers), "error", err)
		var issuer ServerIssuer
		if errors.As(err, &issuer) && generation == s.generation {
			s.server = validation.MapServerErrors(fields, issuer.ServerIssues())
		}
		return req, err
	}

	s.logger.Infow("submission accepted", "form", s.formID, "answers", len(req.Answers), "files", len(files))
	if generation == s.generation {
		if resetErr := s.resetLocked(); resetErr != nil {
			return req, resetErr
		}
	}
	return req, nil
}

// Reset discards selections, values, and errors. A pending submission is not
// cancelled, but its outcome no longer affects the session.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *Session) resetLocked() error {
	s.generation++
	s.selection = expand.Selection{}
	s.values = values.Values{}
	s.touched = make(map[string]struct{})
	s.server = validation.ErrorMapping{}
	s.fields = nil
	_, err := s.recomputeLocked()
	return err
}

func (s *Session) recomputeLocked() (Change, error) {
	previous := s.fields
	fields := s.expander.Expand(s.selection)
	ruleSet, initial, err := rules.Synthesize(fields, rules.WithLogger(s.logger))
	if err != nil {
		return Change{}, err
	}

	change := diffNames(previous.Names(), fields.Names())
	current := fields.Names()
	if dropped := s.values.Retain(current); len(dropped) > 0 {
		sort.Strings(dropped)
		s.logger.Debugw("dropped values for vanished fields", "form", s.formID, "fields", dropped)
	}
	for key := range s.selection {
		if !fields.Contains(key) {
			delete(s.selection, key)
		}
	}
	for key := range s.touched {
		if !fields.Contains(key) {
			delete(s.touched, key)
		}
	}
	for name, value := range initial {
		if _, ok := s.values[name]; !ok {
			s.values[name] = value
		}
	}

	s.fields = fields
	s.ruleSet = ruleSet
	s.report = s.validator.Validate(ruleSet, s.values)
	return change, nil
}

func diffNames(before, after []string) Change {
	prev := make(map[string]struct{}, len(before))
	for _, name := range before {
		prev[name] = struct{}{}
	}
	next := make(map[string]struct{}, len(after))
	for _, name := range after {
		next[name] = struct{}{}
	}

	var change Change
	for _, name := range after {
		if _, ok := prev[name]; !ok {
			change.Added = append(change.Added, name)
		}
	}
	for _, name := range before {
		if _, ok := next[name]; !ok {
			change.Removed = append(change.Removed, name)
		}
	}
	return change
}
