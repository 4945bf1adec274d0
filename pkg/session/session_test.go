package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/session"
	"github.com/goliatone/go-formrules/pkg/submission"
	"github.com/goliatone/go-formrules/pkg/validation"
)

func contactForm() schema.FormSchema {
	return schema.FormSchema{
		ID:    "contact",
		Title: "Contact",
		Fields: []schema.FieldDefinition{
			{Name: "name", Label: "Name", Kind: schema.KindText, Required: true},
			{
				Name:     "contact_method",
				Label:    "Contact Method",
				Kind:     schema.KindRadio,
				Required: true,
				Options:  []string{"Email", "Phone"},
				Branches: map[string][]schema.FieldDefinition{
					"Email": {{Name: "email_address", Label: "Email Address", Kind: schema.KindEmail, Required: true}},
					"Phone": {{Name: "phone_number", Label: "Phone Number", Kind: schema.KindText, Required: true}},
				},
			},
		},
	}
}

func TestNew_RejectsMalformedSchema(t *testing.T) {
	form := schema.FormSchema{Fields: []schema.FieldDefinition{{Name: "color", Kind: schema.KindSelect}}}
	var malformed *schema.MalformedError
	if _, err := session.New(form); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedError, got %v", err)
	}
}

func TestSelect_RecomputesBeforeReturning(t *testing.T) {
	s, err := session.New(contactForm())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	change, err := s.Select("contact_method", "Email")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if diff := cmp.Diff(session.Change{Added: []string{"contact_method_email_address"}}, change); diff != "" {
		t.Fatalf("change mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Rules().Rule("contact_method_email_address"); !ok {
		t.Fatalf("rules must cover the new branch field immediately")
	}
	if got := s.Values()["contact_method_email_address"]; got != "" {
		t.Fatalf("branch field should start from its initial value, got %#v", got)
	}

	if err := s.Set("contact_method_email_address", "not-an-email"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if errs := s.Errors(); len(errs["contact_method_email_address"]) != 1 {
		t.Fatalf("expected email error, got %v", errs)
	}

	change, err = s.Select("contact_method", "Phone")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	want := session.Change{
		Added:   []string{"contact_method_phone_number"},
		Removed: []string{"contact_method_email_address"},
	}
	if diff := cmp.Diff(want, change); diff != "" {
		t.Fatalf("change mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Values()["contact_method_email_address"]; ok {
		t.Fatalf("values for the abandoned branch must be dropped")
	}
	if _, ok := s.Errors()["contact_method_email_address"]; ok {
		t.Fatalf("errors for the abandoned branch must be dropped")
	}
}

func TestSelect_Errors(t *testing.T) {
	s, err := session.New(contactForm())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := s.Select("name", "x"); !errors.Is(err, session.ErrNotSelectable) {
		t.Fatalf("expected ErrNotSelectable, got %v", err)
	}
	if _, err := s.Select("contact_method", "Fax"); !errors.Is(err, session.ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
	if err := s.Set("contact_method_phone_number", "555"); !errors.Is(err, session.ErrUnknownField) {
		t.Fatalf("inactive branch fields cannot be set, got %v", err)
	}
}

func TestSet_SelectableIsSelectionEvent(t *testing.T) {
	s, err := session.New(contactForm())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Set("contact_method", "Phone"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if diff := cmp.Diff([]string{"name", "contact_method", "contact_method_phone_number"}, s.Fields().Names()); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmit_BlockedByValidation(t *testing.T) {
	called := false
	s, err := session.New(contactForm(), session.WithSubmitter(session.SubmitterFunc(
		func(context.Context, submission.Request, []submission.FilePayload) error {
			called = true
			return nil
		})))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = s.Submit(context.Background())
	var invalid *session.InvalidError
	if !errors.As(err, &invalid) || !errors.Is(err, session.ErrInvalid) {
		t.Fatalf("expected InvalidError, got %v", err)
	}
	if diff := cmp.Diff([]string{"name", "contact_method"}, invalid.Report.Invalid()); diff != "" {
		t.Fatalf("invalid fields mismatch (-want +got):\n%s", diff)
	}
	if called {
		t.Fatalf("submitter must not be called for invalid values")
	}
}

func TestSubmit_SendsEffectiveAnswersAndResets(t *testing.T) {
	var got submission.Request
	s, err := session.New(contactForm(), session.WithSubmitter(session.SubmitterFunc(
		func(_ context.Context, req submission.Request, _ []submission.FilePayload) error {
			got = req
			return nil
		})))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	mustSet(t, s, "name", "Ada")
	mustSet(t, s, "contact_method", "Email")
	mustSet(t, s, "contact_method_email_address", "ada@example.com")
	mustSet(t, s, "contact_method", "Phone")
	mustSet(t, s, "contact_method_phone_number", "555 0100")

	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := submission.Request{
		FormID: "contact",
		Answers: []submission.Answer{
			{QualifiedName: "name", Value: "Ada"},
			{QualifiedName: "contact_method", Value: "Phone"},
			{QualifiedName: "contact_method_phone_number", Value: "555 0100"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	if len(s.Selection()) != 0 || s.Values()["name"] != "" {
		t.Fatalf("session should reset after a successful submission")
	}
}

func TestSubmit_RejectsConcurrentSubmissionAndAllowsEdits(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	s, err := session.New(contactForm(), session.WithSubmitter(session.SubmitterFunc(
		func(ctx context.Context, _ submission.Request, _ []submission.FilePayload) error {
			close(entered)
			<-release
			return errors.New("boom")
		})))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	mustSet(t, s, "name", "Ada")
	mustSet(t, s, "contact_method", "Phone")
	mustSet(t, s, "contact_method_phone_number", "555")

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()
	<-entered

	if !s.InFlight() {
		t.Fatalf("expected in-flight submission")
	}
	if _, err := s.Submit(context.Background()); !errors.Is(err, session.ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}
	if _, err := s.Select("contact_method", "Email"); err != nil {
		t.Fatalf("selection edits must proceed while submitting: %v", err)
	}

	close(release)
	if err := <-done; err == nil || err.Error() != "boom" {
		t.Fatalf("expected transport error, got %v", err)
	}
	if s.InFlight() {
		t.Fatalf("in-flight flag must clear")
	}
	if got := s.Values()["name"]; got != "Ada" {
		t.Fatalf("failed submission must keep typed values, got %#v", got)
	}
}

type issuesError struct {
	issues []validation.ServerIssue
}

func (e issuesError) Error() string                          { return "rejected" }
func (e issuesError) ServerIssues() []validation.ServerIssue { return e.issues }

func TestSubmit_MapsServerIssues(t *testing.T) {
	s, err := session.New(contactForm(), session.WithSubmitter(session.SubmitterFunc(
		func(context.Context, submission.Request, []submission.FilePayload) error {
			return issuesError{issues: []validation.ServerIssue{
				{Path: "answers/contact_method_phone_number", Message: "number unreachable"},
				{Message: "quota exceeded"},
			}}
		})))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	mustSet(t, s, "name", "Ada")
	mustSet(t, s, "contact_method", "Phone")
	mustSet(t, s, "contact_method_phone_number", "555")

	if _, err := s.Submit(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if diff := cmp.Diff([]string{"number unreachable"}, s.Errors()["contact_method_phone_number"]); diff != "" {
		t.Fatalf("field errors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"quota exceeded"}, s.FormErrors()); diff != "" {
		t.Fatalf("form errors mismatch (-want +got):\n%s", diff)
	}

	mustSet(t, s, "contact_method_phone_number", "556")
	if _, ok := s.Errors()["contact_method_phone_number"]; ok {
		t.Fatalf("editing a field clears its server error")
	}
}

func TestSubmit_CancelledContext(t *testing.T) {
	s, err := session.New(contactForm(), session.WithSubmitter(session.SubmitterFunc(
		func(ctx context.Context, _ submission.Request, _ []submission.FilePayload) error {
			<-ctx.Done()
			return ctx.Err()
		})))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	mustSet(t, s, "name", "Ada")
	mustSet(t, s, "contact_method", "Phone")
	mustSet(t, s, "contact_method_phone_number", "555")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Submit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := s.Values()["contact_method_phone_number"]; got != "555" {
		t.Fatalf("abandoned submission must not touch state, got %#v", got)
	}
}

func TestReset(t *testing.T) {
	s, err := session.New(contactForm())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	mustSet(t, s, "contact_method", "Email")
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if diff := cmp.Diff([]string{"name", "contact_method"}, s.Fields().Names()); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
	if s.Errors() != nil {
		t.Fatalf("reset must clear errors")
	}
}

func mustSet(t *testing.T, s *session.Session, name string, value any) {
	t.Helper()
	if err := s.Set(name, value); err != nil {
		t.Fatalf("set %s: %v", name, err)
	}
}
