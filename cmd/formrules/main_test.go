package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formrules/pkg/access"
	"github.com/goliatone/go-formrules/pkg/renderers/tui"
	"github.com/goliatone/go-formrules/pkg/submission"
)

var contactSchema = filepath.Join("..", "..", "pkg", "schema", "testdata", "contact.json")

type scriptedDriver struct {
	inputs   []string
	selects  []int
	confirms []bool
	abort    bool
	asked    []string
	infos    []string
}

func (d *scriptedDriver) Input(_ context.Context, cfg tui.InputConfig) (string, error) {
	d.asked = append(d.asked, cfg.Message)
	if d.abort {
		return "", tui.ErrAborted
	}
	if len(d.inputs) == 0 {
		return "", errors.New("no input scripted")
	}
	val := d.inputs[0]
	d.inputs = d.inputs[1:]
	return val, nil
}

func (d *scriptedDriver) Confirm(_ context.Context, cfg tui.ConfirmConfig) (bool, error) {
	d.asked = append(d.asked, cfg.Message)
	if len(d.confirms) == 0 {
		return false, errors.New("no confirm scripted")
	}
	val := d.confirms[0]
	d.confirms = d.confirms[1:]
	return val, nil
}

func (d *scriptedDriver) Select(_ context.Context, cfg tui.SelectConfig) (int, error) {
	d.asked = append(d.asked, cfg.Message)
	if len(d.selects) == 0 {
		return -1, errors.New("no select scripted")
	}
	val := d.selects[0]
	d.selects = d.selects[1:]
	return val, nil
}

func (d *scriptedDriver) TextArea(_ context.Context, cfg tui.TextAreaConfig) (string, error) {
	d.asked = append(d.asked, cfg.Message)
	return "", tui.ErrAborted
}

func (d *scriptedDriver) Info(_ context.Context, msg string) error {
	d.infos = append(d.infos, msg)
	return nil
}

func execute(t *testing.T, driver tui.PromptDriver, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := runWith(context.Background(), args, &stdout, &stderr, driver)
	return code, stdout.String(), stderr.String()
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func absSchema(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(contactSchema)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	return path
}

func TestRun_UsageErrors(t *testing.T) {
	if code, _, stderr := execute(t, nil); code != 2 || !strings.Contains(stderr, "Usage: formrules") {
		t.Fatalf("no command: code %d stderr %q", code, stderr)
	}
	if code, _, stderr := execute(t, nil, "launch"); code != 2 || !strings.Contains(stderr, `unknown command "launch"`) {
		t.Fatalf("unknown command: code %d stderr %q", code, stderr)
	}
	if code, _, _ := execute(t, nil, "--output", "xml", "check"); code != 2 {
		t.Fatalf("bad output format: code %d", code)
	}
}

func TestCheck(t *testing.T) {
	good := absSchema(t)
	bad := writeTemp(t, "bad.json", `{"id":"bad","fields":[{"name":"pick","kind":"radio"}]}`)

	code, stdout, _ := execute(t, nil, "--output", "json", "check", good)
	if code != 0 {
		t.Fatalf("good schema: code %d output %s", code, stdout)
	}
	var clean struct {
		Blocking int `json:"blocking"`
	}
	if err := json.Unmarshal([]byte(stdout), &clean); err != nil || clean.Blocking != 0 {
		t.Fatalf("unexpected report %s (%v)", stdout, err)
	}

	code, stdout, _ = execute(t, nil, "--output", "pretty", "check", good, bad)
	if code != 1 {
		t.Fatalf("bad schema: code %d output %s", code, stdout)
	}
	if !strings.Contains(stdout, "error: "+bad) {
		t.Fatalf("expected blocking issue for %s, got %q", bad, stdout)
	}
}

func TestValidate(t *testing.T) {
	schemaPath := absSchema(t)
	valid := writeTemp(t, "answers.yaml", "name: Ada\nage: 30\ncontact_method: Phone\ncontact_method_phone_number: \"+44 555\"\nterms: true\nextra: ignored\n")
	invalid := writeTemp(t, "answers.json", `{"name":"Ada","age":12,"contact_method":"Email","contact_method_email_address":"nope"}`)

	code, stdout, _ := execute(t, nil, "-o", "json", "-s", schemaPath, "-f", valid, "validate")
	if code != 0 {
		t.Fatalf("valid answers: code %d output %s", code, stdout)
	}
	var report sessionReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	want := sessionReport{FormID: "contact", Valid: true, Ignored: []string{"extra"}}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}

	code, stdout, _ = execute(t, nil, "-o", "json", "-s", schemaPath, "-f", invalid, "validate")
	if code != 1 {
		t.Fatalf("invalid answers: code %d output %s", code, stdout)
	}
	report = sessionReport{}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Valid {
		t.Fatalf("expected invalid report")
	}
	for _, name := range []string{"age", "contact_method_email_address", "terms"} {
		if len(report.Errors[name]) == 0 {
			t.Fatalf("expected errors for %s, got %v", name, report.Errors)
		}
	}
}

func TestValidate_RequiresValues(t *testing.T) {
	code, _, stderr := execute(t, nil, "-s", absSchema(t), "validate")
	if code != 1 || !strings.Contains(stderr, "--values is required") {
		t.Fatalf("code %d stderr %q", code, stderr)
	}
}

func TestSubmit(t *testing.T) {
	var got submission.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forms/contact/submissions" || r.Header.Get("Authorization") != "Bearer secret-token" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got.Answers[0].Value == "Reject" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors":[{"path":"name","message":"already registered"}]}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)

	schemaPath := absSchema(t)
	answers := writeTemp(t, "answers.yaml", "name: Ada\nage: 30\ncontact_method: Email\ncontact_method_email_address: ada@example.com\nterms: yes\n")
	code, stdout, stderr := execute(t, nil, "-o", "json", "-s", schemaPath, "-f", answers, "-e", server.URL, "--token", "secret-token", "submit")
	if code != 0 {
		t.Fatalf("submit: code %d stdout %s stderr %s", code, stdout, stderr)
	}
	want := []submission.Answer{
		{QualifiedName: "name", Value: "Ada"},
		{QualifiedName: "age", Value: "30"},
		{QualifiedName: "contact_method", Value: "Email"},
		{QualifiedName: "contact_method_email_address", Value: "ada@example.com"},
		{QualifiedName: "terms", Value: "true"},
	}
	if diff := cmp.Diff(want, got.Answers); diff != "" {
		t.Fatalf("answers mismatch (-want +got):\n%s", diff)
	}

	rejected := writeTemp(t, "answers.yaml", "name: Reject\nage: 30\ncontact_method: Email\ncontact_method_email_address: ada@example.com\nterms: yes\n")
	code, stdout, _ = execute(t, nil, "-o", "json", "-s", schemaPath, "-f", rejected, "-e", server.URL, "--token", "secret-token", "--retries", "0", "submit")
	if code != 1 {
		t.Fatalf("rejected submit: code %d output %s", code, stdout)
	}
	var report sessionReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if diff := cmp.Diff([]string{"already registered"}, report.Errors["name"]); diff != "" {
		t.Fatalf("server errors mismatch (-want +got):\n%s", diff)
	}
}

func TestFill_WithoutEndpointPrintsRequest(t *testing.T) {
	driver := &scriptedDriver{
		inputs:   []string{"Ada", "30", "555 1234", ""},
		selects:  []int{1},
		confirms: []bool{true},
	}
	code, stdout, stderr := execute(t, driver, "-o", "json", "-s", absSchema(t), "fill")
	if code != 0 {
		t.Fatalf("fill: code %d stdout %s stderr %s", code, stdout, stderr)
	}
	var req submission.Request
	if err := json.Unmarshal([]byte(stdout), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	want := submission.Request{
		FormID: "contact",
		Answers: []submission.Answer{
			{QualifiedName: "name", Value: "Ada"},
			{QualifiedName: "age", Value: "30"},
			{QualifiedName: "contact_method", Value: "Phone"},
			{QualifiedName: "contact_method_phone_number", Value: "555 1234"},
			{QualifiedName: "terms", Value: "true"},
		},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestFill_AbortedExits130(t *testing.T) {
	driver := &scriptedDriver{abort: true}
	code, _, stderr := execute(t, driver, "-s", absSchema(t), "fill")
	if code != 130 || !strings.Contains(stderr, "aborted") {
		t.Fatalf("code %d stderr %q", code, stderr)
	}
	if diff := cmp.Diff([]string{"Name *"}, driver.asked); diff != "" {
		t.Fatalf("asked mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenAPI_PrettyPrintsYAML(t *testing.T) {
	code, stdout, _ := execute(t, nil, "-o", "pretty", "-s", absSchema(t), "openapi")
	if code != 0 {
		t.Fatalf("openapi: code %d", code)
	}
	for _, fragment := range []string{"openapi: 3.0.3", "contact_method_email_address:", "paths:"} {
		if !strings.Contains(stdout, fragment) {
			t.Fatalf("missing %q in:\n%s", fragment, stdout)
		}
	}
}

func TestToken(t *testing.T) {
	code, stdout, _ := execute(t, nil, "-o", "pretty", "--secret", "s3cret", "--subject", "ada", "token")
	if code != 0 {
		t.Fatalf("token: code %d", code)
	}
	sess, err := access.ParseToken([]byte("s3cret"), strings.TrimSpace(stdout), access.WithIssuer("formrules"))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if sess.Subject != "ada" || sess.Role != access.RoleAdmin {
		t.Fatalf("unexpected session %+v", sess)
	}

	if code, _, stderr := execute(t, nil, "token"); code != 1 || !strings.Contains(stderr, "--secret is required") {
		t.Fatalf("missing secret: code %d stderr %q", code, stderr)
	}
}
