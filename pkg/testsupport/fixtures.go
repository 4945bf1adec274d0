// Package testsupport holds fixture and golden helpers shared by package
// tests.
package testsupport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/session"
)

// MustLoadForm reads a schema fixture (JSON or YAML) and fails the test on
// error.
func MustLoadForm(t testing.TB, path string) schema.FormSchema {
	t.Helper()
	form, err := schema.LoadFile(path)
	if err != nil {
		t.Fatalf("load form %s: %v", path, err)
	}
	return form
}

// MustSession starts a session for form.
func MustSession(t testing.TB, form schema.FormSchema, opts ...session.Option) *session.Session {
	t.Helper()
	s, err := session.New(form, opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

// MustSet applies answers in order, routing selectable fields through Set so
// branches expand before later names are resolved.
func MustSet(t testing.TB, s *session.Session, answers ...Answer) {
	t.Helper()
	for _, answer := range answers {
		if err := s.Set(answer.Name, answer.Value); err != nil {
			t.Fatalf("set %s: %v", answer.Name, err)
		}
	}
}

// Answer is one scripted value for MustSet.
type Answer struct {
	Name  string
	Value any
}

// MustReadGolden reads a golden file and returns its raw bytes.
func MustReadGolden(t testing.TB, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return data
}

// WriteMaybeGolden updates a golden file when UPDATE_GOLDENS is set. Returns
// true if the golden was written (test should exit early).
func WriteMaybeGolden(t testing.TB, path string, data []byte) bool {
	t.Helper()
	if os.Getenv("UPDATE_GOLDENS") == "" {
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	return true
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}

// CaptureOutput runs render against a buffer and returns both the returned
// string and what was written, so tests can assert they agree.
func CaptureOutput(t testing.TB, render func(io.Writer) (string, error)) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	out, err := render(&buf)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out, buf.String()
}
