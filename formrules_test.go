package formrules_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	formrules "github.com/goliatone/go-formrules"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/values"
)

var contactFixture = filepath.Join("pkg", "schema", "testdata", "contact.json")

func TestPrefill_ExpandsBranchesBeforeApplyingAnswers(t *testing.T) {
	form, err := formrules.LoadSchema(contactFixture)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	s, err := formrules.NewSession(form)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	loaded := values.FileRef{Name: "cv.pdf", ContentType: "application/pdf", Size: 3}
	ignored, err := formrules.Prefill(s, formrules.Values{
		"contact_method_email_address": "ada@example.com",
		"contact_method_phone_number":  "555",
		"contact_method":               "Email",
		"name":                         "Ada",
		"age":                          40,
		"terms":                        "yes",
		"resume":                       "/tmp/cv.pdf",
	}, formrules.WithFileLoader(func(path string) (values.FileRef, error) {
		if path != "/tmp/cv.pdf" {
			return values.FileRef{}, errors.New("unexpected path")
		}
		return loaded, nil
	}))
	if err != nil {
		t.Fatalf("prefill: %v", err)
	}
	if diff := cmp.Diff([]string{"contact_method_phone_number"}, ignored); diff != "" {
		t.Fatalf("ignored mismatch (-want +got):\n%s", diff)
	}

	got := s.Values()
	if got["contact_method_email_address"] != "ada@example.com" || got["terms"] != true || got["age"] != 40 {
		t.Fatalf("unexpected values %#v", got)
	}
	if diff := cmp.Diff(any(loaded), got["resume"]); diff != "" {
		t.Fatalf("resume mismatch (-want +got):\n%s", diff)
	}
	if report := s.Validate(); !report.Valid() {
		t.Fatalf("expected valid session, got %v", report.Errors())
	}
}

func TestLoadSchema_RejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, path, `{"id":"bad","fields":[{"name":"pick","kind":"radio"}]}`)
	var malformed *schema.MalformedError
	if _, err := formrules.LoadSchema(path); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedError, got %v", err)
	}
}

func TestDocument_DescribesEveryReachableField(t *testing.T) {
	form, err := formrules.LoadSchema(contactFixture)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	doc, err := formrules.Document(form)
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Components struct {
			Schemas map[string]struct {
				Properties map[string]json.RawMessage `json:"properties"`
				Required   []string                   `json:"required"`
			} `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	valuesSchema := decoded.Components.Schemas["FormValues"]
	for _, name := range []string{"name", "age", "contact_method", "contact_method_email_address", "contact_method_phone_number", "resume", "terms"} {
		if _, ok := valuesSchema.Properties[name]; !ok {
			t.Fatalf("property %s missing", name)
		}
	}
	if diff := cmp.Diff([]string{"name", "age", "contact_method", "terms"}, valuesSchema.Required); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
