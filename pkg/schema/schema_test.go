package schema_test

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"

	"github.com/goliatone/go-formrules/pkg/schema"
)

func TestParseKind(t *testing.T) {
	for _, raw := range []string{"text", " Radio ", "FILE"} {
		if _, err := schema.ParseKind(raw); err != nil {
			t.Fatalf("ParseKind(%q): unexpected error %v", raw, err)
		}
	}
	_, err := schema.ParseKind("rating")
	if !errors.Is(err, schema.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestLoadFile_JSONFixture(t *testing.T) {
	form, err := schema.LoadFile("testdata/contact.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := schema.Validate(form); err != nil {
		t.Fatalf("fixture should validate: %v", err)
	}

	if form.ID != "contact" || form.Title != "Contact Us" {
		t.Fatalf("unexpected form header: %+v", form)
	}
	if got := form.Fields[0].Name; got != "name" {
		t.Fatalf("expected name derived from label, got %q", got)
	}

	age := form.Fields[1]
	want := schema.NumberConstraints{Min: schema.FloatPtr(18), Max: schema.FloatPtr(65)}
	if diff := cmp.Diff(schema.Constraints(want), age.Constraints); diff != "" {
		t.Fatalf("age constraints mismatch (-want +got):\n%s", diff)
	}

	method := form.Fields[2]
	email := method.Branch("Email")
	if len(email) != 1 || email[0].Kind != schema.KindEmail || !email[0].Required {
		t.Fatalf("unexpected Email branch: %+v", email)
	}
	if method.Branch("Fax") != nil {
		t.Fatalf("unknown option should have no branch")
	}
}

func TestParse_YAMLWithAliases(t *testing.T) {
	data, err := os.ReadFile("testdata/survey.yaml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	form, err := schema.Parse(data, "survey.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := schema.Validate(form); err != nil {
		t.Fatalf("fixture should validate: %v", err)
	}

	attending := form.Fields[0]
	if attending.Name != "attending" || attending.Kind != schema.KindSelect {
		t.Fatalf("unexpected attending field: %+v", attending)
	}
	var names []string
	for _, child := range attending.Branch("Yes") {
		names = append(names, child.Name)
	}
	if diff := cmp.Diff([]string{"arrival_date", "dietary_notes"}, names); diff != "" {
		t.Fatalf("branch names mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_LocalNameAlias(t *testing.T) {
	documents := map[string]string{
		"json": `{"fields":[{"localName":"dob","label":"Date of Birth","kind":"date"}]}`,
		"yaml": "fields:\n  - localName: dob\n    label: Date of Birth\n    type: date\n",
	}
	for format, doc := range documents {
		t.Run(format, func(t *testing.T) {
			form, err := schema.Parse([]byte(doc), format)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := form.Fields[0].Name; got != "dob" {
				t.Fatalf("name mismatch: got %q want %q", got, "dob")
			}
		})
	}

	form, err := schema.Parse([]byte(`{"fields":[{"name":"dob","localName":"ignored","kind":"date"}]}`), "json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := form.Fields[0].Name; got != "dob" {
		t.Fatalf("name takes precedence over localName, got %q", got)
	}
}

func TestParse_YAMLScalarOptions(t *testing.T) {
	doc := `fields:
  - name: rating
    type: radio
    options: [1, 2, 3]
    conditionalFields:
      1:
        - name: reason
          type: textarea
  - name: agree
    type: select
    options: [true, false]
`
	form, err := schema.Parse([]byte(doc), "rating.yaml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"1", "2", "3"}, form.Fields[0].Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if got := form.Fields[0].Branch("1"); len(got) != 1 || got[0].Name != "reason" {
		t.Fatalf("numeric branch key not kept: %+v", form.Fields[0].Branches)
	}
	if diff := cmp.Diff([]string{"true", "false"}, form.Fields[1].Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}

	_, err = schema.Parse([]byte("fields:\n  - name: color\n    type: select\n    options:\n      - {label: Red}\n"), "color.yaml")
	if err == nil || !strings.Contains(err.Error(), `field "color"`) || !strings.Contains(err.Error(), "options[0]") {
		t.Fatalf("expected error naming the field and option, got %v", err)
	}
}

func TestParse_RejectsUnknownKind(t *testing.T) {
	raw := []byte(`{"title":"x","fields":[{"name":"stars","kind":"rating"}]}`)
	_, err := schema.Parse(raw, "inline")
	if !errors.Is(err, schema.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestParse_RejectsConstraintForWrongKind(t *testing.T) {
	raw := []byte(`{"title":"x","fields":[{"name":"nick","kind":"text","constraints":{"min":3}}]}`)
	if _, err := schema.Parse(raw, "inline"); err == nil {
		t.Fatalf("expected error for number constraint on text field")
	}
}

func TestFieldDefinition_MarshalOmitsIdentity(t *testing.T) {
	field := schema.FieldDefinition{
		Name:     "email_address",
		Label:    "Email Address",
		Kind:     schema.KindEmail,
		Identity: "tok-1",
	}
	raw, err := json.Marshal(field)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "tok-1") {
		t.Fatalf("identity leaked into wire shape: %s", raw)
	}
	if !strings.Contains(string(raw), `"kind":"email"`) {
		t.Fatalf("expected canonical kind key: %s", raw)
	}
}

func TestCheck_ReportsStructuralIssues(t *testing.T) {
	form := schema.FormSchema{
		Title: "Broken",
		Fields: []schema.FieldDefinition{
			{Name: "choice", Kind: schema.KindSelect},
			{Name: "choice", Kind: schema.KindText, Options: []string{"a"}},
			{
				Name:     "mode",
				Kind:     schema.KindRadio,
				Options:  []string{"A"},
				Branches: map[string][]schema.FieldDefinition{"B": {{Name: "x", Kind: schema.KindText}}},
			},
			{Name: "Bad Name", Kind: schema.KindText},
			{Name: "size", Kind: schema.KindNumber, Constraints: schema.TextConstraints{MinLength: schema.IntPtr(1)}},
			{Name: "flag", Kind: schema.KindCheckbox, Branches: map[string][]schema.FieldDefinition{"on": nil}},
			{Name: "code", Kind: schema.KindText, Constraints: schema.TextConstraints{Pattern: "("}},
		},
	}

	issues := schema.Check(form)
	got := make([]string, 0, len(issues))
	for _, issue := range issues {
		got = append(got, issue.Path)
	}
	want := []string{
		"choice",
		"choice",
		"choice",
		"mode",
		"Bad Name",
		"size",
		"flag",
		"code",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("issue paths mismatch (-want +got):\n%s", diff)
	}

	err := schema.Validate(form)
	var malformed *schema.MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedError, got %v", err)
	}
	for _, issue := range malformed.Issues {
		if issue.Path == "code" {
			t.Fatalf("invalid pattern is a warning and must not block saving")
		}
	}
}

func TestCheck_WarnsOnSecondLevelBranches(t *testing.T) {
	form := schema.FormSchema{
		Fields: []schema.FieldDefinition{{
			Name:    "travel",
			Kind:    schema.KindRadio,
			Options: []string{"Yes", "No"},
			Branches: map[string][]schema.FieldDefinition{
				"Yes": {{
					Name:     "mode",
					Kind:     schema.KindSelect,
					Options:  []string{"Train", "Plane"},
					Branches: map[string][]schema.FieldDefinition{"Plane": {{Name: "seat", Kind: schema.KindText}}},
				}},
			},
		}},
	}

	want := []schema.Issue{{
		Path:    "travel[Yes]/mode",
		Message: "conditional branches nested below the first level are not expanded",
		Warning: true,
	}}
	if diff := cmp.Diff(want, schema.Check(form)); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	if err := schema.Validate(form); err != nil {
		t.Fatalf("warnings must not block saving: %v", err)
	}
}

func TestCheck_ReportsBranchNameCollisions(t *testing.T) {
	form := schema.FormSchema{
		Fields: []schema.FieldDefinition{
			{
				Name:    "contact_method",
				Kind:    schema.KindRadio,
				Options: []string{"Email", "Phone"},
				Branches: map[string][]schema.FieldDefinition{
					"Email": {{Name: "notes", Kind: schema.KindText}},
					"Phone": {{Name: "notes", Kind: schema.KindText}},
				},
			},
			{Name: "contact_method_notes", Kind: schema.KindText},
		},
	}

	want := []schema.Issue{
		{Path: "contact_method[Phone]/notes", Message: `qualified name "contact_method_notes" is also produced by contact_method[Email]/notes`},
		{Path: "contact_method_notes", Message: `qualified name "contact_method_notes" is also produced by contact_method[Email]/notes`},
	}
	if diff := cmp.Diff(want, schema.Check(form)); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}
	var malformed *schema.MalformedError
	if err := schema.Validate(form); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedError, got %v", err)
	}
}

func TestValidate_EmptyOptionsRejected(t *testing.T) {
	form := schema.FormSchema{Fields: []schema.FieldDefinition{{Name: "color", Kind: schema.KindRadio}}}
	err := schema.Validate(form)
	if err == nil || !strings.Contains(err.Error(), "at least one option") {
		t.Fatalf("expected missing options error, got %v", err)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Contact Method":    "contact_method",
		"  Email  Address ": "email_address",
		"firstName":         "first_name",
		"Phone #2":          "phone_2",
		"__already_ok__":    "already_ok",
		"Ünïcode label":     "unicode_label",
		"Crème brûlée":      "creme_brulee",
	}
	for in, want := range cases {
		if got := schema.NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
		if got := schema.NormalizeName(in); got != "" && !schema.ValidName(got) {
			t.Errorf("NormalizeName(%q) produced invalid name %q", in, got)
		}
	}
}

func TestDefaultLabel(t *testing.T) {
	if got := schema.DefaultLabel("email_address"); got != "Email Address" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := schema.DefaultLabel("firstName"); got != "First Name" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestSanitize_StripsMarkupFromLabels(t *testing.T) {
	form := schema.Sanitize(schema.FormSchema{
		Title: "<h1>Signup</h1>",
		Fields: []schema.FieldDefinition{
			{Name: "name", Label: "<b>Full</b> Name", Kind: schema.KindText},
			{Name: "terms", Label: "Terms & Conditions", Kind: schema.KindCheckbox},
		},
	})
	if form.Title != "Signup" {
		t.Fatalf("unexpected title %q", form.Title)
	}
	if got := form.Fields[0].Label; got != "Full Name" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := form.Fields[1].Label; got != "Terms & Conditions" {
		t.Fatalf("ampersand should survive sanitising, got %q", got)
	}
}

func TestLoadFS_KeysByIDAndStem(t *testing.T) {
	fsys := fstest.MapFS{
		"forms/a.json": {Data: []byte(`{"id":"alpha","title":"A","fields":[{"name":"x","kind":"text"}]}`)},
		"forms/b.yaml": {Data: []byte("title: B\nfields:\n  - name: y\n    kind: date\n")},
		"README.md":    {Data: []byte("ignored")},
	}
	store, err := schema.LoadFS(fsys)
	if err != nil {
		t.Fatalf("load fs: %v", err)
	}
	if diff := cmp.Diff([]string{"alpha", "b"}, store.IDs()); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	form, ok := store.Form("b")
	if !ok || form.Fields[0].Kind != schema.KindDate {
		t.Fatalf("unexpected form b: %+v", form)
	}
}

func TestLoadFS_ReportsEveryBadDocument(t *testing.T) {
	fsys := fstest.MapFS{
		"a.json":    {Data: []byte(`{"id":"dup","fields":[]}`)},
		"b.json":    {Data: []byte(`{"id":"dup","fields":[]}`)},
		"c.yaml":    {Data: []byte("fields:\n  - name: x\n    kind: slider\n")},
		"d.json":    {Data: []byte(`{"id":"ok","fields":[]}`)},
		"empty.yml": {Data: []byte("  ")},
	}
	_, err := schema.LoadFS(fsys)
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := len(multierr.Errors(err)); got != 3 {
		t.Fatalf("expected 3 aggregated errors, got %d: %v", got, err)
	}
	for _, fragment := range []string{"duplicate form \"dup\"", "c.yaml", "empty.yml is empty"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("error %q missing %q", err, fragment)
		}
	}
}

func TestFieldDefinition_CloneIsDeep(t *testing.T) {
	original := schema.FieldDefinition{
		Name:     "mode",
		Kind:     schema.KindRadio,
		Options:  []string{"A"},
		Branches: map[string][]schema.FieldDefinition{"A": {{Name: "x", Kind: schema.KindText}}},
	}
	clone := original.Clone()
	clone.Options[0] = "Z"
	clone.Branches["A"][0].Name = "changed"
	if original.Options[0] != "A" || original.Branches["A"][0].Name != "x" {
		t.Fatalf("clone shares memory with original: %+v", original)
	}
}
