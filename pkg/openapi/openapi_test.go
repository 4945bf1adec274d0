package openapi_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formrules/pkg/expand"
	"github.com/goliatone/go-formrules/pkg/openapi"
	"github.com/goliatone/go-formrules/pkg/rules"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/validation"
	"github.com/goliatone/go-formrules/pkg/values"
)

func registrationForm() schema.FormSchema {
	return schema.FormSchema{
		ID:    "registration",
		Title: "Registration",
		Fields: []schema.FieldDefinition{
			{Name: "name", Label: "Name", Kind: schema.KindText, Required: true,
				Constraints: schema.TextConstraints{MaxLength: schema.IntPtr(10)}},
			{Name: "age", Label: "Age", Kind: schema.KindNumber, Required: true,
				Constraints: schema.NumberConstraints{Min: schema.FloatPtr(18), Max: schema.FloatPtr(65)}},
			{Name: "plan", Label: "Plan", Kind: schema.KindSelect, Options: []string{"Basic", "Pro"},
				Branches: map[string][]schema.FieldDefinition{
					"Pro": {{Name: "seats", Label: "Seats", Kind: schema.KindNumber, Required: true}},
				}},
			{Name: "terms", Label: "Terms", Kind: schema.KindCheckbox, Required: true},
		},
	}
}

func ruleSet(t *testing.T, sel expand.Selection) rules.RuleSet {
	t.Helper()
	list, err := expand.Expand(registrationForm(), sel)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	set, _, err := rules.Synthesize(list)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	return set
}

func TestValuesSchema(t *testing.T) {
	props := openapi.ValuesSchema(ruleSet(t, expand.Selection{"plan": "Pro"}))

	if diff := cmp.Diff([]string{"name", "age", "plan_seats", "terms"}, props.Required); diff != "" {
		t.Fatalf("required mismatch (-want +got):\n%s", diff)
	}
	age := props.Properties["age"].Value
	if age.Min == nil || *age.Min != 18 || age.Max == nil || *age.Max != 65 {
		t.Fatalf("unexpected age bounds %+v", age)
	}
	name := props.Properties["name"].Value
	if name.MaxLength == nil || *name.MaxLength != 10 || name.MinLength != 1 || name.Title != "Name" {
		t.Fatalf("unexpected name schema %+v", name)
	}
	if diff := cmp.Diff([]any{"Basic", "Pro"}, props.Properties["plan"].Value.Enum); diff != "" {
		t.Fatalf("enum mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{true}, props.Properties["terms"].Value.Enum); diff != "" {
		t.Fatalf("required checkbox must be pinned to true (-want +got):\n%s", diff)
	}
}

func TestValidateValues(t *testing.T) {
	set := ruleSet(t, nil)

	valid := values.Values{"name": "Ada", "age": "30", "plan": "", "terms": true}
	if issues := openapi.ValidateValues(set, valid); len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}

	invalid := values.Values{"age": "17", "plan": "Gold", "terms": false}
	issues := openapi.ValidateValues(set, invalid)
	paths := make([]string, 0, len(issues))
	for _, issue := range issues {
		paths = append(paths, issue.Path)
	}
	if diff := cmp.Diff([]string{"age", "name", "plan", "terms"}, paths); diff != "" {
		t.Fatalf("issue paths mismatch (-want +got):\n%s", diff)
	}

	list, err := expand.Expand(registrationForm(), nil)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	mapping := validation.MapServerErrors(list, issues)
	for _, name := range []string{"age", "name", "plan", "terms"} {
		if len(mapping.Fields[name]) == 0 {
			t.Fatalf("issue for %s did not map back onto its field: %+v", name, mapping)
		}
	}
}

func TestDocumentValues(t *testing.T) {
	got := openapi.DocumentValues(ruleSet(t, nil), values.Values{
		"name":  "Ada",
		"age":   "42",
		"plan":  "",
		"ghost": "boo",
	})
	want := map[string]any{"name": "Ada", "age": 42.0, "terms": false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	e, err := expand.New(registrationForm())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	set, _, err := rules.Synthesize(e.All())
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}

	doc := openapi.Document(registrationForm(), set)
	if doc.Paths.Value(openapi.SubmissionPath) == nil {
		t.Fatalf("missing submission path")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	loaded, err := openapi.LoadValuesSchema(context.Background(), data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := loaded.Properties["plan_seats"]; !ok {
		t.Fatalf("every reachable field must be described, got %v", loaded.Properties)
	}
	issues := openapi.ValidateAgainst(loaded, ruleSet(t, nil), values.Values{"name": "Ada", "age": 70, "terms": true})
	if len(issues) != 1 || issues[0].Path != "age" {
		t.Fatalf("unexpected issues %+v", issues)
	}
}
