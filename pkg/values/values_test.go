package values

import (
	"encoding/json"
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  bool
	}{
		{"nil", nil, true},
		{"blank string", "  ", true},
		{"string", "Ada", false},
		{"false", false, false},
		{"zero", 0.0, false},
		{"unnamed file", FileRef{}, true},
		{"file", FileRef{Name: "cv.pdf"}, false},
		{"empty number", json.Number(""), true},
	}
	for _, tc := range cases {
		if got := IsEmpty(tc.value); got != tc.want {
			t.Errorf("%s: IsEmpty = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNumber(t *testing.T) {
	if _, ok, err := Number(" "); ok || err != nil {
		t.Fatalf("blank input should be absent, got ok=%v err=%v", ok, err)
	}
	if n, ok, err := Number("17"); !ok || err != nil || n != 17 {
		t.Fatalf("unexpected parse: %v %v %v", n, ok, err)
	}
	if _, _, err := Number("seventeen"); err == nil {
		t.Fatalf("expected error for non numeric input")
	}
	if _, _, err := Number(math.Inf(1)); err == nil {
		t.Fatalf("expected error for infinity")
	}
	if _, _, err := Number("NaN"); err == nil {
		t.Fatalf("expected error for NaN")
	}
}

func TestStringify(t *testing.T) {
	got := []string{
		Stringify(true),
		Stringify(false),
		Stringify(30.0),
		Stringify(2.5),
		Stringify(FileRef{Name: " cv.pdf "}),
		Stringify(nil),
	}
	want := []string{"true", "false", "30", "2.5", "cv.pdf", ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stringify mismatch (-want +got):\n%s", diff)
	}
}

func TestRetainDropsStaleKeys(t *testing.T) {
	v := Values{
		"contact_method":               "Phone",
		"contact_method_email_address": "ada@example.com",
		"name":                         "Ada",
	}
	dropped := v.Retain([]string{"name", "contact_method"})
	if diff := cmp.Diff([]string{"contact_method_email_address"}, dropped); diff != "" {
		t.Fatalf("dropped mismatch (-want +got):\n%s", diff)
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if diff := cmp.Diff([]string{"contact_method", "name"}, keys); diff != "" {
		t.Fatalf("remaining keys mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := Values{"tags": []any{"a"}, "name": "Ada"}
	clone := original.Clone()
	clone["name"] = "Grace"
	clone["tags"].([]any)[0] = "b"
	if original["name"] != "Ada" || original["tags"].([]any)[0] != "a" {
		t.Fatalf("clone mutated original: %#v", original)
	}
}

func TestBool(t *testing.T) {
	for raw, want := range map[any]bool{true: true, "on": true, "false": false, "": false} {
		got, ok := Bool(raw)
		if !ok || got != want {
			t.Errorf("Bool(%v) = %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := Bool(3); ok {
		t.Fatalf("numbers are not booleans")
	}
}

func TestParse(t *testing.T) {
	got, err := Parse([]byte(`{"name": "Ada", "age": 40, "terms": true, "ratio": 0.5}`))
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	want := Values{"name": "Ada", "age": 40, "terms": true, "ratio": 0.5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}

	got, err = Parse([]byte("name: Grace\ncontact_method: Email\n"))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if diff := cmp.Diff(Values{"name": "Grace", "contact_method": "Email"}, got); diff != "" {
		t.Fatalf("yaml mismatch (-want +got):\n%s", diff)
	}

	if _, err := Parse([]byte(`{"address": {"city": "Oslo"}}`)); err == nil {
		t.Fatalf("expected nested object to be rejected")
	}
	if got, err := Parse(nil); err != nil || len(got) != 0 {
		t.Fatalf("empty input: %v %v", got, err)
	}
}
