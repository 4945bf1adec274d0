package openapi

import (
	"errors"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formrules/pkg/rules"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/validation"
	"github.com/goliatone/go-formrules/pkg/values"
)

// DocumentValues converts vals into the JSON shape ValuesSchema describes. Names
// outside set are dropped and empty values omitted, except checkboxes, which
// are always present. Values that do not convert keep their raw form so the
// schema reports a type mismatch.
func DocumentValues(set rules.RuleSet, vals values.Values) map[string]any {
	out := make(map[string]any, set.Len())
	for _, rule := range set.Rules() {
		raw, present := vals.Get(rule.Name)
		switch rule.Kind {
		case schema.KindCheckbox:
			if !present || raw == nil {
				out[rule.Name] = false
				continue
			}
			checked, ok := values.Bool(raw)
			if !ok {
				out[rule.Name] = raw
				continue
			}
			out[rule.Name] = checked
		case schema.KindNumber:
			number, ok, err := values.Number(raw)
			switch {
			case err != nil:
				out[rule.Name] = values.Stringify(raw)
			case ok:
				out[rule.Name] = number
			}
		case schema.KindText, schema.KindTextarea, schema.KindEmail, schema.KindDate,
			schema.KindRadio, schema.KindSelect, schema.KindFile:
			if !present || values.IsEmpty(raw) {
				continue
			}
			out[rule.Name] = values.Stringify(raw)
		}
	}
	return out
}

// ValidateValues checks vals against the values schema of set and returns
// every failure as a server issue, so the result can be mapped back onto
// fields with validation.MapServerErrors. A nil result means vals conform.
func ValidateValues(set rules.RuleSet, vals values.Values) []validation.ServerIssue {
	return ValidateAgainst(ValuesSchema(set), set, vals)
}

// ValidateAgainst checks vals against an explicit values schema, for example
// one loaded with LoadValuesSchema.
func ValidateAgainst(target *openapi3.Schema, set rules.RuleSet, vals values.Values) []validation.ServerIssue {
	if target == nil {
		return nil
	}
	err := target.VisitJSON(DocumentValues(set, vals), openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	issues := collectIssues(err, nil)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return issues
}

func collectIssues(err error, issues []validation.ServerIssue) []validation.ServerIssue {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, inner := range multi {
			issues = collectIssues(inner, issues)
		}
		return issues
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		return append(issues, validation.ServerIssue{
			Path:    strings.Join(schemaErr.JSONPointer(), "/"),
			Message: schemaErr.Reason,
		})
	}
	return append(issues, validation.ServerIssue{Message: err.Error()})
}
