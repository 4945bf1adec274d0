// Package openapi publishes a synthesized rule set as OpenAPI 3 schemas so the
// forms service (or any other consumer) can check submitted values with the
// same constraints the fill-out session enforces. kin-openapi types are
// exposed directly.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formrules/pkg/rules"
	"github.com/goliatone/go-formrules/pkg/schema"
)

const (
	// Version is the OpenAPI version written by Document.
	Version = "3.0.3"
	// ValuesComponent names the values schema under components/schemas.
	ValuesComponent = "FormValues"
	// SubmissionComponent names the submission schema under components/schemas.
	SubmissionComponent = "FormSubmission"
	// SubmissionPath is the collaborator endpoint accepting submissions.
	SubmissionPath = "/forms/{id}/submissions"
)

// ValuesSchema describes the value map accepted for set: one property per
// qualified name, required fields listed, kind constraints mapped onto
// OpenAPI keywords. Numbers are numbers, checkboxes booleans, and every other
// kind a string.
func ValuesSchema(set rules.RuleSet) *openapi3.Schema {
	out := openapi3.NewObjectSchema()
	closed := false
	out.AdditionalProperties = openapi3.AdditionalProperties{Has: &closed}

	var required []string
	for _, rule := range set.Rules() {
		out.WithProperty(rule.Name, propertySchema(rule))
		if rule.Required {
			required = append(required, rule.Name)
		}
	}
	out.Required = required
	return out
}

func propertySchema(rule rules.Rule) *openapi3.Schema {
	var prop *openapi3.Schema
	switch rule.Kind {
	case schema.KindText, schema.KindTextarea:
		prop = openapi3.NewStringSchema()
		if rule.MinLength != nil {
			prop.WithMinLength(int64(*rule.MinLength))
		}
		if rule.MaxLength != nil {
			prop.WithMaxLength(int64(*rule.MaxLength))
		}
		if rule.Pattern != nil {
			prop.WithPattern(rule.Pattern.String())
		}
	case schema.KindNumber:
		prop = openapi3.NewFloat64Schema()
		if rule.Min != nil {
			prop.WithMin(*rule.Min)
		}
		if rule.Max != nil {
			prop.WithMax(*rule.Max)
		}
	case schema.KindEmail:
		prop = openapi3.NewStringSchema().WithFormat("email")
	case schema.KindDate:
		prop = openapi3.NewStringSchema().WithFormat("date")
	case schema.KindRadio, schema.KindSelect:
		enum := make([]any, 0, len(rule.Options))
		for _, option := range rule.Options {
			enum = append(enum, option)
		}
		prop = openapi3.NewStringSchema().WithEnum(enum...)
	case schema.KindCheckbox:
		prop = openapi3.NewBoolSchema()
		if rule.Required {
			prop.WithEnum(true)
		}
	case schema.KindFile:
		prop = openapi3.NewStringSchema()
		if len(rule.AcceptedTypes) > 0 {
			prop.Extensions = map[string]any{"x-accepted-types": append([]string(nil), rule.AcceptedTypes...)}
		}
	default:
		prop = openapi3.NewSchema()
	}
	if rule.Required && prop.Type != nil && prop.Type.Is(openapi3.TypeString) && prop.MinLength == 0 {
		prop.WithMinLength(1)
	}
	prop.Title = rule.Label
	return prop
}

// SubmissionSchema describes the structured submission record
// {formId, answers[{qualifiedName, value}]} restricted to the names in set.
func SubmissionSchema(set rules.RuleSet) *openapi3.Schema {
	names := make([]any, 0, set.Len())
	for _, name := range set.Names() {
		names = append(names, name)
	}

	answer := openapi3.NewObjectSchema().
		WithProperty("qualifiedName", openapi3.NewStringSchema().WithEnum(names...)).
		WithProperty("value", openapi3.NewStringSchema())
	answer.Required = []string{"qualifiedName", "value"}

	out := openapi3.NewObjectSchema().
		WithProperty("formId", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("answers", openapi3.NewArraySchema().WithItems(answer))
	out.Required = []string{"formId", "answers"}
	return out
}

// Document wraps the schemas for form into an OpenAPI document with a single
// submission operation. The rule set is usually synthesized from the full
// field list (every branch active) so every reachable name is described.
// Only top-level fields are listed as required in the values schema.
func Document(form schema.FormSchema, set rules.RuleSet) *openapi3.T {
	title := strings.TrimSpace(form.Title)
	if title == "" {
		title = form.ID
	}

	// Branch fields are only required while their branch is active, which a
	// static document cannot express.
	valuesSchema := ValuesSchema(set)
	topLevel := make(map[string]struct{}, len(form.Fields))
	for _, field := range form.Fields {
		topLevel[field.Name] = struct{}{}
	}
	required := valuesSchema.Required[:0]
	for _, name := range valuesSchema.Required {
		if _, ok := topLevel[name]; ok {
			required = append(required, name)
		}
	}
	valuesSchema.Required = required

	submissionRef := openapi3.NewSchemaRef("#/components/schemas/"+SubmissionComponent, SubmissionSchema(set))
	body := openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(submissionRef)

	op := openapi3.NewOperation()
	op.OperationID = "submit_" + schema.NormalizeName(form.ID)
	op.Summary = "Submit " + title
	op.Description = form.Description
	op.AddParameter(openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema()))
	op.RequestBody = &openapi3.RequestBodyRef{Value: body}
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusCreated, &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("Submission accepted")}),
		openapi3.WithStatus(http.StatusUnprocessableEntity, &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("Field-level validation errors")}),
	)

	paths := openapi3.NewPaths()
	paths.Set(SubmissionPath, &openapi3.PathItem{Post: op})

	return &openapi3.T{
		OpenAPI: Version,
		Info:    &openapi3.Info{Title: title, Version: "1.0.0", Description: form.Description},
		Paths:   paths,
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{
				ValuesComponent:     openapi3.NewSchemaRef("", valuesSchema),
				SubmissionComponent: openapi3.NewSchemaRef("", SubmissionSchema(set)),
			},
		},
	}
}

// LoadValuesSchema reads an OpenAPI document, typically one produced by
// Document and published by the forms service, and returns its values schema.
func LoadValuesSchema(ctx context.Context, data []byte) (*openapi3.Schema, error) {
	if len(data) == 0 {
		return nil, errors.New("openapi: document payload is empty")
	}
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if doc.Components == nil {
		return nil, fmt.Errorf("openapi: document has no %s schema", ValuesComponent)
	}
	ref, ok := doc.Components.Schemas[ValuesComponent]
	if !ok || ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("openapi: document has no %s schema", ValuesComponent)
	}
	return ref.Value, nil
}
