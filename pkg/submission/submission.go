// Package submission flattens accepted values into the answer list sent to the
// submission service and encodes the wire payloads (JSON, or multipart when
// files are attached).
package submission

import (
	"github.com/goliatone/go-formrules/pkg/expand"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/values"
)

// Answer is one serialized effective field.
type Answer struct {
	QualifiedName string `json:"qualifiedName"`
	Value         string `json:"value"`
}

// FilePayload is a binary attachment sent out of band under the qualified
// name of its field.
type FilePayload struct {
	QualifiedName string
	File          values.FileRef
}

// Request is the structured submission record.
type Request struct {
	FormID  string   `json:"formId"`
	Answers []Answer `json:"answers"`
}

// Serialize walks fields in order and emits an answer for every field that has
// a value. Values keyed by names outside fields are stale and dropped without
// error. Empty values are omitted, except checkboxes, which always serialize
// as "true" or "false". File fields yield their display name as the answer and
// the binary as a FilePayload.
func Serialize(fields expand.EffectiveFieldList, vals values.Values) ([]Answer, []FilePayload) {
	answers := make([]Answer, 0, len(fields))
	var files []FilePayload

	for _, entry := range fields {
		raw, present := vals.Get(entry.Name)
		if !present {
			continue
		}

		switch entry.Field.Kind {
		case schema.KindCheckbox:
			checked, _ := values.Bool(raw)
			answers = append(answers, Answer{QualifiedName: entry.Name, Value: values.Stringify(checked)})
		case schema.KindFile:
			if values.IsEmpty(raw) {
				continue
			}
			answers = append(answers, Answer{QualifiedName: entry.Name, Value: values.Stringify(raw)})
			if ref, ok := fileRef(raw); ok {
				files = append(files, FilePayload{QualifiedName: entry.Name, File: ref})
			}
		case schema.KindText, schema.KindTextarea, schema.KindNumber, schema.KindEmail,
			schema.KindDate, schema.KindRadio, schema.KindSelect:
			if values.IsEmpty(raw) {
				continue
			}
			answers = append(answers, Answer{QualifiedName: entry.Name, Value: values.Stringify(raw)})
		default:
			// Unknown kinds never reach here: Expand rejects them.
			continue
		}
	}
	return answers, files
}

// Build serializes and wraps the answers in a Request for formID.
func Build(formID string, fields expand.EffectiveFieldList, vals values.Values) (Request, []FilePayload) {
	answers, files := Serialize(fields, vals)
	return Request{FormID: formID, Answers: answers}, files
}

func fileRef(raw any) (values.FileRef, bool) {
	switch typed := raw.(type) {
	case values.FileRef:
		return typed, len(typed.Data) > 0 || typed.Size > 0
	case *values.FileRef:
		if typed == nil {
			return values.FileRef{}, false
		}
		return *typed, len(typed.Data) > 0 || typed.Size > 0
	default:
		return values.FileRef{}, false
	}
}
