package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldDefinition declares one input control. Struct fields mirror the
// persisted shape; Identity is reconstructed on load and never serialised.
type FieldDefinition struct {
	// ID is the storage id assigned by the forms service, if any.
	ID          string
	Name        string
	Label       string
	Description string
	Placeholder string
	Kind        Kind
	Required    bool
	Options     []string
	Constraints Constraints
	// Branches maps an option value to the fields that appear when that option
	// is selected. Only radio and select fields may declare branches.
	Branches map[string][]FieldDefinition
	// Identity is the opaque editor token (see package identity).
	Identity string
}

// FormSchema is the top-level declared form.
type FormSchema struct {
	ID          string            `json:"id,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Fields      []FieldDefinition `json:"fields"`
}

// Selectable reports whether the field chooses among Options.
func (f FieldDefinition) Selectable() bool {
	return f.Kind.Selectable()
}

// HasOption reports whether value is one of the declared options.
func (f FieldDefinition) HasOption(value string) bool {
	for _, option := range f.Options {
		if option == value {
			return true
		}
	}
	return false
}

// Branch returns the conditional fields for option, or nil.
func (f FieldDefinition) Branch(option string) []FieldDefinition {
	if !f.Selectable() || len(f.Branches) == 0 {
		return nil
	}
	return f.Branches[option]
}

// DisplayLabel returns the label, falling back to a label derived from Name.
func (f FieldDefinition) DisplayLabel() string {
	if label := strings.TrimSpace(f.Label); label != "" {
		return label
	}
	return DefaultLabel(f.Name)
}

// Clone returns a deep copy of the field, including nested branches.
func (f FieldDefinition) Clone() FieldDefinition {
	out := f
	out.Options = append([]string(nil), f.Options...)
	out.Constraints = cloneConstraints(f.Constraints)
	if len(f.Branches) > 0 {
		out.Branches = make(map[string][]FieldDefinition, len(f.Branches))
		for option, children := range f.Branches {
			out.Branches[option] = CloneFields(children)
		}
	}
	return out
}

// CloneFields deep-copies a field slice.
func CloneFields(fields []FieldDefinition) []FieldDefinition {
	if fields == nil {
		return nil
	}
	out := make([]FieldDefinition, len(fields))
	for i, field := range fields {
		out[i] = field.Clone()
	}
	return out
}

// Clone returns a deep copy of the form.
func (s FormSchema) Clone() FormSchema {
	out := s
	out.Fields = CloneFields(s.Fields)
	return out
}

type fieldWire struct {
	ID                  string                       `json:"id,omitempty"`
	Name                string                       `json:"name"`
	Label               string                       `json:"label,omitempty"`
	Description         string                       `json:"description,omitempty"`
	Placeholder         string                       `json:"placeholder,omitempty"`
	Kind                string                       `json:"kind"`
	Type                string                       `json:"type,omitempty"`
	Required            bool                         `json:"required,omitempty"`
	Options             []string                     `json:"options,omitempty"`
	Constraints         *constraintsWire             `json:"constraints,omitempty"`
	ConditionalBranches map[string][]FieldDefinition `json:"conditionalBranches,omitempty"`
	ConditionalFields   map[string][]FieldDefinition `json:"conditionalFields,omitempty"`
}

type constraintsWire struct {
	MinLength     *int     `json:"minLength,omitempty"`
	MaxLength     *int     `json:"maxLength,omitempty"`
	Pattern       string   `json:"pattern,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	AcceptedTypes []string `json:"acceptedTypes,omitempty"`
}

// MarshalJSON emits the canonical wire shape.
func (f FieldDefinition) MarshalJSON() ([]byte, error) {
	wire := fieldWire{
		ID:                  f.ID,
		Name:                f.Name,
		Label:               f.Label,
		Description:         f.Description,
		Placeholder:         f.Placeholder,
		Kind:                string(f.Kind),
		Required:            f.Required,
		Options:             f.Options,
		Constraints:         constraintsToWire(f.Constraints),
		ConditionalBranches: f.Branches,
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the wire shape. "localName" is accepted as an alias
// of "name", "type" of "kind" and "conditionalFields" of
// "conditionalBranches". Numeric and boolean options are read as their text.
func (f *FieldDefinition) UnmarshalJSON(data []byte) error {
	var wire struct {
		fieldWire
		LocalName string          `json:"localName,omitempty"`
		Options   json.RawMessage `json:"options,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	name := strings.TrimSpace(wire.Name)
	if name == "" {
		name = strings.TrimSpace(wire.LocalName)
	}
	ref := name
	if ref == "" {
		ref = strings.TrimSpace(wire.Label)
	}

	rawKind := wire.Kind
	if strings.TrimSpace(rawKind) == "" {
		rawKind = wire.Type
	}
	kind, err := ParseKind(rawKind)
	if err != nil {
		return fmt.Errorf("field %q: %w", ref, err)
	}

	constraints, err := constraintsFromWire(kind, wire.Constraints)
	if err != nil {
		return fmt.Errorf("field %q: %w", ref, err)
	}

	options, err := decodeOptions(wire.Options)
	if err != nil {
		return fmt.Errorf("field %q: %w", ref, err)
	}

	branches := wire.ConditionalBranches
	if len(branches) == 0 {
		branches = wire.ConditionalFields
	}

	*f = FieldDefinition{
		ID:          strings.TrimSpace(wire.ID),
		Name:        name,
		Label:       strings.TrimSpace(wire.Label),
		Description: wire.Description,
		Placeholder: wire.Placeholder,
		Kind:        kind,
		Required:    wire.Required,
		Options:     options,
		Constraints: constraints,
		Branches:    branches,
	}
	return nil
}

func decodeOptions(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("options must be a list, got %s", trimmed)
	}
	options := make([]string, 0, len(items))
	for idx, item := range items {
		item = bytes.TrimSpace(item)
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			options = append(options, text)
			continue
		}
		switch {
		case bytes.Equal(item, []byte("true")), bytes.Equal(item, []byte("false")):
		case len(item) > 0 && (item[0] == '-' || (item[0] >= '0' && item[0] <= '9')):
		default:
			return nil, fmt.Errorf("options[%d] must be a string, number or boolean, got %s", idx, item)
		}
		options = append(options, string(item))
	}
	return options, nil
}

func constraintsToWire(c Constraints) *constraintsWire {
	switch typed := c.(type) {
	case TextConstraints:
		return &constraintsWire{MinLength: typed.MinLength, MaxLength: typed.MaxLength, Pattern: typed.Pattern}
	case NumberConstraints:
		return &constraintsWire{Min: typed.Min, Max: typed.Max}
	case FileConstraints:
		if len(typed.AcceptedTypes) == 0 {
			return nil
		}
		return &constraintsWire{AcceptedTypes: typed.AcceptedTypes}
	default:
		return nil
	}
}

func constraintsFromWire(kind Kind, wire *constraintsWire) (Constraints, error) {
	if wire == nil {
		return nil, nil
	}
	text := wire.MinLength != nil || wire.MaxLength != nil || wire.Pattern != ""
	number := wire.Min != nil || wire.Max != nil
	file := len(wire.AcceptedTypes) > 0

	switch kind {
	case KindText, KindTextarea:
		if number || file {
			return nil, fmt.Errorf("schema: %s fields accept only minLength, maxLength and pattern constraints", kind)
		}
		if !text {
			return nil, nil
		}
		return TextConstraints{MinLength: wire.MinLength, MaxLength: wire.MaxLength, Pattern: wire.Pattern}, nil
	case KindNumber:
		if text || file {
			return nil, fmt.Errorf("schema: number fields accept only min and max constraints")
		}
		if !number {
			return nil, nil
		}
		return NumberConstraints{Min: wire.Min, Max: wire.Max}, nil
	case KindFile:
		if text || number {
			return nil, fmt.Errorf("schema: file fields accept only acceptedTypes constraints")
		}
		if !file {
			return nil, nil
		}
		return FileConstraints{AcceptedTypes: wire.AcceptedTypes}, nil
	case KindEmail, KindDate, KindCheckbox, KindRadio, KindSelect:
		if text || number || file {
			return nil, fmt.Errorf("schema: %s fields do not accept constraints", kind)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
