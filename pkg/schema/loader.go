package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Parse decodes a persisted schema document. Documents starting with "{" are
// read as JSON, anything else as YAML. Missing names are derived from labels,
// missing labels from names, and display text is sanitised. Parse does not
// run Validate; callers decide when to reject malformed schemas.
func Parse(data []byte, source string) (FormSchema, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return FormSchema{}, fmt.Errorf("schema: document %s is empty", source)
	}

	var form FormSchema
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &form); err != nil {
			return FormSchema{}, fmt.Errorf("schema: parse %s: %w", source, err)
		}
	} else {
		var raw any
		if err := yaml.Unmarshal(trimmed, &raw); err != nil {
			return FormSchema{}, fmt.Errorf("schema: parse %s: invalid JSON or YAML: %w", source, err)
		}
		encoded, err := json.Marshal(stringKeys(raw))
		if err != nil {
			return FormSchema{}, fmt.Errorf("schema: parse %s: %w", source, err)
		}
		if err := json.Unmarshal(encoded, &form); err != nil {
			return FormSchema{}, fmt.Errorf("schema: parse %s: %w", source, err)
		}
	}

	form.Fields = fillDefaults(form.Fields)
	return Sanitize(form), nil
}

// LoadFile reads and parses a schema document from disk.
func LoadFile(path string) (FormSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FormSchema{}, fmt.Errorf("schema: read %s: %w", path, err)
	}
	form, err := Parse(data, path)
	if err != nil {
		return FormSchema{}, err
	}
	if form.ID == "" {
		form.ID = stem(path)
	}
	return form, nil
}

// Store holds schemas keyed by form id.
type Store struct {
	forms map[string]FormSchema
}

// LoadFS walks fsys and parses every JSON/YAML document it finds. A document
// without an id is keyed by its file stem. Duplicate ids are rejected. Every
// failing document is reported; the combined error lists them all and no
// store is returned.
func LoadFS(fsys fs.FS) (*Store, error) {
	store := &Store{forms: make(map[string]FormSchema)}
	if fsys == nil {
		return store, nil
	}

	var errs error
	walkErr := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("schema: walk %s: %w", path, err))
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !isSchemaFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("schema: read %s: %w", path, err))
			return nil
		}
		form, err := Parse(data, path)
		if err != nil {
			errs = multierr.Append(errs, err)
			return nil
		}
		if form.ID == "" {
			form.ID = stem(path)
		}
		if _, exists := store.forms[form.ID]; exists {
			errs = multierr.Append(errs, fmt.Errorf("schema: duplicate form %q (file %s)", form.ID, path))
			return nil
		}
		store.forms[form.ID] = form
		return nil
	})
	errs = multierr.Append(errs, walkErr)
	if errs != nil {
		return nil, errs
	}
	return store, nil
}

// Form returns a copy of the schema registered under id.
func (s *Store) Form(id string) (FormSchema, bool) {
	if s == nil {
		return FormSchema{}, false
	}
	form, ok := s.forms[id]
	if !ok {
		return FormSchema{}, false
	}
	return form.Clone(), true
}

// IDs lists the stored form ids in lexical order.
func (s *Store) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.forms))
	for id := range s.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty reports whether the store holds any forms.
func (s *Store) Empty() bool {
	return s == nil || len(s.forms) == 0
}

func fillDefaults(fields []FieldDefinition) []FieldDefinition {
	for i := range fields {
		field := &fields[i]
		if field.Name == "" && field.Label != "" {
			field.Name = NormalizeName(field.Label)
		}
		if field.Label == "" {
			field.Label = DefaultLabel(field.Name)
		}
		for option, children := range field.Branches {
			field.Branches[option] = fillDefaults(children)
		}
	}
	return fields
}

// stringKeys rewrites YAML mappings with non-string keys, such as a branch
// keyed by a bare number, into string-keyed maps JSON can encode.
func stringKeys(node any) any {
	switch typed := node.(type) {
	case map[string]any:
		for key, value := range typed {
			typed[key] = stringKeys(value)
		}
		return typed
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[fmt.Sprint(key)] = stringKeys(value)
		}
		return out
	case []any:
		for idx, value := range typed {
			typed[idx] = stringKeys(value)
		}
		return typed
	default:
		return node
	}
}

func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
