// Package formrules is the convenience entry point: load a schema, start a
// fill-out session, prefill it from a value document, and publish the
// matching OpenAPI description. Each step is also available from its own
// package under pkg/.
package formrules

import (
	"fmt"
	"io/fs"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formrules/internal/logging"
	"github.com/goliatone/go-formrules/pkg/expand"
	"github.com/goliatone/go-formrules/pkg/openapi"
	"github.com/goliatone/go-formrules/pkg/rules"
	"github.com/goliatone/go-formrules/pkg/schema"
	"github.com/goliatone/go-formrules/pkg/session"
	"github.com/goliatone/go-formrules/pkg/values"
)

// FormSchema aliases schema.FormSchema.
type FormSchema = schema.FormSchema

// Values aliases values.Values.
type Values = values.Values

// Session aliases session.Session.
type Session = session.Session

// LoadSchema reads a JSON or YAML schema document and rejects malformed
// schemas.
func LoadSchema(path string) (FormSchema, error) {
	form, err := schema.LoadFile(path)
	if err != nil {
		return FormSchema{}, err
	}
	if err := schema.Validate(form); err != nil {
		return FormSchema{}, err
	}
	return form, nil
}

// LoadSchemas reads every schema document in fsys keyed by form id.
func LoadSchemas(fsys fs.FS) (*schema.Store, error) {
	return schema.LoadFS(fsys)
}

// NewSession starts a fill-out session for form.
func NewSession(form FormSchema, opts ...session.Option) (*Session, error) {
	return session.New(form, opts...)
}

// PrefillOption configures Prefill.
type PrefillOption func(*prefill)

type prefill struct {
	loadFile func(path string) (values.FileRef, error)
	logger   logging.Logger
}

// WithFileLoader turns string answers of file fields into file references,
// typically by reading the named path.
func WithFileLoader(load func(path string) (values.FileRef, error)) PrefillOption {
	return func(p *prefill) {
		p.loadFile = load
	}
}

// WithPrefillLogger sets the logger used to report ignored answers.
func WithPrefillLogger(logger logging.Logger) PrefillOption {
	return func(p *prefill) {
		p.logger = logging.OrNop(logger)
	}
}

// Prefill applies vals to s in effective order so a selection expands its
// branch before the branch answers are applied. Scalars are coerced to the
// shape each kind expects. Answers for names that never became effective are
// returned sorted and otherwise ignored.
func Prefill(s *Session, vals Values, opts ...PrefillOption) ([]string, error) {
	cfg := prefill{logger: logging.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	applied := make(map[string]struct{}, len(vals))
	visited := make(map[string]struct{})
	for {
		entry, ok := nextUnvisited(s.Fields(), visited)
		if !ok {
			break
		}
		visited[entry.Name] = struct{}{}
		raw, present := vals[entry.Name]
		if !present {
			continue
		}
		value, err := coerce(entry.Field.Kind, raw, cfg.loadFile)
		if err != nil {
			return nil, fmt.Errorf("formrules: %s: %w", entry.Name, err)
		}
		if err := s.Set(entry.Name, value); err != nil {
			return nil, err
		}
		applied[entry.Name] = struct{}{}
	}

	var ignored []string
	for name := range vals {
		if _, ok := applied[name]; !ok {
			ignored = append(ignored, name)
		}
	}
	sort.Strings(ignored)
	if len(ignored) > 0 {
		cfg.logger.Warnw("ignored answers for fields outside the effective form", "form", s.FormID(), "fields", ignored)
	}
	return ignored, nil
}

func nextUnvisited(fields expand.EffectiveFieldList, visited map[string]struct{}) (expand.Entry, bool) {
	for _, entry := range fields {
		if _, ok := visited[entry.Name]; !ok {
			return entry, true
		}
	}
	return expand.Entry{}, false
}

func coerce(kind schema.Kind, raw any, loadFile func(string) (values.FileRef, error)) (any, error) {
	switch kind {
	case schema.KindCheckbox:
		if checked, ok := values.Bool(raw); ok {
			return checked, nil
		}
		return raw, nil
	case schema.KindNumber:
		return raw, nil
	case schema.KindFile:
		path, isPath := raw.(string)
		if !isPath || loadFile == nil || values.IsEmpty(path) {
			return raw, nil
		}
		return loadFile(path)
	default:
		if raw == nil {
			return "", nil
		}
		switch raw.(type) {
		case string, bool, int, int64, float64:
			return values.Stringify(raw), nil
		default:
			return raw, nil
		}
	}
}

// Document describes form as an OpenAPI document covering every field that
// can become effective.
func Document(form FormSchema) (*openapi3.T, error) {
	expander, err := expand.New(form)
	if err != nil {
		return nil, err
	}
	set, _, err := rules.Synthesize(expander.All())
	if err != nil {
		return nil, err
	}
	return openapi.Document(form, set), nil
}
