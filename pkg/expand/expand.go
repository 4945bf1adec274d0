// Package expand flattens a form schema into the effective field list for the
// current selection state: every top-level field in declared order, each
// selectable field followed immediately by the fields of its active branch.
//
// Conditional fields are supported one level deep. Branches declared on a
// conditional field are ignored (and logged once, when the Expander is built).
package expand

import (
	"errors"
	"fmt"

	"github.com/goliatone/go-formrules/internal/logging"
	"github.com/goliatone/go-formrules/pkg/names"
	"github.com/goliatone/go-formrules/pkg/schema"
)

// MaxDepth is the deepest nesting level that is expanded. Top-level fields are
// depth 0.
const MaxDepth = 1

// ErrDuplicateName reports two effective fields that would share a qualified
// name.
var ErrDuplicateName = errors.New("expand: duplicate qualified name")

// Selection maps the qualified name of a selectable field to the option the
// user picked. It is transient and never persisted.
type Selection map[string]string

// Clone copies the selection.
func (s Selection) Clone() Selection {
	out := make(Selection, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Entry is one effective field.
type Entry struct {
	// Name is the qualified name.
	Name string
	// Parent is the qualified name of the selectable field whose branch
	// contributed this entry; empty at top level.
	Parent string
	// Option is the parent option that activated the branch.
	Option string
	Depth  int
	Field  schema.FieldDefinition
}

// Label returns the display label of the field.
func (e Entry) Label() string {
	return e.Field.DisplayLabel()
}

// EffectiveFieldList is the ordered result of Expand.
type EffectiveFieldList []Entry

// Names returns the qualified names in order.
func (l EffectiveFieldList) Names() []string {
	out := make([]string, 0, len(l))
	for _, entry := range l {
		out = append(out, entry.Name)
	}
	return out
}

// Lookup finds an entry by qualified name.
func (l EffectiveFieldList) Lookup(name string) (Entry, bool) {
	for _, entry := range l {
		if entry.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}

// Contains reports whether name is effective.
func (l EffectiveFieldList) Contains(name string) bool {
	_, ok := l.Lookup(name)
	return ok
}

// Option configures an Expander.
type Option func(*Expander)

// WithLogger sets the logger used for ignored nesting.
func WithLogger(logger logging.Logger) Option {
	return func(e *Expander) {
		e.logger = logging.OrNop(logger)
	}
}

// WithQualifier shares a qualifier with other components.
func WithQualifier(q *names.Qualifier) Option {
	return func(e *Expander) {
		if q != nil {
			e.qualifier = q
		}
	}
}

// Expander expands one schema. It is immutable after New and safe for
// concurrent use.
type Expander struct {
	form      schema.FormSchema
	qualifier *names.Qualifier
	logger    logging.Logger
	// all holds every name that can ever become effective, in expansion order
	// with every branch active.
	all []string
}

// New prepares an Expander. It qualifies every reachable field up front so
// naming collisions surface at load time rather than mid-session, and fails
// fast on kinds outside the closed set.
func New(form schema.FormSchema, opts ...Option) (*Expander, error) {
	e := &Expander{
		form:      form.Clone(),
		qualifier: names.New(),
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	seen := make(map[string]struct{})
	if err := e.register(e.form.Fields, nil, 0, seen); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Expander) register(fields []schema.FieldDefinition, chain []string, depth int, seen map[string]struct{}) error {
	for _, field := range fields {
		if !field.Kind.Valid() {
			return fmt.Errorf("expand: field %q: %w: %q", field.Name, schema.ErrUnknownKind, field.Kind)
		}
		qualified, err := e.qualifier.Qualify(chain, field.Name)
		if err != nil {
			return fmt.Errorf("expand: field %q: %w", field.Name, err)
		}
		if _, dup := seen[qualified]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateName, qualified)
		}
		seen[qualified] = struct{}{}
		e.all = append(e.all, qualified)

		if len(field.Branches) == 0 || !field.Selectable() {
			continue
		}
		if depth >= MaxDepth {
			e.logger.Warnw("ignoring conditional branches nested deeper than one level",
				"form", e.form.ID, "field", qualified, "depth", depth)
			continue
		}
		childChain := append(append(make([]string, 0, len(chain)+1), chain...), field.Name)
		visited := make(map[string]struct{}, len(field.Options))
		for _, option := range field.Options {
			if _, dup := visited[option]; dup {
				continue
			}
			visited[option] = struct{}{}
			if err := e.register(field.Branches[option], childChain, depth+1, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// Form returns a copy of the schema being expanded.
func (e *Expander) Form() schema.FormSchema {
	return e.form.Clone()
}

// Qualifier exposes the qualifier holding every registered name.
func (e *Expander) Qualifier() *names.Qualifier {
	return e.qualifier
}

// Names lists every qualified name that can become effective under some
// selection.
func (e *Expander) Names() []string {
	return append([]string(nil), e.all...)
}

// Expand derives the effective field list for sel. Selections naming an option
// without a branch, or a field that is not selectable, add nothing. The result
// depends only on the schema and sel.
func (e *Expander) Expand(sel Selection) EffectiveFieldList {
	out := make(EffectiveFieldList, 0, len(e.form.Fields))
	return e.expand(out, e.form.Fields, nil, "", "", 0, sel)
}

func (e *Expander) expand(out EffectiveFieldList, fields []schema.FieldDefinition, chain []string, parent, option string, depth int, sel Selection) EffectiveFieldList {
	for _, field := range fields {
		qualified := names.Join(e.qualifier.Separator(), chain, field.Name)
		out = append(out, Entry{
			Name:   qualified,
			Parent: parent,
			Option: option,
			Depth:  depth,
			Field:  field,
		})

		if depth >= MaxDepth || !field.Selectable() {
			continue
		}
		chosen, ok := sel[qualified]
		if !ok {
			continue
		}
		children := field.Branch(chosen)
		if len(children) == 0 || !field.HasOption(chosen) {
			continue
		}
		childChain := append(append(make([]string, 0, len(chain)+1), chain...), field.Name)
		out = e.expand(out, children, childChain, qualified, chosen, depth+1, sel)
	}
	return out
}

// All returns every field that can become effective under some selection, in
// the order Expand would emit them with each branch active in option order.
// Entries of mutually exclusive branches appear side by side.
func (e *Expander) All() EffectiveFieldList {
	out := make(EffectiveFieldList, 0, len(e.all))
	return e.collectAll(out, e.form.Fields, nil, "", "", 0)
}

func (e *Expander) collectAll(out EffectiveFieldList, fields []schema.FieldDefinition, chain []string, parent, option string, depth int) EffectiveFieldList {
	for _, field := range fields {
		qualified := names.Join(e.qualifier.Separator(), chain, field.Name)
		out = append(out, Entry{Name: qualified, Parent: parent, Option: option, Depth: depth, Field: field})
		if depth >= MaxDepth || !field.Selectable() || len(field.Branches) == 0 {
			continue
		}
		childChain := append(append(make([]string, 0, len(chain)+1), chain...), field.Name)
		visited := make(map[string]struct{}, len(field.Options))
		for _, opt := range field.Options {
			if _, dup := visited[opt]; dup {
				continue
			}
			visited[opt] = struct{}{}
			out = e.collectAll(out, field.Branch(opt), childChain, qualified, opt, depth+1)
		}
	}
	return out
}

// Expand is a one-shot helper for callers that do not keep an Expander.
func Expand(form schema.FormSchema, sel Selection, opts ...Option) (EffectiveFieldList, error) {
	e, err := New(form, opts...)
	if err != nil {
		return nil, err
	}
	return e.Expand(sel), nil
}
