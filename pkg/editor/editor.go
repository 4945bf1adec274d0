// Package editor is the authoring side of a form: it adds, edits, reorders,
// and deletes field definitions while preserving each field's identity, and
// produces a checked schema ready to persist.
//
// Every operation requires a live admin session. The session's expiry is
// re-checked against the editor clock on each call.
package editor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-formrules/internal/logging"
	"github.com/goliatone/go-formrules/pkg/access"
	"github.com/goliatone/go-formrules/pkg/expand"
	"github.com/goliatone/go-formrules/pkg/identity"
	"github.com/goliatone/go-formrules/pkg/schema"
)

var (
	// ErrDuplicateName is returned when a sibling already uses the name.
	ErrDuplicateName = errors.New("editor: duplicate field name")
	// ErrNotSelectable is returned when branch fields target a field that is
	// not a radio or select.
	ErrNotSelectable = errors.New("editor: field does not take conditional branches")
	// ErrUnknownOption is returned when a branch targets an option the parent
	// does not declare.
	ErrUnknownOption = errors.New("editor: unknown option")
	// ErrNestingTooDeep is returned when a conditional field declares its own
	// branches.
	ErrNestingTooDeep = errors.New("editor: conditional fields cannot declare branches")
)

// Option configures an Editor.
type Option func(*Editor)

// WithClock overrides the time source used for session expiry.
func WithClock(clock func() time.Time) Option {
	return func(e *Editor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Editor) {
		e.logger = logging.OrNop(logger)
	}
}

// Editor holds a working copy of one form. It is safe for concurrent use.
type Editor struct {
	mu          sync.Mutex
	id          string
	title       string
	description string
	fields      *identity.Arena
	branches    map[identity.Token]map[string]*identity.Arena
	session     access.Session
	clock       func() time.Time
	logger      logging.Logger
}

// New opens form for editing under session.
func New(form schema.FormSchema, session access.Session, opts ...Option) (*Editor, error) {
	e := &Editor{
		id:          form.ID,
		title:       form.Title,
		description: form.Description,
		branches:    make(map[identity.Token]map[string]*identity.Arena),
		session:     session,
		clock:       time.Now,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if err := e.authorize(); err != nil {
		return nil, err
	}

	top := make([]schema.FieldDefinition, len(form.Fields))
	for i, field := range form.Fields {
		top[i] = stripBranches(field)
	}
	e.fields = identity.NewArena(top)
	for i, token := range e.fields.Tokens() {
		for option, children := range form.Fields[i].Branches {
			e.branchArena(token, option).loadAll(children)
		}
	}
	return e, nil
}

// Renew swaps the session, for example after the admin signs in again.
func (e *Editor) Renew(session access.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = session
}

// SetDetails updates the form title and description.
func (e *Editor) SetDetails(title, description string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return err
	}
	e.title = strings.TrimSpace(title)
	e.description = strings.TrimSpace(description)
	return nil
}

// Tokens lists the top-level field identities in display order.
func (e *Editor) Tokens() []identity.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fields.Tokens()
}

// Field returns the top-level field addressed by token, with its branches.
func (e *Editor) Field(token identity.Token) (schema.FieldDefinition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	field, ok := e.fields.Get(token)
	if !ok {
		return schema.FieldDefinition{}, false
	}
	return e.withBranches(token, field), true
}

// BranchTokens lists the identities of the fields shown when option is
// selected on parent.
func (e *Editor) BranchTokens(parent identity.Token, option string) []identity.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	if arena, ok := e.branches[parent][option]; ok {
		return arena.Tokens()
	}
	return nil
}

// Add inserts field at index (0..len) among the top-level fields. Branches
// declared on field are added with it.
func (e *Editor) Add(index int, field schema.FieldDefinition) (identity.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return "", err
	}
	if err := uniqueName(e.fields, field.Name, ""); err != nil {
		return "", err
	}
	if err := checkBranches(field); err != nil {
		return "", err
	}

	token, err := e.fields.Insert(index, stripBranches(field))
	if err != nil {
		return "", fmt.Errorf("editor: %w", err)
	}
	for option, children := range field.Branches {
		e.branchArena(token, option).loadAll(children)
	}
	e.logger.Debugw("field added", "form", e.id, "token", token, "name", field.Name, "index", index)
	return token, nil
}

// Update replaces the attributes of the top-level field addressed by token and
// returns the token it is known by afterwards. The local name cannot change
// once set. Branches are edited through the branch methods; branches whose
// option was removed from the field are discarded.
func (e *Editor) Update(token identity.Token, field schema.FieldDefinition) (identity.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return "", err
	}
	if err := uniqueName(e.fields, field.Name, token); err != nil {
		return "", err
	}

	next, err := e.fields.Update(token, stripBranches(field))
	if err != nil {
		return "", fmt.Errorf("editor: %w", err)
	}
	if branches, ok := e.branches[token]; ok && next != token {
		delete(e.branches, token)
		e.branches[next] = branches
	}

	for option := range e.branches[next] {
		if field.Kind.Selectable() && field.HasOption(option) {
			continue
		}
		e.logger.Warnw("discarding branch for removed option", "form", e.id, "field", field.Name, "option", option)
		delete(e.branches[next], option)
	}
	if len(e.branches[next]) == 0 {
		delete(e.branches, next)
	}
	return next, nil
}

// Move relocates the top-level field addressed by token. Identity, content,
// and branches are untouched.
func (e *Editor) Move(token identity.Token, to int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return err
	}
	if err := e.fields.Move(token, to); err != nil {
		return fmt.Errorf("editor: %w", err)
	}
	return nil
}

// Remove deletes the top-level field addressed by token and its branches.
func (e *Editor) Remove(token identity.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return err
	}
	if err := e.fields.Remove(token); err != nil {
		return fmt.Errorf("editor: %w", err)
	}
	delete(e.branches, token)
	return nil
}

// AddBranchField inserts field at index in the branch shown when option is
// selected on parent.
func (e *Editor) AddBranchField(parent identity.Token, option string, index int, field schema.FieldDefinition) (identity.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return "", err
	}
	parentField, ok := e.fields.Get(parent)
	if !ok {
		return "", fmt.Errorf("editor: %w: %s", identity.ErrNotFound, parent)
	}
	if !parentField.Selectable() {
		return "", fmt.Errorf("%w: %s is %s", ErrNotSelectable, parentField.Name, parentField.Kind)
	}
	if !parentField.HasOption(option) {
		return "", fmt.Errorf("%w: %q on %s", ErrUnknownOption, option, parentField.Name)
	}
	if len(field.Branches) > 0 {
		return "", fmt.Errorf("%w: %s", ErrNestingTooDeep, field.Name)
	}

	arena := e.branchArena(parent, option)
	if err := uniqueName(arena.Arena, field.Name, ""); err != nil {
		return "", err
	}
	token, err := arena.Insert(index, field)
	if err != nil {
		return "", fmt.Errorf("editor: %w", err)
	}
	return token, nil
}

// UpdateBranchField replaces a branch field's attributes.
func (e *Editor) UpdateBranchField(parent identity.Token, option string, token identity.Token, field schema.FieldDefinition) (identity.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return "", err
	}
	arena, err := e.existingBranch(parent, option)
	if err != nil {
		return "", err
	}
	if len(field.Branches) > 0 {
		return "", fmt.Errorf("%w: %s", ErrNestingTooDeep, field.Name)
	}
	if err := uniqueName(arena, field.Name, token); err != nil {
		return "", err
	}
	next, err := arena.Update(token, field)
	if err != nil {
		return "", fmt.Errorf("editor: %w", err)
	}
	return next, nil
}

// MoveBranchField reorders a field within its branch.
func (e *Editor) MoveBranchField(parent identity.Token, option string, token identity.Token, to int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return err
	}
	arena, err := e.existingBranch(parent, option)
	if err != nil {
		return err
	}
	if err := arena.Move(token, to); err != nil {
		return fmt.Errorf("editor: %w", err)
	}
	return nil
}

// RemoveBranchField deletes a field from its branch.
func (e *Editor) RemoveBranchField(parent identity.Token, option string, token identity.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return err
	}
	arena, err := e.existingBranch(parent, option)
	if err != nil {
		return err
	}
	if err := arena.Remove(token); err != nil {
		return fmt.Errorf("editor: %w", err)
	}
	if arena.Len() == 0 {
		delete(e.branches[parent], option)
	}
	return nil
}

// Schema assembles the working copy, rejects it when it is malformed or when
// two fields would share a qualified name, and returns the form to persist.
// Returned fields carry their Identity so callers can keep addressing them.
func (e *Editor) Schema() (schema.FormSchema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.authorize(); err != nil {
		return schema.FormSchema{}, err
	}

	form := schema.FormSchema{ID: e.id, Title: e.title, Description: e.description}
	for _, token := range e.fields.Tokens() {
		field, _ := e.fields.Get(token)
		form.Fields = append(form.Fields, e.withBranches(token, field))
	}

	if err := schema.Validate(form); err != nil {
		return schema.FormSchema{}, err
	}
	if _, err := expand.New(form, expand.WithLogger(e.logger)); err != nil {
		return schema.FormSchema{}, fmt.Errorf("editor: %w", err)
	}
	return form, nil
}

func (e *Editor) authorize() error {
	if err := e.session.Authorize(e.clock(), access.RoleAdmin); err != nil {
		return fmt.Errorf("editor: %w", err)
	}
	return nil
}

func (e *Editor) withBranches(token identity.Token, field schema.FieldDefinition) schema.FieldDefinition {
	options := e.branches[token]
	if len(options) == 0 {
		return field
	}
	keys := make([]string, 0, len(options))
	for option := range options {
		keys = append(keys, option)
	}
	sort.Strings(keys)

	field.Branches = make(map[string][]schema.FieldDefinition, len(keys))
	for _, option := range keys {
		if children := options[option].Fields(); len(children) > 0 {
			field.Branches[option] = children
		}
	}
	return field
}

func (e *Editor) existingBranch(parent identity.Token, option string) (*identity.Arena, error) {
	if _, ok := e.fields.Get(parent); !ok {
		return nil, fmt.Errorf("editor: %w: %s", identity.ErrNotFound, parent)
	}
	arena, ok := e.branches[parent][option]
	if !ok {
		return nil, fmt.Errorf("editor: %w: no branch %q under %s", identity.ErrNotFound, option, parent)
	}
	return arena, nil
}

type branch struct {
	*identity.Arena
}

// loadAll appends children, keeping identities that resolve uniquely.
func (b branch) loadAll(children []schema.FieldDefinition) {
	for idx, child := range children {
		child.Identity = string(identity.Identify(child, idx))
		if _, err := b.Insert(b.Len(), child); err != nil {
			child.Identity = ""
			b.Append(child)
		}
	}
}

func (e *Editor) branchArena(parent identity.Token, option string) branch {
	options, ok := e.branches[parent]
	if !ok {
		options = make(map[string]*identity.Arena)
		e.branches[parent] = options
	}
	arena, ok := options[option]
	if !ok {
		arena = identity.NewArena(nil)
		options[option] = arena
	}
	return branch{arena}
}

func stripBranches(field schema.FieldDefinition) schema.FieldDefinition {
	field = field.Clone()
	field.Branches = nil
	return field
}

func checkBranches(field schema.FieldDefinition) error {
	for option, children := range field.Branches {
		if !field.Selectable() {
			return fmt.Errorf("%w: %s is %s", ErrNotSelectable, field.Name, field.Kind)
		}
		if !field.HasOption(option) {
			return fmt.Errorf("%w: %q on %s", ErrUnknownOption, option, field.Name)
		}
		for _, child := range children {
			if len(child.Branches) > 0 {
				return fmt.Errorf("%w: %s", ErrNestingTooDeep, child.Name)
			}
		}
	}
	return nil
}

func uniqueName(arena *identity.Arena, name string, self identity.Token) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	for _, token := range arena.Tokens() {
		if token == self {
			continue
		}
		if existing, _ := arena.Get(token); existing.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	return nil
}
