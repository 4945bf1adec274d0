package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-formrules/pkg/schema"
)

var (
	// ErrNotFound is returned when a token does not address a live field.
	ErrNotFound = errors.New("identity: field not found")
	// ErrNameImmutable is returned when an update renames a field whose local
	// name was already set.
	ErrNameImmutable = errors.New("identity: local name is immutable once set")
)

type slot struct {
	token Token
	field schema.FieldDefinition
	live  bool
}

// Arena stores one sibling list of field definitions. Slots are addressed by
// index and never reused; display order is a separate index list, so moving a
// field only permutes order and never touches the slot or its token.
//
// Arena is not safe for concurrent use.
type Arena struct {
	slots   []slot
	order   []int
	byToken map[Token]int
}

// NewArena loads fields, resolving each identity with Identify. A token that
// is already taken (for example two nameless fields loaded with the same
// stale token) is replaced with a fresh one.
func NewArena(fields []schema.FieldDefinition) *Arena {
	arena := &Arena{byToken: make(map[Token]int, len(fields))}
	for idx, field := range fields {
		token := Identify(field, idx)
		if _, taken := arena.byToken[token]; taken {
			token = New()
		}
		arena.place(len(arena.order), token, field)
	}
	return arena
}

// Len returns the number of live fields.
func (a *Arena) Len() int {
	return len(a.order)
}

// Append adds a new field at the end and returns its token.
func (a *Arena) Append(field schema.FieldDefinition) Token {
	token, _ := a.Insert(len(a.order), field)
	return token
}

// Insert adds a new field at position index (0..Len). A field that does not
// already carry an identity receives a fresh token from New.
func (a *Arena) Insert(index int, field schema.FieldDefinition) (Token, error) {
	if index < 0 || index > len(a.order) {
		return "", fmt.Errorf("identity: insert position %d out of range [0,%d]", index, len(a.order))
	}
	token := Token(strings.TrimSpace(field.Identity))
	if token == "" {
		token = New()
	}
	if _, taken := a.byToken[token]; taken {
		return "", fmt.Errorf("identity: token %q already in use", token)
	}
	a.place(index, token, field)
	return token, nil
}

// Move relocates the field addressed by token to position to. Identity and
// content are untouched.
func (a *Arena) Move(token Token, to int) error {
	slotIdx, ok := a.byToken[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, token)
	}
	if to < 0 || to >= len(a.order) {
		return fmt.Errorf("identity: move position %d out of range [0,%d)", to, len(a.order))
	}
	from := a.position(slotIdx)
	a.order = append(a.order[:from], a.order[from+1:]...)
	a.order = append(a.order[:to], append([]int{slotIdx}, a.order[to:]...)...)
	return nil
}

// Update replaces the content of the field addressed by token and returns the
// token the field is known by afterwards. Renaming a field whose name is set
// fails with ErrNameImmutable. A positional placeholder is superseded by a
// name-derived token when the field acquires its first name.
func (a *Arena) Update(token Token, field schema.FieldDefinition) (Token, error) {
	slotIdx, ok := a.byToken[token]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, token)
	}
	current := a.slots[slotIdx]
	if current.field.Name != "" && field.Name != current.field.Name {
		return "", fmt.Errorf("%w: %q -> %q", ErrNameImmutable, current.field.Name, field.Name)
	}

	next := token
	if token.Positional() && field.Name != "" {
		candidate := Identify(schema.FieldDefinition{Name: field.Name}, 0)
		if _, taken := a.byToken[candidate]; !taken {
			next = candidate
		} else {
			next = New()
		}
		delete(a.byToken, token)
		a.byToken[next] = slotIdx
	}

	field.Identity = string(next)
	a.slots[slotIdx] = slot{token: next, field: field.Clone(), live: true}
	return next, nil
}

// Remove deletes the field addressed by token. The slot is retired, so the
// token is never handed out again by this arena.
func (a *Arena) Remove(token Token) error {
	slotIdx, ok := a.byToken[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, token)
	}
	pos := a.position(slotIdx)
	a.order = append(a.order[:pos], a.order[pos+1:]...)
	a.slots[slotIdx].live = false
	delete(a.byToken, token)
	return nil
}

// Get returns a copy of the field addressed by token.
func (a *Arena) Get(token Token) (schema.FieldDefinition, bool) {
	slotIdx, ok := a.byToken[token]
	if !ok {
		return schema.FieldDefinition{}, false
	}
	return a.slots[slotIdx].field.Clone(), true
}

// Index returns the display position of token.
func (a *Arena) Index(token Token) (int, bool) {
	slotIdx, ok := a.byToken[token]
	if !ok {
		return -1, false
	}
	return a.position(slotIdx), true
}

// Tokens lists live tokens in display order.
func (a *Arena) Tokens() []Token {
	out := make([]Token, 0, len(a.order))
	for _, slotIdx := range a.order {
		out = append(out, a.slots[slotIdx].token)
	}
	return out
}

// Fields returns deep copies of the live fields in display order, each
// carrying its Identity.
func (a *Arena) Fields() []schema.FieldDefinition {
	out := make([]schema.FieldDefinition, 0, len(a.order))
	for _, slotIdx := range a.order {
		out = append(out, a.slots[slotIdx].field.Clone())
	}
	return out
}

func (a *Arena) place(index int, token Token, field schema.FieldDefinition) {
	field = field.Clone()
	field.Identity = string(token)
	a.slots = append(a.slots, slot{token: token, field: field, live: true})
	slotIdx := len(a.slots) - 1
	a.byToken[token] = slotIdx
	a.order = append(a.order[:index], append([]int{slotIdx}, a.order[index:]...)...)
}

func (a *Arena) position(slotIdx int) int {
	for pos, candidate := range a.order {
		if candidate == slotIdx {
			return pos
		}
	}
	return -1
}
