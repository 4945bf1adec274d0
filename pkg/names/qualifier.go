// Package names builds the flat qualified names that identify nested fields
// in value maps, rule sets, and answer records.
//
// A qualified name joins the ancestor chain of local names and the field's own
// local name with a separator ("_" by default, so the Email branch of
// contact_method yields contact_method_email_address). Because the default
// separator is also legal inside a local name, the joined string alone is not
// enough to recover the chain. A Qualifier therefore remembers every name it
// produced: Unqualify is exact for those names, and two different chains that
// would flatten to the same string are rejected with ErrCollision instead of
// silently sharing a value slot.
package names

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// DefaultSeparator joins ancestor and local names.
const DefaultSeparator = "_"

var (
	// ErrCollision reports two distinct (chain, local) pairs that flatten to
	// the same qualified name.
	ErrCollision = errors.New("names: qualified name collision")
	// ErrInvalidName reports an empty local name or one containing a custom
	// separator.
	ErrInvalidName = errors.New("names: invalid local name")
)

// Parts is the decomposition of a qualified name.
type Parts struct {
	// Parent is the qualified name of the direct parent. Empty for top-level
	// fields (HasParent is false).
	Parent    string
	HasParent bool
	Local     string
	// Chain lists the ancestor local names, outermost first.
	Chain []string
}

// Option configures a Qualifier.
type Option func(*Qualifier)

// WithSeparator overrides the join separator.
func WithSeparator(sep string) Option {
	return func(q *Qualifier) {
		if sep != "" {
			q.sep = sep
		}
	}
}

// Qualifier produces and reverses qualified names. Safe for concurrent use.
type Qualifier struct {
	mu      sync.RWMutex
	sep     string
	entries map[string][]string
}

// New constructs a Qualifier.
func New(opts ...Option) *Qualifier {
	q := &Qualifier{
		sep:     DefaultSeparator,
		entries: make(map[string][]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q
}

// Separator returns the join separator.
func (q *Qualifier) Separator() string {
	return q.sep
}

// Join concatenates chain and local with sep without registering anything.
func Join(sep string, chain []string, local string) string {
	if len(chain) == 0 {
		return local
	}
	var b strings.Builder
	for _, ancestor := range chain {
		b.WriteString(ancestor)
		b.WriteString(sep)
	}
	b.WriteString(local)
	return b.String()
}

// Qualify returns the qualified name for local under chain. Calling it again
// with the same arguments returns the same name; a different pair that
// flattens to an already issued name fails with ErrCollision.
func (q *Qualifier) Qualify(chain []string, local string) (string, error) {
	if err := q.checkLocal(local); err != nil {
		return "", err
	}
	for _, ancestor := range chain {
		if err := q.checkLocal(ancestor); err != nil {
			return "", fmt.Errorf("names: ancestor: %w", err)
		}
	}

	qualified := Join(q.sep, chain, local)
	key := append(append(make([]string, 0, len(chain)+1), chain...), local)

	q.mu.Lock()
	defer q.mu.Unlock()
	if existing, ok := q.entries[qualified]; ok {
		if !sameChain(existing, key) {
			return "", fmt.Errorf("%w: %q is produced by both %s and %s",
				ErrCollision, qualified, describe(existing), describe(key))
		}
		return qualified, nil
	}
	q.entries[qualified] = key
	return qualified, nil
}

// MustQualify is like Qualify but panics on error.
func (q *Qualifier) MustQualify(chain []string, local string) string {
	name, err := q.Qualify(chain, local)
	if err != nil {
		panic(err)
	}
	return name
}

// Unqualify reverses Qualify. It reports false for names this qualifier never
// produced; the returned Parts then hold the input as Local.
func (q *Qualifier) Unqualify(qualified string) (Parts, bool) {
	q.mu.RLock()
	key, ok := q.entries[qualified]
	q.mu.RUnlock()
	if !ok {
		return Parts{Local: qualified}, false
	}

	chain := append([]string(nil), key[:len(key)-1]...)
	parts := Parts{Local: key[len(key)-1], Chain: chain}
	if len(chain) > 0 {
		parts.HasParent = true
		parts.Parent = Join(q.sep, chain[:len(chain)-1], chain[len(chain)-1])
	}
	return parts, true
}

// Known reports whether qualified was produced by this qualifier.
func (q *Qualifier) Known(qualified string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.entries[qualified]
	return ok
}

func (q *Qualifier) checkLocal(local string) error {
	if strings.TrimSpace(local) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if q.sep != DefaultSeparator && strings.Contains(local, q.sep) {
		return fmt.Errorf("%w: %q contains separator %q", ErrInvalidName, local, q.sep)
	}
	return nil
}

func sameChain(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func describe(key []string) string {
	return "[" + strings.Join(key, " > ") + "]"
}
