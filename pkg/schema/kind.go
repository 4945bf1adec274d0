package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the closed set of input controls a field can declare.
type Kind string

const (
	KindText     Kind = "text"
	KindTextarea Kind = "textarea"
	KindNumber   Kind = "number"
	KindEmail    Kind = "email"
	KindDate     Kind = "date"
	KindCheckbox Kind = "checkbox"
	KindRadio    Kind = "radio"
	KindSelect   Kind = "select"
	KindFile     Kind = "file"
)

// ErrUnknownKind is returned whenever a field declares a kind outside the
// closed set. It is fatal: callers must not fall back to a text input.
var ErrUnknownKind = errors.New("schema: unknown field kind")

// Kinds lists every supported kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindText, KindTextarea, KindNumber, KindEmail, KindDate,
		KindCheckbox, KindRadio, KindSelect, KindFile,
	}
}

// ParseKind resolves a raw kind string, ignoring case and surrounding space.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
	}
	return kind, nil
}

// Valid reports whether k belongs to the closed kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindTextarea, KindNumber, KindEmail, KindDate,
		KindCheckbox, KindRadio, KindSelect, KindFile:
		return true
	default:
		return false
	}
}

// Selectable reports whether the kind picks one value out of Options and may
// therefore carry conditional branches.
func (k Kind) Selectable() bool {
	return k == KindRadio || k == KindSelect
}

func (k Kind) String() string {
	return string(k)
}
