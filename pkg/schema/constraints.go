package schema

// Constraints is the kind-dependent constraint bag. The concrete variants are
// TextConstraints (text, textarea), NumberConstraints (number) and
// FileConstraints (file); other kinds carry no constraints.
type Constraints interface {
	// Applies reports whether the variant is valid for the given kind.
	Applies(kind Kind) bool
	sealed()
}

// TextConstraints bounds text and textarea values. Lengths count runes.
type TextConstraints struct {
	MinLength *int
	MaxLength *int
	Pattern   string
}

// NumberConstraints bounds number values (inclusive).
type NumberConstraints struct {
	Min *float64
	Max *float64
}

// FileConstraints lists accepted MIME types or extensions. The filter is
// informational only; it is exported to renderers but never re-validated.
type FileConstraints struct {
	AcceptedTypes []string
}

func (TextConstraints) Applies(kind Kind) bool {
	return kind == KindText || kind == KindTextarea
}

func (NumberConstraints) Applies(kind Kind) bool {
	return kind == KindNumber
}

func (FileConstraints) Applies(kind Kind) bool {
	return kind == KindFile
}

func (TextConstraints) sealed()   {}
func (NumberConstraints) sealed() {}
func (FileConstraints) sealed()   {}

// IntPtr is a small helper for building constraint literals.
func IntPtr(v int) *int { return &v }

// FloatPtr is a small helper for building constraint literals.
func FloatPtr(v float64) *float64 { return &v }

func cloneConstraints(c Constraints) Constraints {
	switch typed := c.(type) {
	case TextConstraints:
		out := typed
		out.MinLength = cloneInt(typed.MinLength)
		out.MaxLength = cloneInt(typed.MaxLength)
		return out
	case NumberConstraints:
		return NumberConstraints{Min: cloneFloat(typed.Min), Max: cloneFloat(typed.Max)}
	case FileConstraints:
		return FileConstraints{AcceptedTypes: append([]string(nil), typed.AcceptedTypes...)}
	default:
		return c
	}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
