package schema

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	localNamePattern  = regexp.MustCompile(`^[a-z0-9]+(_[a-z0-9]+)*$`)
	splitWordsPattern = regexp.MustCompile(`[_\-\s]+`)
)

// NormalizeName turns free text (usually a label) into a local name: lower
// case ASCII letters and digits separated by single underscores. Accents are
// folded first ("Ünïcode" becomes "unicode"); any other run of characters
// collapses into one underscore and leading and trailing underscores are
// dropped. "Contact Method" becomes "contact_method".
func NormalizeName(raw string) string {
	var b strings.Builder
	pendingSep, prevLower := false, false
	for _, r := range foldAccents(strings.TrimSpace(raw)) {
		switch {
		case isLower(r) || isDigit(r):
		case isUpper(r):
			if prevLower {
				pendingSep = true
			}
		default:
			pendingSep, prevLower = true, false
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		prevLower = isLower(r)
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func foldAccents(raw string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, raw)
	if err != nil {
		return raw
	}
	return folded
}

// ValidName reports whether name is already in normalized form.
func ValidName(name string) bool {
	return localNamePattern.MatchString(name)
}

// DefaultLabel converts a field name into a human-friendly label. It splits on
// underscores/dashes and camelCase boundaries.
func DefaultLabel(name string) string {
	if name == "" {
		return ""
	}

	words := splitWordsPattern.Split(name, -1)
	var segments []string
	for _, word := range words {
		if word == "" {
			continue
		}
		segments = append(segments, titleCase(splitCamel(word)))
	}
	return strings.TrimSpace(strings.Join(segments, " "))
}

func splitCamel(input string) string {
	var out strings.Builder
	for i, r := range input {
		if i > 0 && isBoundary(input, i, r) {
			out.WriteRune(' ')
		}
		out.WriteRune(r)
	}
	return out.String()
}

func isBoundary(input string, index int, r rune) bool {
	prev := rune(input[index-1])
	return (isLower(prev) && isUpper(r)) || (isLetter(prev) && isDigit(r)) || (isDigit(prev) && isLetter(r))
}

func isUpper(r rune) bool  { return r >= 'A' && r <= 'Z' }
func isLower(r rune) bool  { return r >= 'a' && r <= 'z' }
func isDigit(r rune) bool  { return r >= '0' && r <= '9' }
func isLetter(r rune) bool { return isUpper(r) || isLower(r) }

func titleCase(word string) string {
	if word == "" {
		return ""
	}
	parts := strings.Fields(word)
	for i, part := range parts {
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}
