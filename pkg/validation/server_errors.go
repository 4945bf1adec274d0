package validation

import (
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/goliatone/go-formrules/pkg/expand"
	"github.com/goliatone/go-formrules/pkg/names"
)

// ServerIssue is one field-level error reported by the submission service.
type ServerIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ErrorMapping splits server issues into field errors keyed by qualified name
// and form-level messages.
type ErrorMapping struct {
	Fields map[string][]string
	Form   []string
}

// HasErrors reports whether anything was mapped.
func (m ErrorMapping) HasErrors() bool {
	return len(m.Fields) > 0 || len(m.Form) > 0
}

// MapServerErrors attaches each issue to an effective field. The path is tried
// first (wrapper segments and array indexes are ignored, the remaining
// segments are joined with the qualifier separator). When the path does not
// resolve, the message text is searched for a field label or name and the
// longest match wins. As a last resort a path within a small edit distance
// of exactly one qualified name ("contactMethod" for "contact_method") is
// attached to it. Anything else is a form-level message. The mapping is best
// effort and not guaranteed to be injective.
func MapServerErrors(fields expand.EffectiveFieldList, issues []ServerIssue) ErrorMapping {
	mapping := ErrorMapping{Fields: make(map[string][]string)}
	if len(issues) == 0 {
		mapping.Fields = nil
		return mapping
	}

	known := make(map[string]struct{}, len(fields))
	for _, entry := range fields {
		known[entry.Name] = struct{}{}
	}

	for _, issue := range issues {
		message := strings.TrimSpace(issue.Message)
		if message == "" {
			continue
		}
		name := mapIssuePath(issue.Path, known)
		if name == "" {
			name = matchMessage(message, fields)
		}
		if name == "" {
			name = nearestName(issue.Path, known)
		}
		if name == "" {
			mapping.Form = append(mapping.Form, message)
			continue
		}
		mapping.Fields[name] = appendUnique(mapping.Fields[name], message)
	}

	if len(mapping.Fields) == 0 {
		mapping.Fields = nil
	}
	mapping.Form = dedupe(mapping.Form)
	return mapping
}

func mapIssuePath(raw string, known map[string]struct{}) string {
	trimmed := strings.TrimSpace(raw)
	if isFormLevelKey(trimmed) {
		return ""
	}
	segments := parsePathSegments(trimmed)
	if len(segments) == 0 {
		return ""
	}

	best := ""
	for _, variant := range segmentVariants(segments) {
		if name := longestKnownPrefix(variant, known); len(name) > len(best) {
			best = name
		}
	}
	return best
}

func parsePathSegments(path string) []string {
	clean := strings.TrimSpace(path)
	for strings.HasPrefix(clean, "#") || strings.HasPrefix(clean, "/") ||
		strings.HasPrefix(clean, ".") || strings.HasPrefix(clean, "$") {
		clean = clean[1:]
	}
	clean = strings.NewReplacer("[", ".", "]", "", "//", "/").Replace(clean)
	clean = strings.Trim(clean, "./")
	if clean == "" {
		return nil
	}

	parts := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '/'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		segment := strings.TrimSpace(part)
		if segment == "" {
			continue
		}
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		out = append(out, segment)
	}
	return out
}

func segmentVariants(segments []string) [][]string {
	var variants [][]string
	seen := make(map[string]struct{}, 4)
	add := func(candidate []string) {
		if len(candidate) == 0 {
			return
		}
		key := strings.Join(candidate, "\x00")
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		variants = append(variants, append([]string(nil), candidate...))
	}

	add(segments)
	bare := dropWrapperSegments(segments)
	add(bare)
	add(stripNumericSegments(segments))
	add(stripNumericSegments(bare))
	return variants
}

var wrapperSegments = map[string]struct{}{
	"body":       {},
	"request":    {},
	"payload":    {},
	"data":       {},
	"attributes": {},
	"answers":    {},
	"values":     {},
	"fields":     {},
}

func dropWrapperSegments(segments []string) []string {
	out := segments
	for len(out) > 0 {
		if _, ok := wrapperSegments[strings.ToLower(out[0])]; !ok {
			break
		}
		out = out[1:]
	}
	return out
}

func stripNumericSegments(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		if _, err := strconv.Atoi(segment); err == nil {
			continue
		}
		out = append(out, segment)
	}
	return out
}

func longestKnownPrefix(segments []string, known map[string]struct{}) string {
	for end := len(segments); end > 0; end-- {
		candidate := names.Join(names.DefaultSeparator, segments[:end-1], segments[end-1])
		if _, ok := known[candidate]; ok {
			return candidate
		}
	}
	return ""
}

// matchMessage looks for a field label or name inside message,
// case-insensitively. The longest match wins so "Email Address" beats "Email".
func matchMessage(message string, fields expand.EffectiveFieldList) string {
	haystack := strings.ToLower(message)
	best, bestLen := "", 0
	for _, entry := range fields {
		candidates := []string{
			entry.Label(),
			entry.Field.Name,
			strings.ReplaceAll(entry.Field.Name, "_", " "),
			entry.Name,
		}
		for _, candidate := range candidates {
			needle := strings.ToLower(strings.TrimSpace(candidate))
			if needle == "" || len(needle) <= bestLen {
				continue
			}
			if strings.Contains(haystack, needle) {
				best, bestLen = entry.Name, len(needle)
			}
		}
	}
	return best
}

// maxEditDistance bounds nearestName; names shorter than minFuzzyLength
// never match fuzzily.
const (
	maxEditDistance = 2
	minFuzzyLength  = 5
)

func nearestName(raw string, known map[string]struct{}) string {
	if isFormLevelKey(raw) {
		return ""
	}
	segments := stripNumericSegments(dropWrapperSegments(parsePathSegments(raw)))
	if len(segments) == 0 {
		return ""
	}
	candidate := strings.ToLower(strings.Join(segments, names.DefaultSeparator))
	if len(candidate) < minFuzzyLength {
		return ""
	}

	best, bestDistance, tied := "", maxEditDistance+1, false
	for name := range known {
		if len(name) < minFuzzyLength {
			continue
		}
		distance := levenshtein.ComputeDistance(candidate, name)
		switch {
		case distance < bestDistance:
			best, bestDistance, tied = name, distance, false
		case distance == bestDistance:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return best
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "base", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}

func appendUnique(existing []string, message string) []string {
	for _, current := range existing {
		if current == message {
			return existing
		}
	}
	return append(existing, message)
}

func dedupe(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}
	out := make([]string, 0, len(messages))
	for _, message := range messages {
		out = appendUnique(out, message)
	}
	return out
}
