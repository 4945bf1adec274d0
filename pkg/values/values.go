// Package values holds the candidate value map a user builds while filling a
// form. Keys are qualified field names; values are strings for text-like
// kinds and selections, bool for checkboxes, numbers or numeric strings for
// number fields, and FileRef (or a non-empty placeholder string) for files.
package values

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Values maps qualified names to raw user input.
type Values map[string]any

// FileRef is a locally selected file. Data travels out of band on submission.
type FileRef struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Data        []byte `json:"-"`
}

// DisplayName returns the name sent as the placeholder answer.
func (f FileRef) DisplayName() string {
	return strings.TrimSpace(f.Name)
}

// Get returns the value stored under name.
func (v Values) Get(name string) (any, bool) {
	if v == nil {
		return nil, false
	}
	value, ok := v[name]
	return value, ok
}

// String returns the value under name formatted with Stringify.
func (v Values) String(name string) string {
	value, ok := v.Get(name)
	if !ok {
		return ""
	}
	return Stringify(value)
}

// Clone returns a deep copy. File payloads are shared; they are never
// mutated after selection.
func (v Values) Clone() Values {
	if v == nil {
		return Values{}
	}
	out := make(Values, len(v))
	for k, value := range v {
		out[k] = deepCopy(value)
	}
	return out
}

// Retain drops every key not present in names and reports what was removed.
func (v Values) Retain(names []string) []string {
	if len(v) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(names))
	for _, name := range names {
		keep[name] = struct{}{}
	}
	var dropped []string
	for key := range v {
		if _, ok := keep[key]; !ok {
			dropped = append(dropped, key)
			delete(v, key)
		}
	}
	return dropped
}

// IsEmpty reports whether a value counts as "not provided": nil, a blank
// string, a FileRef without a name, or an empty collection. A false boolean
// is a provided value.
func IsEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case *string:
		return typed == nil || strings.TrimSpace(*typed) == ""
	case json.Number:
		return strings.TrimSpace(typed.String()) == ""
	case FileRef:
		return typed.DisplayName() == ""
	case *FileRef:
		return typed == nil || typed.DisplayName() == ""
	case []any:
		return len(typed) == 0
	case []string:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	default:
		return false
	}
}

// Stringify renders a value the way it is sent in an answer record.
// Booleans become "true"/"false"; files become their display name.
func Stringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case *string:
		if typed == nil {
			return ""
		}
		return *typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case json.Number:
		return typed.String()
	case FileRef:
		return typed.DisplayName()
	case *FileRef:
		if typed == nil {
			return ""
		}
		return typed.DisplayName()
	default:
		return fmt.Sprint(typed)
	}
}

// Number parses a numeric value. Blank strings report ok=false with a nil
// error so callers can treat them as absent. NaN and infinities are rejected.
func Number(value any) (float64, bool, error) {
	var n float64
	switch typed := value.(type) {
	case nil:
		return 0, false, nil
	case float64:
		n = typed
	case float32:
		n = float64(typed)
	case int:
		n = float64(typed)
	case int64:
		n = float64(typed)
	case json.Number:
		return Number(typed.String())
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, false, nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false, fmt.Errorf("values: %q is not a number", typed)
		}
		n = parsed
	default:
		return 0, false, fmt.Errorf("values: %T is not a number", value)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false, fmt.Errorf("values: %v is not a finite number", n)
	}
	return n, true, nil
}

// Bool interprets checkbox input. Strings "true"/"on"/"yes"/"1" are true.
func Bool(value any) (bool, bool) {
	switch typed := value.(type) {
	case bool:
		return typed, true
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "on", "yes", "1":
			return true, true
		case "false", "off", "no", "0", "":
			return false, true
		}
	}
	return false, false
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for k, v := range typed {
			clone[k] = deepCopy(v)
		}
		return clone
	case []any:
		clone := make([]any, len(typed))
		for i, v := range typed {
			clone[i] = deepCopy(v)
		}
		return clone
	case []string:
		return append([]string(nil), typed...)
	default:
		return typed
	}
}
