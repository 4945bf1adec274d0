package values

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parse decodes a flat document of answers keyed by qualified name. JSON and
// YAML are both accepted. Nested objects are rejected because answers never
// nest.
func Parse(data []byte) (Values, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Values{}, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("values: decode: %w", err)
	}
	out := make(Values, len(raw))
	for name, value := range raw {
		if _, nested := value.(map[string]any); nested {
			return nil, fmt.Errorf("values: %q holds an object, answers must be scalars", name)
		}
		out[name] = value
	}
	return out, nil
}
