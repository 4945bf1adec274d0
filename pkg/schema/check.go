package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/goliatone/go-formrules/pkg/names"
)

// Issue describes one authoring-time problem with a schema. Path uses the
// ancestor chain of local names joined by "/", with branch options in
// brackets: "contact_method[Email]/email_address".
type Issue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	// Warning marks issues that do not block saving.
	Warning bool `json:"warning,omitempty"`
}

// MalformedError rejects a schema at save time. It carries every issue found.
type MalformedError struct {
	Issues []Issue
}

func (e *MalformedError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "schema: malformed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return "schema: malformed: " + strings.Join(parts, "; ")
}

// Validate returns a *MalformedError when Check reports blocking issues.
// Warnings are ignored.
func Validate(form FormSchema) error {
	var blocking []Issue
	for _, issue := range Check(form) {
		if !issue.Warning {
			blocking = append(blocking, issue)
		}
	}
	if len(blocking) == 0 {
		return nil
	}
	return &MalformedError{Issues: blocking}
}

// Check inspects the whole tree (every branch, at every depth) and reports
// all structural problems in declaration order.
func Check(form FormSchema) []Issue {
	c := checker{qualified: make(map[string]string)}
	if len(form.Fields) == 0 {
		c.issues = append(c.issues, Issue{Message: "form declares no fields"})
	}
	c.siblings(form.Fields, "", nil, 0)
	return c.issues
}

// expandedDepth is the deepest level whose fields get qualified names.
const expandedDepth = 1

type checker struct {
	issues []Issue
	// qualified maps every qualified name to the path that declared it.
	qualified map[string]string
}

func (c *checker) siblings(fields []FieldDefinition, prefix string, chain []string, depth int) {
	issues := &c.issues
	seen := make(map[string]struct{}, len(fields))
	for idx, field := range fields {
		path := joinIssuePath(prefix, field.Name)
		if field.Name == "" {
			path = joinIssuePath(prefix, fmt.Sprintf("#%d", idx))
		}
		report := func(format string, args ...any) {
			*issues = append(*issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
		}
		warn := func(format string, args ...any) {
			*issues = append(*issues, Issue{Path: path, Message: fmt.Sprintf(format, args...), Warning: true})
		}

		switch {
		case field.Name == "":
			report("name is required")
		case !ValidName(field.Name):
			report("name %q must be lower case letters and digits separated by single underscores", field.Name)
		default:
			if _, dup := seen[field.Name]; dup {
				report("duplicate name %q among siblings", field.Name)
				break
			}
			seen[field.Name] = struct{}{}
			if depth <= expandedDepth {
				qualified := names.Join(names.DefaultSeparator, chain, field.Name)
				if other, taken := c.qualified[qualified]; taken {
					report("qualified name %q is also produced by %s", qualified, other)
				} else {
					c.qualified[qualified] = path
				}
			}
		}

		if !field.Kind.Valid() {
			report("%v: %q", ErrUnknownKind, field.Kind)
			continue
		}

		checkOptions(field, report)
		checkConstraints(field, report, warn)

		if len(field.Branches) == 0 {
			continue
		}
		if !field.Selectable() {
			report("only radio and select fields may declare conditional branches")
			continue
		}
		if depth > 0 {
			warn("conditional branches nested below the first level are not expanded")
		}
		for _, option := range sortedBranchKeys(field) {
			if !field.HasOption(option) {
				report("conditional branch %q does not match any option", option)
			}
			childChain := append(append([]string(nil), chain...), field.Name)
			c.siblings(field.Branches[option], fmt.Sprintf("%s[%s]", path, option), childChain, depth+1)
		}
	}
}

func checkOptions(field FieldDefinition, report func(string, ...any)) {
	if !field.Selectable() {
		if len(field.Options) > 0 {
			report("options are only valid on radio and select fields")
		}
		return
	}
	if len(field.Options) == 0 {
		report("%s fields require at least one option", field.Kind)
		return
	}
	seen := make(map[string]struct{}, len(field.Options))
	for _, option := range field.Options {
		if strings.TrimSpace(option) == "" {
			report("options must not be empty")
			continue
		}
		if _, dup := seen[option]; dup {
			report("duplicate option %q", option)
		}
		seen[option] = struct{}{}
	}
}

func checkConstraints(field FieldDefinition, report, warn func(string, ...any)) {
	if field.Constraints == nil {
		return
	}
	if !field.Constraints.Applies(field.Kind) {
		report("constraints of type %T do not apply to %s fields", field.Constraints, field.Kind)
		return
	}
	switch c := field.Constraints.(type) {
	case TextConstraints:
		if c.MinLength != nil && *c.MinLength < 0 {
			report("minLength must not be negative")
		}
		if c.MaxLength != nil && *c.MaxLength < 0 {
			report("maxLength must not be negative")
		}
		if c.MinLength != nil && c.MaxLength != nil && *c.MinLength > *c.MaxLength {
			report("minLength %d exceeds maxLength %d", *c.MinLength, *c.MaxLength)
		}
		if c.Pattern != "" {
			if _, err := regexp.Compile(c.Pattern); err != nil {
				// The synthesizer skips the check at runtime.
				warn("pattern %q does not compile: %v", c.Pattern, err)
			}
		}
	case NumberConstraints:
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			report("min %v exceeds max %v", *c.Min, *c.Max)
		}
	case FileConstraints:
	}
}

// sortedBranchKeys returns branch keys following option order first, then
// any unknown keys in lexical order, so issues are reported deterministically.
func sortedBranchKeys(field FieldDefinition) []string {
	keys := make([]string, 0, len(field.Branches))
	seen := make(map[string]struct{}, len(field.Branches))
	for _, option := range field.Options {
		if _, ok := field.Branches[option]; ok {
			if _, dup := seen[option]; dup {
				continue
			}
			keys = append(keys, option)
			seen[option] = struct{}{}
		}
	}
	var extra []string
	for key := range field.Branches {
		if _, ok := seen[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

func joinIssuePath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
