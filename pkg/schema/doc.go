// Package schema defines the declarative form model: a FormSchema holding an
// ordered list of typed FieldDefinition values, each of which may carry
// conditional branches that only become part of the form when a given option is
// chosen on the parent field.
//
// The package also owns the persisted wire shape consumed from the forms
// service, loading helpers (JSON or YAML), authoring-time checks, and the
// local-name normalizer that keeps names safe to qualify.
package schema
