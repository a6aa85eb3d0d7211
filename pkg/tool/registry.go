package tool

import (
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Kind identifies one of the registered tool kinds.
type Kind string

const (
	KindFSRead    Kind = "fs_read"
	KindFSWrite   Kind = "fs_write"
	KindPatch     Kind = "patch"
	KindShell     Kind = "shell"
	KindGrep      Kind = "grep"
	KindCurlProbe Kind = "curl_probe"
)

// Spec declares one tool kind: whether it mutates the workspace and the
// JSON Schema its arguments must satisfy.
type Spec struct {
	Kind     Kind
	Mutating bool
	schema   *jsonschema.Schema
}

var argSchemas = map[Kind]string{
	KindFSRead: `{
		"type": "object",
		"properties": {"path": {"type": "string", "minLength": 1}},
		"required": ["path"],
		"additionalProperties": false
	}`,
	KindFSWrite: `{
		"type": "object",
		"properties": {
			"path": {"type": "string", "minLength": 1},
			"content": {"type": "string"}
		},
		"required": ["path", "content"],
		"additionalProperties": false
	}`,
	KindPatch: `{
		"type": "object",
		"properties": {"diff": {"type": "string", "minLength": 1}},
		"required": ["diff"],
		"additionalProperties": false
	}`,
	KindShell: `{
		"type": "object",
		"properties": {
			"cmd": {"type": "string", "minLength": 1},
			"timeout_seconds": {"type": "integer", "minimum": 1, "maximum": 600}
		},
		"required": ["cmd"],
		"additionalProperties": false
	}`,
	KindGrep: `{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "minLength": 1},
			"path": {"type": "string"}
		},
		"required": ["pattern"],
		"additionalProperties": false
	}`,
	KindCurlProbe: `{
		"type": "object",
		"properties": {"url": {"type": "string", "minLength": 1}},
		"required": ["url"],
		"additionalProperties": false
	}`,
}

var mutatingKinds = map[Kind]bool{
	KindFSWrite: true,
	KindPatch:   true,
	KindShell:   true,
}

// Registry holds the fixed set of executable tool kinds. The set is closed:
// kinds are compiled in, never extended at runtime.
type Registry struct {
	specs map[Kind]*Spec
}

// NewRegistry compiles the argument schemas for every registered kind.
func NewRegistry() (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	specs := make(map[Kind]*Spec, len(argSchemas))

	for kind, raw := range argSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema for %s: %w", kind, err)
		}
		name := fmt.Sprintf("taskpilot://tools/%s.json", kind)
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("add schema for %s: %w", kind, err)
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", kind, err)
		}
		specs[kind] = &Spec{
			Kind:     kind,
			Mutating: mutatingKinds[kind],
			schema:   schema,
		}
	}

	return &Registry{specs: specs}, nil
}

// Lookup returns the spec for a kind, or false for an unregistered kind.
func (r *Registry) Lookup(kind Kind) (*Spec, bool) {
	spec, ok := r.specs[kind]
	return spec, ok
}

// Kinds returns all registered kinds in stable order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.specs))
	for kind := range r.specs {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ValidateArgs checks an argument map against the kind's schema.
func (s *Spec) ValidateArgs(args map[string]any) error {
	value := map[string]any(args)
	if value == nil {
		value = map[string]any{}
	}
	return s.schema.Validate(any(value))
}
