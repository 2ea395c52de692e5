// Package schemavalidation validates inbound ingress payloads against the
// JSON Schema for their message kind before the payload is decoded into a
// Go struct, so a malformed message is rejected as a protocol violation
// rather than surfacing a decode panic deeper in the pipeline.
package schemavalidation

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.schema.json
var schemaFS embed.FS

// knownKinds lists the inbound message kinds this engine accepts.
var knownKinds = []string{
	"start_proctoring",
	"video_frame",
	"screen_frame",
	"end_proctoring",
}

// Validator holds one compiled schema per known inbound message kind.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema once. It is intended to be
// constructed a single time at startup and shared across connections.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	for _, kind := range knownKinds {
		path := fmt.Sprintf("schema/%s.schema.json", kind)
		data, err := schemaFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schemavalidation: read embedded schema %s: %w", path, err)
		}
		resourceID := kind + ".schema.json"
		if err := compiler.AddResource(resourceID, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("schemavalidation: add schema resource %s: %w", resourceID, err)
		}
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(knownKinds))}
	for _, kind := range knownKinds {
		resourceID := kind + ".schema.json"
		schema, err := compiler.Compile(resourceID)
		if err != nil {
			return nil, fmt.Errorf("schemavalidation: compile schema %s: %w", resourceID, err)
		}
		v.schemas[kind] = schema
	}
	return v, nil
}

// Validate checks payload against the schema registered for kind. It
// returns an error for an unknown kind, malformed JSON, or any schema
// violation; the caller treats all three as a protocol violation.
func (v *Validator) Validate(kind string, payload []byte) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("schemavalidation: unknown message kind %q", kind)
	}

	var instance any
	if err := json.Unmarshal(payload, &instance); err != nil {
		return fmt.Errorf("schemavalidation: malformed payload for %q: %w", kind, err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("schemavalidation: %q failed validation: %w", kind, err)
	}
	return nil
}

// KnownKind reports whether kind is a recognised inbound message kind.
func KnownKind(kind string) bool {
	for _, k := range knownKinds {
		if k == kind {
			return true
		}
	}
	return false
}
