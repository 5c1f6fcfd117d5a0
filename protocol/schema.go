package protocol

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaValidator compiles and caches JSON Schemas for tool inputSchema
// validation, following the compile-then-validate shape used elsewhere
// in this codebase for payload validation against a tool-supplied
// schema document.
type SchemaValidator struct {
	mu     sync.Mutex
	cached map[string]*jsonschema.Schema
}

// NewSchemaValidator constructs an empty SchemaValidator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{cached: make(map[string]*jsonschema.Schema)}
}

// Validate checks payload against schemaBytes (a JSON Schema document),
// compiling and caching the schema under cacheKey (typically the tool
// name) on first use. An empty schemaBytes is treated as "no schema" and
// always succeeds.
func (v *SchemaValidator) Validate(cacheKey string, schemaBytes, payload json.RawMessage) error {
	if len(schemaBytes) == 0 {
		return nil
	}

	schema, err := v.compile(cacheKey, schemaBytes)
	if err != nil {
		return err
	}

	var payloadDoc any
	if err := json.Unmarshal(payload, &payloadDoc); err != nil {
		return fmt.Errorf("protocol: unmarshal payload for %q: %w", cacheKey, err)
	}
	if err := schema.Validate(payloadDoc); err != nil {
		return &McpError{Kind: KindSchema, Message: err.Error(), Err: err}
	}
	return nil
}

func (v *SchemaValidator) compile(cacheKey string, schemaBytes json.RawMessage) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.cached[cacheKey]; ok {
		return s, nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal schema for %q: %w", cacheKey, err)
	}

	resourceName := cacheKey + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, schemaDoc); err != nil {
		return nil, fmt.Errorf("protocol: add schema resource %q: %w", cacheKey, err)
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("protocol: compile schema %q: %w", cacheKey, err)
	}

	v.cached[cacheKey] = schema
	return schema, nil
}

// Invalidate drops a cached compiled schema, forcing recompilation on
// next use. Used when a tool's schema is replaced at runtime.
func (v *SchemaValidator) Invalidate(cacheKey string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.cached, cacheKey)
}
