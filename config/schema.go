package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentflow/core/errs"
)

// SchemaRegistry holds one JSON Schema per component type, validating a
// component's type-specific Params before it reaches the builder stage.
// A type with no registered schema is accepted unvalidated.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[Type]*jsonschema.Schema
}

// NewSchemaRegistry constructs an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[Type]*jsonschema.Schema)}
}

// Register compiles schemaJSON (a JSON Schema document) and associates
// it with t.
func (r *SchemaRegistry) Register(t Type, schemaJSON map[string]any) error {
	b, err := json.Marshal(schemaJSON)
	if err != nil {
		return fmt.Errorf("marshal schema for %s: %w", t, err)
	}
	c := jsonschema.NewCompiler()
	resourceName := "mem://" + string(t) + ".schema.json"
	if err := c.AddResource(resourceName, strings.NewReader(string(b))); err != nil {
		return fmt.Errorf("add schema resource for %s: %w", t, err)
	}
	sch, err := c.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t, err)
	}
	r.mu.Lock()
	r.schemas[t] = sch
	r.mu.Unlock()
	return nil
}

// Validate checks c.Params against the schema registered for c.Type, if
// any.
func (r *SchemaRegistry) Validate(c *Component) error {
	r.mu.RLock()
	sch, ok := r.schemas[c.Type]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	b, err := json.Marshal(c.Params)
	if err != nil {
		return fmt.Errorf("marshal params for %s/%s: %w", c.Type, c.Name, err)
	}
	var instance any
	if err := json.Unmarshal(b, &instance); err != nil {
		return fmt.Errorf("unmarshal params for %s/%s: %w", c.Type, c.Name, err)
	}
	if err := sch.Validate(instance); err != nil {
		return fmt.Errorf("%s/%s: %w: %v", c.Type, c.Name, errs.ErrSchemaValidation, err)
	}
	return nil
}
