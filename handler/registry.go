// Package handler builds the immutable tool/resource/prompt registries
// a Router dispatches into. Registration happens once, at server build
// time, through a Builder; the resulting Registry is read-only for the
// lifetime of the server, matching the "registries are read-only"
// shared-state policy.
package handler

import (
	"fmt"

	"github.com/turbomcp/turbomcp-go/protocol"
)

// Builder accumulates tool/resource/prompt definitions before the
// server starts serving requests. It is not safe for concurrent use;
// callers build the full registry on a single goroutine during startup.
type Builder struct {
	tools     map[string]protocol.ToolDefinition
	resources map[string]protocol.ResourceDefinition
	prompts   map[string]protocol.PromptDefinition
}

// NewBuilder constructs an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		tools:     make(map[string]protocol.ToolDefinition),
		resources: make(map[string]protocol.ResourceDefinition),
		prompts:   make(map[string]protocol.PromptDefinition),
	}
}

// AddTool registers a tool definition, returning an error if the name
// is already registered.
func (b *Builder) AddTool(def protocol.ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("handler: tool definition requires a name")
	}
	if _, exists := b.tools[def.Name]; exists {
		return fmt.Errorf("handler: duplicate tool name %q", def.Name)
	}
	b.tools[def.Name] = def
	return nil
}

// AddResource registers a resource or resource-template definition,
// keyed by its (possibly templated) URI.
func (b *Builder) AddResource(def protocol.ResourceDefinition) error {
	if def.URI == "" {
		return fmt.Errorf("handler: resource definition requires a uri")
	}
	if _, exists := b.resources[def.URI]; exists {
		return fmt.Errorf("handler: duplicate resource uri %q", def.URI)
	}
	b.resources[def.URI] = def
	return nil
}

// AddPrompt registers a prompt definition.
func (b *Builder) AddPrompt(def protocol.PromptDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("handler: prompt definition requires a name")
	}
	if _, exists := b.prompts[def.Name]; exists {
		return fmt.Errorf("handler: duplicate prompt name %q", def.Name)
	}
	b.prompts[def.Name] = def
	return nil
}

// Build freezes the accumulated definitions into a Registry. The
// Builder itself remains usable afterward but mutating it has no
// effect on registries already built.
func (b *Builder) Build() *Registry {
	r := &Registry{
		tools:     make(map[string]protocol.ToolDefinition, len(b.tools)),
		resources: make(map[string]protocol.ResourceDefinition, len(b.resources)),
		prompts:   make(map[string]protocol.PromptDefinition, len(b.prompts)),
	}
	for k, v := range b.tools {
		r.tools[k] = v
	}
	for k, v := range b.resources {
		r.resources[k] = v
	}
	for k, v := range b.prompts {
		r.prompts[k] = v
	}
	return r
}

// Registry is an immutable, concurrent-read-safe lookup table of tool,
// resource, and prompt definitions. It implements protocol.HandlerRegistry.
type Registry struct {
	tools     map[string]protocol.ToolDefinition
	resources map[string]protocol.ResourceDefinition
	prompts   map[string]protocol.PromptDefinition
}

var _ protocol.HandlerRegistry = (*Registry)(nil)

// Tool implements protocol.HandlerRegistry.
func (r *Registry) Tool(name string) (protocol.ToolDefinition, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// ListTools implements protocol.HandlerRegistry.
func (r *Registry) ListTools() []protocol.ToolDefinition {
	out := make([]protocol.ToolDefinition, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// Resource implements protocol.HandlerRegistry.
func (r *Registry) Resource(uri string) (protocol.ResourceDefinition, bool) {
	d, ok := r.resources[uri]
	return d, ok
}

// ListResources implements protocol.HandlerRegistry.
func (r *Registry) ListResources() []protocol.ResourceDefinition {
	out := make([]protocol.ResourceDefinition, 0, len(r.resources))
	for _, d := range r.resources {
		out = append(out, d)
	}
	return out
}

// Prompt implements protocol.HandlerRegistry.
func (r *Registry) Prompt(name string) (protocol.PromptDefinition, bool) {
	d, ok := r.prompts[name]
	return d, ok
}

// ListPrompts implements protocol.HandlerRegistry.
func (r *Registry) ListPrompts() []protocol.PromptDefinition {
	out := make([]protocol.PromptDefinition, 0, len(r.prompts))
	for _, d := range r.prompts {
		out = append(out, d)
	}
	return out
}
