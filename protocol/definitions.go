package protocol

import (
	"context"
	"encoding/json"
)

// ToolHandler executes a tool call and returns its result content.
type ToolHandler func(ctx context.Context, rc RequestContext, args json.RawMessage) ([]Content, error)

// ToolDefinition describes one registered tool. Definitions are
// immutable after the owning Registry is built.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

// ResourceHandler reads a resource by URI.
type ResourceHandler func(ctx context.Context, rc RequestContext, uri string) ([]Content, error)

// ResourceDefinition describes one registered resource or resource
// template.
type ResourceDefinition struct {
	URI         string // exact URI, or a URI template such as "file:///{path*}"
	Name        string
	Description string
	MimeType    string
	Handler     ResourceHandler
}

// PromptHandler renders a prompt into a sequence of messages.
type PromptHandler func(ctx context.Context, rc RequestContext, args map[string]string) ([]PromptMessage, error)

// PromptMessage is one turn of a rendered prompt.
type PromptMessage struct {
	Role    string // "user" | "assistant" | "system"
	Content Content
}

// PromptArgument declares one named argument a prompt accepts.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// PromptDefinition describes one registered prompt.
type PromptDefinition struct {
	Name        string
	Description string
	Arguments   []PromptArgument
	Handler     PromptHandler
}
