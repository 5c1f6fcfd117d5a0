package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp-go/protocol"
)

func echoTool(_ context.Context, _ protocol.RequestContext, args json.RawMessage) ([]protocol.Content, error) {
	return []protocol.Content{protocol.NewTextContent(string(args))}, nil
}

func TestBuilderRejectsDuplicateToolNames(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddTool(protocol.ToolDefinition{Name: "echo", Handler: echoTool}))
	err := b.AddTool(protocol.ToolDefinition{Name: "echo", Handler: echoTool})
	require.Error(t, err)
}

func TestBuilderRejectsUnnamedDefinitions(t *testing.T) {
	b := NewBuilder()
	require.Error(t, b.AddTool(protocol.ToolDefinition{}))
	require.Error(t, b.AddResource(protocol.ResourceDefinition{}))
	require.Error(t, b.AddPrompt(protocol.PromptDefinition{}))
}

func TestRegistryBuildIsIndependentOfBuilder(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddTool(protocol.ToolDefinition{Name: "echo", Handler: echoTool}))

	reg := b.Build()
	_, ok := reg.Tool("echo")
	require.True(t, ok)

	// Mutating the builder after Build must not affect the frozen registry.
	require.NoError(t, b.AddTool(protocol.ToolDefinition{Name: "second", Handler: echoTool}))
	_, ok = reg.Tool("second")
	require.False(t, ok)
	require.Len(t, reg.ListTools(), 1)
}

func TestRegistryLookupMissing(t *testing.T) {
	reg := NewBuilder().Build()
	_, ok := reg.Tool("nope")
	require.False(t, ok)
	_, ok = reg.Resource("file:///nope")
	require.False(t, ok)
	_, ok = reg.Prompt("nope")
	require.False(t, ok)
}
