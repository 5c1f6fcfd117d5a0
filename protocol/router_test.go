package protocol

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp-go/task"
	"github.com/turbomcp/turbomcp-go/wire"
)

type stubRegistry struct {
	tools     map[string]ToolDefinition
	resources map[string]ResourceDefinition
	prompts   map[string]PromptDefinition
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		tools:     map[string]ToolDefinition{},
		resources: map[string]ResourceDefinition{},
		prompts:   map[string]PromptDefinition{},
	}
}

func (s *stubRegistry) Tool(name string) (ToolDefinition, bool) { d, ok := s.tools[name]; return d, ok }
func (s *stubRegistry) ListTools() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(s.tools))
	for _, d := range s.tools {
		out = append(out, d)
	}
	return out
}
func (s *stubRegistry) Resource(uri string) (ResourceDefinition, bool) {
	d, ok := s.resources[uri]
	return d, ok
}
func (s *stubRegistry) ListResources() []ResourceDefinition {
	out := make([]ResourceDefinition, 0, len(s.resources))
	for _, d := range s.resources {
		out = append(out, d)
	}
	return out
}
func (s *stubRegistry) Prompt(name string) (PromptDefinition, bool) {
	d, ok := s.prompts[name]
	return d, ok
}
func (s *stubRegistry) ListPrompts() []PromptDefinition {
	out := make([]PromptDefinition, 0, len(s.prompts))
	for _, d := range s.prompts {
		out = append(out, d)
	}
	return out
}

func testRouter(t *testing.T, reg HandlerRegistry) *Router {
	t.Helper()
	cfg := ServerConfig{
		Info:              ServerInfo{Name: "test-server", Version: "0.0.1"},
		SupportedVersions: []string{"2025-11-25", "2025-06-18"},
		AllowFallback:     true,
		Capabilities: Capabilities{
			Tools: &ToolsCapability{ListChanged: true},
		},
	}
	return NewRouter(cfg, reg, task.NewMemStore(nil), NewSchemaValidator(), nil)
}

func mustRequest(t *testing.T, id wire.MessageID, method string, params any) Request {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(t, err)
		raw = b
	}
	return Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
}

// S1 — initialize negotiation with fallback.
func TestRouterInitializeFallbackNegotiation(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	req := mustRequest(t, wire.NewNumberMessageID(1), "initialize", map[string]any{
		"protocolVersion": "1999-01-01",
		"clientInfo":      map[string]string{"name": "c", "version": "0.1"},
		"capabilities":    map[string]any{},
	})

	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	var result InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Equal(t, "2025-11-25", result.ProtocolVersion)
	require.True(t, result.Capabilities.Tools.ListChanged)
}

// S2 — unknown method.
func TestRouterUnknownMethod(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	req := mustRequest(t, wire.NewNumberMessageID(2), "bogus/method", nil)
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestRouterInitializeMissingClientInfo(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	req := mustRequest(t, wire.NewNumberMessageID(1), "initialize", map[string]any{})
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
	require.Equal(t, "Missing required field: clientInfo", resp.Error.Message)
}

func TestRouterInitializeEmptyParams(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	req := Request{JSONRPC: "2.0", ID: wire.NewNumberMessageID(1), Method: "initialize"}
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, "Missing required field: clientInfo", resp.Error.Message)
}

func TestRouterInitializeIncompleteClientInfo(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	req := mustRequest(t, wire.NewNumberMessageID(1), "initialize", map[string]any{
		"clientInfo": map[string]string{"name": "c"},
	})
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, "clientInfo must contain 'name' and 'version' fields", resp.Error.Message)
}

func TestRouterInitializeUnsupportedVersionNoFallback(t *testing.T) {
	reg := newStubRegistry()
	cfg := ServerConfig{
		Info:              ServerInfo{Name: "s", Version: "1"},
		SupportedVersions: []string{"2025-11-25", "2025-06-18"},
		AllowFallback:     false,
	}
	r := NewRouter(cfg, reg, task.NewMemStore(nil), NewSchemaValidator(), nil)
	req := mustRequest(t, wire.NewNumberMessageID(1), "initialize", map[string]any{
		"protocolVersion": "1999-01-01",
		"clientInfo":      map[string]string{"name": "c", "version": "0.1"},
	})
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidRequest, resp.Error.Code)
	require.Contains(t, resp.Error.Message, "2025-11-25")
}

func TestRouterNotificationProducesNoResponse(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	req := Request{JSONRPC: "2.0", ID: wire.MessageID{}, Method: "notifications/initialized"}
	require.True(t, req.ID.IsNotification())
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.Nil(t, resp)
}

func TestRouterToolsCallRoundTrip(t *testing.T) {
	reg := newStubRegistry()
	reg.tools["echo"] = ToolDefinition{
		Name:        "echo",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		Handler: func(_ context.Context, _ RequestContext, args json.RawMessage) ([]Content, error) {
			var p struct {
				Text string `json:"text"`
			}
			_ = json.Unmarshal(args, &p)
			return []Content{NewTextContent(p.Text)}, nil
		},
	}
	r := testRouter(t, reg)
	req := mustRequest(t, wire.NewNumberMessageID(5), "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]string{"text": "hi"},
	})
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.Nil(t, resp.Error)

	var result ToolCallResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.False(t, result.IsError)
	require.Equal(t, "hi", result.Content[0].Text)
}

func TestRouterToolsCallSchemaRejectsInvalidArguments(t *testing.T) {
	reg := newStubRegistry()
	reg.tools["echo"] = ToolDefinition{
		Name:        "echo",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		Handler: func(_ context.Context, _ RequestContext, _ json.RawMessage) ([]Content, error) {
			return nil, nil
		},
	}
	r := testRouter(t, reg)
	req := mustRequest(t, wire.NewNumberMessageID(5), "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]int{"text": 5},
	})
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestRouterToolsCallUnknownTool(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	req := mustRequest(t, wire.NewNumberMessageID(5), "tools/call", map[string]any{"name": "nope"})
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestRouterResourcesReadMatchesTemplate(t *testing.T) {
	reg := newStubRegistry()
	reg.resources["file:///{path*}"] = ResourceDefinition{
		URI: "file:///{path*}",
		Handler: func(_ context.Context, _ RequestContext, uri string) ([]Content, error) {
			return []Content{NewTextContent(uri)}, nil
		},
	}
	r := testRouter(t, reg)
	req := mustRequest(t, wire.NewNumberMessageID(7), "resources/read", map[string]string{"uri": "file:///a/b/c"})
	resp := r.Handle(context.Background(), NewRequestContext(context.Background()), req)
	require.Nil(t, resp.Error)

	var result ResourceReadResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Equal(t, "file:///a/b/c", result.Contents[0].Text)
}

func TestRouterTasksLifecycleThroughRouter(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	ctx := context.Background()
	rc := NewRequestContext(ctx)

	createResp := r.Handle(ctx, rc, mustRequest(t, wire.NewNumberMessageID(1), "tasks/create", map[string]any{}))
	require.Nil(t, createResp.Error)
	var created tasksCreateResult
	require.NoError(t, json.Unmarshal(createResp.Result, &created))
	require.NotEmpty(t, created.TaskID)

	getResp := r.Handle(ctx, rc, mustRequest(t, wire.NewNumberMessageID(2), "tasks/get", map[string]any{"taskId": created.TaskID}))
	require.Nil(t, getResp.Error)
	var got task.Task
	require.NoError(t, json.Unmarshal(getResp.Result, &got))
	require.Equal(t, task.StatusWorking, got.Status)

	cancelResp := r.Handle(ctx, rc, mustRequest(t, wire.NewNumberMessageID(3), "tasks/cancel", map[string]any{"taskId": created.TaskID}))
	require.Nil(t, cancelResp.Error)

	resultResp := r.Handle(ctx, rc, mustRequest(t, wire.NewNumberMessageID(4), "tasks/result", map[string]any{"taskId": created.TaskID}))
	require.Nil(t, resultResp.Error)
	var result taskResultWire
	require.NoError(t, json.Unmarshal(resultResp.Result, &result))
	require.Equal(t, "cancelled", result.Status)
}

func TestRouterTasksGetUnknownID(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	ctx := context.Background()
	resp := r.Handle(ctx, NewRequestContext(ctx), mustRequest(t, wire.NewNumberMessageID(1), "tasks/get", map[string]any{"taskId": "nope"}))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestRouterPing(t *testing.T) {
	r := testRouter(t, newStubRegistry())
	ctx := context.Background()
	resp := r.Handle(ctx, NewRequestContext(ctx), mustRequest(t, wire.NewNumberMessageID(1), "ping", nil))
	require.Nil(t, resp.Error)
}
