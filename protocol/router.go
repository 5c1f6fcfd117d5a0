package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/task"
	"github.com/turbomcp/turbomcp-go/wire"
)

// maxParamsRawBytes bounds the serialized size of an inbound params
// value before it is ever decoded into a typed value.
const maxParamsRawBytes = 1 << 20 // 1 MiB

// argCountSlack is added to a tool/prompt's declared parameter count
// when bounding the number of arguments a caller may supply.
const argCountSlack = 10

// HandlerRegistry exposes the three read-only lookup tables a Router
// dispatches into. handler.Registry implements this interface; Router
// depends only on the interface so the two packages don't import one
// another.
type HandlerRegistry interface {
	Tool(name string) (ToolDefinition, bool)
	ListTools() []ToolDefinition
	Resource(uri string) (ResourceDefinition, bool)
	ListResources() []ResourceDefinition
	Prompt(name string) (PromptDefinition, bool)
	ListPrompts() []PromptDefinition
}

// ServerInfo identifies this server in the initialize handshake.
type ServerInfo struct {
	Name    string
	Version string
}

// ToolsCapability advertises tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability advertises resource support.
type ResourcesCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability advertises prompt support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// RootsCapability advertises client-root support expectations.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// Capabilities is the server's advertised capability set. A nil field
// means the category is unsupported and is omitted from the wire object.
type Capabilities struct {
	Tools       *ToolsCapability     `json:"tools,omitempty"`
	Resources   *ResourcesCapability `json:"resources,omitempty"`
	Prompts     *PromptsCapability   `json:"prompts,omitempty"`
	Sampling    *struct{}            `json:"sampling,omitempty"`
	Elicitation *struct{}            `json:"elicitation,omitempty"`
	Roots       *RootsCapability     `json:"roots,omitempty"`
	Logging     *struct{}            `json:"logging,omitempty"`
}

// ServerConfig carries the fixed, build-time parameters of a Router.
type ServerConfig struct {
	Info ServerInfo

	// SupportedVersions is ordered newest/preferred first.
	SupportedVersions []string
	AllowFallback     bool

	// RequiredClientCapabilities names dotted paths into the client's
	// capabilities object that must be present (e.g. "roots",
	// "experimental.foo"). Missing paths fail initialize.
	RequiredClientCapabilities []string

	Capabilities Capabilities
}

// Router consumes decoded JSON-RPC requests and dispatches them per the
// fixed MCP method table. It is safe for concurrent use: registries and
// config are immutable after construction, and task.Store implementations
// are themselves concurrency-safe.
type Router struct {
	cfg       ServerConfig
	registry  HandlerRegistry
	tasks     task.Store
	validator *SchemaValidator
	logger    corelog.Logger
}

// NewRouter constructs a Router. logger may be nil, in which case
// corelog.Default is used.
func NewRouter(cfg ServerConfig, registry HandlerRegistry, tasks task.Store, validator *SchemaValidator, logger corelog.Logger) *Router {
	if logger == nil {
		logger = corelog.Default
	}
	return &Router{cfg: cfg, registry: registry, tasks: tasks, validator: validator, logger: logger}
}

// Handle dispatches one decoded request and returns the response to
// send, or nil if req is a notification (no response is ever sent for
// those, per §4.3).
func (r *Router) Handle(ctx context.Context, rc RequestContext, req Request) *Response {
	result, mErr := r.dispatch(ctx, rc, req)

	if req.ID.IsNotification() {
		if mErr != nil {
			r.logger.Warn(ctx, "notification handler returned error", "method", req.Method, "error", mErr.Error())
		}
		return nil
	}

	if mErr != nil {
		resp := NewErrorResponse(req.ID, mErr)
		return &resp
	}
	resp, err := NewResultResponse(req.ID, result)
	if err != nil {
		resp = NewErrorResponse(req.ID, InternalError(err))
		return &resp
	}
	return &resp
}

func (r *Router) dispatch(ctx context.Context, rc RequestContext, req Request) (any, *McpError) {
	switch req.Method {
	case "initialize":
		return r.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		return struct{}{}, nil
	case "ping":
		return PingResult{}, nil
	case "tools/list":
		return r.handleToolsList()
	case "tools/call":
		return r.handleToolsCall(ctx, rc, req.Params)
	case "resources/list":
		return r.handleResourcesList(false)
	case "resources/templates/list":
		return r.handleResourcesList(true)
	case "resources/read":
		return r.handleResourcesRead(ctx, rc, req.Params)
	case "prompts/list":
		return r.handlePromptsList()
	case "prompts/get":
		return r.handlePromptsGet(ctx, rc, req.Params)
	case "completion/complete":
		return r.handleCompletionComplete(req.Params)
	case "logging/setLevel":
		return struct{}{}, nil
	case "tasks/create":
		return r.handleTasksCreate(ctx, req.Params)
	case "tasks/get":
		return r.handleTasksGet(ctx, req.Params)
	case "tasks/result":
		return r.handleTasksResult(ctx, req.Params)
	case "tasks/list":
		return r.handleTasksList(ctx, req.Params)
	case "tasks/cancel":
		return r.handleTasksCancel(ctx, req.Params)
	default:
		return nil, MethodNotFound(req.Method)
	}
}

// --- initialize -----------------------------------------------------

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the decoded body of an `initialize` request.
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	ClientInfo      *ClientInfo     `json:"clientInfo"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
}

// InitializeResult is the server's response to `initialize`.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

func (r *Router) handleInitialize(raw json.RawMessage) (InitializeResult, *McpError) {
	if len(raw) == 0 {
		return InitializeResult{}, InvalidParams("Missing required field: clientInfo")
	}

	var p InitializeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return InitializeResult{}, InvalidParams("Missing required field: clientInfo")
	}
	if p.ClientInfo == nil {
		return InitializeResult{}, InvalidParams("Missing required field: clientInfo")
	}
	if strings.TrimSpace(p.ClientInfo.Name) == "" || strings.TrimSpace(p.ClientInfo.Version) == "" {
		return InitializeResult{}, InvalidParams("clientInfo must contain 'name' and 'version' fields")
	}

	negotiated, mErr := r.negotiateVersion(p.ProtocolVersion)
	if mErr != nil {
		return InitializeResult{}, mErr
	}

	if mErr := r.validateClientCapabilities(p.Capabilities); mErr != nil {
		return InitializeResult{}, mErr
	}

	return InitializeResult{
		ProtocolVersion: negotiated,
		ServerInfo:      r.cfg.Info,
		Capabilities:    r.cfg.Capabilities,
	}, nil
}

func (r *Router) negotiateVersion(requested string) (string, *McpError) {
	if len(r.cfg.SupportedVersions) == 0 {
		return "", InternalError(fmt.Errorf("router: no supported protocol versions configured"))
	}
	if requested == "" {
		return r.cfg.SupportedVersions[0], nil
	}
	for _, v := range r.cfg.SupportedVersions {
		if v == requested {
			return v, nil
		}
	}
	if r.cfg.AllowFallback {
		return r.cfg.SupportedVersions[0], nil
	}
	return "", InvalidRequest(fmt.Sprintf("Unsupported protocol version %q; supported versions: %s", requested, strings.Join(r.cfg.SupportedVersions, ", ")))
}

func (r *Router) validateClientCapabilities(raw json.RawMessage) *McpError {
	if len(r.cfg.RequiredClientCapabilities) == 0 {
		return nil
	}
	var caps map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &caps); err != nil {
			caps = nil
		}
	}
	var missing []string
	for _, path := range r.cfg.RequiredClientCapabilities {
		if !capabilityPathPresent(caps, path) {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return InvalidRequest(fmt.Sprintf("missing required client capabilities: %s", strings.Join(missing, ", ")))
	}
	return nil
}

func capabilityPathPresent(caps map[string]any, path string) bool {
	var cur any = caps
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		v, ok := m[part]
		if !ok {
			return false
		}
		cur = v
	}
	return true
}

// --- tools ------------------------------------------------------------

// ToolInfo is the wire shape of one entry in a tools/list result.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult is the wire shape of a tools/list response.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

func (r *Router) handleToolsList() (ListToolsResult, *McpError) {
	defs := r.registry.ListTools()
	out := make([]ToolInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToolInfo{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	return ListToolsResult{Tools: out}, nil
}

// ToolCallParams is the decoded body of a tools/call request.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is the wire shape of a tools/call response.
type ToolCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

func (r *Router) handleToolsCall(ctx context.Context, rc RequestContext, raw json.RawMessage) (ToolCallResult, *McpError) {
	if mErr := checkParamsSize(raw); mErr != nil {
		return ToolCallResult{}, mErr
	}
	var p ToolCallParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return ToolCallResult{}, InvalidParams(fmt.Sprintf("Invalid parameter 'params': %v", err))
	}
	if p.Name == "" {
		return ToolCallResult{}, InvalidParams("Missing required parameter: name")
	}

	def, ok := r.registry.Tool(p.Name)
	if !ok {
		return ToolCallResult{}, InvalidParams(fmt.Sprintf("Invalid parameter 'name': unknown tool %q", p.Name))
	}

	declared := countSchemaProperties(def.InputSchema)
	if mErr := checkArgCount(p.Arguments, declared); mErr != nil {
		return ToolCallResult{}, mErr
	}
	if r.validator != nil && len(def.InputSchema) > 0 {
		if err := r.validator.Validate("tool:"+def.Name, def.InputSchema, p.Arguments); err != nil {
			return ToolCallResult{}, InvalidParams(fmt.Sprintf("Invalid parameter 'arguments': %v", err))
		}
	}

	content, err := def.Handler(ctx, rc, p.Arguments)
	if err != nil {
		return ToolCallResult{Content: []Content{NewTextContent(err.Error())}, IsError: true}, nil
	}
	return ToolCallResult{Content: content}, nil
}

// --- resources ----------------------------------------------------------

// ResourceInfo is the wire shape of one entry in a resources/list or
// resources/templates/list result.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the wire shape of a resources/list response.
type ListResourcesResult struct {
	Resources []ResourceInfo `json:"resources"`
}

func (r *Router) handleResourcesList(templatesOnly bool) (ListResourcesResult, *McpError) {
	defs := r.registry.ListResources()
	out := make([]ResourceInfo, 0, len(defs))
	for _, d := range defs {
		isTemplate := strings.Contains(d.URI, "{")
		if isTemplate != templatesOnly {
			continue
		}
		out = append(out, ResourceInfo{URI: d.URI, Name: d.Name, Description: d.Description, MimeType: d.MimeType})
	}
	return ListResourcesResult{Resources: out}, nil
}

// ResourceReadParams is the decoded body of a resources/read request.
type ResourceReadParams struct {
	URI string `json:"uri"`
}

// ResourceReadResult is the wire shape of a resources/read response.
type ResourceReadResult struct {
	Contents []Content `json:"contents"`
}

func (r *Router) handleResourcesRead(ctx context.Context, rc RequestContext, raw json.RawMessage) (ResourceReadResult, *McpError) {
	if mErr := checkParamsSize(raw); mErr != nil {
		return ResourceReadResult{}, mErr
	}
	var p ResourceReadParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return ResourceReadResult{}, InvalidParams(fmt.Sprintf("Invalid parameter 'params': %v", err))
	}
	if p.URI == "" {
		return ResourceReadResult{}, InvalidParams("Missing required parameter: uri")
	}

	def, ok := r.matchResource(p.URI)
	if !ok {
		return ResourceReadResult{}, InvalidParams(fmt.Sprintf("Invalid parameter 'uri': no resource matches %q", p.URI))
	}

	content, err := def.Handler(ctx, rc, p.URI)
	if err != nil {
		return ResourceReadResult{}, WrapTool(err)
	}
	return ResourceReadResult{Contents: content}, nil
}

func (r *Router) matchResource(uri string) (ResourceDefinition, bool) {
	if def, ok := r.registry.Resource(uri); ok {
		return def, true
	}
	for _, def := range r.registry.ListResources() {
		if uriTemplateMatches(uri, def.URI) {
			return def, true
		}
	}
	return ResourceDefinition{}, false
}

// --- prompts --------------------------------------------------------

// PromptArgumentInfo is the wire shape of one declared prompt argument.
type PromptArgumentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptInfo is the wire shape of one entry in a prompts/list result.
type PromptInfo struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Arguments   []PromptArgumentInfo `json:"arguments,omitempty"`
}

// ListPromptsResult is the wire shape of a prompts/list response.
type ListPromptsResult struct {
	Prompts []PromptInfo `json:"prompts"`
}

func (r *Router) handlePromptsList() (ListPromptsResult, *McpError) {
	defs := r.registry.ListPrompts()
	out := make([]PromptInfo, 0, len(defs))
	for _, d := range defs {
		args := make([]PromptArgumentInfo, 0, len(d.Arguments))
		for _, a := range d.Arguments {
			args = append(args, PromptArgumentInfo{Name: a.Name, Description: a.Description, Required: a.Required})
		}
		out = append(out, PromptInfo{Name: d.Name, Description: d.Description, Arguments: args})
	}
	return ListPromptsResult{Prompts: out}, nil
}

// PromptGetParams is the decoded body of a prompts/get request.
type PromptGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptGetResult is the wire shape of a prompts/get response.
type PromptGetResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

func (r *Router) handlePromptsGet(ctx context.Context, rc RequestContext, raw json.RawMessage) (PromptGetResult, *McpError) {
	if mErr := checkParamsSize(raw); mErr != nil {
		return PromptGetResult{}, mErr
	}
	var p PromptGetParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return PromptGetResult{}, InvalidParams(fmt.Sprintf("Invalid parameter 'params': %v", err))
	}
	if p.Name == "" {
		return PromptGetResult{}, InvalidParams("Missing required parameter: name")
	}

	def, ok := r.registry.Prompt(p.Name)
	if !ok {
		return PromptGetResult{}, InvalidParams(fmt.Sprintf("Invalid parameter 'name': unknown prompt %q", p.Name))
	}

	for _, a := range def.Arguments {
		if a.Required {
			if _, present := p.Arguments[a.Name]; !present {
				return PromptGetResult{}, InvalidParams(fmt.Sprintf("Missing required parameter: %s", a.Name))
			}
		}
	}

	messages, err := def.Handler(ctx, rc, p.Arguments)
	if err != nil {
		return PromptGetResult{}, WrapTool(err)
	}
	return PromptGetResult{Description: def.Description, Messages: messages}, nil
}

// --- completion -------------------------------------------------------

// CompletionValues is the nested `completion` object of a
// completion/complete response.
type CompletionValues struct {
	Values  []string `json:"values"`
	Total   int      `json:"total"`
	HasMore bool     `json:"hasMore"`
}

// CompletionCompleteResult is the wire shape of a completion/complete
// response. This baseline implementation never produces suggestions of
// its own; it exists so clients that probe the method receive a
// well-formed empty result rather than method_not_found.
type CompletionCompleteResult struct {
	Completion CompletionValues `json:"completion"`
}

func (r *Router) handleCompletionComplete(raw json.RawMessage) (CompletionCompleteResult, *McpError) {
	if mErr := checkParamsSize(raw); mErr != nil {
		return CompletionCompleteResult{}, mErr
	}
	return CompletionCompleteResult{Completion: CompletionValues{Values: []string{}}}, nil
}

// --- tasks --------------------------------------------------------------

type taskMetadataWire struct {
	TTL *int64 `json:"ttl,omitempty"`
}

type tasksCreateParams struct {
	Metadata    *taskMetadataWire `json:"metadata,omitempty"`
	AuthContext *string           `json:"authContext,omitempty"`
}

type tasksCreateResult struct {
	TaskID string `json:"taskId"`
}

func (r *Router) handleTasksCreate(ctx context.Context, raw json.RawMessage) (tasksCreateResult, *McpError) {
	var p tasksCreateParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return tasksCreateResult{}, InvalidParams(fmt.Sprintf("Invalid parameter 'params': %v", err))
		}
	}
	meta := task.Metadata{}
	if p.Metadata != nil {
		meta.TTL = p.Metadata.TTL
	}
	id, err := r.tasks.CreateTask(ctx, meta, p.AuthContext)
	if err != nil {
		return tasksCreateResult{}, taskError(id, err)
	}
	return tasksCreateResult{TaskID: id}, nil
}

type taskIDParams struct {
	TaskID      string  `json:"taskId"`
	AuthContext *string `json:"authContext,omitempty"`
}

func (r *Router) handleTasksGet(ctx context.Context, raw json.RawMessage) (task.Task, *McpError) {
	var p taskIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.TaskID == "" {
		return task.Task{}, InvalidParams("Missing required parameter: taskId")
	}
	t, err := r.tasks.GetTask(ctx, p.TaskID, p.AuthContext)
	if err != nil {
		return task.Task{}, taskError(p.TaskID, err)
	}
	return t, nil
}

type taskResultWire struct {
	Status string          `json:"status"`
	Value  json.RawMessage `json:"value,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (r *Router) handleTasksResult(ctx context.Context, raw json.RawMessage) (taskResultWire, *McpError) {
	var p taskIDParams
	if err := json.Unmarshal(raw, &p); err != nil || p.TaskID == "" {
		return taskResultWire{}, InvalidParams("Missing required parameter: taskId")
	}
	state, err := r.tasks.GetTaskResult(ctx, p.TaskID, p.AuthContext)
	if err != nil {
		return taskResultWire{}, taskError(p.TaskID, err)
	}
	return resultStateToWire(state), nil
}

func resultStateToWire(state task.ResultState) taskResultWire {
	switch state.Kind {
	case task.ResultCompleted:
		return taskResultWire{Status: "completed", Value: state.Value}
	case task.ResultFailed:
		return taskResultWire{Status: "failed", Error: state.Error}
	case task.ResultCancelled:
		return taskResultWire{Status: "cancelled"}
	default:
		return taskResultWire{Status: "pending"}
	}
}

type tasksListParams struct {
	AuthContext *string `json:"authContext,omitempty"`
}

type tasksListResult struct {
	Tasks []task.Task `json:"tasks"`
}

func (r *Router) handleTasksList(ctx context.Context, raw json.RawMessage) (tasksListResult, *McpError) {
	var p tasksListParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return tasksListResult{}, InvalidParams(fmt.Sprintf("Invalid parameter 'params': %v", err))
		}
	}
	tasks, err := r.tasks.ListTasks(ctx, p.AuthContext)
	if err != nil {
		return tasksListResult{}, InternalError(err)
	}
	return tasksListResult{Tasks: tasks}, nil
}

type tasksCancelParams struct {
	TaskID      string  `json:"taskId"`
	Reason      *string `json:"reason,omitempty"`
	AuthContext *string `json:"authContext,omitempty"`
}

func (r *Router) handleTasksCancel(ctx context.Context, raw json.RawMessage) (struct{}, *McpError) {
	var p tasksCancelParams
	if err := json.Unmarshal(raw, &p); err != nil || p.TaskID == "" {
		return struct{}{}, InvalidParams("Missing required parameter: taskId")
	}
	if err := r.tasks.CancelTask(ctx, p.TaskID, p.Reason, p.AuthContext); err != nil {
		return struct{}{}, taskError(p.TaskID, err)
	}
	return struct{}{}, nil
}

func taskError(taskID string, err error) *McpError {
	switch err.(type) {
	case *task.NotFoundError:
		return InvalidParams(fmt.Sprintf("Invalid parameter 'taskId': unknown task %q", taskID))
	case *task.UnauthorizedError:
		return Unauthorized(fmt.Sprintf("not authorized for task %q", taskID))
	case *task.InvalidTransitionError:
		return InvalidParams(err.Error())
	default:
		return InternalError(err)
	}
}

// --- shared parameter defenses ----------------------------------------

func checkParamsSize(raw json.RawMessage) *McpError {
	if len(raw) > maxParamsRawBytes {
		return InvalidParams("params exceeds the maximum allowed size")
	}
	return nil
}

func checkArgCount(raw json.RawMessage, declared int) *McpError {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	limit := declared + argCountSlack
	if len(obj) > limit {
		return InvalidParams(fmt.Sprintf("too many arguments: %d exceeds limit of %d", len(obj), limit))
	}
	return nil
}

// countSchemaProperties returns the number of top-level properties
// declared by a JSON Schema object, used only to size the argument-count
// defensive check. A schema with no "properties" object counts as zero.
func countSchemaProperties(schema json.RawMessage) int {
	if len(schema) == 0 {
		return 0
	}
	var doc struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &doc); err != nil {
		return 0
	}
	return len(doc.Properties)
}
