package protocol

import "fmt"

// ErrorKind classifies an McpError by origin, independent of whether it
// ultimately carries a JSON-RPC numeric code.
type ErrorKind int

const (
	// KindProtocol is a JSON-RPC/MCP validation failure (invalid
	// params, method not found, invalid request, parse error). It
	// always carries a JSON-RPC code.
	KindProtocol ErrorKind = iota
	// KindTool is a handler-originated logical failure from a tool call.
	KindTool
	// KindPrompt is a handler-originated logical failure from a prompt.
	KindPrompt
	// KindResource is a handler-originated logical failure from a resource.
	KindResource
	// KindContext is missing or invalid request context data.
	KindContext
	// KindTransport is a transport-layer failure (connection, send,
	// receive, timeout).
	KindTransport
	// KindNetwork is a DNS/TCP/TLS/HTTP client failure surfaced from an
	// external dependency.
	KindNetwork
	// KindUnauthorized is an authentication/authorization denial.
	KindUnauthorized
	// KindInvalidInput is an input validation failure below the
	// protocol layer.
	KindInvalidInput
	// KindSchema is a JSON Schema validation failure.
	KindSchema
	// KindSerialization is a codec failure.
	KindSerialization
	// KindInternal is a bug that should not happen; callers MUST
	// sanitize the message before surfacing it.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindTool:
		return "tool"
	case KindPrompt:
		return "prompt"
	case KindResource:
		return "resource"
	case KindContext:
		return "context"
	case KindTransport:
		return "transport"
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidInput:
		return "invalid_input"
	case KindSchema:
		return "schema"
	case KindSerialization:
		return "serialization"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// JSON-RPC 2.0 reserved error codes, per spec.md §7.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// GenericInternalMessage is the fixed, non-leaking message surfaced for
// unexpected internal failures; the real cause is only ever logged.
const GenericInternalMessage = "An error occurred. Please try again."

// McpError is the one structured, tagged error type in this module;
// every other internal error is a plain wrapped Go error assembled into
// an McpError at the boundary where a JSON-RPC code is required.
type McpError struct {
	Kind    ErrorKind
	Code    int // meaningful when Kind == KindProtocol
	Message string
	Data    any
	Err     error
}

func (e *McpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *McpError) Unwrap() error { return e.Err }

// NewProtocolError builds a KindProtocol McpError carrying a JSON-RPC code.
func NewProtocolError(code int, message string) *McpError {
	return &McpError{Kind: KindProtocol, Code: code, Message: message}
}

// InvalidParams builds a -32602 McpError naming the offending field or
// reason, per spec.md §7.
func InvalidParams(message string) *McpError {
	return NewProtocolError(CodeInvalidParams, message)
}

// MethodNotFound builds a -32601 McpError for an unknown method.
func MethodNotFound(method string) *McpError {
	return NewProtocolError(CodeMethodNotFound, fmt.Sprintf("Method not found: %s", method))
}

// InvalidRequest builds a -32600 McpError.
func InvalidRequest(message string) *McpError {
	return NewProtocolError(CodeInvalidRequest, message)
}

// ParseError builds a -32700 McpError.
func ParseError(message string) *McpError {
	return NewProtocolError(CodeParseError, message)
}

// InternalError builds a -32603 McpError with the fixed generic message;
// detail is carried only in Err/Data for logging, never in Message.
func InternalError(detail error) *McpError {
	return &McpError{Kind: KindInternal, Code: CodeInternalError, Message: GenericInternalMessage, Err: detail}
}

// WrapTool builds a KindTool McpError from a handler-returned error.
func WrapTool(err error) *McpError {
	return &McpError{Kind: KindTool, Message: err.Error(), Err: err}
}

// Unauthorized builds a KindUnauthorized McpError.
func Unauthorized(message string) *McpError {
	return &McpError{Kind: KindUnauthorized, Message: message}
}

// ErrorObject is the JSON-RPC wire shape for an error response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ToErrorObject maps an McpError to its wire representation. Non-protocol
// kinds are surfaced with CodeInternalError unless the caller has
// assigned a more specific Code.
func (e *McpError) ToErrorObject() ErrorObject {
	code := e.Code
	if code == 0 {
		code = CodeInternalError
	}
	return ErrorObject{Code: code, Message: e.Message, Data: e.Data}
}

// AsMcpError converts an arbitrary error into an *McpError, wrapping it
// as KindInternal (with the generic message) if it is not already one.
func AsMcpError(err error) *McpError {
	if err == nil {
		return nil
	}
	var me *McpError
	if asMcpError(err, &me) {
		return me
	}
	return InternalError(err)
}

func asMcpError(err error, target **McpError) bool {
	for err != nil {
		if me, ok := err.(*McpError); ok {
			*target = me
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
