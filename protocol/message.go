package protocol

import (
	"encoding/json"

	"github.com/turbomcp/turbomcp-go/wire"
)

// Request is a decoded JSON-RPC request or notification. The two are
// distinguished only by ID.IsNotification(): wire framing never omits
// the field in this module's own encoding, so a notification carries an
// explicit JSON `null` id.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      wire.MessageID  `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response: exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      wire.MessageID  `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// NewResultResponse builds a success Response, marshaling result into
// the wire Result field.
func NewResultResponse(id wire.MessageID, result any) (Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Response{}, err
	}
	return Response{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error Response from an McpError.
func NewErrorResponse(id wire.MessageID, err *McpError) Response {
	obj := err.ToErrorObject()
	return Response{JSONRPC: "2.0", ID: id, Error: &obj}
}
