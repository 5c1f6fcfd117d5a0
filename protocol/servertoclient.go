package protocol

import (
	"context"
	"encoding/json"
	"time"
)

// ElicitAction is the user's response to a server-initiated elicitation.
type ElicitAction string

const (
	ElicitAccept  ElicitAction = "accept"
	ElicitDecline ElicitAction = "decline"
	ElicitCancel  ElicitAction = "cancel"
)

// CreateMessageParams requests the client run one sampling turn.
type CreateMessageParams struct {
	Messages    []PromptMessage `json:"messages"`
	MaxTokens   int             `json:"maxTokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	SystemPrompt string         `json:"systemPrompt,omitempty"`
}

// CreateMessageResult is the client's sampling response.
type CreateMessageResult struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
	Model   string  `json:"model,omitempty"`
}

// ElicitRequest asks the client to collect structured input from the user.
type ElicitRequest struct {
	Message string          `json:"message"`
	Schema  json.RawMessage `json:"requestedSchema,omitempty"`
}

// ElicitResult is the client's response to an ElicitRequest.
type ElicitResult struct {
	Action  ElicitAction    `json:"action"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Root is one entry returned by ListRoots.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsResult is the client's filesystem-root listing.
type ListRootsResult struct {
	Roots []Root `json:"roots"`
}

// PingResult is the client's reply to a liveness ping.
type PingResult struct{}

// ServerNotification is a fire-and-forget, server-initiated message.
type ServerNotification struct {
	Method string
	Params any
}

// ServerToClient exposes the server-initiated operations a handler may
// invoke through a RequestContext. It is nil on unidirectional
// transports. Implementations allocate a correlator entry per call,
// send the frame, and wait with the supplied timeout; every exit path
// (success, timeout, cancellation) removes the correlator entry.
type ServerToClient interface {
	SendNotification(ctx context.Context, n ServerNotification) error
	CreateMessage(ctx context.Context, params CreateMessageParams, timeout time.Duration) (CreateMessageResult, error)
	Elicit(ctx context.Context, req ElicitRequest, timeout time.Duration) (ElicitResult, error)
	ListRoots(ctx context.Context, timeout time.Duration) (ListRootsResult, error)
	Ping(ctx context.Context, timeout time.Duration) (PingResult, error)
}
