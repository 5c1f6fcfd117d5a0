package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/turbomcp/turbomcp-go/protocol"
)

// jsonrpcOutbound is the shape of a server-initiated JSON-RPC request or
// notification sent over the WebSocket connection.
type jsonrpcOutbound struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func (w *WebSocket) sendFrame(ctx context.Context, frame jsonrpcOutbound) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		w.Fail(err.Error())
		return err
	}
	w.metrics.RecordSend(len(data))
	return nil
}

// SendNotification implements protocol.ServerToClient.
func (w *WebSocket) SendNotification(ctx context.Context, n protocol.ServerNotification) error {
	return w.sendFrame(ctx, jsonrpcOutbound{JSONRPC: "2.0", Method: n.Method, Params: n.Params})
}

// CreateMessage implements protocol.ServerToClient: a sampling request
// routed through the general correlation registry.
func (w *WebSocket) CreateMessage(ctx context.Context, params protocol.CreateMessageParams, timeout time.Duration) (protocol.CreateMessageResult, error) {
	id := uuid.NewString()
	raw, err := w.correlations.Await(ctx, id, timeout, func() error {
		return w.sendFrame(ctx, jsonrpcOutbound{JSONRPC: "2.0", ID: id, Method: "sampling/createMessage", Params: params})
	})
	var result protocol.CreateMessageResult
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("websocket: decode sampling/createMessage response: %w", err)
	}
	return result, nil
}

// Elicit implements protocol.ServerToClient: admission-capped, tracked
// separately so the timeout sweeper can resolve expired entries with
// action=cancel rather than a generic timeout error.
func (w *WebSocket) Elicit(ctx context.Context, req protocol.ElicitRequest, timeout time.Duration) (protocol.ElicitResult, error) {
	var result protocol.ElicitResult

	if int(w.elicitCount.Add(1)) > w.cfg.MaxConcurrentElicitations {
		w.elicitCount.Add(-1)
		return result, &protocol.McpError{Kind: protocol.KindTransport, Message: "elicitation capacity exceeded"}
	}
	defer w.elicitCount.Add(-1)

	id := uuid.NewString()
	deadline := time.Now().Add(timeout)
	w.elicitMu.Lock()
	w.elicitDeadlines[id] = deadline
	w.elicitMu.Unlock()
	defer func() {
		w.elicitMu.Lock()
		delete(w.elicitDeadlines, id)
		w.elicitMu.Unlock()
	}()

	raw, err := w.elicitations.Await(ctx, id, timeout, func() error {
		return w.sendFrame(ctx, jsonrpcOutbound{JSONRPC: "2.0", ID: id, Method: "elicitation/create", Params: req})
	})
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("websocket: decode elicitation/create response: %w", err)
	}
	return result, nil
}

// ListRoots implements protocol.ServerToClient.
func (w *WebSocket) ListRoots(ctx context.Context, timeout time.Duration) (protocol.ListRootsResult, error) {
	id := uuid.NewString()
	raw, err := w.pendingRoots.Await(ctx, id, timeout, func() error {
		return w.sendFrame(ctx, jsonrpcOutbound{JSONRPC: "2.0", ID: id, Method: "roots/list"})
	})
	var result protocol.ListRootsResult
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("websocket: decode roots/list response: %w", err)
	}
	return result, nil
}

// Ping implements protocol.ServerToClient: an application-level
// JSON-RPC ping, distinct from the transport-level WebSocket ping/pong
// keep-alive frames sent by the background keep-alive task.
func (w *WebSocket) Ping(ctx context.Context, timeout time.Duration) (protocol.PingResult, error) {
	id := uuid.NewString()
	raw, err := w.pendingPings.Await(ctx, id, timeout, func() error {
		return w.sendFrame(ctx, jsonrpcOutbound{JSONRPC: "2.0", ID: id, Method: "ping"})
	})
	var result protocol.PingResult
	if err != nil {
		return result, err
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &result)
	}
	return result, nil
}
