// Package transport defines the common Transport interface and the
// shared types every concrete transport (stdio, child process, TCP,
// Unix socket, HTTP+SSE, WebSocket) is built against, per spec.md §4.2.
package transport

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/turbomcp/turbomcp-go/wire"
)

// Kind identifies a concrete transport implementation.
type Kind string

const (
	KindStdio        Kind = "stdio"
	KindChildProcess Kind = "childprocess"
	KindTCP          Kind = "tcp"
	KindUnixSocket   Kind = "unixsocket"
	KindHTTPSSE      Kind = "httpsse"
	KindWebSocket    Kind = "websocket"
)

// State is a transport's single connection-lifecycle variable. All
// transitions funnel through it; observers read it atomically.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateHolder is an atomically-observed transport state variable,
// embedded by every concrete transport.
type StateHolder struct {
	v          atomic.Int32
	failReason atomic.Value // string
}

// Load returns the current state.
func (h *StateHolder) Load() State { return State(h.v.Load()) }

// Store sets the state unconditionally.
func (h *StateHolder) Store(s State) { h.v.Store(int32(s)) }

// Fail transitions to StateFailed, recording reason for FailReason.
func (h *StateHolder) Fail(reason string) {
	h.failReason.Store(reason)
	h.v.Store(int32(StateFailed))
}

// FailReason returns the reason passed to the most recent Fail call, or
// "" if the transport has never failed.
func (h *StateHolder) FailReason() string {
	v, _ := h.failReason.Load().(string)
	return v
}

// Capabilities describes what a transport instance supports.
type Capabilities struct {
	SupportsBidirectional bool
	SupportsStreaming     bool
	MaxMessageSize        int
}

// Metrics is an atomically-updated snapshot of transport traffic
// counters. Every concrete transport embeds *Metrics and updates it on
// the hot send/receive path without taking a lock.
type Metrics struct {
	BytesSent       atomic.Int64
	BytesReceived   atomic.Int64
	MessagesSent    atomic.Int64
	MessagesReceived atomic.Int64
}

// Snapshot is a point-in-time copy of Metrics' counters.
type Snapshot struct {
	BytesSent        int64
	BytesReceived    int64
	MessagesSent     int64
	MessagesReceived int64
}

// Snapshot reads all counters into a plain struct.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BytesSent:        m.BytesSent.Load(),
		BytesReceived:    m.BytesReceived.Load(),
		MessagesSent:     m.MessagesSent.Load(),
		MessagesReceived: m.MessagesReceived.Load(),
	}
}

// RecordSend updates the sent counters for one outgoing message of n bytes.
func (m *Metrics) RecordSend(n int) {
	m.BytesSent.Add(int64(n))
	m.MessagesSent.Add(1)
}

// RecordReceive updates the received counters for one incoming message
// of n bytes.
func (m *Metrics) RecordReceive(n int) {
	m.BytesReceived.Add(int64(n))
	m.MessagesReceived.Add(1)
}

// Message is an immutable framed message moving through a transport:
// constructed once on receive or before send, never mutated afterward.
type Message struct {
	ID       wire.MessageID
	Payload  []byte
	Metadata map[string]string
}

// DefaultMaxMessageSize is the default per-message size cap applied by
// every transport before a message is parsed, per spec.md §4.2.
const DefaultMaxMessageSize = 1 << 20 // 1 MiB

// ErrMessageTooLarge is returned by Send/decoding when a message exceeds
// the transport's configured MaxMessageSize.
type ErrMessageTooLarge struct {
	Size, Max int
}

func (e *ErrMessageTooLarge) Error() string {
	return fmt.Sprintf("transport: message size %d exceeds max %d", e.Size, e.Max)
}

// ErrNotConnected is returned by Send/Receive when called outside the
// Connected state.
var ErrNotConnected = fmt.Errorf("transport: not connected")

// ErrNotAvailable reports an operation a transport implementation
// declines to support. No transport in this module returns it; the
// WebSocket transport has no server mode at all.
var ErrNotAvailable = fmt.Errorf("transport: operation not available")

// Transport is the common interface implemented by every concrete
// transport in this package and its subpackages.
type Transport interface {
	Kind() Kind
	Capabilities() Capabilities
	State() State
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, msg Message) error
	// Receive returns the next message, or (nil, nil) on orderly EOF.
	Receive(ctx context.Context) (*Message, error)
	Metrics() Snapshot
	Endpoint() string
}
