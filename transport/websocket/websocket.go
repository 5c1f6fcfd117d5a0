package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/protocol"
	"github.com/turbomcp/turbomcp-go/transport"
	"github.com/turbomcp/turbomcp-go/wire"
)

// WebSocket is the client-mode, full-duplex WebSocket transport. A
// single connection carries ordinary JSON-RPC traffic (surfaced via
// Send/Receive) and server-initiated requests this process issues back
// to the remote peer (surfaced via the ServerToClient implementation in
// servertoclient.go), correlated by request id, per spec.md §4.2.6.
type WebSocket struct {
	transport.StateHolder
	metrics transport.Metrics

	cfg  Config
	conn *websocket.Conn

	sessionID string

	writeMu sync.Mutex

	inbound chan transport.Message
	done    chan struct{}

	reconnectEnabled atomic.Bool
	tasksWG          sync.WaitGroup
	readerWG         sync.WaitGroup

	// Correlation registries, per spec.md §4.2.6: one concurrent map
	// per request kind. An incoming response id is tried against each
	// in turn by resolveIncoming, since the id alone doesn't carry
	// which kind issued it.
	correlations     *protocol.Correlator
	elicitations     *protocol.Correlator
	pendingSamplings *protocol.Correlator
	pendingPings     *protocol.Correlator
	pendingRoots     *protocol.Correlator

	elicitMu        sync.Mutex
	elicitDeadlines map[string]time.Time
	elicitCount     atomic.Int32
}

// New constructs a client-mode WebSocket transport from cfg.
func New(cfg Config) *WebSocket {
	cfg = cfg.withDefaults()
	return &WebSocket{
		cfg:              cfg,
		inbound:          make(chan transport.Message, 1000),
		done:             make(chan struct{}),
		correlations:     protocol.NewCorrelator(),
		elicitations:     protocol.NewCorrelator(),
		pendingSamplings: protocol.NewCorrelator(),
		pendingPings:     protocol.NewCorrelator(),
		pendingRoots:     protocol.NewCorrelator(),
		elicitDeadlines:  make(map[string]time.Time),
	}
}

var _ transport.Transport = (*WebSocket)(nil)
var _ protocol.ServerToClient = (*WebSocket)(nil)

// Kind implements transport.Transport.
func (w *WebSocket) Kind() transport.Kind { return transport.KindWebSocket }

// Capabilities implements transport.Transport.
func (w *WebSocket) Capabilities() transport.Capabilities {
	return transport.Capabilities{SupportsBidirectional: true, SupportsStreaming: true, MaxMessageSize: w.cfg.MaxMessageSize}
}

// State implements transport.Transport.
func (w *WebSocket) State() transport.State { return w.Load() }

// Metrics implements transport.Transport.
func (w *WebSocket) Metrics() transport.Snapshot { return w.metrics.Snapshot() }

// Endpoint implements transport.Transport.
func (w *WebSocket) Endpoint() string { return w.cfg.DialURL }

// SessionID returns the UUID generated for this connection by Connect.
// Outgoing frames, including correlated requests, do not carry it.
func (w *WebSocket) SessionID() string { return w.sessionID }

// Connect implements transport.Transport: dials the remote peer and
// starts the reader loop plus background tasks.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.Store(transport.StateConnecting)
	w.sessionID = uuid.NewString()

	conn, _, err := websocket.Dial(ctx, w.cfg.DialURL, nil)
	if err != nil {
		w.Fail(err.Error())
		return err
	}
	conn.SetReadLimit(int64(w.cfg.MaxMessageSize))
	w.conn = conn

	w.reconnectEnabled.Store(w.cfg.Reconnect.Enabled)

	w.readerWG.Add(1)
	go w.readLoop()

	w.spawnBackgroundTasks()

	w.Store(transport.StateConnected)
	return nil
}

func (w *WebSocket) spawnBackgroundTasks() {
	w.tasksWG.Add(2)
	go w.keepAliveTask()
	go w.elicitationSweepTask()
}

func (w *WebSocket) keepAliveTask() {
	defer w.tasksWG.Done()
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.PingInterval)
			err := w.conn.Ping(ctx)
			cancel()
			if err != nil {
				corelog.Warn(context.Background(), "websocket keepalive ping failed", "error", err.Error())
				w.Fail(err.Error())
				return
			}
		}
	}
}

func (w *WebSocket) elicitationSweepTask() {
	defer w.tasksWG.Done()
	ticker := time.NewTicker(w.cfg.ElicitationSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.sweepExpiredElicitations()
		}
	}
}

func (w *WebSocket) sweepExpiredElicitations() {
	now := time.Now()
	var expired []string
	w.elicitMu.Lock()
	for id, deadline := range w.elicitDeadlines {
		if now.After(deadline) {
			expired = append(expired, id)
			delete(w.elicitDeadlines, id)
		}
	}
	w.elicitMu.Unlock()

	for _, id := range expired {
		// elicitCount is decremented once, by the deferred Add(-1) in the
		// waiting Elicit call that this Resolve unblocks.
		data, _ := json.Marshal(protocol.ElicitResult{Action: protocol.ElicitCancel})
		w.elicitations.Resolve(id, protocol.CorrelatedResponse{Result: data})
	}
}

// correlatorRegistries lists every per-kind correlation map, in the
// order an incoming response id is tried against them.
func (w *WebSocket) correlatorRegistries() []*protocol.Correlator {
	return []*protocol.Correlator{w.correlations, w.elicitations, w.pendingSamplings, w.pendingPings, w.pendingRoots}
}

// resolveIncoming routes a response frame's id to whichever correlator
// registry is currently waiting on it; the id itself doesn't carry its
// kind, so each registry is tried in turn (spec.md §4.2.6: "inspect id
// and route to the matching map").
func (w *WebSocket) resolveIncoming(id string, payload protocol.CorrelatedResponse) bool {
	for _, corr := range w.correlatorRegistries() {
		if corr.Resolve(id, payload) {
			return true
		}
	}
	return false
}

// peekEnvelope inspects a raw JSON-RPC message to determine whether it
// is a request/notification destined for the router, or a response to
// one of this transport's outstanding server-to-client requests.
type peekEnvelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
}

func (w *WebSocket) readLoop() {
	defer w.readerWG.Done()

	for {
		_, data, err := w.conn.Read(context.Background())
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			corelog.Warn(context.Background(), "websocket read failed", "error", err.Error())
			w.Fail(err.Error())
			if w.reconnectEnabled.Load() {
				go w.attemptReconnect()
			}
			return
		}
		w.metrics.RecordReceive(len(data))

		var peek peekEnvelope
		if err := json.Unmarshal(data, &peek); err != nil {
			corelog.Warn(context.Background(), "websocket dropped malformed frame", "error", err.Error())
			continue
		}

		if peek.Method != "" {
			id := wire.MessageID{}
			if len(peek.ID) > 0 {
				_ = json.Unmarshal(peek.ID, &id)
			}
			msg := transport.Message{ID: id, Payload: data}
			select {
			case w.inbound <- msg:
			case <-w.done:
				return
			}
			continue
		}

		if len(peek.ID) == 0 {
			corelog.Warn(context.Background(), "websocket dropped frame with neither method nor id")
			continue
		}
		var idStr string
		if err := json.Unmarshal(peek.ID, &idStr); err != nil {
			corelog.Warn(context.Background(), "websocket response id is not a string; ignoring", "id", string(peek.ID))
			continue
		}
		if !w.resolveIncoming(idStr, protocol.CorrelatedResponse{Result: data}) {
			corelog.Warn(context.Background(), "websocket response id has no waiter; ignoring", "id", idStr)
		}
	}
}

func (w *WebSocket) attemptReconnect() {
	delay := w.cfg.Reconnect.InitialDelay
	for attempt := 1; attempt <= w.cfg.Reconnect.MaxRetries; attempt++ {
		if !w.reconnectEnabled.Load() || w.Load() == transport.StateDisconnecting {
			return
		}
		time.Sleep(delay)
		if !w.reconnectEnabled.Load() || w.Load() == transport.StateDisconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			corelog.Info(context.Background(), "websocket reconnected", "attempt", attempt)
			return
		}
		corelog.Warn(context.Background(), "websocket reconnect attempt failed", "attempt", attempt, "error", err.Error())
		delay = w.cfg.Reconnect.nextDelay(delay)
	}
	corelog.Error(context.Background(), "websocket reconnect exhausted retries", "max_retries", w.cfg.Reconnect.MaxRetries)
}

// Send implements transport.Transport: writes one raw JSON-RPC message
// as a single WebSocket text frame.
func (w *WebSocket) Send(ctx context.Context, msg transport.Message) error {
	if w.Load() != transport.StateConnected {
		return transport.ErrNotConnected
	}
	if len(msg.Payload) > w.cfg.MaxMessageSize {
		return &transport.ErrMessageTooLarge{Size: len(msg.Payload), Max: w.cfg.MaxMessageSize}
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.Write(ctx, websocket.MessageText, msg.Payload); err != nil {
		w.Fail(err.Error())
		return err
	}
	w.metrics.RecordSend(len(msg.Payload))
	return nil
}

// Receive implements transport.Transport.
func (w *WebSocket) Receive(ctx context.Context) (*transport.Message, error) {
	select {
	case msg, ok := <-w.inbound:
		if !ok {
			return nil, nil
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.done:
		return nil, nil
	}
}

// awaitWithDeadline waits for wg with a bound, logging (not blocking
// forever) if the deadline elapses — step 5 of the graceful disconnect
// sequence in spec.md §4.2.6.
func awaitWithDeadline(wg *sync.WaitGroup, deadline time.Duration, label string) {
	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(deadline):
		corelog.Warn(context.Background(), "websocket background task did not stop within deadline", "task", label)
	}
}

// Disconnect implements transport.Transport, following the exact
// 6-step sequence mandated by spec.md §4.2.6.
func (w *WebSocket) Disconnect(_ context.Context) error {
	if w.Load() == transport.StateDisconnected {
		return nil
	}

	// 1. Permanently disable reconnect.
	w.reconnectEnabled.Store(false)

	// 2. State -> Disconnecting.
	w.Store(transport.StateDisconnecting)

	// 3. Broadcast shutdown to background tasks.
	close(w.done)

	// 4. Send close frame, flush.
	w.writeMu.Lock()
	if w.conn != nil {
		_ = w.conn.Close(websocket.StatusNormalClosure, "Client shutdown")
	}
	w.writeMu.Unlock()

	// 5. Await background tasks with a shared deadline.
	sharedDeadline := time.Now().Add(w.cfg.BackgroundTaskDeadline)
	awaitWithDeadline(&w.tasksWG, time.Until(sharedDeadline), "background-tasks")
	awaitWithDeadline(&w.readerWG, time.Until(sharedDeadline), "reader-loop")

	// 6. Clear pending correlators and move to Disconnected.
	w.drainCorrelators()
	w.Store(transport.StateDisconnected)
	return nil
}

func (w *WebSocket) drainCorrelators() {
	cancelErr := fmt.Errorf("transport: websocket disconnected")

	for _, id := range w.elicitations.PendingIDs() {
		data, _ := json.Marshal(protocol.ElicitResult{Action: protocol.ElicitCancel})
		w.elicitations.Resolve(id, protocol.CorrelatedResponse{Result: data})
	}
	for _, corr := range []*protocol.Correlator{w.correlations, w.pendingSamplings, w.pendingPings, w.pendingRoots} {
		for _, id := range corr.PendingIDs() {
			corr.Resolve(id, protocol.CorrelatedResponse{Err: cancelErr})
		}
	}
}
