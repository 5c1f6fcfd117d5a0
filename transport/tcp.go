package transport

import (
	"context"
	"net"
	"sync"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/wire"
)

// TCPConfig configures a TCP transport in either server (ListenAddr set)
// or client (DialAddr set) mode, per spec.md §4.2.3.
type TCPConfig struct {
	ListenAddr string
	DialAddr   string

	Codec          wire.Codec
	MaxMessageSize int
}

// TCP implements the TCP transport: server mode accepts connections and
// spawns a reader/writer pair per connection sharing a single inbound
// channel; client mode dials a single remote connection. Framing is the
// same newline-delimited JSON used by Stdio.
type TCP struct {
	StateHolder
	metrics Metrics

	cfg   TCPConfig
	codec wire.Codec

	listener net.Listener
	dialConn net.Conn

	mu    sync.Mutex
	conns map[*framedConn]struct{}

	inbound chan Message
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewTCP constructs a TCP transport from cfg. Exactly one of
// ListenAddr/DialAddr should be set.
func NewTCP(cfg TCPConfig) *TCP {
	codec := cfg.Codec
	if codec == nil {
		codec = wire.JSONCodec{}
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	return &TCP{
		cfg:     cfg,
		codec:   codec,
		conns:   make(map[*framedConn]struct{}),
		inbound: make(chan Message, inboundQueueSize),
		done:    make(chan struct{}),
	}
}

var _ Transport = (*TCP)(nil)

// Kind implements Transport.
func (t *TCP) Kind() Kind { return KindTCP }

// Capabilities implements Transport.
func (t *TCP) Capabilities() Capabilities {
	return Capabilities{SupportsBidirectional: true, SupportsStreaming: true, MaxMessageSize: t.cfg.MaxMessageSize}
}

// State implements Transport.
func (t *TCP) State() State { return t.Load() }

// Metrics implements Transport.
func (t *TCP) Metrics() Snapshot { return t.metrics.Snapshot() }

// Endpoint implements Transport.
func (t *TCP) Endpoint() string {
	if t.listener != nil {
		return "tcp://" + t.listener.Addr().String()
	}
	if t.dialConn != nil {
		return "tcp://" + t.dialConn.RemoteAddr().String()
	}
	return "tcp://"
}

func (t *TCP) isServer() bool { return t.cfg.ListenAddr != "" }

// Connect implements Transport.
func (t *TCP) Connect(ctx context.Context) error {
	t.Store(StateConnecting)
	if t.isServer() {
		ln, err := net.Listen("tcp", t.cfg.ListenAddr)
		if err != nil {
			t.Fail(err.Error())
			return err
		}
		t.listener = ln
		t.wg.Add(1)
		go t.acceptLoop()
	} else {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", t.cfg.DialAddr)
		if err != nil {
			t.Fail(err.Error())
			return err
		}
		t.dialConn = conn
		fc := newFramedConn(conn, t.codec, t.cfg.MaxMessageSize, &t.metrics)
		t.addConn(fc)
		t.wg.Add(2)
		go func() { defer t.wg.Done(); fc.readLoop(ctx, t.inbound, t.handleConnErr(fc)) }()
		go func() { defer t.wg.Done(); fc.writeLoop() }()
	}
	t.Store(StateConnected)
	return nil
}

func (t *TCP) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				corelog.Warn(context.Background(), "tcp accept failed", "error", err.Error())
				return
			}
		}
		fc := newFramedConn(conn, t.codec, t.cfg.MaxMessageSize, &t.metrics)
		t.addConn(fc)
		t.wg.Add(2)
		go func() { defer t.wg.Done(); fc.readLoop(context.Background(), t.inbound, t.handleConnErr(fc)) }()
		go func() { defer t.wg.Done(); fc.writeLoop() }()
	}
}

func (t *TCP) handleConnErr(fc *framedConn) func(error) {
	return func(err error) {
		corelog.Warn(context.Background(), "tcp connection error", "error", err.Error())
		t.removeConn(fc)
	}
}

func (t *TCP) addConn(fc *framedConn) {
	t.mu.Lock()
	t.conns[fc] = struct{}{}
	t.mu.Unlock()
}

func (t *TCP) removeConn(fc *framedConn) {
	t.mu.Lock()
	delete(t.conns, fc)
	t.mu.Unlock()
	fc.close()
}

// Send implements Transport. In server mode, send broadcasts to every
// currently active connection, per spec.md §4.2.3.
func (t *TCP) Send(_ context.Context, msg Message) error {
	if t.Load() != StateConnected {
		return ErrNotConnected
	}
	if len(msg.Payload) > t.cfg.MaxMessageSize {
		return &ErrMessageTooLarge{Size: len(msg.Payload), Max: t.cfg.MaxMessageSize}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return ErrNotConnected
	}
	for fc := range t.conns {
		fc.trySend(msg)
	}
	return nil
}

// Receive implements Transport.
func (t *TCP) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-t.inbound:
		if !ok {
			return nil, nil
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, nil
	}
}

// Disconnect implements Transport: idempotent, graceful.
func (t *TCP) Disconnect(_ context.Context) error {
	if t.Load() == StateDisconnected {
		return nil
	}
	t.Store(StateDisconnecting)
	close(t.done)

	if t.listener != nil {
		_ = t.listener.Close()
	}
	t.mu.Lock()
	for fc := range t.conns {
		fc.close()
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.Store(StateDisconnected)
	return nil
}
