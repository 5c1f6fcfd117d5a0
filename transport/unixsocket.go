package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/wire"
)

// systemDirPrefixes are rejected as Unix socket paths per spec.md
// §4.2.4/§4.7: a socket must never be placed under one of these.
var systemDirPrefixes = []string{"/proc", "/sys", "/dev", "/etc"}

// ErrSystemSocketPath is returned when a configured socket path falls
// under a disallowed system directory.
type ErrSystemSocketPath struct{ Path string }

func (e *ErrSystemSocketPath) Error() string {
	return fmt.Sprintf("transport: refusing unix socket path %q under a system directory", e.Path)
}

func validateSocketPath(path string) error {
	for _, prefix := range systemDirPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return &ErrSystemSocketPath{Path: path}
		}
	}
	return nil
}

// UnixSocketConfig configures a Unix domain socket transport in either
// server (ListenPath set) or client (DialPath set) mode.
type UnixSocketConfig struct {
	ListenPath string
	DialPath   string

	Codec          wire.Codec
	MaxMessageSize int
}

// UnixSocket has identical framing and concurrency model to TCP,
// substituting a filesystem path for endpoint, per spec.md §4.2.4.
type UnixSocket struct {
	StateHolder
	metrics Metrics

	cfg   UnixSocketConfig
	codec wire.Codec

	listener net.Listener
	dialConn net.Conn

	mu    sync.Mutex
	conns map[*framedConn]struct{}

	inbound chan Message
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewUnixSocket constructs a UnixSocket transport from cfg.
func NewUnixSocket(cfg UnixSocketConfig) *UnixSocket {
	codec := cfg.Codec
	if codec == nil {
		codec = wire.JSONCodec{}
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	return &UnixSocket{
		cfg:     cfg,
		codec:   codec,
		conns:   make(map[*framedConn]struct{}),
		inbound: make(chan Message, inboundQueueSize),
		done:    make(chan struct{}),
	}
}

var _ Transport = (*UnixSocket)(nil)

// Kind implements Transport.
func (u *UnixSocket) Kind() Kind { return KindUnixSocket }

// Capabilities implements Transport.
func (u *UnixSocket) Capabilities() Capabilities {
	return Capabilities{SupportsBidirectional: true, SupportsStreaming: true, MaxMessageSize: u.cfg.MaxMessageSize}
}

// State implements Transport.
func (u *UnixSocket) State() State { return u.Load() }

// Metrics implements Transport.
func (u *UnixSocket) Metrics() Snapshot { return u.metrics.Snapshot() }

// Endpoint implements Transport.
func (u *UnixSocket) Endpoint() string {
	if u.cfg.ListenPath != "" {
		return "unix://" + u.cfg.ListenPath
	}
	return "unix://" + u.cfg.DialPath
}

// Connect implements Transport.
func (u *UnixSocket) Connect(ctx context.Context) error {
	u.Store(StateConnecting)

	if u.cfg.ListenPath != "" {
		if err := validateSocketPath(u.cfg.ListenPath); err != nil {
			u.Fail(err.Error())
			return err
		}
		_ = os.Remove(u.cfg.ListenPath)
		ln, err := net.Listen("unix", u.cfg.ListenPath)
		if err != nil {
			u.Fail(err.Error())
			return err
		}
		u.listener = ln
		u.wg.Add(1)
		go u.acceptLoop()
	} else {
		if err := validateSocketPath(u.cfg.DialPath); err != nil {
			u.Fail(err.Error())
			return err
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", u.cfg.DialPath)
		if err != nil {
			u.Fail(err.Error())
			return err
		}
		u.dialConn = conn
		fc := newFramedConn(conn, u.codec, u.cfg.MaxMessageSize, &u.metrics)
		u.addConn(fc)
		u.wg.Add(2)
		go func() { defer u.wg.Done(); fc.readLoop(ctx, u.inbound, u.handleConnErr(fc)) }()
		go func() { defer u.wg.Done(); fc.writeLoop() }()
	}

	u.Store(StateConnected)
	return nil
}

func (u *UnixSocket) acceptLoop() {
	defer u.wg.Done()
	for {
		conn, err := u.listener.Accept()
		if err != nil {
			select {
			case <-u.done:
				return
			default:
				corelog.Warn(context.Background(), "unix socket accept failed", "error", err.Error())
				return
			}
		}
		fc := newFramedConn(conn, u.codec, u.cfg.MaxMessageSize, &u.metrics)
		u.addConn(fc)
		u.wg.Add(2)
		go func() { defer u.wg.Done(); fc.readLoop(context.Background(), u.inbound, u.handleConnErr(fc)) }()
		go func() { defer u.wg.Done(); fc.writeLoop() }()
	}
}

func (u *UnixSocket) handleConnErr(fc *framedConn) func(error) {
	return func(err error) {
		corelog.Warn(context.Background(), "unix socket connection error", "error", err.Error())
		u.removeConn(fc)
	}
}

func (u *UnixSocket) addConn(fc *framedConn) {
	u.mu.Lock()
	u.conns[fc] = struct{}{}
	u.mu.Unlock()
}

func (u *UnixSocket) removeConn(fc *framedConn) {
	u.mu.Lock()
	delete(u.conns, fc)
	u.mu.Unlock()
	fc.close()
}

// Send implements Transport; broadcasts in server mode.
func (u *UnixSocket) Send(_ context.Context, msg Message) error {
	if u.Load() != StateConnected {
		return ErrNotConnected
	}
	if len(msg.Payload) > u.cfg.MaxMessageSize {
		return &ErrMessageTooLarge{Size: len(msg.Payload), Max: u.cfg.MaxMessageSize}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.conns) == 0 {
		return ErrNotConnected
	}
	for fc := range u.conns {
		fc.trySend(msg)
	}
	return nil
}

// Receive implements Transport.
func (u *UnixSocket) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-u.inbound:
		if !ok {
			return nil, nil
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-u.done:
		return nil, nil
	}
}

// Disconnect implements Transport: idempotent, graceful; removes the
// listening socket file in server mode.
func (u *UnixSocket) Disconnect(_ context.Context) error {
	if u.Load() == StateDisconnected {
		return nil
	}
	u.Store(StateDisconnecting)
	close(u.done)

	if u.listener != nil {
		_ = u.listener.Close()
		_ = os.Remove(u.cfg.ListenPath)
	}
	u.mu.Lock()
	for fc := range u.conns {
		fc.close()
	}
	u.mu.Unlock()

	u.wg.Wait()
	u.Store(StateDisconnected)
	return nil
}
