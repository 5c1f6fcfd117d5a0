package grpcbridge

import (
	"context"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/transport"
)

// Server is the listening side of the gRPC bridge. It accepts exactly
// one active client stream at a time, per the "minimal" scope of this
// bridge — enough to expose a handler registry to one remote runtime
// without standing up a full multi-client gRPC service.
type Server struct {
	transport.StateHolder
	metrics transport.Metrics

	cfg Config

	listener   net.Listener
	grpcServer *grpc.Server

	mu           sync.Mutex
	activeStream grpc.ServerStream

	inbound  chan transport.Message
	outbound chan transport.Message
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewServer constructs a gRPC bridge server from cfg.
func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:      cfg,
		inbound:  make(chan transport.Message, 1000),
		outbound: make(chan transport.Message, 100),
		done:     make(chan struct{}),
	}
}

var _ transport.Transport = (*Server)(nil)
var _ bridgeServer = (*Server)(nil)

// Kind implements transport.Transport.
func (s *Server) Kind() transport.Kind { return "grpcbridge" }

// Capabilities implements transport.Transport.
func (s *Server) Capabilities() transport.Capabilities {
	return transport.Capabilities{SupportsBidirectional: true, SupportsStreaming: true, MaxMessageSize: s.cfg.MaxMessageSize}
}

// State implements transport.Transport.
func (s *Server) State() transport.State { return s.Load() }

// Metrics implements transport.Transport.
func (s *Server) Metrics() transport.Snapshot { return s.metrics.Snapshot() }

// Endpoint implements transport.Transport.
func (s *Server) Endpoint() string {
	if s.listener == nil {
		return "grpc://" + s.cfg.ListenAddr
	}
	return "grpc://" + s.listener.Addr().String()
}

// Addr returns the bound listener address; only valid after Connect.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connect implements transport.Transport: binds the listener and
// starts serving the bridge service.
func (s *Server) Connect(_ context.Context) error {
	s.Store(transport.StateConnecting)

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.Fail(err.Error())
		return err
	}
	s.listener = ln

	s.grpcServer = grpc.NewServer()
	s.grpcServer.RegisterService(&bridgeServiceDesc, s)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.grpcServer.Serve(ln); err != nil {
			corelog.Warn(context.Background(), "grpcbridge server stopped", "error", err.Error())
		}
	}()

	s.Store(transport.StateConnected)
	return nil
}

// handleStream implements bridgeServer; invoked by grpc-go once per
// accepted stream.
func (s *Server) handleStream(stream grpc.ServerStream) error {
	s.mu.Lock()
	if s.activeStream != nil {
		s.mu.Unlock()
		return status.Error(codes.ResourceExhausted, "grpcbridge: a stream is already active")
	}
	s.activeStream = stream
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.activeStream = nil
		s.mu.Unlock()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- recvLoop(stream.Context(), stream, s.cfg.Codec, &s.metrics, s.inbound, s.done) }()
	go func() { errCh <- sendLoop(stream, s.cfg.Codec, &s.metrics, s.outbound, s.done) }()

	select {
	case err := <-errCh:
		return err
	case <-s.done:
		return nil
	}
}

// Send implements transport.Transport.
func (s *Server) Send(_ context.Context, msg transport.Message) error {
	if s.Load() != transport.StateConnected {
		return transport.ErrNotConnected
	}
	if len(msg.Payload) > s.cfg.MaxMessageSize {
		return &transport.ErrMessageTooLarge{Size: len(msg.Payload), Max: s.cfg.MaxMessageSize}
	}
	select {
	case s.outbound <- msg:
		return nil
	default:
		corelog.Warn(context.Background(), "grpcbridge dropped outbound message: queue full")
		return nil
	}
}

// Receive implements transport.Transport.
func (s *Server) Receive(ctx context.Context) (*transport.Message, error) {
	select {
	case msg, ok := <-s.inbound:
		if !ok {
			return nil, nil
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, nil
	}
}

// Disconnect implements transport.Transport: idempotent graceful stop.
func (s *Server) Disconnect(_ context.Context) error {
	if s.Load() == transport.StateDisconnected {
		return nil
	}
	s.Store(transport.StateDisconnecting)
	close(s.done)

	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	s.wg.Wait()

	s.Store(transport.StateDisconnected)
	return nil
}
