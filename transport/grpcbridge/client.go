package grpcbridge

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/turbomcp/turbomcp-go/transport"
)

// Client is the dialing side of the gRPC bridge.
type Client struct {
	transport.StateHolder
	metrics transport.Metrics

	cfg Config

	conn   *grpc.ClientConn
	stream grpc.ClientStream

	inbound  chan transport.Message
	outbound chan transport.Message
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewClient constructs a gRPC bridge client from cfg.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		inbound:  make(chan transport.Message, 1000),
		outbound: make(chan transport.Message, 100),
		done:     make(chan struct{}),
	}
}

var _ transport.Transport = (*Client)(nil)

// Kind implements transport.Transport.
func (c *Client) Kind() transport.Kind { return "grpcbridge" }

// Capabilities implements transport.Transport.
func (c *Client) Capabilities() transport.Capabilities {
	return transport.Capabilities{SupportsBidirectional: true, SupportsStreaming: true, MaxMessageSize: c.cfg.MaxMessageSize}
}

// State implements transport.Transport.
func (c *Client) State() transport.State { return c.Load() }

// Metrics implements transport.Transport.
func (c *Client) Metrics() transport.Snapshot { return c.metrics.Snapshot() }

// Endpoint implements transport.Transport.
func (c *Client) Endpoint() string { return "grpc://" + c.cfg.DialAddr }

// Connect implements transport.Transport: dials the server and opens
// the one bidirectional stream.
func (c *Client) Connect(ctx context.Context) error {
	c.Store(transport.StateConnecting)

	conn, err := grpc.NewClient(c.cfg.DialAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		c.Fail(err.Error())
		return err
	}
	c.conn = conn

	stream, err := conn.NewStream(ctx, &bridgeServiceDesc.Streams[0], streamMethod)
	if err != nil {
		c.Fail(err.Error())
		return err
	}
	c.stream = stream

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		_ = recvLoop(ctx, stream, c.cfg.Codec, &c.metrics, c.inbound, c.done)
	}()
	go func() {
		defer c.wg.Done()
		_ = sendLoop(stream, c.cfg.Codec, &c.metrics, c.outbound, c.done)
	}()

	c.Store(transport.StateConnected)
	return nil
}

// Send implements transport.Transport.
func (c *Client) Send(_ context.Context, msg transport.Message) error {
	if c.Load() != transport.StateConnected {
		return transport.ErrNotConnected
	}
	if len(msg.Payload) > c.cfg.MaxMessageSize {
		return &transport.ErrMessageTooLarge{Size: len(msg.Payload), Max: c.cfg.MaxMessageSize}
	}
	select {
	case c.outbound <- msg:
		return nil
	default:
		return nil
	}
}

// Receive implements transport.Transport.
func (c *Client) Receive(ctx context.Context) (*transport.Message, error) {
	select {
	case msg, ok := <-c.inbound:
		if !ok {
			return nil, nil
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, nil
	}
}

// Disconnect implements transport.Transport: idempotent graceful stop.
func (c *Client) Disconnect(_ context.Context) error {
	if c.Load() == transport.StateDisconnected {
		return nil
	}
	c.Store(transport.StateDisconnecting)
	close(c.done)

	if cs, ok := c.stream.(interface{ CloseSend() error }); ok {
		_ = cs.CloseSend()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.wg.Wait()

	c.Store(transport.StateDisconnected)
	return nil
}
