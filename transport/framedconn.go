package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/wire"
)

// outboundQueueSize is the per-connection outbound channel capacity for
// TCP/Unix socket server connections, per spec.md §4.2.3.
const outboundQueueSize = 100

// inboundQueueSize is the shared inbound channel capacity feeding a
// TCP/Unix socket listener's Receive loop, per spec.md §4.2.3.
const inboundQueueSize = 1000

// framedConn wraps one net.Conn with the newline-delimited JSON framing
// shared by TCP and Unix socket transports: a reader goroutine feeding a
// shared inbound channel, and a writer goroutine draining a bounded
// per-connection outbound channel with non-blocking try-send semantics.
type framedConn struct {
	conn           net.Conn
	codec          wire.Codec
	maxMessageSize int

	outbound chan Message
	closeCh  chan struct{}
	closeMu  sync.Mutex
	closed   bool

	metrics *Metrics
}

func newFramedConn(conn net.Conn, codec wire.Codec, maxMessageSize int, metrics *Metrics) *framedConn {
	return &framedConn{
		conn:           conn,
		codec:          codec,
		maxMessageSize: maxMessageSize,
		outbound:       make(chan Message, outboundQueueSize),
		closeCh:        make(chan struct{}),
		metrics:        metrics,
	}
}

// readLoop decodes frames from the connection into inbound until EOF,
// error, or the connection is closed. The oversize check happens before
// decode, matching the "validated size before parsing" invariant.
func (c *framedConn) readLoop(ctx context.Context, inbound chan<- Message, onErr func(error)) {
	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := trimNewline(line)
			if len(trimmed) > c.maxMessageSize {
				onErr(&ErrMessageTooLarge{Size: len(trimmed), Max: c.maxMessageSize})
				return
			}
			if len(trimmed) > 0 {
				var env wireEnvelope
				if decErr := c.codec.Decode(trimmed, &env); decErr != nil {
					onErr(decErr)
					return
				}
				msg := Message{ID: env.ID, Payload: env.Payload, Metadata: env.Metadata}
				c.metrics.RecordReceive(len(line))
				select {
				case inbound <- msg:
				case <-c.closeCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				onErr(err)
			}
			return
		}
	}
}

// writeLoop drains outbound non-blockingly onto the wire: a full
// outbound queue is never produced by trySend (the caller observes
// backpressure there), so this loop only ever blocks on the network
// write itself.
func (c *framedConn) writeLoop() {
	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			raw, err := c.codec.Encode(wireEnvelope{ID: msg.ID, Payload: msg.Payload, Metadata: msg.Metadata})
			if err != nil {
				corelog.Warn(context.Background(), "framed connection encode failed", "error", err.Error())
				continue
			}
			if _, err := c.conn.Write(append(raw, '\n')); err != nil {
				corelog.Warn(context.Background(), "framed connection write failed", "error", err.Error())
				c.close()
				return
			}
			c.metrics.RecordSend(len(raw) + 1)
		case <-c.closeCh:
			return
		}
	}
}

// trySend enqueues msg without blocking. A full queue drops the message
// (logged) rather than applying backpressure to the caller, per
// spec.md §4.2.3's explicit "drop message (log warn) when full" policy.
func (c *framedConn) trySend(msg Message) {
	select {
	case c.outbound <- msg:
	default:
		corelog.Warn(context.Background(), "framed connection outbound queue full, dropping message", "id", msg.ID.String())
	}
}

func (c *framedConn) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.closeCh)
	_ = c.conn.Close()
}
