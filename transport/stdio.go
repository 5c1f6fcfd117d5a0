package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/wire"
)

// Stdio is the core MCP transport: newline-delimited JSON read from an
// input stream and written to an output stream (stdin/stdout by
// default). Bidirectional, streaming. A malformed length or oversized
// line is fatal: the connection ends per spec.md §4.2.1.
type Stdio struct {
	StateHolder
	metrics Metrics

	in  io.Reader
	out io.Writer

	codec          wire.Codec
	maxMessageSize int

	writeMu sync.Mutex
	decoder *wire.LineDecoder
	reader  *bufio.Reader

	inbound chan Message
	errs    chan error
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewStdio constructs a Stdio transport over the given reader/writer.
// codec defaults to wire.JSONCodec{} when nil. maxMessageSize defaults
// to DefaultMaxMessageSize when 0.
func NewStdio(in io.Reader, out io.Writer, codec wire.Codec, maxMessageSize int) *Stdio {
	if codec == nil {
		codec = wire.JSONCodec{}
	}
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Stdio{
		in:             in,
		out:            out,
		codec:          codec,
		maxMessageSize: maxMessageSize,
		reader:         bufio.NewReader(in),
		inbound:        make(chan Message, 1000),
		errs:           make(chan error, 1),
		done:           make(chan struct{}),
	}
}

var _ Transport = (*Stdio)(nil)

// Kind implements Transport.
func (s *Stdio) Kind() Kind { return KindStdio }

// Capabilities implements Transport.
func (s *Stdio) Capabilities() Capabilities {
	return Capabilities{SupportsBidirectional: true, SupportsStreaming: true, MaxMessageSize: s.maxMessageSize}
}

// State implements Transport.
func (s *Stdio) State() State { return s.Load() }

// Endpoint implements Transport.
func (s *Stdio) Endpoint() string { return "stdio://" }

// Metrics implements Transport.
func (s *Stdio) Metrics() Snapshot { return s.metrics.Snapshot() }

// Connect implements Transport: starts the background read loop.
func (s *Stdio) Connect(_ context.Context) error {
	if s.Load() == StateConnected {
		return nil
	}
	s.Store(StateConnecting)
	s.decoder = wire.NewLineDecoder(context.Background(), s.codec, s.maxMessageSize)
	s.wg.Add(1)
	go s.readLoop()
	s.Store(StateConnected)
	return nil
}

func (s *Stdio) readLoop() {
	defer s.wg.Done()
	defer close(s.inbound)

	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			if len(line) > s.maxMessageSize {
				s.Fail(fmt.Sprintf("oversized line: %d bytes", len(line)))
				select {
				case s.errs <- &ErrMessageTooLarge{Size: len(line), Max: s.maxMessageSize}:
				default:
				}
				return
			}
			var env wireEnvelope
			if decErr := s.codec.Decode(trimNewline(line), &env); decErr != nil {
				s.Fail("malformed line: " + decErr.Error())
				select {
				case s.errs <- decErr:
				default:
				}
				return
			}
			msg := Message{ID: env.ID, Payload: env.Payload, Metadata: env.Metadata}
			s.metrics.RecordReceive(len(line))
			select {
			case s.inbound <- msg:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				s.Fail(err.Error())
			}
			return
		}
	}
}

// wireEnvelope is the JSON shape a Message round-trips through on
// framed, line-delimited transports.
type wireEnvelope struct {
	ID       wire.MessageID    `json:"id"`
	Payload  []byte            `json:"payload"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// Send implements Transport: writes one newline-terminated frame.
func (s *Stdio) Send(_ context.Context, msg Message) error {
	if s.Load() != StateConnected {
		return ErrNotConnected
	}
	if len(msg.Payload) > s.maxMessageSize {
		return &ErrMessageTooLarge{Size: len(msg.Payload), Max: s.maxMessageSize}
	}
	raw, err := s.codec.Encode(wireEnvelope{ID: msg.ID, Payload: msg.Payload, Metadata: msg.Metadata})
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(raw, '\n')); err != nil {
		s.Fail(err.Error())
		return err
	}
	s.metrics.RecordSend(len(raw) + 1)
	return nil
}

// Receive implements Transport. (nil, nil) signals orderly EOF.
func (s *Stdio) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-s.inbound:
		if !ok {
			select {
			case err := <-s.errs:
				return nil, err
			default:
				return nil, nil
			}
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, nil
	}
}

// Disconnect implements Transport: idempotent, graceful.
func (s *Stdio) Disconnect(_ context.Context) error {
	if s.Load() == StateDisconnected {
		return nil
	}
	s.Store(StateDisconnecting)
	close(s.done)
	s.wg.Wait()
	s.Store(StateDisconnected)
	corelog.Debug(context.Background(), "stdio transport disconnected")
	return nil
}
