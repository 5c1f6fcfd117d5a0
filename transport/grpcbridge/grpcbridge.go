// Package grpcbridge implements a minimal gRPC transport: one
// bidirectional-streaming RPC carrying the same opaque id/payload/
// metadata envelope the framed stream transports use, so two
// turbomcp-go processes can exchange JSON-RPC traffic over a gRPC
// channel instead of a raw socket. The service is described by a
// hand-built grpc.ServiceDesc rather than protoc-generated code: the
// wire payload is a single opaque byte blob
// (google.golang.org/protobuf/types/known/wrapperspb.BytesValue, a
// well-known type shipped with the protobuf runtime), so no
// project-specific .proto schema needs compiling.
package grpcbridge

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/turbomcp/turbomcp-go/transport"
	"github.com/turbomcp/turbomcp-go/wire"
)

const serviceName = "turbomcp.bridge.Bridge"
const streamName = "Bridge"
const streamMethod = "/" + serviceName + "/" + streamName

// bridgeServer is implemented by Server to receive the one active
// client stream via the hand-built ServiceDesc below.
type bridgeServer interface {
	handleStream(stream grpc.ServerStream) error
}

func bridgeStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(bridgeServer).handleStream(stream)
}

var bridgeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*bridgeServer)(nil),
	Methods:     nil,
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamName,
			Handler:       bridgeStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "grpcbridge",
}

// wireEnvelope mirrors the framing used by the other stream transports
// (transport/stdio.go, transport/framedconn.go): an opaque id, payload,
// and metadata, encoded with the configured wire.Codec and carried as
// the bytes of one wrapperspb.BytesValue per gRPC message.
type wireEnvelope struct {
	ID       wire.MessageID    `json:"id"`
	Payload  []byte            `json:"payload"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Config configures either a Server or a Client grpcbridge endpoint.
type Config struct {
	ListenAddr string
	DialAddr   string

	Codec          wire.Codec
	MaxMessageSize int
}

func (cfg Config) withDefaults() Config {
	if cfg.Codec == nil {
		cfg.Codec = wire.JSONCodec{}
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1 << 20
	}
	return cfg
}

func encodeEnvelope(codec wire.Codec, msg transport.Message) (*wrapperspb.BytesValue, error) {
	env := wireEnvelope{ID: msg.ID, Payload: msg.Payload, Metadata: msg.Metadata}
	data, err := codec.Encode(env)
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bytes(data), nil
}

func decodeEnvelope(codec wire.Codec, bv *wrapperspb.BytesValue) (transport.Message, error) {
	var env wireEnvelope
	if err := codec.Decode(bv.GetValue(), &env); err != nil {
		return transport.Message{}, err
	}
	return transport.Message{ID: env.ID, Payload: env.Payload, Metadata: env.Metadata}, nil
}

// recvLoop drains stream.RecvMsg into inbound until the stream ends or
// done closes, decoding each frame with codec.
func recvLoop(ctx context.Context, stream grpc.Stream, codec wire.Codec, metrics *transport.Metrics, inbound chan<- transport.Message, done <-chan struct{}) error {
	for {
		bv := &wrapperspb.BytesValue{}
		if err := stream.RecvMsg(bv); err != nil {
			return err
		}
		msg, err := decodeEnvelope(codec, bv)
		if err != nil {
			continue
		}
		metrics.RecordReceive(len(msg.Payload))
		select {
		case inbound <- msg:
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sendLoop drains outbound into stream.SendMsg until done closes or a
// send fails.
func sendLoop(stream grpc.Stream, codec wire.Codec, metrics *transport.Metrics, outbound <-chan transport.Message, done <-chan struct{}) error {
	for {
		select {
		case msg := <-outbound:
			bv, err := encodeEnvelope(codec, msg)
			if err != nil {
				continue
			}
			if err := stream.SendMsg(bv); err != nil {
				return err
			}
			metrics.RecordSend(len(msg.Payload))
		case <-done:
			return nil
		}
	}
}
