package wire

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes and decodes wire messages. Implementations must be safe
// for concurrent use by multiple goroutines.
type Codec interface {
	// Encode serializes v into the codec's wire format.
	Encode(v any) ([]byte, error)
	// Decode deserializes data into v.
	Decode(data []byte, v any) error
	// ContentType returns the MIME type this codec produces.
	ContentType() string
	// SupportsStreaming reports whether this codec can be used with the
	// streaming line decoder (one complete value per line).
	SupportsStreaming() bool
	// Name returns a short, stable identifier for logging.
	Name() string
}

// EncodeError wraps a codec encode failure with a human-readable reason.
type EncodeError struct{ Reason string }

func (e *EncodeError) Error() string { return fmt.Sprintf("encode(%q)", e.Reason) }

// DecodeError wraps a codec decode failure with a human-readable reason.
type DecodeError struct{ Reason string }

func (e *DecodeError) Error() string { return fmt.Sprintf("decode(%q)", e.Reason) }

// JSONCodec is the canonical MCP wire codec.
type JSONCodec struct {
	// Pretty enables indented output, useful for CLI tooling and tests.
	Pretty bool
}

// Encode implements Codec.
func (c JSONCodec) Encode(v any) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if c.Pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return nil, &EncodeError{Reason: err.Error()}
	}
	return b, nil
}

// Decode implements Codec.
func (c JSONCodec) Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Reason: err.Error()}
	}
	return nil
}

// ContentType implements Codec.
func (c JSONCodec) ContentType() string { return "application/json" }

// SupportsStreaming implements Codec.
func (c JSONCodec) SupportsStreaming() bool { return true }

// Name implements Codec.
func (c JSONCodec) Name() string { return "json" }

// MsgpackCodec is used for internal, process-local or trusted-peer
// communication only; it is never advertised as a negotiable content
// type on the wire (spec §6: application/msgpack is internal only).
type MsgpackCodec struct{}

// Encode implements Codec.
func (MsgpackCodec) Encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, &EncodeError{Reason: err.Error()}
	}
	return b, nil
}

// Decode implements Codec.
func (MsgpackCodec) Decode(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return &DecodeError{Reason: err.Error()}
	}
	return nil
}

// ContentType implements Codec.
func (MsgpackCodec) ContentType() string { return "application/msgpack" }

// SupportsStreaming implements Codec.
func (MsgpackCodec) SupportsStreaming() bool { return false }

// Name implements Codec.
func (MsgpackCodec) Name() string { return "msgpack" }

// SimdJSONCodec has identical semantics to JSONCodec. No pure-Go SIMD JSON
// decoder appears anywhere in the retrieval pack, so this falls back to
// encoding/json rather than fabricating a dependency; see DESIGN.md.
type SimdJSONCodec struct {
	JSONCodec
}

// Name implements Codec.
func (SimdJSONCodec) Name() string { return "simd-json" }
