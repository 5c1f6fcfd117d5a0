package wire

import (
	"bytes"
	"context"

	"github.com/turbomcp/turbomcp-go/corelog"
)

const (
	// DefaultMaxBuffer is the default maximum amount of unterminated data
	// the decoder will buffer before giving up on the current line.
	DefaultMaxBuffer = 1 << 20 // 1 MiB
	// HardMaxBuffer is the hard ceiling callers may configure MaxBuffer to.
	HardMaxBuffer = 10 << 20 // 10 MiB
)

// LineDecoder is a stateful decoder for newline-delimited JSON (or any
// Codec that supports streaming) over a byte stream. Feed appends bytes;
// TryDecode extracts the next complete line, if any.
//
// Grounded on the newline-framing idiom used throughout the MCP ecosystem
// for stdio/TCP/Unix transports (see golang-tools/internal/mcp's ndjson
// framer); reimplemented here rather than imported since that package is
// internal to another module.
type LineDecoder struct {
	codec     Codec
	buf       bytes.Buffer
	maxBuffer int
	ctx       context.Context
}

// NewLineDecoder constructs a LineDecoder using the given codec. maxBuffer
// of 0 selects DefaultMaxBuffer; values above HardMaxBuffer are clamped.
func NewLineDecoder(ctx context.Context, codec Codec, maxBuffer int) *LineDecoder {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	if maxBuffer > HardMaxBuffer {
		maxBuffer = HardMaxBuffer
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &LineDecoder{codec: codec, maxBuffer: maxBuffer, ctx: ctx}
}

// Feed appends bytes to the decoder's internal buffer.
func (d *LineDecoder) Feed(p []byte) {
	d.buf.Write(p)
}

// TryDecode extracts and decodes the next complete, non-blank line into v.
// It returns ok=false when no complete line is currently buffered. Blank
// (whitespace-only) lines are silently skipped. If the buffer grows past
// maxBuffer without a terminating newline, the buffer is cleared and the
// overflow is logged; decoding resumes cleanly on the next Feed.
func (d *LineDecoder) TryDecode(v any) (ok bool, err error) {
	for {
		b := d.buf.Bytes()
		idx := bytes.IndexByte(b, '\n')
		if idx < 0 {
			if d.buf.Len() > d.maxBuffer {
				corelog.Warn(d.ctx, "line decoder buffer overflow, discarding unterminated data",
					"buffered_bytes", d.buf.Len(), "max_buffer", d.maxBuffer)
				d.buf.Reset()
			}
			return false, nil
		}
		line := make([]byte, idx)
		copy(line, b[:idx])
		d.buf.Next(idx + 1)

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if err := d.codec.Decode(trimmed, v); err != nil {
			return false, err
		}
		return true, nil
	}
}

// Reset discards any buffered, undecoded data.
func (d *LineDecoder) Reset() {
	d.buf.Reset()
}
