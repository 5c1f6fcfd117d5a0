package protocol

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestContext is the value handlers receive alongside decoded
// parameters. It is cheap to copy: Metadata is shared and
// copy-on-write, everything else is a scalar or a plain interface
// value.
type RequestContext struct {
	RequestID string
	UserID    *string
	SessionID *string
	ClientID  *string
	Start     time.Time
	Metadata  map[string]string

	// Cancel carries cancellation for the in-flight request. Go idiom
	// uses context.Context directly rather than a bespoke token.
	Cancel context.Context

	// ServerToClient is nil on unidirectional transports.
	ServerToClient ServerToClient
}

// NewRequestContext builds a RequestContext with a fresh UUIDv4 request
// id and the current time as Start.
func NewRequestContext(ctx context.Context) RequestContext {
	return RequestContext{
		RequestID: uuid.NewString(),
		Start:     time.Now(),
		Metadata:  map[string]string{},
		Cancel:    ctx,
	}
}

// WithMetadata returns a copy of rc with key set to value in Metadata,
// leaving the receiver's map untouched (copy-on-write).
func (rc RequestContext) WithMetadata(key, value string) RequestContext {
	out := rc
	out.Metadata = make(map[string]string, len(rc.Metadata)+1)
	for k, v := range rc.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return out
}

// Elapsed returns the time since the request started.
func (rc RequestContext) Elapsed() time.Duration { return time.Since(rc.Start) }
