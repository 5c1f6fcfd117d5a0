package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// CorrelatedResponse is the payload delivered to a correlator waiter:
// either the raw JSON-RPC result or an error reported by the peer.
type CorrelatedResponse struct {
	Result json.RawMessage
	Err    error
}

// Correlator matches asynchronous server-to-client responses to the
// request that triggered them, by JSON-RPC id. It is the shared
// plumbing behind every ServerToClient implementation (§4.5): allocate
// an entry, send the frame, wait on the entry's channel with a
// deadline, and always remove the entry on the way out.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]chan CorrelatedResponse
}

// NewCorrelator constructs an empty Correlator.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]chan CorrelatedResponse)}
}

// Register allocates a one-shot channel for requestID. Calling Register
// twice for the same id without an intervening Resolve/Cancel is a
// programming error and overwrites the previous entry.
func (c *Correlator) Register(requestID string) chan CorrelatedResponse {
	ch := make(chan CorrelatedResponse, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	return ch
}

// Resolve delivers a response to the waiter registered under requestID,
// if any. It never blocks: the channel is always buffered.
func (c *Correlator) Resolve(requestID string, payload CorrelatedResponse) bool {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- payload
	return true
}

// Cancel removes requestID's entry without delivering anything, used on
// the timeout/cancellation exit paths so the map never accumulates
// abandoned entries.
func (c *Correlator) Cancel(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// Len reports the number of pending correlator entries, for diagnostics.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// PendingIDs returns a snapshot of currently registered request ids, used
// by transports to drain outstanding correlators on shutdown.
func (c *Correlator) PendingIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}

// Await registers requestID, invokes send (expected to transmit the
// request frame), and blocks until Resolve is called for requestID, ctx
// is cancelled, or timeout elapses — whichever comes first. The
// correlator entry is removed on every exit path.
func (c *Correlator) Await(ctx context.Context, requestID string, timeout time.Duration, send func() error) (json.RawMessage, error) {
	ch := c.Register(requestID)
	if err := send(); err != nil {
		c.Cancel(requestID)
		return nil, fmt.Errorf("protocol: send correlated request %s: %w", requestID, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-ch:
		return payload.Result, payload.Err
	case <-timer.C:
		c.Cancel(requestID)
		return nil, &McpError{Kind: KindTransport, Message: fmt.Sprintf("timed out waiting for response to %s", requestID)}
	case <-ctx.Done():
		c.Cancel(requestID)
		return nil, ctx.Err()
	}
}
