package httpsse

import (
	"net/http"
	"sync"

	"github.com/turbomcp/turbomcp-go/transport"
)

// session is one SSE subscriber: a live HTTP response writer draining a
// bounded outbound queue, per spec.md §4.2.5's session model.
type session struct {
	id string

	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher

	outbound chan transport.Message

	closeMu sync.Mutex
	closed  bool
	done    chan struct{}
}

func newSession(id string, w http.ResponseWriter, flusher http.Flusher) *session {
	return &session{
		id:       id,
		w:        w,
		flusher:  flusher,
		outbound: make(chan transport.Message, 100),
		done:     make(chan struct{}),
	}
}

// trySend enqueues msg without blocking, dropping and reporting overflow
// to the caller when the session's outbound queue is full (spec.md
// §4.2.3 non-blocking backpressure policy).
func (s *session) trySend(msg transport.Message) bool {
	select {
	case s.outbound <- msg:
		return true
	default:
		return false
	}
}

func (s *session) write(evt event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeEvent(s.w, s.flusher, evt)
}

func (s *session) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
