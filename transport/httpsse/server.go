package httpsse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/security"
	"github.com/turbomcp/turbomcp-go/transport"
	"github.com/turbomcp/turbomcp-go/wire"
)

// Server is the server-side HTTP+SSE transport: a POST ingress route and
// an SSE stream route multiplexed with gorilla/mux, per spec.md §4.2.5.
type Server struct {
	transport.StateHolder
	metrics transport.Metrics

	cfg    Config
	router *mux.Router

	listener   net.Listener
	httpServer *http.Server

	mu       sync.Mutex
	sessions map[string]*session

	inbound chan transport.Message
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewServer constructs a server-side HTTP+SSE transport from cfg.
func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	return &Server{
		cfg:      cfg,
		sessions: make(map[string]*session),
		inbound:  make(chan transport.Message, 1000),
		done:     make(chan struct{}),
	}
}

var _ transport.Transport = (*Server)(nil)

// Kind implements transport.Transport.
func (s *Server) Kind() transport.Kind { return transport.KindHTTPSSE }

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
		return "http://" + s.cfg.ListenAddr + s.cfg.PostPath
	}
	return "http://" + s.listener.Addr().String() + s.cfg.PostPath
}

// Addr returns the bound listener address; only valid after Connect.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connect implements transport.Transport: binds the listener and starts
// serving both routes.
func (s *Server) Connect(_ context.Context) error {
	s.Store(transport.StateConnecting)

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.Fail(err.Error())
		return err
	}
	s.listener = ln

	r := mux.NewRouter()
	r.HandleFunc(s.cfg.PostPath, s.handlePost).Methods(http.MethodPost)
	r.HandleFunc(s.cfg.EventsPath, s.handleEvents).Methods(http.MethodGet)
	s.router = r
	s.httpServer = &http.Server{Handler: r}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			corelog.Warn(context.Background(), "httpsse server stopped", "error", err.Error())
		}
	}()

	s.Store(transport.StateConnected)
	return nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !originAllowed(s.cfg.AllowedOrigins, r.Header.Get("Origin")) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		http.Error(w, "too many concurrent sessions", http.StatusTooManyRequests)
		return
	}
	s.mu.Unlock()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	security.ApplySecurityHeaders(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess := newSession(uuid.NewString(), w, flusher)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		sess.close()
	}()

	postURL := fmt.Sprintf("%s?session_id=%s", s.cfg.PostPath, sess.id)
	if err := sess.write(event{name: "endpoint", data: []byte(postURL)}); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.done:
			return
		case <-ticker.C:
			if err := sess.write(event{name: "ping", data: []byte("{}")}); err != nil {
				return
			}
		case msg := <-sess.outbound:
			env := wireEnvelope{ID: msg.ID, Payload: msg.Payload, Metadata: msg.Metadata}
			data, err := json.Marshal(env)
			if err != nil {
				corelog.Warn(r.Context(), "httpsse failed to encode outgoing message", "error", err.Error())
				continue
			}
			s.metrics.RecordSend(len(data))
			if err := sess.write(event{name: "message", data: data}); err != nil {
				return
			}
		}
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if !originAllowed(s.cfg.AllowedOrigins, r.Header.Get("Origin")) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxMessageSize)))
	if err != nil {
		http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
		return
	}

	var env wireEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "malformed message body", http.StatusBadRequest)
		return
	}

	meta := env.Metadata
	if meta == nil {
		meta = make(map[string]string, 1)
	}
	meta["session_id"] = sessionID
	msg := transport.Message{ID: env.ID, Payload: env.Payload, Metadata: meta}

	s.metrics.RecordReceive(len(body))
	select {
	case s.inbound <- msg:
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "server busy", http.StatusServiceUnavailable)
	}
}

// Send implements transport.Transport. A Message carrying
// Metadata["session_id"] is delivered to that session only; otherwise it
// is broadcast to every connected session.
func (s *Server) Send(_ context.Context, msg transport.Message) error {
	if s.Load() != transport.StateConnected {
		return transport.ErrNotConnected
	}
	if len(msg.Payload) > s.cfg.MaxMessageSize {
		return &transport.ErrMessageTooLarge{Size: len(msg.Payload), Max: s.cfg.MaxMessageSize}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sid := msg.Metadata["session_id"]; sid != "" {
		sess, ok := s.sessions[sid]
		if !ok {
			return fmt.Errorf("httpsse: unknown session %q", sid)
		}
		if !sess.trySend(msg) {
			corelog.Warn(context.Background(), "httpsse dropped outbound message: session queue full", "session_id", sid)
		}
		return nil
	}

	if len(s.sessions) == 0 {
		return transport.ErrNotConnected
	}
	for _, sess := range s.sessions {
		if !sess.trySend(msg) {
			corelog.Warn(context.Background(), "httpsse dropped outbound message: session queue full", "session_id", sess.id)
		}
	}
	return nil
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

// Disconnect implements transport.Transport: idempotent graceful
// shutdown of the HTTP server and every live SSE session.
func (s *Server) Disconnect(ctx context.Context) error {
	if s.Load() == transport.StateDisconnected {
		return nil
	}
	s.Store(transport.StateDisconnecting)
	close(s.done)

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}
	s.wg.Wait()

	s.Store(transport.StateDisconnected)
	return nil
}
