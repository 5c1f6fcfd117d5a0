// Package httpsse implements the HTTP+SSE transport: a POST ingress
// endpoint for client-to-server messages and a Server-Sent Events stream
// for server-to-client messages, per spec.md §4.2.5. It carries one
// session id per SSE subscriber and addresses outgoing messages to a
// session via Message.Metadata["session_id"].
package httpsse

import (
	"net/http"
	"strings"
	"time"

	"github.com/turbomcp/turbomcp-go/wire"
)

// DefaultPostPath is the default path for the client-to-server POST endpoint.
const DefaultPostPath = "/mcp"

// DefaultEventsPath is the default path for the SSE stream endpoint.
const DefaultEventsPath = "/events"

// DefaultMaxSessions is the default bound on concurrent SSE sessions.
const DefaultMaxSessions = 100

// DefaultKeepAliveInterval is the default SSE keep-alive ping cadence.
const DefaultKeepAliveInterval = 30 * time.Second

// Config configures a Server or Client HTTP+SSE transport endpoint.
type Config struct {
	// ListenAddr is the address the server binds to. Defaults to
	// "127.0.0.1:0" (localhost-only) per spec.md §4.2.5.
	ListenAddr string

	// DialURL is the base URL of the SSE events endpoint a Client
	// connects to, e.g. "http://127.0.0.1:8080/events".
	DialURL string

	PostPath   string
	EventsPath string

	// AllowedOrigins is the Origin header allowlist. An empty list
	// defaults to localhost-only origins (DNS-rebinding protection).
	AllowedOrigins []string

	MaxSessions       int
	KeepAliveInterval time.Duration

	Codec          wire.Codec
	MaxMessageSize int
}

func (cfg Config) withDefaults() Config {
	if cfg.PostPath == "" {
		cfg.PostPath = DefaultPostPath
	}
	if cfg.EventsPath == "" {
		cfg.EventsPath = DefaultEventsPath
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if cfg.Codec == nil {
		cfg.Codec = wire.JSONCodec{}
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 1 << 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{
			"http://localhost", "http://127.0.0.1",
		}
	}
	return cfg
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		// Same-origin requests (curl, server-to-server) carry no Origin
		// header; the browser always sends one for cross-origin fetch.
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, origin) || strings.HasPrefix(strings.ToLower(origin), strings.ToLower(a)+":") {
			return true
		}
	}
	return false
}

// event is one SSE frame: "event: name\ndata: ...\n\n".
type event struct {
	name string
	data []byte
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, evt event) error {
	if _, err := w.Write([]byte("event: " + evt.name + "\n")); err != nil {
		return err
	}
	for _, line := range strings.Split(string(evt.data), "\n") {
		if _, err := w.Write([]byte("data: " + line + "\n")); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// wireEnvelope is the JSON body shape exchanged over the POST endpoint and
// carried inside each SSE data frame, matching the framing used by the
// newline-delimited stream transports.
type wireEnvelope struct {
	ID       wire.MessageID    `json:"id"`
	Payload  []byte            `json:"payload"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
