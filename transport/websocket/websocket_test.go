package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp-go/protocol"
	"github.com/turbomcp/turbomcp-go/transport"
)

// echoServer accepts one WebSocket connection and echoes back whatever
// it reads, used to exercise Send/Receive without a full MCP peer.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if err := conn.Write(r.Context(), websocket.MessageText, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWebSocketSendReceiveRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ws := New(Config{DialURL: wsURL(srv.URL), PingInterval: time.Hour, ElicitationSweepInterval: time.Hour})
	require.NoError(t, ws.Connect(context.Background()))
	defer ws.Disconnect(context.Background())
	require.NotEmpty(t, ws.SessionID())

	msg := transport.Message{Payload: []byte(`{"jsonrpc":"2.0","method":"ping","id":"1"}`)}
	require.NoError(t, ws.Send(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := ws.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, msg.Payload, got.Payload)
}

func TestWebSocketDisconnectIsIdempotent(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ws := New(Config{DialURL: wsURL(srv.URL), PingInterval: time.Hour, ElicitationSweepInterval: time.Hour})
	require.NoError(t, ws.Connect(context.Background()))
	require.NoError(t, ws.Disconnect(context.Background()))
	require.NoError(t, ws.Disconnect(context.Background()))
	require.Equal(t, transport.StateDisconnected, ws.State())
}

func TestWebSocketElicitCapacityExceeded(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ws := New(Config{DialURL: wsURL(srv.URL), PingInterval: time.Hour, ElicitationSweepInterval: time.Hour, MaxConcurrentElicitations: 0})
	require.NoError(t, ws.Connect(context.Background()))
	defer ws.Disconnect(context.Background())

	ws.cfg.MaxConcurrentElicitations = 1
	ws.elicitCount.Store(1)

	_, err := ws.Elicit(context.Background(), protocol.ElicitRequest{Message: "confirm?"}, 50*time.Millisecond)
	require.Error(t, err)
}
