package httpsse

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp-go/transport"
	"github.com/turbomcp/turbomcp-go/wire"
)

func TestServerClientRoundTrip(t *testing.T) {
	server := NewServer(Config{ListenAddr: "127.0.0.1:0", KeepAliveInterval: time.Hour})
	require.NoError(t, server.Connect(context.Background()))
	defer server.Disconnect(context.Background())

	dialURL := "http://" + server.Addr().String() + DefaultEventsPath
	client := NewClient(Config{DialURL: dialURL, KeepAliveInterval: time.Hour})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg := transport.Message{ID: wire.NewNumberMessageID(1), Payload: []byte(`{"hello":"world"}`)}
	require.NoError(t, client.Send(ctx, msg))

	got, err := server.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, msg.Payload, got.Payload)

	sessionID := got.Metadata["session_id"]
	require.NotEmpty(t, sessionID)

	reply := transport.Message{ID: wire.NewNumberMessageID(2), Payload: []byte(`{"ack":true}`), Metadata: map[string]string{"session_id": sessionID}}
	require.NoError(t, server.Send(ctx, reply))

	replyGot, err := client.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, replyGot)
	require.Equal(t, reply.Payload, replyGot.Payload)
}

func TestServerRejectsDisallowedOrigin(t *testing.T) {
	server := NewServer(Config{ListenAddr: "127.0.0.1:0", AllowedOrigins: []string{"http://example.com"}})
	require.NoError(t, server.Connect(context.Background()))
	defer server.Disconnect(context.Background())

	req, err := http.NewRequest(http.MethodGet, "http://"+server.Addr().String()+DefaultEventsPath, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServerEnforcesMaxSessions(t *testing.T) {
	server := NewServer(Config{ListenAddr: "127.0.0.1:0", MaxSessions: 1, KeepAliveInterval: time.Hour})
	require.NoError(t, server.Connect(context.Background()))
	defer server.Disconnect(context.Background())

	dialURL := "http://" + server.Addr().String() + DefaultEventsPath

	first := NewClient(Config{DialURL: dialURL, KeepAliveInterval: time.Hour})
	require.NoError(t, first.Connect(context.Background()))
	defer first.Disconnect(context.Background())

	second := NewClient(Config{DialURL: dialURL, KeepAliveInterval: time.Hour})
	err := second.Connect(context.Background())
	require.Error(t, err)
}
