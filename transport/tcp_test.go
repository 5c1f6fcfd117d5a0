package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp-go/wire"
)

func TestTCPClientServerRoundTrip(t *testing.T) {
	server := NewTCP(TCPConfig{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, server.Connect(context.Background()))
	defer server.Disconnect(context.Background())

	client := NewTCP(TCPConfig{DialAddr: server.listener.Addr().String()})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect(context.Background())

	// Give the accept loop a moment to register the inbound connection.
	time.Sleep(20 * time.Millisecond)

	msg := Message{ID: wire.NewNumberMessageID(9), Payload: []byte(`{"ping":true}`)}
	require.NoError(t, client.Send(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := server.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, msg.Payload, got.Payload)
}

func TestTCPSendWithoutConnectionsFails(t *testing.T) {
	server := NewTCP(TCPConfig{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, server.Connect(context.Background()))
	defer server.Disconnect(context.Background())

	err := server.Send(context.Background(), Message{ID: wire.NewNumberMessageID(1), Payload: []byte("{}")})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestTCPDisconnectIsIdempotent(t *testing.T) {
	server := NewTCP(TCPConfig{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, server.Connect(context.Background()))
	require.NoError(t, server.Disconnect(context.Background()))
	require.NoError(t, server.Disconnect(context.Background()))
	require.Equal(t, StateDisconnected, server.State())
}
