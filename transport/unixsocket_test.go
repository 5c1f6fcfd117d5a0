package transport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp-go/wire"
)

func TestUnixSocketClientServerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turbomcp.sock")

	server := NewUnixSocket(UnixSocketConfig{ListenPath: path})
	require.NoError(t, server.Connect(context.Background()))
	defer server.Disconnect(context.Background())

	client := NewUnixSocket(UnixSocketConfig{DialPath: path})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect(context.Background())

	time.Sleep(20 * time.Millisecond)

	msg := Message{ID: wire.NewNumberMessageID(3), Payload: []byte(`{"a":1}`)}
	require.NoError(t, client.Send(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := server.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, msg.Payload, got.Payload)
}

func TestUnixSocketRejectsSystemDirectoryPaths(t *testing.T) {
	server := NewUnixSocket(UnixSocketConfig{ListenPath: "/proc/turbomcp.sock"})
	err := server.Connect(context.Background())
	require.Error(t, err)
	var sysErr *ErrSystemSocketPath
	require.ErrorAs(t, err, &sysErr)
	require.Equal(t, StateFailed, server.State())
}
