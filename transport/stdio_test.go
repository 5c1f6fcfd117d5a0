package transport

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp-go/wire"
)

func TestStdioSendReceiveRoundTrip(t *testing.T) {
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	server := NewStdio(clientToServerR, serverToClientW, nil, 0)
	client := NewStdio(serverToClientR, clientToServerW, nil, 0)

	ctx := context.Background()
	require.NoError(t, server.Connect(ctx))
	require.NoError(t, client.Connect(ctx))
	defer server.Disconnect(ctx)
	defer client.Disconnect(ctx)

	msg := Message{ID: wire.NewNumberMessageID(1), Payload: []byte(`{"hello":"world"}`)}
	go func() { _ = client.Send(ctx, msg) }()

	got, err := server.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, msg.Payload, got.Payload)
	require.Equal(t, int64(1), server.Metrics().MessagesReceived)
}

// Invariant 1 (spec §8): oversized messages are rejected and counters
// are unaffected.
func TestStdioRejectsOversizedMessage(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdio(&buf, &buf, nil, 16)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect(context.Background())

	err := s.Send(context.Background(), Message{ID: wire.NewNumberMessageID(1), Payload: bytes.Repeat([]byte("x"), 64)})
	require.Error(t, err)
	var tooLarge *ErrMessageTooLarge
	require.ErrorAs(t, err, &tooLarge)
	require.Equal(t, int64(0), s.Metrics().MessagesSent)
}

func TestStdioDisconnectIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdio(&buf, &buf, nil, 0)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Disconnect(context.Background()))
	require.NoError(t, s.Disconnect(context.Background()))
	require.Equal(t, StateDisconnected, s.State())
}

func TestStdioReceiveRespectsContextCancellation(t *testing.T) {
	r, _ := io.Pipe()
	var buf bytes.Buffer
	s := NewStdio(r, &buf, nil, 0)
	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := s.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
