package grpcbridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/turbomcp/turbomcp-go/transport"
)

func TestBridgeSendReceiveRoundTrip(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, srv.Connect(context.Background()))
	defer srv.Disconnect(context.Background())

	cli := NewClient(Config{DialAddr: srv.Addr().String()})
	require.NoError(t, cli.Connect(context.Background()))
	defer cli.Disconnect(context.Background())

	msg := transport.Message{ID: "1", Payload: []byte(`{"jsonrpc":"2.0","method":"ping","id":"1"}`)}
	require.NoError(t, cli.Send(context.Background(), msg))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := srv.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, msg.Payload, got.Payload)

	reply := transport.Message{ID: "1", Payload: []byte(`{"jsonrpc":"2.0","result":{},"id":"1"}`)}
	require.NoError(t, srv.Send(context.Background(), reply))

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	got2, err := cli.Receive(ctx2)
	require.NoError(t, err)
	require.NotNil(t, got2)
	require.Equal(t, reply.Payload, got2.Payload)
}

func TestBridgeDisconnectIsIdempotent(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, srv.Connect(context.Background()))

	cli := NewClient(Config{DialAddr: srv.Addr().String()})
	require.NoError(t, cli.Connect(context.Background()))

	require.NoError(t, cli.Disconnect(context.Background()))
	require.NoError(t, cli.Disconnect(context.Background()))
	require.Equal(t, transport.StateDisconnected, cli.State())

	require.NoError(t, srv.Disconnect(context.Background()))
	require.NoError(t, srv.Disconnect(context.Background()))
}

func TestBridgeRejectsSecondConcurrentStream(t *testing.T) {
	srv := NewServer(Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, srv.Connect(context.Background()))
	defer srv.Disconnect(context.Background())

	cliA := NewClient(Config{DialAddr: srv.Addr().String()})
	require.NoError(t, cliA.Connect(context.Background()))
	defer cliA.Disconnect(context.Background())

	msg := transport.Message{ID: "1", Payload: []byte(`{}`)}
	require.NoError(t, cliA.Send(context.Background(), msg))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := srv.Receive(ctx)
	require.NoError(t, err)

	cliB := NewClient(Config{DialAddr: srv.Addr().String()})
	require.NoError(t, cliB.Connect(context.Background()))
	defer cliB.Disconnect(context.Background())

	require.NoError(t, cliB.Send(context.Background(), msg))
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	_, err = srv.Receive(ctx2)
	require.Error(t, err)
}
