package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStorePutGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()

	data := Data{
		ProtocolVersion: "2025-06-18",
		ClientName:      "demo-client",
		ClientVersion:   "1.0.0",
		Metadata:        map[string]string{"region": "us-east"},
	}

	require.NoError(t, store.Put(ctx, "sess-1", data))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, data.ProtocolVersion, got.ProtocolVersion)
	require.Equal(t, data.ClientName, got.ClientName)
	require.Equal(t, data.Metadata, got.Metadata)
	require.False(t, got.CreatedAt.IsZero())
	require.False(t, got.LastSeenAt.IsZero())
}

func TestMemStoreGetMissingReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStoreTouchUpdatesLastSeenOnly(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "sess-2", Data{ClientName: "c"}))

	before, err := store.Get(ctx, "sess-2")
	require.NoError(t, err)

	require.NoError(t, store.Touch(ctx, "sess-2"))

	after, err := store.Get(ctx, "sess-2")
	require.NoError(t, err)
	require.Equal(t, before.ClientName, after.ClientName)
	require.True(t, after.LastSeenAt.Equal(before.LastSeenAt) || after.LastSeenAt.After(before.LastSeenAt))

	require.ErrorIs(t, store.Touch(ctx, "missing"), ErrNotFound)
}

func TestMemStoreDeleteAndLen(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", Data{}))
	require.NoError(t, store.Put(ctx, "b", Data{}))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)

	n, err = store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDataCloneIsIndependent(t *testing.T) {
	t.Parallel()

	d := Data{Metadata: map[string]string{"k": "v"}}
	clone := d.Clone()
	clone.Metadata["k"] = "changed"

	require.Equal(t, "v", d.Metadata["k"])
	require.Equal(t, "changed", clone.Metadata["k"])
}
