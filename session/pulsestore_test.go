package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeMap is a trivial in-process stand-in for *rmap.Map, sufficient to
// exercise PulseStore without a running Redis instance.
type fakeMap struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeMap() *fakeMap { return &fakeMap{data: make(map[string]string)} }

func (m *fakeMap) Set(_ context.Context, key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.data[key]
	m.data[key] = value
	return prev, nil
}

func (m *fakeMap) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *fakeMap) Delete(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.data[key]
	delete(m.data, key)
	return prev, nil
}

func (m *fakeMap) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

func TestPulseStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewPulseStore(newFakeMap())
	ctx := context.Background()

	data := Data{ProtocolVersion: "2025-06-18", ClientName: "demo"}
	require.NoError(t, store.Put(ctx, "s1", data))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, data.ProtocolVersion, got.ProtocolVersion)

	n, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
}
