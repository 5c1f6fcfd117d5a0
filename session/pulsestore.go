package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Map is the minimal replicated-map contract required by PulseStore.
//
// Map is satisfied by *rmap.Map from goa.design/pulse/rmap. It is
// defined here rather than imported directly so that PulseStore stays
// unit-testable without a running Redis instance and callers are not
// forced to depend on a concrete Pulse type.
type Map interface {
	Delete(ctx context.Context, key string) (string, error)
	Get(key string) (string, bool)
	Keys() []string
	Set(ctx context.Context, key, value string) (string, error)
}

const sessionKeyPrefix = "turbomcp:session:"

// PulseStore persists session state in a Pulse replicated map, making it
// durable across process restarts and visible to every node of a
// clustered deployment. It is safe for concurrent use when backed by a
// concurrency-safe Map, which *rmap.Map is.
type PulseStore struct {
	m Map
}

// NewPulseStore constructs a PulseStore backed by m.
func NewPulseStore(m Map) *PulseStore {
	return &PulseStore{m: m}
}

var _ Store = (*PulseStore)(nil)

func sessionKey(id string) string { return sessionKeyPrefix + id }

// Get implements Store.
func (s *PulseStore) Get(ctx context.Context, id string) (Data, error) {
	if err := ctx.Err(); err != nil {
		return Data{}, err
	}
	val, ok := s.m.Get(sessionKey(id))
	if !ok {
		return Data{}, ErrNotFound
	}
	var d Data
	if err := json.Unmarshal([]byte(val), &d); err != nil {
		return Data{}, fmt.Errorf("session: unmarshal %q: %w", id, err)
	}
	return d, nil
}

// Put implements Store.
func (s *PulseStore) Put(ctx context.Context, id string, data Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("session: marshal %q: %w", id, err)
	}
	if _, err := s.m.Set(ctx, sessionKey(id), string(b)); err != nil {
		return fmt.Errorf("session: store %q: %w", id, err)
	}
	return nil
}

// Touch implements Store.
func (s *PulseStore) Touch(ctx context.Context, id string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	d.LastSeenAt = time.Now()
	return s.Put(ctx, id, d)
}

// Delete implements Store.
func (s *PulseStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.m.Delete(ctx, sessionKey(id))
	return err
}

// Len implements Store.
func (s *PulseStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	for _, k := range s.m.Keys() {
		if strings.HasPrefix(k, sessionKeyPrefix) {
			n++
		}
	}
	return n, nil
}
