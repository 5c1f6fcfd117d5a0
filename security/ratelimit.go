package security

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RateLimitKeyKind discriminates the tagged RateLimitKey value.
type RateLimitKeyKind int

const (
	// KeyIP identifies a client by IP address.
	KeyIP RateLimitKeyKind = iota
	// KeyUser identifies a client by user id.
	KeyUser
	// KeyAPIKeyPrefix identifies a client by API key prefix.
	KeyAPIKeyPrefix
	// KeySession identifies a client by session id.
	KeySession
	// KeyComposite combines multiple key/value components.
	KeyComposite
)

// RateLimitKey is a tagged identity used to bucket rate-limit state, per
// spec.md §3.
type RateLimitKey struct {
	Kind  RateLimitKeyKind
	Value string
}

// IPKey builds an IP-tagged key.
func IPKey(ip string) RateLimitKey { return RateLimitKey{Kind: KeyIP, Value: ip} }

// UserKey builds a user-tagged key.
func UserKey(userID string) RateLimitKey { return RateLimitKey{Kind: KeyUser, Value: userID} }

// APIKeyPrefixKey builds an api-key-prefix-tagged key.
func APIKeyPrefixKey(prefix string) RateLimitKey {
	return RateLimitKey{Kind: KeyAPIKeyPrefix, Value: prefix}
}

// SessionKey builds a session-tagged key.
func SessionKey(sessionID string) RateLimitKey {
	return RateLimitKey{Kind: KeySession, Value: sessionID}
}

// CompositeKey builds a composite key from ordered k/v pairs, serialized
// as "k1:v1|k2:v2|...".
func CompositeKey(components ...[2]string) RateLimitKey {
	parts := make([]string, len(components))
	for i, kv := range components {
		parts[i] = fmt.Sprintf("%s:%s", kv[0], kv[1])
	}
	return RateLimitKey{Kind: KeyComposite, Value: strings.Join(parts, "|")}
}

func (k RateLimitKey) bucketKey(endpoint string) string {
	return fmt.Sprintf("%d|%s|%s", k.Kind, k.Value, endpoint)
}

// EndpointLimit configures the sliding window for one named endpoint.
type EndpointLimit struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// RateLimitConfig holds per-endpoint limits plus a global default applied
// to any endpoint without an explicit entry.
type RateLimitConfig struct {
	Default EndpointLimit
	Limits  map[string]EndpointLimit
	// CleanupInterval is the pruning cadence for the caller that schedules
	// RateLimiter.RunCleanup; the limiter itself never reads it, and it
	// does not affect limiting decisions.
	CleanupInterval time.Duration
}

// AuthRateLimitConfig returns the fixed defaults for authentication
// endpoints specified in spec.md §4.7.6.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Default: EndpointLimit{Requests: 100, Window: time.Minute, Burst: 10},
		Limits: map[string]EndpointLimit{
			"login":     {Requests: 5, Window: time.Minute, Burst: 2},
			"token":     {Requests: 10, Window: time.Minute, Burst: 3},
			"refresh":   {Requests: 20, Window: time.Minute, Burst: 5},
			"authorize": {Requests: 10, Window: time.Minute, Burst: 3},
			"revoke":    {Requests: 10, Window: time.Minute, Burst: 2},
		},
		CleanupInterval: time.Minute,
	}
}

// RateLimitInfo is returned when a request is rejected.
type RateLimitInfo struct {
	Current    int
	Limit      int
	RetryAfter time.Duration
}

func (i *RateLimitInfo) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d, retry after %s", i.Current, i.Limit, i.RetryAfter)
}

type bucket struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// RateLimiter implements the sliding-window counter described in
// spec.md §4.7.6: per (key, endpoint) pair, timestamps outside the
// current window are dropped before each check; if the remaining count
// is at or above the effective cap (requests+burst), the request is
// rejected with a RetryAfter computed from the oldest surviving
// timestamp.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewRateLimiter constructs a RateLimiter from cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

func (r *RateLimiter) limitFor(endpoint string) EndpointLimit {
	if l, ok := r.cfg.Limits[endpoint]; ok {
		return l
	}
	return r.cfg.Default
}

func (r *RateLimiter) bucketFor(key RateLimitKey, endpoint string) *bucket {
	bk := key.bucketKey(endpoint)
	r.mu.RLock()
	b, ok := r.buckets[bk]
	r.mu.RUnlock()
	if ok {
		return b
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.buckets[bk]; ok {
		return b
	}
	b = &bucket{}
	r.buckets[bk] = b
	return b
}

// Check admits or rejects a request for (key, endpoint). On success it
// records the request's timestamp. On rejection it returns a
// *RateLimitInfo describing the current count, effective limit, and
// retry-after duration.
func (r *RateLimiter) Check(key RateLimitKey, endpoint string) error {
	limit := r.limitFor(endpoint)
	effectiveCap := limit.Requests + limit.Burst
	b := r.bucketFor(key, endpoint)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-limit.Window)
	kept := b.timestamps[:0]
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.timestamps = kept

	if len(b.timestamps) >= effectiveCap {
		oldest := b.timestamps[0]
		retryAfter := limit.Window - now.Sub(oldest)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &RateLimitInfo{Current: len(b.timestamps), Limit: limit.Requests, RetryAfter: retryAfter}
	}

	b.timestamps = append(b.timestamps, now)
	return nil
}

// Reset clears all recorded timestamps for key across every endpoint
// bucket that has been created for it.
func (r *RateLimiter) Reset(key RateLimitKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := fmt.Sprintf("%d|%s|", key.Kind, key.Value)
	for bk, b := range r.buckets {
		if strings.HasPrefix(bk, prefix) {
			b.mu.Lock()
			b.timestamps = nil
			b.mu.Unlock()
		}
	}
}

// RunCleanup removes buckets with no timestamp newer than
// 2*maxWindow ago, where maxWindow is the widest configured window.
// Intended to be called periodically (e.g. via a ticker) by the host
// application.
func (r *RateLimiter) RunCleanup() {
	maxWindow := r.cfg.Default.Window
	for _, l := range r.cfg.Limits {
		if l.Window > maxWindow {
			maxWindow = l.Window
		}
	}
	cutoff := time.Now().Add(-2 * maxWindow)

	r.mu.Lock()
	defer r.mu.Unlock()
	for bk, b := range r.buckets {
		b.mu.Lock()
		active := len(b.timestamps) > 0 && b.timestamps[len(b.timestamps)-1].After(cutoff)
		b.mu.Unlock()
		if !active {
			delete(r.buckets, bk)
		}
	}
}
