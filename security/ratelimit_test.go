package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRateLimiterLoginScenario is S5: login {requests=5, window=60s,
// burst=2}. The first 7 calls (requests+burst) are admitted; the 8th is
// rejected with RateLimitInfo{Current: 7, Limit: 5}.
func TestRateLimiterLoginScenario(t *testing.T) {
	t.Parallel()

	cfg := AuthRateLimitConfig()
	rl := NewRateLimiter(cfg)
	key := UserKey("alice")

	for i := 0; i < 7; i++ {
		require.NoError(t, rl.Check(key, "login"), "call %d should be admitted", i+1)
	}

	err := rl.Check(key, "login")
	require.Error(t, err)
	var info *RateLimitInfo
	require.ErrorAs(t, err, &info)
	require.Equal(t, 7, info.Current)
	require.Equal(t, 5, info.Limit)
	require.Greater(t, info.RetryAfter, time.Duration(0))
}

// TestRateLimiterBoundIsRequestsPlusBurst is invariant 3: the sliding
// window never admits more than requests+burst requests in any window.
func TestRateLimiterBoundIsRequestsPlusBurst(t *testing.T) {
	t.Parallel()

	limit := EndpointLimit{Requests: 3, Window: time.Minute, Burst: 2}
	rl := NewRateLimiter(RateLimitConfig{Default: limit})
	key := IPKey("203.0.113.7")

	admitted := 0
	for i := 0; i < 10; i++ {
		if err := rl.Check(key, "default"); err == nil {
			admitted++
		}
	}
	require.Equal(t, limit.Requests+limit.Burst, admitted)
}

func TestRateLimiterResetClearsAllEndpointsForKey(t *testing.T) {
	t.Parallel()

	cfg := AuthRateLimitConfig()
	rl := NewRateLimiter(cfg)
	key := UserKey("bob")

	for i := 0; i < 7; i++ {
		require.NoError(t, rl.Check(key, "login"))
	}
	require.Error(t, rl.Check(key, "login"))

	rl.Reset(key)

	require.NoError(t, rl.Check(key, "login"))
}

func TestRateLimiterDistinctKeysAreIndependent(t *testing.T) {
	t.Parallel()

	cfg := AuthRateLimitConfig()
	rl := NewRateLimiter(cfg)

	for i := 0; i < 7; i++ {
		require.NoError(t, rl.Check(UserKey("carol"), "login"))
	}
	require.Error(t, rl.Check(UserKey("carol"), "login"))

	require.NoError(t, rl.Check(UserKey("dave"), "login"))
}

func TestRateLimiterCompositeAndSessionKeysBucketSeparately(t *testing.T) {
	t.Parallel()

	limit := EndpointLimit{Requests: 1, Window: time.Minute, Burst: 0}
	rl := NewRateLimiter(RateLimitConfig{Default: limit})

	sessionKey := SessionKey("sess-1")
	compositeKey := CompositeKey([2]string{"tenant", "acme"}, [2]string{"user", "eve"})

	require.NoError(t, rl.Check(sessionKey, "default"))
	require.Error(t, rl.Check(sessionKey, "default"))

	require.NoError(t, rl.Check(compositeKey, "default"))
	require.Error(t, rl.Check(compositeKey, "default"))
}

func TestRateLimiterRunCleanupPrunesInactiveBuckets(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{
		Default: EndpointLimit{Requests: 5, Window: time.Millisecond, Burst: 0},
	})
	require.NoError(t, rl.Check(IPKey("198.51.100.1"), "default"))
	require.Len(t, rl.buckets, 1)

	time.Sleep(5 * time.Millisecond)
	rl.RunCleanup()
	require.Empty(t, rl.buckets)
}
