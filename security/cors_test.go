package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewCORSConfigPanicsOnWildcardWithCredentials is invariant 7: a
// wildcard origin combined with AllowCredentials is a build-time bug.
func TestNewCORSConfigPanicsOnWildcardWithCredentials(t *testing.T) {
	t.Parallel()

	require.PanicsWithValue(t, "security: CORS wildcard origin with credentials is forbidden", func() {
		NewCORSConfig(CORSConfig{Origins: CORSOrigins{Any: true}, AllowCredentials: true})
	})
}

// TestNewCORSConfigPanicsOnNullOrigin is invariant 7's second clause:
// "null" can never appear as a configured origin, regardless of case.
func TestNewCORSConfigPanicsOnNullOrigin(t *testing.T) {
	t.Parallel()

	require.PanicsWithValue(t, `security: CORS origin "null" is forbidden`, func() {
		NewCORSConfig(CORSConfig{Origins: CORSOrigins{Origins: []string{"https://example.com", "NULL"}}})
	})
}

func TestNewCORSConfigAcceptsValidConfig(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		NewCORSConfig(CORSConfig{Origins: CORSOrigins{Any: true}, AllowCredentials: false})
	})
}

func TestCORSPresets(t *testing.T) {
	t.Parallel()

	strict := StrictCORS()
	require.False(t, strict.AllowCredentials)
	require.False(t, strict.AllowsOrigin("https://example.com"))

	prod := ProductionSafeCORS()
	require.False(t, prod.AllowCredentials)
	require.Contains(t, prod.Methods, "OPTIONS")

	dev := DevelopmentLocalhostCORS()
	require.True(t, dev.AllowCredentials)
	require.True(t, dev.AllowsOrigin("http://localhost:3000"))
	require.True(t, dev.AllowsOrigin("HTTP://LOCALHOST:3000"))
	require.False(t, dev.AllowsOrigin("https://evil.example.com"))
}

func TestCORSConfigAllowsOriginWildcard(t *testing.T) {
	t.Parallel()

	cfg := NewCORSConfig(CORSConfig{Origins: CORSOrigins{Any: true}})
	require.True(t, cfg.AllowsOrigin("https://anything.example.com"))
}
