package security

import (
	"strings"
	"time"
)

// CORSOrigins selects either a wildcard or an explicit origin allowlist.
type CORSOrigins struct {
	Any     bool
	Origins []string
}

// CORSConfig configures cross-origin behavior for the HTTP+SSE transport.
// Build-time invariants (enforced by NewCORSConfig, which panics on
// violation — see spec.md §4.7.4): wildcard origin + credentials is
// forbidden, and "null" (case-insensitive) may never appear as an origin.
type CORSConfig struct {
	Origins         CORSOrigins
	Methods         []string
	Headers         []string
	ExposedHeaders  []string
	AllowCredentials bool
	MaxAge          time.Duration
}

// NewCORSConfig validates cfg against the mandatory rules and panics if
// violated. Configuration errors are build-time bugs, not runtime data,
// so a panic (rather than a returned error) matches the rest of this
// module's policy for misconfiguration (spec.md §9).
func NewCORSConfig(cfg CORSConfig) CORSConfig {
	if cfg.Origins.Any && cfg.AllowCredentials {
		panic("security: CORS wildcard origin with credentials is forbidden")
	}
	for _, o := range cfg.Origins.Origins {
		if strings.EqualFold(o, "null") {
			panic(`security: CORS origin "null" is forbidden`)
		}
	}
	return cfg
}

// StrictCORS returns the "strict" preset: empty origin list, GET/POST
// only, no credentials, 5-minute cache.
func StrictCORS() CORSConfig {
	return NewCORSConfig(CORSConfig{
		Origins:          CORSOrigins{Origins: nil},
		Methods:          []string{"GET", "POST"},
		AllowCredentials: false,
		MaxAge:           5 * time.Minute,
	})
}

// ProductionSafeCORS returns the "production_safe" preset: empty origin
// list with the standard method/header defaults.
func ProductionSafeCORS() CORSConfig {
	return NewCORSConfig(CORSConfig{
		Origins:          CORSOrigins{Origins: nil},
		Methods:          []string{"GET", "POST", "OPTIONS"},
		Headers:          []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           10 * time.Minute,
	})
}

// DevelopmentLocalhostCORS returns the "development_localhost" preset:
// common localhost ports with credentials allowed.
func DevelopmentLocalhostCORS() CORSConfig {
	return NewCORSConfig(CORSConfig{
		Origins: CORSOrigins{Origins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:5173",
		}},
		Methods:          []string{"GET", "POST", "OPTIONS"},
		Headers:          []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           time.Minute,
	})
}

// AllowsOrigin reports whether origin is permitted by cfg.
func (cfg CORSConfig) AllowsOrigin(origin string) bool {
	if cfg.Origins.Any {
		return true
	}
	for _, o := range cfg.Origins.Origins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
