// Package corelog provides the structured logging facade used throughout
// the runtime. It wraps goa.design/clue/log the way the teacher runtime
// wraps it for its own agent runtime (runtime/agent/telemetry.ClueLogger):
// a small interface plus a clue-backed default implementation, so library
// code never calls fmt.Println or the stdlib log package directly.
package corelog

import (
	"context"

	"goa.design/clue/log"
)

// Logger is the structured logging interface used across every package in
// this module. keyvals are alternating key/value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// ClueLogger delegates to goa.design/clue/log. The zero value is ready to
// use; clue reads formatting/debug configuration from the context (set up
// by the host application via log.Context).
type ClueLogger struct{}

// Debug implements Logger.
func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

// Info implements Logger.
func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

// Warn implements Logger.
func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, fielders(msg, keyvals)...)
}

// Error implements Logger.
func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	log.Error(ctx, nil, fielders(msg, keyvals)...)
}

func fielders(msg string, keyvals []any) []log.Fielder {
	out := make([]log.Fielder, 0, len(keyvals)/2+1)
	out = append(out, log.KV{K: "msg", V: msg})
	for i := 0; i+1 < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		out = append(out, log.KV{K: k, V: keyvals[i+1]})
	}
	return out
}

// Default is the process-wide Logger used by the package-level helper
// functions below. Host applications may replace it before starting any
// transport if a different backend is desired.
var Default Logger = ClueLogger{}

// Debug logs through Default.
func Debug(ctx context.Context, msg string, keyvals ...any) { Default.Debug(ctx, msg, keyvals...) }

// Info logs through Default.
func Info(ctx context.Context, msg string, keyvals ...any) { Default.Info(ctx, msg, keyvals...) }

// Warn logs through Default.
func Warn(ctx context.Context, msg string, keyvals ...any) { Default.Warn(ctx, msg, keyvals...) }

// Error logs through Default.
func Error(ctx context.Context, msg string, keyvals ...any) { Default.Error(ctx, msg, keyvals...) }
