// Package obslog centralizes structured logging setup. It carries the
// teacher's internal/lidar/debug.go idea of per-component, per-severity
// loggers forward onto github.com/rs/zerolog fields instead of separate
// io.Writers: each subsystem gets a sub-logger tagged component=..., and
// level (info/debug) drives verbosity the way the teacher's ops/diag/trace
// split did.
package obslog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
)

// Component names used across the session pipeline, kept as constants so
// call sites can't typo a component tag.
const (
	ComponentStore       = "store"
	ComponentBuilder     = "builder"
	ComponentPosition    = "position"
	ComponentDispatch    = "dispatch"
	ComponentCache       = "cache"
	ComponentDebugViz    = "debugviz"
	ComponentServer      = "server"
)

// SetWriter redirects the base logger's output, e.g. to a file or
// os.Stdout in JSON mode. Intended for cmd/ main functions; tests normally
// leave the default in place or use zerolog.Nop() via a sub-logger they
// construct directly.
func SetWriter(w io.Writer, json bool) {
	mu.Lock()
	defer mu.Unlock()
	if json {
		base = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	base = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
}

// SetLevel sets the minimum level logged globally.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// For returns a sub-logger tagged with the given component name.
func For(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", component).Logger()
}
