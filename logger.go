package asyncrt

import (
	"log/slog"

	"go.uber.org/atomic"
)

// Logger is the ambient warning channel named by spec §6: stream-close
// errors and recovered panics flow through it rather than being silently
// dropped. iter.ForEach does not log any misuse warning through it.
// Satisfied directly by *slog.Logger,
// matching the logging convention used throughout the teacher's core
// package (core/scheduler, core/job, core/lynx all log via log/slog).
type Logger interface {
	Warn(msg string, args ...any)
}

var currentLogger atomic.Pointer[Logger]

func init() {
	var l Logger = slog.Default()
	currentLogger.Store(&l)
}

// Log returns the current package-wide Logger.
func Log() Logger {
	return *currentLogger.Load()
}

// SetLogger replaces the package-wide Logger. Passing nil restores the
// default (slog.Default()).
func SetLogger(l Logger) {
	if l == nil {
		l = slog.Default()
	}
	currentLogger.Store(&l)
}
