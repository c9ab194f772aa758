// Package logging wraps logr.Logger with the engine's fixed verbosity
// tiers (info/debug/trace) so the engine packages under pkg/ never
// import logr directly.
package logging

import (
	"github.com/go-logr/logr"
)

const (
	LevelInfo  = 0
	LevelDebug = 1
	LevelTrace = 2
)

// NewLogger wraps an existing logr.Logger.
func NewLogger(log logr.Logger) *Logger {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Logger{log: log}
}

// Default returns a discarding logger, so library use costs nothing
// unless a caller opts in with WithLogger.
func Default() *Logger {
	return &Logger{log: logr.Discard()}
}

// Logger threads a logr.Logger through the engine without exposing logr
// itself to callers that only need Debug/Info/Trace/Error.
type Logger struct {
	log logr.Logger
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.V(LevelDebug).Info(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l *Logger) Trace(msg string, keysAndValues ...interface{}) {
	l.log.V(LevelTrace).Info(msg, keysAndValues...)
}

func (l *Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(err, msg, keysAndValues...)
}

// WithName scopes subsequent messages to a named sub-component (e.g.
// "space", "vat") the way the engine's components are named in spec §2.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{log: l.log.WithName(name)}
}
