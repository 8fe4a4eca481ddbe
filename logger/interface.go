// Package logger defines the structured logging contract used by go-sqlobject.
// The library never logs through a concrete implementation directly; callers
// may plug in any Logger, and the default is a no-op.
package logger

import "time"

// Logger defines the contract for structured logging throughout the library.
// It provides methods for creating log events at different severity levels.
type Logger interface {
	Info() LogEvent
	Error() LogEvent
	Debug() LogEvent
	Warn() LogEvent
	WithFields(fields map[string]any) Logger
}

// LogEvent represents a structured log event that can be built with fields
// and sent with a final message.
type LogEvent interface {
	Msg(msg string)
	Msgf(format string, args ...any)
	Err(err error) LogEvent
	Str(key, value string) LogEvent
	Int(key string, value int) LogEvent
	Int64(key string, value int64) LogEvent
	Bool(key string, value bool) LogEvent
	Dur(key string, d time.Duration) LogEvent
	Interface(key string, i any) LogEvent
}
