package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// logEventAdapter adapts zerolog events to the LogEvent interface.
type logEventAdapter struct {
	event *zerolog.Event
}

// Msg logs the message
func (lea *logEventAdapter) Msg(msg string) {
	lea.event.Msg(msg)
}

// Msgf logs a formatted message
func (lea *logEventAdapter) Msgf(format string, args ...any) {
	lea.event.Msgf(format, args...)
}

// Err adds an error to the log event
func (lea *logEventAdapter) Err(err error) LogEvent {
	return &logEventAdapter{event: lea.event.Err(err)}
}

// Str adds a string field to the log event
func (lea *logEventAdapter) Str(key, value string) LogEvent {
	return &logEventAdapter{event: lea.event.Str(key, value)}
}

// Int adds an integer field to the log event
func (lea *logEventAdapter) Int(key string, value int) LogEvent {
	return &logEventAdapter{event: lea.event.Int(key, value)}
}

// Int64 adds an int64 field to the log event
func (lea *logEventAdapter) Int64(key string, value int64) LogEvent {
	return &logEventAdapter{event: lea.event.Int64(key, value)}
}

// Bool adds a boolean field to the log event
func (lea *logEventAdapter) Bool(key string, value bool) LogEvent {
	return &logEventAdapter{event: lea.event.Bool(key, value)}
}

// Dur adds a duration field to the log event
func (lea *logEventAdapter) Dur(key string, d time.Duration) LogEvent {
	return &logEventAdapter{event: lea.event.Dur(key, d)}
}

// Interface adds an any field to the log event
func (lea *logEventAdapter) Interface(key string, i any) LogEvent {
	return &logEventAdapter{event: lea.event.Interface(key, i)}
}
