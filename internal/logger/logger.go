// Package logger provides structured, level-gated logging for the
// redactor process, built on zerolog.
//
// Every entry is a JSON line carrying module, action, level, and message
// fields, matching the original Python implementation's StructuredFormatter
// (one JSON object per log line, suitable for shipping to a log pipeline).
// Per spec.md §7, callers must never pass input text, redacted text, or raw
// exception strings as the message: only counts, lengths, rule names, error
// kinds, and durations are safe to log.
//
// Usage:
//
//	log := logger.New("orchestrator", cfg.LogLevel)
//	log.Info("redact", "accepted 3 spans")
//	log.Errorf("redact", "nlp facility failed: kind=%s", kind)
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger writes structured log lines for a single module.
type Logger struct {
	z zerolog.Logger
}

// New creates a Logger for the given module, gated at the given level
// string ("debug", "info", "warn", "error"). Unrecognized level strings
// default to "info".
func New(module, levelStr string) *Logger {
	z := zerolog.New(os.Stderr).
		Level(parseLevel(levelStr)).
		With().
		Timestamp().
		Str("module", module).
		Logger()
	return &Logger{z: z}
}

// SetLevel changes the minimum log level at runtime.
func (l *Logger) SetLevel(levelStr string) {
	l.z = l.z.Level(parseLevel(levelStr))
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(action, msg string) { l.z.Debug().Str("action", action).Msg(msg) }

// Info logs at INFO level.
func (l *Logger) Info(action, msg string) { l.z.Info().Str("action", action).Msg(msg) }

// Warn logs at WARN level.
func (l *Logger) Warn(action, msg string) { l.z.Warn().Str("action", action).Msg(msg) }

// Error logs at ERROR level.
func (l *Logger) Error(action, msg string) { l.z.Error().Str("action", action).Msg(msg) }

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(action, format string, args ...any) {
	l.z.Debug().Str("action", action).Msgf(format, args...)
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(action, format string, args ...any) {
	l.z.Info().Str("action", action).Msgf(format, args...)
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(action, format string, args ...any) {
	l.z.Warn().Str("action", action).Msgf(format, args...)
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(action, format string, args ...any) {
	l.z.Error().Str("action", action).Msgf(format, args...)
}

// Fatal logs at ERROR level and then calls os.Exit(1).
func (l *Logger) Fatal(action, msg string) {
	l.z.Error().Str("action", action).Msg(msg)
	os.Exit(1)
}

// Fatalf logs a formatted message at ERROR level and then calls os.Exit(1).
func (l *Logger) Fatalf(action, format string, args ...any) {
	l.z.Error().Str("action", action).Msgf(format, args...)
	os.Exit(1)
}

// WithFields returns a child Logger with the given key/value pairs
// attached to every subsequent entry, for fields safe to log (counts,
// rule names, durations — never text).
func (l *Logger) WithFields(fields map[string]any) *Logger {
	ctx := l.z.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{z: ctx.Logger()}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
