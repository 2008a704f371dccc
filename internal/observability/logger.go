// Package observability provides structured logging for the study engine.
package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Logger wraps zerolog with study-engine specific scoping.
type Logger struct {
	zl zerolog.Logger
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string
	Format      string // json or console
	Output      io.Writer
	ServiceName string
}

// NewLogger creates a new Logger with the given configuration.
func NewLogger(cfg LogConfig) *Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	if cfg.Format == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		})
	} else {
		zl = zerolog.New(output)
	}

	zl = zl.Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()

	return &Logger{zl: zl}
}

// NopLogger returns a logger that discards everything. Used in tests.
func NopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug() *LogEvent {
	return &LogEvent{evt: l.zl.Debug()}
}

func (l *Logger) Info() *LogEvent {
	return &LogEvent{evt: l.zl.Info()}
}

func (l *Logger) Warn() *LogEvent {
	return &LogEvent{evt: l.zl.Warn()}
}

func (l *Logger) Error() *LogEvent {
	return &LogEvent{evt: l.zl.Error()}
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal() *LogEvent {
	return &LogEvent{evt: l.zl.Fatal()}
}

// WithContext returns a logger carrying the request's trace and user ids.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zctx := l.zl.With()
	scoped := false
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		zctx = zctx.Str("trace_id", traceID)
		scoped = true
	}
	if userID := UserIDFromContext(ctx); userID != "" {
		zctx = zctx.Str("user_id", userID)
		scoped = true
	}
	if !scoped {
		return l
	}
	return &Logger{zl: zctx.Logger()}
}

// WithUser returns a logger scoped to one user's namespace.
func (l *Logger) WithUser(userID string) *Logger {
	return &Logger{zl: l.zl.With().Str("user_id", userID).Logger()}
}

// WithOperation returns a logger with operation context.
func (l *Logger) WithOperation(op string) *Logger {
	return &Logger{zl: l.zl.With().Str("operation", op).Logger()}
}

// LogEvent represents a log event being built.
type LogEvent struct {
	evt *zerolog.Event
}

func (e *LogEvent) Str(key, val string) *LogEvent {
	e.evt = e.evt.Str(key, val)
	return e
}

func (e *LogEvent) Int(key string, val int) *LogEvent {
	e.evt = e.evt.Int(key, val)
	return e
}

func (e *LogEvent) Strs(key string, val []string) *LogEvent {
	e.evt = e.evt.Strs(key, val)
	return e
}

func (e *LogEvent) Dur(key string, val time.Duration) *LogEvent {
	e.evt = e.evt.Dur(key, val)
	return e
}

func (e *LogEvent) Err(err error) *LogEvent {
	e.evt = e.evt.Err(err)
	return e
}

// Msg sends the log event with a message.
func (e *LogEvent) Msg(msg string) {
	e.evt.Msg(msg)
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	userIDKey  contextKey = "user_id"
)

// ContextWithTraceID adds a trace ID to the context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext extracts a trace ID from the context.
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithUserID adds the authenticated user ID to the context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the authenticated user ID from the context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}
