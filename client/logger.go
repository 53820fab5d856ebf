package client

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured log field, mirroring zap's field constructors so
// callers don't need to import zap directly.
type Field = zapcore.Field

// Helper functions for creating fields.
func String(key, val string) Field                { return zap.String(key, val) }
func Int(key string, val int) Field                { return zap.Int(key, val) }
func Int32(key string, val int32) Field            { return zap.Int32(key, val) }
func Int64(key string, val int64) Field            { return zap.Int64(key, val) }
func Bool(key string, val bool) Field              { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Err(key string, err error) Field              { return zap.NamedError(key, err) }

// sensitiveFieldKeys never appear unredacted in a log line.
var sensitiveFieldKeys = map[string]bool{
	"password": true,
	"token":    true,
	"secret":   true,
}

// Logger is the structured logging interface the session and its
// collaborators log through.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// NewLogger builds a zap-backed Logger at the given level ("debug",
// "info", "warn", "error"), writing structured JSON to stderr.
func NewLogger(level string) Logger {
	zapLevel := zap.InfoLevel
	if err := zapLevel.Set(strings.ToLower(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return NewNoopLogger()
	}
	return &zapLogger{l: l}
}

// NewDefaultLogger builds an info-level logger writing to stderr.
func NewDefaultLogger() Logger {
	return NewLogger("info")
}

func redact(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		if sensitiveFieldKeys[strings.ToLower(f.Key)] {
			out[i] = zap.String(f.Key, "[REDACTED]")
			continue
		}
		out[i] = f
	}
	return out
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, redact(fields)...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, redact(fields)...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, redact(fields)...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, redact(fields)...) }

func (z *zapLogger) WithFields(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(redact(fields)...)}
}

// noopLogger discards everything; used as a safe default when construction
// of the real logger fails, and by callers that don't want logs.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, fields ...Field) {}
func (n *noopLogger) Info(msg string, fields ...Field)  {}
func (n *noopLogger) Warn(msg string, fields ...Field)  {}
func (n *noopLogger) Error(msg string, fields ...Field) {}
func (n *noopLogger) WithFields(fields ...Field) Logger { return n }

// NewNoopLogger returns a Logger that discards all output.
func NewNoopLogger() Logger {
	return &noopLogger{}
}
