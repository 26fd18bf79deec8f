package logger

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type traceKey struct{}

const traceField = "trace_id"

// NewTraceID returns a random UUID.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores id in ctx, generating one when id is empty.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewTraceID()
	}
	return context.WithValue(ctx, traceKey{}, id)
}

// GetTraceID returns the id stored by WithTraceID, or "".
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

func (l *Logger) WithTraceID(id string) *Logger {
	return l.WithFields(zap.String(traceField, id))
}

// WithContext tags the logger with ctx's trace id, if it has one.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if id := GetTraceID(ctx); id != "" {
		return l.WithTraceID(id)
	}
	return l
}

func (l *Logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Debug(msg, fields...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Info(msg, fields...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Warn(msg, fields...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.WithContext(ctx).Error(msg, fields...)
}

// Direction tags a logged frame.
type Direction string

const (
	Inbound  Direction = "S->C"
	Outbound Direction = "C->S"
)

// Frame logs a raw event-stream frame at debug level. The payload is not
// copied when debug is off.
func (l *Logger) Frame(dir Direction, payload []byte) {
	if ce := l.Check(zapcore.DebugLevel, "["+string(dir)+"]"); ce != nil {
		ce.Write(zap.ByteString("frame", payload))
	}
}
