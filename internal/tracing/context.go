package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SessionIDKey is the context key for the telemetry session ID
	SessionIDKey ContextKey = "session_id"
	// UploadIDKey is the context key for the upload attempt ID
	UploadIDKey ContextKey = "upload_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	SessionID string
	UploadID  string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewUploadID generates a new upload attempt ID
func NewUploadID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithUploadID adds an upload attempt ID to the context
func WithUploadID(ctx context.Context, uploadID string) context.Context {
	return context.WithValue(ctx, UploadIDKey, uploadID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// GetUploadID retrieves the upload attempt ID from the context
func GetUploadID(ctx context.Context) string {
	if uploadID, ok := ctx.Value(UploadIDKey).(string); ok {
		return uploadID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		SessionID: GetSessionID(ctx),
		UploadID:  GetUploadID(ctx),
	}
}

// LoggerFromContext returns baseLogger enriched with the tracing fields
// present in ctx.
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return baseLogger
	}
	tc := FromContext(ctx)

	logger := baseLogger
	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.SessionID != "" {
		logger = logger.With().Str("session_id", tc.SessionID).Logger()
	}
	if tc.UploadID != "" {
		logger = logger.With().Str("upload_id", tc.UploadID).Logger()
	}
	return logger
}
