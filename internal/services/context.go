package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	pickerIDKey  contextKey = "picker_id"
	requestIDKey contextKey = "request_id"
)

// WithSessionID annotates context with the picking session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPickerID annotates context with the acting picker.
func WithPickerID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, pickerIDKey, id)
}

// PickerIDFromContext returns the picker identifier if present.
func PickerIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(pickerIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
