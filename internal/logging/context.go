package logging

import (
	"context"
	"log/slog"

	"pickline/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID is the standardized structured logging key for picking sessions.
	FieldSessionID = "session_id"
	// FieldPickerID is the standardized structured logging key for pickers.
	FieldPickerID = "picker_id"
	// FieldProductID identifies the product an action or override targets.
	FieldProductID = "product_id"
	// FieldIdempotencyKey carries the client-generated action key.
	FieldIdempotencyKey = "idempotency_key"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies WARN and ERROR lines for alerting.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// WithContext returns logger with the session, picker and request ids carried
// by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	if id, ok := services.SessionIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldSessionID, id))
	}
	if picker, ok := services.PickerIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldPickerID, picker))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		args = append(args, slog.String(FieldCorrelationID, rid))
	}
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
