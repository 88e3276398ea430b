package logging

import (
	"context"
	"log/slog"
	"time"
)

func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) slog.Attr { return slog.Duration(key, value) }

func Int(key string, value int) slog.Attr { return slog.Int(key, value) }

func String(key string, value string) slog.Attr { return slog.String(key, value) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

func NewNop() *slog.Logger {
	return slog.New(noopHandler{})
}

// NewComponentLogger tags every line with component. A nil logger yields a
// no-op base.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact; missing ones get defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, FieldEventType, eventType)
	attrs = withDefault(attrs, FieldErrorHint, "check logs for details")
	attrs = withDefault(attrs, FieldImpact, "operation completed with warnings")
	logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}

// ErrorWithContext logs an error that always carries event_type and error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	attrs = withDefault(attrs, FieldEventType, eventType)
	attrs = withDefault(attrs, FieldErrorHint, "check logs for details")
	logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func withDefault(attrs []slog.Attr, key, value string) []slog.Attr {
	for _, a := range attrs {
		if a.Key == key {
			return attrs
		}
	}
	return append(attrs, String(key, value))
}

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (noopHandler) Handle(context.Context, slog.Record) error { return nil }

func (noopHandler) WithAttrs([]slog.Attr) slog.Handler { return noopHandler{} }

func (noopHandler) WithGroup(string) slog.Handler { return noopHandler{} }
