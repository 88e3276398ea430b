package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pickline/internal/logging"
	"pickline/internal/notifications"
	"pickline/internal/orders"
	"pickline/internal/store"
)

// Engine serves every session operation exposed by the daemon.
type Engine struct {
	store    *store.Store
	orders   orders.Source
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides session and assignment id generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// New constructs an engine. A nil notifier disables notifications.
func New(st *store.Store, source orders.Source, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Engine {
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	e := &Engine{
		store:    st,
		orders:   source,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "engine"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, e.logger)
}

// notify runs a best-effort notification; failures are logged and dropped.
func (e *Engine) notify(ctx context.Context, what string, send func(notifications.Service) error) {
	if err := send(e.notifier); err != nil {
		logging.WarnWithContext(e.log(ctx), "notification failed", "notification_failed",
			logging.String("notification", what),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "dashboards miss this update"),
		)
	}
}
