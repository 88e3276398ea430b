package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"pickline/internal/api"
	"pickline/internal/logging"
	"pickline/internal/notifications"
	"pickline/internal/picking"
	"pickline/internal/services"
)

// Submitter is the part of the server API the agent talks to.
type Submitter interface {
	RegisterAction(ctx context.Context, action picking.Action) (picking.ActionResult, error)
	ActiveSession(ctx context.Context, pickerID string, opts picking.ViewOptions) (*picking.SessionView, error)
}

// Connectivity reports whether the device currently believes it is online.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a plain function to Connectivity.
type ConnectivityFunc func() bool

// Online implements Connectivity.
func (f ConnectivityFunc) Online() bool { return f() }

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

// PassResult summarizes one drain pass.
type PassResult struct {
	Delivered    int
	DeadLettered int
	Dropped      int
	Reset        bool
	Busy         bool
	// RetryAt is set when the pass stopped on an entry still backing off.
	RetryAt time.Time
}

// Agent drains the queue head-first against the server. At most one pass runs
// at a time and entry n+1 is never submitted while entry n is pending.
type Agent struct {
	queue        *Queue
	cache        *Cache
	client       Submitter
	connectivity Connectivity
	notifier     notifications.Service
	logger       *slog.Logger
	pickerID     string

	now         func() time.Time
	interval    time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration
	onReset     func(dropped int)

	mu sync.Mutex
}

// AgentOption customizes an Agent.
type AgentOption func(*Agent)

// WithConnectivity replaces the default always-online check.
func WithConnectivity(c Connectivity) AgentOption {
	return func(a *Agent) {
		if c != nil {
			a.connectivity = c
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) AgentOption {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// WithBackoff sets the retry delay base and ceiling.
func WithBackoff(base, max time.Duration) AgentOption {
	return func(a *Agent) {
		a.backoffBase = base
		a.backoffMax = max
	}
}

// WithInterval sets how often Run wakes without an enqueue signal.
func WithInterval(interval time.Duration) AgentOption {
	return func(a *Agent) {
		if interval > 0 {
			a.interval = interval
		}
	}
}

// WithResetHook registers a callback fired after the server invalidated the
// session and local state was discarded.
func WithResetHook(fn func(dropped int)) AgentOption {
	return func(a *Agent) {
		a.onReset = fn
	}
}

// NewAgent builds a drain agent for one picker's device.
func NewAgent(queue *Queue, cache *Cache, client Submitter, pickerID string, notifier notifications.Service, logger *slog.Logger, opts ...AgentOption) *Agent {
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	a := &Agent{
		queue:        queue,
		cache:        cache,
		client:       client,
		connectivity: alwaysOnline{},
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "device-agent"),
		pickerID:     pickerID,
		now:          time.Now,
		interval:     5 * time.Second,
		backoffBase:  2 * time.Second,
		backoffMax:   5 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run drains on every tick and every enqueue until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-a.queue.Signal():
		}
		a.drain(ctx)
	}
}

func (a *Agent) drain(ctx context.Context) {
	result, err := a.Flush(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.ErrorWithContext(a.logger, "drain pass failed", "queue_drain_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the device data directory"),
		)
		return
	}
	if result.Delivered > 0 || result.DeadLettered > 0 || result.Reset {
		a.logger.Info("drain pass finished",
			logging.Int("delivered", result.Delivered),
			logging.Int("dead_lettered", result.DeadLettered),
			logging.Bool("reset", result.Reset),
		)
	}
}

// Flush runs one drain pass synchronously. A call made while another pass is
// in flight returns immediately with Busy set.
func (a *Agent) Flush(ctx context.Context) (PassResult, error) {
	if !a.mu.TryLock() {
		return PassResult{Busy: true}, nil
	}
	defer a.mu.Unlock()

	var result PassResult
	if !a.connectivity.Online() {
		return result, nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		entry, err := a.queue.Head(ctx)
		if err != nil {
			return result, err
		}
		if entry == nil {
			return result, nil
		}
		now := a.now()
		if !entry.Ready(now) {
			result.RetryAt = entry.NextAttemptAt
			return result, nil
		}

		stop, err := a.submit(ctx, *entry, &result)
		if err != nil || stop {
			return result, err
		}
	}
}

// submit delivers one entry and reports whether the pass must stop.
func (a *Agent) submit(ctx context.Context, entry Entry, result *PassResult) (bool, error) {
	action := entry.Action
	logger := a.logger.With(
		logging.String(logging.FieldSessionID, action.SessionID),
		logging.String(logging.FieldProductID, action.OriginalProductID),
		logging.String(logging.FieldIdempotencyKey, action.IdempotencyKey),
	)

	res, err := a.client.RegisterAction(ctx, action)
	if err == nil {
		a.notify(ctx, "action synced", func(ctx context.Context) error {
			return a.notifier.NotifyActionSynced(ctx, action.SessionID, action.OriginalProductID, string(action.Kind))
		})
		if err := a.queue.Delete(ctx, entry.Seq); err != nil {
			return true, err
		}
		logger.Debug("action delivered", logging.Bool("duplicate", res.Duplicate))
		result.Delivered++
		return false, nil
	}

	var apiErr *api.Error
	switch {
	case errors.Is(err, services.ErrInvalidSession):
		dropped, resetErr := a.reset(ctx)
		if resetErr != nil {
			return true, resetErr
		}
		logging.WarnWithContext(logger, "server invalidated session; local queue discarded", "session_invalidated",
			logging.Int("dropped", dropped),
			logging.String(logging.FieldErrorHint, "start a new session on this device"),
			logging.String(logging.FieldImpact, "queued actions for the session were not applied"),
		)
		a.notify(ctx, "local reset", func(ctx context.Context) error {
			return a.notifier.NotifyLocalReset(ctx, a.pickerID, dropped)
		})
		if a.onReset != nil {
			a.onReset(dropped)
		}
		result.Reset = true
		result.Dropped = dropped
		return true, nil

	case errors.As(err, &apiErr) && rejectsPermanently(apiErr):
		reason := apiErr.Message
		if reason == "" {
			reason = apiErr.Error()
		}
		if err := a.queue.DeadLetter(ctx, entry, apiErr.Status, reason); err != nil {
			return true, err
		}
		logging.WarnWithContext(logger, "server rejected queued action", "action_dead_lettered",
			logging.Int("status", apiErr.Status),
			logging.String("reason", reason),
			logging.String(logging.FieldErrorHint, "inspect with pickline device dead-letters"),
			logging.String(logging.FieldImpact, "the action was not recorded on the server"),
		)
		a.notify(ctx, "dead letter", func(ctx context.Context) error {
			return a.notifier.NotifyDeadLetter(ctx, action.SessionID, action.OriginalProductID, apiErr.Status, reason)
		})
		result.DeadLettered++
		return false, nil

	default:
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		delay := Backoff(a.backoffBase, a.backoffMax, entry.Attempts+1)
		next := a.now().Add(delay)
		if markErr := a.queue.MarkFailed(ctx, entry.Seq, err, next); markErr != nil {
			return true, markErr
		}
		logging.WarnWithContext(logger, "action submission failed; will retry", "action_retry_scheduled",
			logging.Error(err),
			logging.Int("attempt", entry.Attempts+1),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldErrorHint, "check server reachability"),
			logging.String(logging.FieldImpact, "later actions wait behind this one"),
		)
		result.RetryAt = next
		return true, nil
	}
}

// rejectsPermanently reports whether a response condemns the action itself.
// Authentication and throttling failures are about the device, not the
// action, and stay in the queue.
func rejectsPermanently(err *api.Error) bool {
	switch err.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return err.Permanent()
}

// Reset discards every queued action and the cached session view. Dead
// letters are kept.
func (a *Agent) Reset(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reset(ctx)
}

func (a *Agent) reset(ctx context.Context) (int, error) {
	dropped, err := a.queue.Wipe(ctx)
	if err != nil {
		return 0, err
	}
	if a.cache != nil {
		if err := a.cache.Wipe(); err != nil {
			return dropped, err
		}
	}
	return dropped, nil
}

// RefreshSession fetches the picker's active session and caches it. When the
// server cannot be reached or answers with a retryable failure the cached view
// is returned with stale set.
func (a *Agent) RefreshSession(ctx context.Context, opts picking.ViewOptions) (view *picking.SessionView, stale bool, err error) {
	view, err = a.client.ActiveSession(ctx, a.pickerID, opts)
	switch {
	case err == nil:
		if a.cache != nil {
			if cacheErr := a.cache.Put(a.pickerID, *view); cacheErr != nil {
				logging.WarnWithContext(a.logger, "session cache write failed", "session_cache_failed",
					logging.Error(cacheErr),
					logging.String(logging.FieldImpact, "offline view may be out of date"),
				)
			}
		}
		return view, false, nil
	case errors.Is(err, services.ErrNotFound):
		if a.cache != nil {
			if cacheErr := a.cache.Delete(a.pickerID); cacheErr != nil {
				return nil, false, cacheErr
			}
		}
		return nil, false, err
	case serverUnavailable(err) && a.cache != nil:
		cached, cacheErr := a.cache.Get(a.pickerID)
		if cacheErr != nil || cached == nil {
			return nil, false, err
		}
		return cached, true, nil
	default:
		return nil, false, err
	}
}

// serverUnavailable covers network failures, every 5xx (with or without a
// JSON body) and the throttling statuses.
func serverUnavailable(err error) bool {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status >= http.StatusInternalServerError,
			apiErr.Status == http.StatusRequestTimeout,
			apiErr.Status == http.StatusTooManyRequests:
			return true
		}
		return false
	}
	return errors.Is(err, services.ErrTransient)
}

func (a *Agent) notify(ctx context.Context, what string, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		logging.WarnWithContext(a.logger, fmt.Sprintf("%s notification failed", what), "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy topic and network"),
			logging.String(logging.FieldImpact, "operator was not notified"),
		)
	}
}
