package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"pickline/internal/config"
	"pickline/internal/engine"
	"pickline/internal/logging"
	"pickline/internal/picking"
	"pickline/internal/store"
)

// Daemon serves the session API and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	engine *engine.Engine
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	DatabasePath  string
	LockFilePath  string
	Notifications bool
	Sessions      map[picking.Status]int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, eng *engine.Engine, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || eng == nil {
		return nil, errors.New("daemon requires config, store, and engine")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		engine:   eng,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another picklined instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("picklined started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
		logging.String("address", d.api.address()),
	)
	return nil
}

// Stop stops serving and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("picklined stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Address returns the bound API address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	counts, err := d.store.CountSessionsByStatus(ctx)
	if err != nil {
		d.logger.Warn("session stats unavailable", logging.Error(err))
	}
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		DatabasePath:  d.store.Path(),
		LockFilePath:  d.lockPath,
		Notifications: strings.TrimSpace(d.cfg.Notifications.NtfyTopic) != "",
		Sessions:      counts,
	}
}
