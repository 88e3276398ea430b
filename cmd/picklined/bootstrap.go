package main

import (
	"context"
	"fmt"
	"log/slog"

	"pickline/internal/config"
	"pickline/internal/daemon"
	"pickline/internal/engine"
	"pickline/internal/logging"
	"pickline/internal/notifications"
	"pickline/internal/orders"
	"pickline/internal/preflight"
	"pickline/internal/store"
)

// buildDaemon wires the store, order client, notifier and engine behind the
// daemon and applies any seeded pickers and barcodes. Failing preflight
// checks are logged but do not block startup.
func buildDaemon(ctx context.Context, cfg *config.Config, seed seedList, logger *slog.Logger) (*daemon.Daemon, error) {
	for _, result := range preflight.Failed(preflight.RunServer(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run pickline doctor for details"),
			logging.String(logging.FieldImpact, "dependent operations may fail"),
		)
	}

	source, err := orders.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("order client: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := seed.apply(ctx, st); err != nil {
		_ = st.Close()
		return nil, err
	}

	eng := engine.New(st, source, notifications.NewService(cfg), logger)
	d, err := daemon.New(cfg, st, eng, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return d, nil
}
