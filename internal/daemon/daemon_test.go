package daemon_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"pickline/internal/api"
	"pickline/internal/daemon"
	"pickline/internal/engine"
	"pickline/internal/logging"
	"pickline/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	eng := engine.New(st, testsupport.NewFakeOrders(), nil, logging.NewNop())

	d, err := daemon.New(cfg, st, eng, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	other, err := daemon.New(cfg, st, eng, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	client := api.NewClient("http://"+d.Address(), "", 2*time.Second)
	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Running || status.LockFilePath != cfg.LockPath() || status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected status %+v", status)
	}

	d.Stop()
	if got := d.Status(ctx); got.Running {
		t.Fatal("expected daemon stopped")
	}
}
