package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"pickline/internal/config"
	"pickline/internal/daemon"
	"pickline/internal/engine"
	"pickline/internal/logging"
	"pickline/internal/store"
	"pickline/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	orders     *testsupport.FakeOrders
	daemon     *daemon.Daemon
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedPicker(t, st, "picker-1", "Pat")
	orders := testsupport.NewFakeOrders(
		testsupport.Order("1001", "Ada", testsupport.Line("9", 2), testsupport.Line("7", 1)),
		testsupport.Order("1002", "Bo", testsupport.Line("9", 1)),
	)
	eng := engine.New(st, orders, nil, logging.NewNop())

	d, err := daemon.New(cfg, st, eng, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})

	cfg.Device.ServerURL = "http://" + d.Address()
	configPath := filepath.Join(testsupport.BaseDir(cfg), "pickline.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, store: st, orders: orders, daemon: d, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
