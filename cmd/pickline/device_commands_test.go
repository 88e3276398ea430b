package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDeviceQueueDrainsThroughServer(t *testing.T) {
	env := setupCLITestEnv(t)
	id := createSession(t, env, "1001")

	out, _, err := runCLI(t, []string{"device", "sync"}, env.configPath)
	if err != nil {
		t.Fatalf("device sync: %v", err)
	}
	requireContains(t, out, "Delivered 0")

	out, _, err = runCLI(t, []string{"device", "enqueue", "picked", "9", "--key", "scan-1"}, env.configPath)
	if err != nil {
		t.Fatalf("device enqueue: %v", err)
	}
	requireContains(t, out, "(key scan-1)")

	out, _, err = runCLI(t, []string{"device", "queue"}, env.configPath)
	if err != nil {
		t.Fatalf("device queue: %v", err)
	}
	requireContains(t, out, id)

	out, _, err = runCLI(t, []string{"device", "enqueue", "picked", "9", "--key", "scan-1", "--session", id, "--flush"}, env.configPath)
	if err == nil {
		t.Fatalf("expected duplicate idempotency key to be rejected locally, got %q", out)
	}

	out, _, err = runCLI(t, []string{"device", "sync"}, env.configPath)
	if err != nil {
		t.Fatalf("device sync: %v", err)
	}
	requireContains(t, out, "Delivered 1")

	out, _, err = runCLI(t, []string{"device", "session"}, env.configPath)
	if err != nil {
		t.Fatalf("device session: %v", err)
	}
	requireContains(t, out, "1/2")

	out, _, err = runCLI(t, []string{"device", "queue"}, env.configPath)
	if err != nil {
		t.Fatalf("device queue: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestDeviceDeadLettersRejectedAction(t *testing.T) {
	env := setupCLITestEnv(t)
	id := createSession(t, env, "1001")

	if _, _, err := runCLI(t, []string{"device", "enqueue", "substituted", "9", "--session", id}, env.configPath); err == nil {
		t.Fatal("expected substitute id to be required")
	}

	out, _, err := runCLI(t, []string{"device", "enqueue", "picked", "404", "--session", id, "--flush"}, env.configPath)
	if err != nil {
		t.Fatalf("device enqueue: %v", err)
	}
	requireContains(t, out, "dead-lettered 1")

	out, _, err = runCLI(t, []string{"device", "dead-letters"}, env.configPath)
	if err != nil {
		t.Fatalf("device dead-letters: %v", err)
	}
	requireContains(t, out, "404")
}

func TestDeviceWipesAfterAdminCancel(t *testing.T) {
	env := setupCLITestEnv(t)
	id := createSession(t, env, "1001")

	if _, _, err := runCLI(t, []string{"device", "enqueue", "picked", "9", "--session", id}, env.configPath); err != nil {
		t.Fatalf("device enqueue: %v", err)
	}
	if _, _, err := runCLI(t, []string{"admin", "cancel", id}, env.configPath); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}

	out, _, err := runCLI(t, []string{"device", "sync"}, env.configPath)
	if err != nil {
		t.Fatalf("device sync: %v", err)
	}
	requireContains(t, out, "discarded 1 queued action(s)")

	out, _, _ = runCLI(t, []string{"device", "queue"}, env.configPath)
	requireContains(t, out, "Queue is empty")
}

func TestDeviceResetRequiresConfirmation(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"device", "reset"}, env.configPath); err == nil {
		t.Fatal("expected reset without --yes to fail")
	}
	out, _, err := runCLI(t, []string{"device", "reset", "--yes"}, env.configPath)
	if err != nil {
		t.Fatalf("device reset: %v", err)
	}
	requireContains(t, out, "Discarded 0 queued action(s)")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startDeviceRun runs "pickline device run" until the test ends.
func startDeviceRun(t *testing.T, env *cliTestEnv) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cmd := newRootCommand()
	out := &lockedBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"--config", env.configPath, "device", "run"})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("device run: %v", err)
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "Draining") {
		if time.Now().After(deadline) {
			t.Fatalf("device run did not start: %q", out.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDeviceCommandsWorkWhileAgentRuns(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Device.DrainIntervalSeconds = 1
	writeTestConfig(t, env.configPath, env.cfg)
	id := createSession(t, env, "1001")

	if _, _, err := runCLI(t, []string{"device", "sync"}, env.configPath); err != nil {
		t.Fatalf("device sync: %v", err)
	}
	startDeviceRun(t, env)

	out, _, err := runCLI(t, []string{"device", "enqueue", "picked", "9", "--flush"}, env.configPath)
	if err != nil {
		t.Fatalf("device enqueue while agent runs: %v", err)
	}
	requireContains(t, out, "Queued #")
	requireContains(t, out, "A running device agent is draining the queue")

	out, _, err = runCLI(t, []string{"device", "session"}, env.configPath)
	if err != nil {
		t.Fatalf("device session while agent runs: %v", err)
	}
	requireContains(t, out, id)

	out, _, err = runCLI(t, []string{"device", "sync"}, env.configPath)
	if err != nil {
		t.Fatalf("device sync while agent runs: %v", err)
	}
	requireContains(t, out, "A running device agent is draining the queue")

	deadline := time.Now().Add(10 * time.Second)
	for {
		out, _, err = runCLI(t, []string{"device", "queue"}, env.configPath)
		if err != nil {
			t.Fatalf("device queue: %v", err)
		}
		if strings.Contains(out, "Queue is empty") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("agent never drained the queued action: %q", out)
		}
		time.Sleep(100 * time.Millisecond)
	}
	events, err := env.store.ListEvents(context.Background(), id)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one delivered event, got %d (%v)", len(events), err)
	}

	if _, _, err := runCLI(t, []string{"device", "reset", "--yes"}, env.configPath); err == nil {
		t.Fatal("expected reset to refuse while the agent runs")
	}
}
