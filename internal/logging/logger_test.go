package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pickline/internal/config"
	"pickline/internal/logging"
	"pickline/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Server.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon ready")

	content, err := os.ReadFile(filepath.Join(cfg.Server.LogDir, "pickline.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon ready") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{Format: "console", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller", logging.String(logging.FieldComponent, "engine"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if !strings.Contains(string(content), "INFO engine message without caller") {
		t.Fatalf("expected component prefix, got %q", content)
	}
}

func TestConsoleLoggerTagsPickingIDs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-ids.log")

	logger, err := logging.New(logging.Options{Format: "console", Outputs: []string{logPath, logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithPickerID(services.WithSessionID(context.Background(), "sess-1"), "picker-1")
	engineLog := logging.NewComponentLogger(logger, "engine")
	logging.WithContext(ctx, engineLog).Info("action registered",
		logging.String(logging.FieldProductID, "9"),
		logging.String("kind", "picked"),
		logging.String("reason", "out of stock"),
	)
	engineLog.WithGroup("payload").Info("grouped", logging.Int("grams", 420))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines written once each, got %q", content)
	}
	if !strings.Contains(lines[0], "INFO engine [s=sess-1 p=picker-1 item=9] action registered kind=picked reason=\"out of stock\"") {
		t.Fatalf("unexpected console layout: %q", lines[0])
	}
	if !strings.Contains(lines[1], "grouped payload.grams=420") {
		t.Fatalf("expected grouped key, got %q", lines[1])
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", Outputs: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithSessionID(context.Background(), "sess-1")
	ctx = services.WithPickerID(ctx, "picker-1")
	ctx = services.WithRequestID(ctx, "req-9")
	logging.WithContext(ctx, logger).Info("action registered")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &payload); err != nil {
		t.Fatalf("decode json log: %v (%s)", err, content)
	}
	if payload["session_id"] != "sess-1" || payload["picker_id"] != "picker-1" || payload["correlation_id"] != "req-9" {
		t.Fatalf("missing context fields: %v", payload)
	}
	if payload["level"] != "info" || payload["msg"] != "action registered" {
		t.Fatalf("unexpected json shape: %v", payload)
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

type captureHandler struct {
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, record slog.Record) error {
	h.records = append(h.records, record)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	handler := &captureHandler{}
	logger := slog.New(handler)

	logging.WarnWithContext(logger, "entry dead-lettered", "dead_letter",
		logging.String(logging.FieldErrorHint, "inspect the rejected payload"),
	)

	if len(handler.records) != 1 {
		t.Fatalf("expected one record, got %d", len(handler.records))
	}
	got := map[string]string{}
	handler.records[0].Attrs(func(attr slog.Attr) bool {
		got[attr.Key] = attr.Value.String()
		return true
	})
	if got[logging.FieldEventType] != "dead_letter" {
		t.Fatalf("expected event_type injected, got %v", got)
	}
	if got[logging.FieldErrorHint] != "inspect the rejected payload" {
		t.Fatalf("expected caller hint preserved, got %v", got)
	}
	if got[logging.FieldImpact] == "" {
		t.Fatalf("expected impact default, got %v", got)
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected nop logger to be disabled")
	}
	if logging.NewComponentLogger(nil, "x") == nil {
		t.Fatal("expected component logger from nil base")
	}
}
