package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pickline/internal/config"
	"pickline/internal/notifications"
)

type captured struct {
	calls    int
	title    string
	tags     string
	priority string
	agent    string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.calls++
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		got.agent = r.Header.Get("User-Agent")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		got.body = string(body)
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte("topic locked"))
		}
	}))
	t.Cleanup(server.Close)
	return server, got
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifySessionCreated(context.Background(), "session-1", "ana", 2); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop test notification to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "session created",
			send: func(s notifications.Service) error {
				return s.NotifySessionCreated(context.Background(), "0123456789abcdef", "ana", 1)
			},
			expectTitle:   "Pickline - Session Started",
			expectMessage: "Picker ana started session 01234567 with 1 order",
			expectTags:    "pickline,session,started",
		},
		{
			name: "session cancelled",
			send: func(s notifications.Service) error {
				return s.NotifySessionClosed(context.Background(), "s-1", "ana", "cancelled")
			},
			expectTitle:    "Pickline - Session Cancelled",
			expectMessage:  "Session s-1 for picker ana is now cancelled",
			expectTags:     "pickline,session,cancelled",
			expectPriority: "high",
		},
		{
			name: "session pending audit",
			send: func(s notifications.Service) error {
				return s.NotifySessionClosed(context.Background(), "s-1", "ana", "pending_audit")
			},
			expectTitle:   "Pickline - Session Pending Audit",
			expectMessage: "Session s-1 for picker ana is now pending_audit",
			expectTags:    "pickline,session,pending_audit",
		},
		{
			name: "admin override",
			send: func(s notifications.Service) error {
				return s.NotifyItemOverride(context.Background(), "s-1", "P-9", "force_complete", "lead")
			},
			expectTitle:   "Pickline - Admin Override",
			expectMessage: "Product P-9 force complete in session s-1 by lead",
			expectTags:    "pickline,admin,force_complete",
		},
		{
			name: "dead letter",
			send: func(s notifications.Service) error {
				return s.NotifyDeadLetter(context.Background(), "s-1", "P-9", 400, "quantity exceeded")
			},
			expectTitle:    "Pickline - Action Rejected",
			expectMessage:  "Server rejected P-9 in session s-1 (400): quantity exceeded",
			expectTags:     "pickline,dead-letter,alert",
			expectPriority: "high",
		},
		{
			name: "local reset",
			send: func(s notifications.Service) error {
				return s.NotifyLocalReset(context.Background(), "ana", 3)
			},
			expectTitle:    "Pickline - Device Reset",
			expectMessage:  "Device for picker ana discarded its session and 3 queued actions",
			expectTags:     "pickline,device,reset",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newCaptureServer(t, http.StatusOK)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
			if !strings.HasPrefix(got.agent, "Pickline-Go/") {
				t.Fatalf("unexpected user agent %q", got.agent)
			}
		})
	}
}

func TestNtfyServiceHonorsToggles(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.SessionEvents = false
	cfg.Notifications.ActionSynced = false
	cfg.Notifications.DeadLetters = false
	cfg.Notifications.LocalReset = false

	svc := notifications.NewService(&cfg)
	ctx := context.Background()
	_ = svc.NotifySessionCreated(ctx, "s", "p", 1)
	_ = svc.NotifySessionClosed(ctx, "s", "p", "completed")
	_ = svc.NotifyItemOverride(ctx, "s", "x", "item_removed", "")
	_ = svc.NotifyActionSynced(ctx, "s", "x", "picked")
	_ = svc.NotifyDeadLetter(ctx, "s", "x", 400, "")
	_ = svc.NotifyLocalReset(ctx, "p", 0)
	if got.calls != 0 {
		t.Fatalf("expected suppressed events to skip delivery, got %d calls", got.calls)
	}

	if err := svc.TestNotification(ctx); err != nil {
		t.Fatalf("test notification: %v", err)
	}
	if got.calls != 1 {
		t.Fatalf("expected test notification to bypass toggles, got %d calls", got.calls)
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusForbidden)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for rejected notification")
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic locked") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}
