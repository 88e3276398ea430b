package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pickline/internal/config"
)

const userAgent = "Pickline-Go/0.1.0"

// Service defines the notification surface exposed to the engine and the
// device agent. Delivery is best effort: callers log failures and move on.
type Service interface {
	NotifySessionCreated(ctx context.Context, sessionID, pickerID string, orderCount int) error
	NotifySessionClosed(ctx context.Context, sessionID, pickerID, status string) error
	NotifyItemOverride(ctx context.Context, sessionID, productID, action, actor string) error
	NotifyActionSynced(ctx context.Context, sessionID, productID, kind string) error
	NotifyDeadLetter(ctx context.Context, sessionID, productID string, status int, reason string) error
	NotifyLocalReset(ctx context.Context, pickerID string, dropped int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		toggles:  cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	toggles  config.Notifications
}

func (n *ntfyService) NotifySessionCreated(ctx context.Context, sessionID, pickerID string, orderCount int) error {
	if !n.toggles.SessionEvents {
		return nil
	}
	noun := "orders"
	if orderCount == 1 {
		noun = "order"
	}
	return n.send(ctx, payload{
		title:   "Pickline - Session Started",
		message: fmt.Sprintf("Picker %s started session %s with %d %s", strings.TrimSpace(pickerID), shortID(sessionID), orderCount, noun),
		tags:    []string{"pickline", "session", "started"},
	})
}

func (n *ntfyService) NotifySessionClosed(ctx context.Context, sessionID, pickerID, status string) error {
	if !n.toggles.SessionEvents {
		return nil
	}
	status = strings.TrimSpace(status)
	data := payload{
		title:   "Pickline - Session " + humanize(status),
		message: fmt.Sprintf("Session %s for picker %s is now %s", shortID(sessionID), strings.TrimSpace(pickerID), status),
		tags:    []string{"pickline", "session", status},
	}
	if status == "cancelled" {
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyItemOverride(ctx context.Context, sessionID, productID, action, actor string) error {
	if !n.toggles.SessionEvents {
		return nil
	}
	message := fmt.Sprintf("Product %s %s in session %s", strings.TrimSpace(productID), humanizeLower(action), shortID(sessionID))
	if actor = strings.TrimSpace(actor); actor != "" {
		message += " by " + actor
	}
	return n.send(ctx, payload{
		title:   "Pickline - Admin Override",
		message: message,
		tags:    []string{"pickline", "admin", action},
	})
}

func (n *ntfyService) NotifyActionSynced(ctx context.Context, sessionID, productID, kind string) error {
	if !n.toggles.ActionSynced {
		return nil
	}
	return n.send(ctx, payload{
		title:    "Pickline - Activity",
		message:  fmt.Sprintf("%s %s in session %s", humanize(kind), strings.TrimSpace(productID), shortID(sessionID)),
		tags:     []string{"pickline", "ledger", kind},
		priority: "low",
	})
}

func (n *ntfyService) NotifyDeadLetter(ctx context.Context, sessionID, productID string, status int, reason string) error {
	if !n.toggles.DeadLetters {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}
	return n.send(ctx, payload{
		title:    "Pickline - Action Rejected",
		message:  fmt.Sprintf("Server rejected %s in session %s (%d): %s", strings.TrimSpace(productID), shortID(sessionID), status, reason),
		tags:     []string{"pickline", "dead-letter", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyLocalReset(ctx context.Context, pickerID string, dropped int) error {
	if !n.toggles.LocalReset {
		return nil
	}
	return n.send(ctx, payload{
		title:    "Pickline - Device Reset",
		message:  fmt.Sprintf("Device for picker %s discarded its session and %d queued actions", strings.TrimSpace(pickerID), dropped),
		tags:     []string{"pickline", "device", "reset"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Pickline - Test",
		message:  "Notification system test",
		tags:     []string{"pickline", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanize(value string) string {
	words := strings.Fields(strings.ReplaceAll(strings.TrimSpace(value), "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func humanizeLower(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), "_", " ")
}

type noopService struct{}

func (noopService) NotifySessionCreated(context.Context, string, string, int) error { return nil }
func (noopService) NotifySessionClosed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyItemOverride(context.Context, string, string, string, string) error {
	return nil
}
func (noopService) NotifyActionSynced(context.Context, string, string, string) error { return nil }
func (noopService) NotifyDeadLetter(context.Context, string, string, int, string) error { return nil }
func (noopService) NotifyLocalReset(context.Context, string, int) error { return nil }
func (noopService) TestNotification(context.Context) error { return nil }

// NewNoop returns a service that drops every notification.
func NewNoop() Service {
	return noopService{}
}
