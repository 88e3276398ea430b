package preflight

import (
	"context"
	"strings"

	"pickline/internal/config"
)

// CheckOrdersFromConfig checks that the order-of-record service answers.
func CheckOrdersFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Order service"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Orders.BaseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "Missing base_url"}
	}
	check := CheckHTTP(ctx, name, base+"/orders", cfg.Orders.APIKey)
	return Result{Name: name, Passed: check.Passed, Detail: check.Detail}
}

// CheckNotificationsFromConfig checks the ntfy server behind the topic URL.
func CheckNotificationsFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	check := CheckHTTP(ctx, name, topic+"/json?poll=1&since=0s", "")
	return Result{Name: name, Passed: check.Passed, Detail: check.Detail}
}

// CheckServerFromConfig checks the picklined API the device submits to.
func CheckServerFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Pickline server"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Device.ServerURL) == "" {
		return Result{Name: name, Detail: "Missing server_url"}
	}
	check := CheckHTTP(ctx, name, cfg.Device.ServerURL+"/api/status", cfg.Device.APIToken)
	return Result{Name: name, Passed: check.Passed, Detail: check.Detail}
}
