package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable by both the daemon and the
// device CLI. Daemon-only requirements live in ValidateServer.
func (c *Config) Validate() error {
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateServer checks the settings picklined cannot start without.
func (c *Config) ValidateServer() error {
	if c.Orders.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("orders.base_url is required. Edit %s (create with 'pickline config init')", defaultPath)
	}
	if err := validateURL("orders.base_url", c.Orders.BaseURL); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"orders.timeout_seconds":        c.Orders.TimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"device.request_timeout":        c.Device.RequestTimeout,
		"device.drain_interval_seconds": c.Device.DrainIntervalSeconds,
		"device.backoff_base_seconds":   c.Device.BackoffBaseSeconds,
		"device.backoff_max_seconds":    c.Device.BackoffMaxSeconds,
	})
}

func (c *Config) validateDevice() error {
	if c.Device.BackoffMaxSeconds < c.Device.BackoffBaseSeconds {
		return errors.New("device.backoff_max_seconds must be >= device.backoff_base_seconds")
	}
	return validateURL("device.server_url", c.Device.ServerURL)
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	return validateURL("notifications.ntfy_topic", c.Notifications.NtfyTopic)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func validateURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
