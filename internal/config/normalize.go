package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeOrders()
	c.normalizeNotifications()
	if err := c.normalizeDevice(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeServer() error {
	var err error
	if strings.TrimSpace(c.Server.DataDir) == "" {
		c.Server.DataDir = defaultServerDataDir
	}
	if c.Server.DataDir, err = expandPath(c.Server.DataDir); err != nil {
		return fmt.Errorf("server.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Server.LogDir) == "" {
		c.Server.LogDir = defaultServerLogDir
	}
	if c.Server.LogDir, err = expandPath(c.Server.LogDir); err != nil {
		return fmt.Errorf("server.log_dir: %w", err)
	}
	c.Server.APIBind = strings.TrimSpace(c.Server.APIBind)
	if c.Server.APIBind == "" {
		c.Server.APIBind = defaultAPIBind
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		if value, ok := os.LookupEnv("PICKLINE_API_TOKEN"); ok {
			c.Server.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeOrders() {
	c.Orders.BaseURL = strings.TrimRight(strings.TrimSpace(c.Orders.BaseURL), "/")
	c.Orders.APIKey = strings.TrimSpace(c.Orders.APIKey)
	if c.Orders.APIKey == "" {
		if value, ok := os.LookupEnv("PICKLINE_ORDERS_API_KEY"); ok {
			c.Orders.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Orders.TimeoutSeconds <= 0 {
		c.Orders.TimeoutSeconds = defaultOrdersTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeDevice() error {
	var err error
	if strings.TrimSpace(c.Device.DataDir) == "" {
		c.Device.DataDir = defaultDeviceDataDir
	}
	if c.Device.DataDir, err = expandPath(c.Device.DataDir); err != nil {
		return fmt.Errorf("device.data_dir: %w", err)
	}
	c.Device.ServerURL = strings.TrimRight(strings.TrimSpace(c.Device.ServerURL), "/")
	if c.Device.ServerURL == "" {
		c.Device.ServerURL = defaultDeviceServerURL
	}
	c.Device.PickerID = strings.TrimSpace(c.Device.PickerID)
	c.Device.APIToken = strings.TrimSpace(c.Device.APIToken)
	if c.Device.APIToken == "" {
		// A device talking to a local daemon usually shares its token.
		c.Device.APIToken = c.Server.APIToken
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
