package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"pickline/internal/api"
	"pickline/internal/config"
	"pickline/internal/logging"
	"pickline/internal/notifications"
	"pickline/internal/offline"
)

type globalFlags struct {
	config  string
	server  string
	token   string
	verbose bool
	json    bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.flags != nil && c.flags.json
}

func (c *commandContext) logger() *slog.Logger {
	cfg, _ := c.ensureConfig()
	logger, err := logging.NewCLI(cfg, c.flags.verbose)
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) serverURL(cfg *config.Config) string {
	if url := strings.TrimSpace(c.flags.server); url != "" {
		return strings.TrimRight(url, "/")
	}
	return cfg.Device.ServerURL
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	base := c.serverURL(cfg)
	if base == "" {
		return nil, errors.New("server url not configured; set device.server_url or pass --server")
	}
	token := strings.TrimSpace(c.flags.token)
	if token == "" {
		token = cfg.Device.APIToken
	}
	timeout := time.Duration(cfg.Device.RequestTimeout) * time.Second
	return api.NewClient(base, token, timeout), nil
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	client, err := c.apiClient()
	if err != nil {
		return err
	}
	if err := fn(client); err != nil {
		return describeAPIError(err, client.BaseURL())
	}
	return nil
}

// device bundles the handheld-side state every device command touches.
type device struct {
	cfg   *config.Config
	queue *offline.Queue
	cache *offline.Cache
	agent *offline.Agent
}

func (d *device) Close() {
	if d.cache != nil {
		_ = d.cache.Close()
	}
	if d.queue != nil {
		_ = d.queue.Close()
	}
}

// openDevice opens the local queue and prepares the session cache. Neither
// holds the device lock, so these commands work next to a running drain loop.
func (c *commandContext) openDevice(opts ...offline.AgentOption) (*device, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Device.PickerID) == "" {
		return nil, errors.New("device.picker_id is not configured")
	}
	q, err := offline.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open device queue: %w", err)
	}
	logger := c.logger()
	cache, err := offline.OpenCache(cfg.CacheDir(), logger)
	if err != nil {
		_ = q.Close()
		return nil, err
	}
	dev := &device{cfg: cfg, queue: q, cache: cache}

	client, err := c.apiClient()
	if err != nil {
		dev.Close()
		return nil, err
	}
	base, max := cfg.Backoff()
	opts = append([]offline.AgentOption{
		offline.WithBackoff(base, max),
		offline.WithInterval(cfg.DrainInterval()),
	}, opts...)
	dev.agent = offline.NewAgent(q, cache, client, cfg.Device.PickerID, notifications.NewService(cfg), logger, opts...)
	return dev, nil
}

// lockDevice takes the per-device agent lock so only one drain loop runs.
func lockDevice(cfg *config.Config) (*flock.Flock, error) {
	lock := flock.New(cfg.DeviceLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire device lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another device agent holds %s; stop pickline device run first", cfg.DeviceLockPath())
	}
	return lock, nil
}

// tryLockDevice is lockDevice for commands that can skip draining. It returns
// a nil lock when another agent already drains the queue.
func tryLockDevice(cfg *config.Config) (*flock.Flock, error) {
	if err := cfg.EnsureDeviceDirectories(); err != nil {
		return nil, err
	}
	lock := flock.New(cfg.DeviceLockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire device lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return lock, nil
}

func describeAPIError(err error, baseURL string) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("contact picklined at %s: %w", baseURL, err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
