package testsupport

import (
	"path/filepath"
	"testing"

	"pickline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Server.DataDir = filepath.Join(base, "server")
	cfgVal.Server.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.APIBind = "127.0.0.1:0"
	cfgVal.Orders.BaseURL = "http://127.0.0.1:1"
	cfgVal.Device.DataDir = filepath.Join(base, "device")
	cfgVal.Device.PickerID = "picker-1"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithOrdersURL points the order-of-record client at a test server.
func WithOrdersURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Orders.BaseURL = url
	}
}

// WithServerURL points the device agent at a test server.
func WithServerURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Device.ServerURL = url
	}
}

// WithNtfyTopic enables notifications against a test server.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
	}
}

// WithAPIToken sets the bearer token on both the server and the device.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.APIToken = token
		b.cfg.Device.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Server.DataDir)
}
