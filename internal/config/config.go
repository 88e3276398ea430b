package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the central daemon settings.
type Server struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Orders contains configuration for the order-of-record service.
type Orders struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SessionEvents  bool   `toml:"session_events"`
	ActionSynced   bool   `toml:"action_synced"`
	DeadLetters    bool   `toml:"dead_letters"`
	LocalReset     bool   `toml:"local_reset"`
}

// Device contains configuration for the handheld offline agent.
type Device struct {
	DataDir              string `toml:"data_dir"`
	ServerURL            string `toml:"server_url"`
	APIToken             string `toml:"api_token"`
	PickerID             string `toml:"picker_id"`
	DrainIntervalSeconds int    `toml:"drain_interval_seconds"`
	BackoffBaseSeconds   int    `toml:"backoff_base_seconds"`
	BackoffMaxSeconds    int    `toml:"backoff_max_seconds"`
	RequestTimeout       int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Pickline.
//
// Configuration sections by subsystem:
//   - Server: data directory, API bind address and bearer token
//   - Orders: order-of-record endpoint used when sessions are created
//   - Notifications: ntfy topic and per-event toggles
//   - Device: offline queue location, server endpoint and retry timing
//   - Logging: log format and level
type Config struct {
	Server        Server        `toml:"server"`
	Orders        Orders        `toml:"orders"`
	Notifications Notifications `toml:"notifications"`
	Device        Device        `toml:"device"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pickline.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the server data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Server.DataDir, c.Server.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// EnsureDeviceDirectories creates the device data directory.
func (c *Config) EnsureDeviceDirectories() error {
	if err := os.MkdirAll(c.Device.DataDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Device.DataDir, err)
	}
	return nil
}

// DatabasePath is the SQLite file holding sessions and the action ledger.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Server.DataDir, "pickline.db")
}

// LockPath guards a single daemon per server data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Server.DataDir, "picklined.lock")
}

// QueuePath is the device-side SQLite file holding pending actions.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Device.DataDir, "queue.db")
}

// CacheDir is the badger directory holding the cached session view.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Device.DataDir, "session-cache")
}

// DeviceLockPath guards a single drain agent per device data directory.
func (c *Config) DeviceLockPath() string {
	return filepath.Join(c.Device.DataDir, "agent.lock")
}

// DrainInterval returns the device queue polling cadence.
func (c *Config) DrainInterval() time.Duration {
	return time.Duration(c.Device.DrainIntervalSeconds) * time.Second
}

// Backoff returns the base and ceiling delays for failed submissions.
func (c *Config) Backoff() (time.Duration, time.Duration) {
	return time.Duration(c.Device.BackoffBaseSeconds) * time.Second,
		time.Duration(c.Device.BackoffMaxSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
