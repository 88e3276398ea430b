package config

const (
	defaultConfigPath           = "~/.config/pickline/config.toml"
	defaultServerDataDir        = "~/.local/share/pickline"
	defaultServerLogDir         = "~/.local/share/pickline/logs"
	defaultDeviceDataDir        = "~/.local/share/pickline/device"
	defaultAPIBind              = "127.0.0.1:7610"
	defaultDeviceServerURL      = "http://127.0.0.1:7610"
	defaultOrdersTimeoutSeconds = 10
	defaultNotifyRequestTimeout = 10
	defaultDrainIntervalSeconds = 5
	defaultBackoffBaseSeconds   = 2
	defaultBackoffMaxSeconds    = 300
	defaultDeviceRequestTimeout = 15
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			DataDir: defaultServerDataDir,
			LogDir:  defaultServerLogDir,
			APIBind: defaultAPIBind,
		},
		Orders: Orders{
			TimeoutSeconds: defaultOrdersTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			SessionEvents:  true,
			ActionSynced:   false,
			DeadLetters:    true,
			LocalReset:     true,
		},
		Device: Device{
			DataDir:              defaultDeviceDataDir,
			ServerURL:            defaultDeviceServerURL,
			DrainIntervalSeconds: defaultDrainIntervalSeconds,
			BackoffBaseSeconds:   defaultBackoffBaseSeconds,
			BackoffMaxSeconds:    defaultBackoffMaxSeconds,
			RequestTimeout:       defaultDeviceRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
