package config

const (
	defaultDataDir          = "~/.local/share/clipbatch"
	defaultLogDir           = "~/.local/share/clipbatch/logs"
	defaultAPIBind          = "127.0.0.1:7319"
	defaultLogFormat        = "auto"
	defaultLogLevel         = "info"
	defaultConcurrency      = 3
	defaultMaxRetries       = 3
	defaultRetryBaseDelayMS = 1000
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Queue: Queue{
			Concurrency:       defaultConcurrency,
			DefaultMaxRetries: defaultMaxRetries,
			RetryBaseDelayMS:  defaultRetryBaseDelayMS,
			DefaultPriority:   0,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
