package config

// Default values applied when the config file or a section is missing.
const (
	DefaultLogLevel          = "INFO"
	DefaultLogFormat         = "text"
	DefaultLogOutput         = "stderr"
	DefaultTerminateAttempts = 100
)

// Default returns a fully populated configuration.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields that have defaults. Free-list
// limits default to zero, meaning unlimited.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = DefaultLogOutput
	}
	if cfg.Terminate.Attempts == 0 {
		cfg.Terminate.Attempts = DefaultTerminateAttempts
	}
}
