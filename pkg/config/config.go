// Package config loads the carton library configuration from YAML files
// and environment variables.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (CARTON_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cartonfs/carton/internal/bytesize"
	"github.com/cartonfs/carton/pkg/freelist"
)

// Config captures the static configuration of the carton runtime:
// logging, version gate policy, termination behavior, debug streams,
// free-list limits and metrics.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Version controls the compile-time version gate
	Version VersionConfig `mapstructure:"version" yaml:"version"`

	// Terminate controls library shutdown behavior
	Terminate TerminateConfig `mapstructure:"terminate" yaml:"terminate"`

	// Debug selects per-package diagnostic streams, same syntax as the
	// CARTON_DEBUG environment variable
	Debug DebugConfig `mapstructure:"debug" yaml:"debug"`

	// FreeList bounds the memory retained by the free-list pools
	FreeList FreeListConfig `mapstructure:"freelist" yaml:"freelist"`

	// Metrics enables the Prometheus registry
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format selects text or json output
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is the destination: stderr, stdout, or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// VersionConfig controls the version gate.
type VersionConfig struct {
	// CheckPolicy selects what happens on a version mismatch:
	// 0 aborts the process, 1 warns, 2 and above stay silent.
	// The CARTON_DISABLE_VERSION_CHECK environment variable overrides it.
	CheckPolicy uint `mapstructure:"check_policy" validate:"lte=2" yaml:"check_policy"`
}

// TerminateConfig controls library shutdown.
type TerminateConfig struct {
	// Attempts bounds the number of passes the shutdown loop makes over
	// the phase table before giving up
	Attempts int `mapstructure:"attempts" validate:"required,gt=0" yaml:"attempts"`

	// DisableAutoCleanup skips installing the process exit handler
	DisableAutoCleanup bool `mapstructure:"disable_auto_cleanup" yaml:"disable_auto_cleanup"`
}

// DebugConfig selects diagnostic streams.
type DebugConfig struct {
	// Mask is a debug mask string, e.g. "+cache,-all" or "trace"
	Mask string `mapstructure:"mask" yaml:"mask"`
}

// FreeListConfig bounds free-list memory. Zero means unlimited; sizes
// accept human-readable strings like "8Mi" or "512Ki".
type FreeListConfig struct {
	RegularPerList bytesize.ByteSize `mapstructure:"regular_per_list" yaml:"regular_per_list"`
	RegularGlobal  bytesize.ByteSize `mapstructure:"regular_global" yaml:"regular_global"`
	ArrayPerList   bytesize.ByteSize `mapstructure:"array_per_list" yaml:"array_per_list"`
	ArrayGlobal    bytesize.ByteSize `mapstructure:"array_global" yaml:"array_global"`
	BlockPerList   bytesize.ByteSize `mapstructure:"block_per_list" yaml:"block_per_list"`
	BlockGlobal    bytesize.ByteSize `mapstructure:"block_global" yaml:"block_global"`
}

// Limits converts the configured sizes to free-list limits. Unset values
// mean unlimited.
func (fl FreeListConfig) Limits() freelist.Limits {
	toLimit := func(b bytesize.ByteSize) int {
		if b == 0 {
			return freelist.Unlimited
		}
		return b.Int()
	}
	return freelist.Limits{
		RegularGlobal: toLimit(fl.RegularGlobal),
		RegularList:   toLimit(fl.RegularPerList),
		ArrayGlobal:   toLimit(fl.ArrayGlobal),
		ArrayList:     toLimit(fl.ArrayPerList),
		BlockGlobal:   toLimit(fl.BlockGlobal),
		BlockList:     toLimit(fl.BlockPerList),
	}
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load reads the configuration from the given path, or from the default
// location when path is empty. Environment variables with the CARTON_
// prefix override file values, e.g. CARTON_LOGGING_LEVEL=DEBUG.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return Default(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Dump renders the configuration as YAML.
func Dump(cfg *Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// Save writes the configuration to a YAML file, creating parent
// directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variable support and the config file
// search path.
func setupViper(v *viper.Viper, configPath string) {
	// CARTON_LOGGING_LEVEL=DEBUG maps to logging.level
	v.SetEnvPrefix("CARTON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the config file if one exists. A missing file is
// not an error; defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// decodeHooks converts human-readable byte sizes during unmarshal.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// configDir returns the configuration directory, honoring XDG_CONFIG_HOME.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "carton")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "carton")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}
