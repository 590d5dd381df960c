// Package config loads the core's on-disk configuration: the KV database
// path, the async cleanup worker's queue capacity, and logging.
//
// Configuration is a tagged struct with defaults applied by ApplyDefaults,
// loaded via spf13/viper with an env prefix and optional YAML file.
// Duration and byte-size values are decoded through mitchellh/mapstructure
// decode hooks so either a human-readable string or a raw number works in
// the config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/txnfsal/txnfsal/internal/bytesize"
)

// envPrefix is the environment variable prefix for overrides, e.g.
// TXNFSAL_KVSTORE_PATH.
const envPrefix = "TXNFSAL"

// Config is the core's full on-disk configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// KVStore configures the persistent identity map / transaction log
	// store.
	KVStore KVStoreConfig `mapstructure:"kvstore" yaml:"kvstore"`

	// ExportRoot is the lower filesystem path the backup store stages
	// pre-images under (<export_root>/.txn/...).
	ExportRoot string `mapstructure:"export_root" yaml:"export_root"`

	// Cleanup configures the asynchronous backup-directory cleanup worker.
	Cleanup CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`

	// Metrics holds Prometheus metrics HTTP endpoint settings. No package in
	// this module starts such a server or reads these settings.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a path.
	Output string `mapstructure:"output" yaml:"output"`
}

// KVStoreConfig configures the persistent badger-backed store.
type KVStoreConfig struct {
	// Path is the directory badger opens its database in.
	Path string `mapstructure:"path" yaml:"path"`

	// ValueLogSizeLimit is a badger value-log file size limit.
	// Supports human-readable formats: "1GB", "512MB". kvstore.Open takes
	// only a path and does not apply it; badger's default limit is used.
	ValueLogSizeLimit bytesize.ByteSize `mapstructure:"value_log_size_limit" yaml:"value_log_size_limit,omitempty"`
}

// CleanupConfig configures the asynchronous backup cleanup worker.
type CleanupConfig struct {
	// QueueCapacity is the cleanup ring buffer's capacity.
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity"`

	// PollInterval defaults to one second. The cleanup worker does not read
	// it: it drains the queue on its own fixed one-second interval.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// MetricsConfig holds Prometheus metrics HTTP endpoint settings; nothing in
// this module serves such an endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port"`
}

// ApplyDefaults fills in any zero-valued field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	if cfg.KVStore.Path == "" {
		cfg.KVStore.Path = "/var/lib/txnfsal/kv"
	}
	if cfg.KVStore.ValueLogSizeLimit == 0 {
		cfg.KVStore.ValueLogSizeLimit = 1 * bytesize.GB
	}
	if cfg.ExportRoot == "" {
		cfg.ExportRoot = "/export"
	}
	if cfg.Cleanup.QueueCapacity <= 0 {
		cfg.Cleanup.QueueCapacity = 131072
	}
	if cfg.Cleanup.PollInterval <= 0 {
		cfg.Cleanup.PollInterval = time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// Validate checks a fully-defaulted Config for internal consistency.
func Validate(cfg *Config) error {
	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid logging level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format %q", cfg.Logging.Format)
	}
	if cfg.KVStore.Path == "" {
		return fmt.Errorf("kvstore.path is required")
	}
	if cfg.ExportRoot == "" {
		return fmt.Errorf("export_root is required")
	}
	if cfg.Cleanup.QueueCapacity <= 0 {
		return fmt.Errorf("cleanup.queue_capacity must be positive, got %d", cfg.Cleanup.QueueCapacity)
	}
	return nil
}

// Load loads configuration from an optional YAML file and environment
// variables (TXNFSAL_*), then fills every field still zero with its
// default. An environment variable overrides only a key the YAML file
// sets; when no file is found, nothing is unmarshalled and environment
// variables are not read, so the result is the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("txnfsal")
		v.SetConfigType("yaml")
	}
}

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

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// SaveConfig writes cfg to path in YAML form, creating parent directories
// as needed.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yamlMarshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
