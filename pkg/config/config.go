package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the relay proxy's configuration.
//
// This structure captures the full static configuration of the proxy: the
// relay's own listen/target/grace/buffer settings plus the ambient logging
// and telemetry stacks. There is no dynamic configuration; every field is
// read once at startup.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (RELAYPROXY_*) (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// The --config CLI flag only selects which file is read; no flag
// overrides an individual field.
type Config struct {
	// ListenAddr is the address the proxy accepts client connections on.
	ListenAddr string `mapstructure:"listen_addr" validate:"required" yaml:"listen_addr"`

	// TargetAddr is the upstream address the proxy dials for every
	// accepted client connection.
	TargetAddr string `mapstructure:"target_addr" validate:"required" yaml:"target_addr"`

	// MetricsAddr is the address the HttpResponder binds, serving "/" and
	// "/metrics".
	MetricsAddr string `mapstructure:"metrics_addr" validate:"required" yaml:"metrics_addr"`

	// GracePeriod is how long shutdown waits for in-flight relays to
	// drain before the watchdog force-exits the process.
	GracePeriod time.Duration `mapstructure:"grace_period_secs" validate:"required,gt=0" yaml:"grace_period_secs"`

	// MetricsLogInterval is how often the metrics aggregator logs a
	// human-readable summary snapshot. Zero disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval_secs" yaml:"metrics_log_interval_secs"`

	// ChannelBufferSize is the capacity of the bounded metrics event
	// channel between relay tasks and the aggregator.
	ChannelBufferSize int `mapstructure:"channel_buffer_size" validate:"required,gt=0" yaml:"channel_buffer_size"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing, optional Prometheus
	// exposition, and optional continuous profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written.
	// Valid values: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry tracing, the optional Prometheus
// exposition, and optional continuous profiling.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// PrometheusAddr, when non-empty, starts a second listener exposing
	// the same four counters in Prometheus exposition format. This is
	// independent of MetricsAddr and never alters its "/"+"/metrics"
	// contract.
	PrometheusAddr string `mapstructure:"prometheus_addr" yaml:"prometheus_addr,omitempty"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RELAYPROXY_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// ApplyDefaults cannot tell an explicit 0 from an unset field, so an
	// explicit metrics_log_interval_secs of 0 is restored after defaulting
	// to keep periodic logging disabled.
	logIntervalDisabled := v.IsSet("metrics_log_interval_secs") && cfg.MetricsLogInterval == 0
	ApplyDefaults(&cfg)
	if logIntervalDisabled {
		cfg.MetricsLogInterval = 0
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages, pointing the
// user at `relayproxy init` if no config file exists at the default or
// requested location.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  relayproxy init\n\n"+
				"Or specify a custom config file:\n"+
				"  relayproxy <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  relayproxy init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML
// format, creating parent directories as needed.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variable and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the RELAYPROXY_ prefix, e.g.
	// RELAYPROXY_LOGGING_LEVEL=DEBUG.
	v.SetEnvPrefix("RELAYPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. Returns
// (fileFound, error) where fileFound indicates whether a config file was
// found at all.
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

// configDecodeHooks returns the combined mapstructure decode hook used to
// unmarshal human-readable duration strings.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings and bare numbers to time.Duration so
// config files can use "30s", "5m", "1h" as well as a plain integer number
// of seconds for the *_secs fields (spec.md §9).
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				return d, nil
			}
			// Fall back to treating a bare numeric string as seconds.
			var secs float64
			if _, err := fmt.Sscanf(v, "%f", &secs); err == nil {
				return time.Duration(secs * float64(time.Second)), nil
			}
			return data, nil
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, using
// XDG_CONFIG_HOME if set, otherwise ~/.config, falling back to the current
// directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "relayproxy")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "relayproxy")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
