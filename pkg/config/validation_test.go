package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	require.Error(t, Validate(cfg))
}

func TestValidate_MissingListenAddr(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.ListenAddr = ""

	require.Error(t, Validate(cfg))
}

func TestValidate_ZeroGracePeriod(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.GracePeriod = 0

	require.Error(t, Validate(cfg))
}

func TestValidate_ZeroChannelBufferSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.ChannelBufferSize = 0

	require.Error(t, Validate(cfg))
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry")
}

func TestValidate_TelemetrySampleRateOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRate = 1.5

	require.Error(t, Validate(cfg))
}

func TestValidate_LogLevelCaseInsensitive(t *testing.T) {
	for _, level := range []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		err := Validate(cfg)
		assert.NoError(t, err, "level %q should validate", level)
		assert.Equal(t, level, cfg.Logging.Level, "Validate must not normalize")
	}

	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	assert.Equal(t, "INFO", strings.ToUpper(cfg.Logging.Level))
}
