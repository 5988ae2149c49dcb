package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the config against its struct tags and a small number
// of cross-field rules validator/v10 cannot express directly (e.g.
// telemetry requiring an endpoint once enabled).
//
// Validate does not normalize values (e.g. it accepts lowercase log
// levels); normalization is ApplyDefaults' job.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	return nil
}
