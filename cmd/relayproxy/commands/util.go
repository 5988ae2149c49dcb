package commands

import (
	"fmt"

	"github.com/relayctl/relayproxy/internal/logger"
	"github.com/relayctl/relayproxy/pkg/config"
)

// initLogger configures the package-level logger from the loaded config.
func initLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
