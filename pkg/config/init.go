package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is the human-editable, comment-tolerant starter config
// written by InitConfig/InitConfigToPath. Every field in it is also a
// valid Config after defaulting, so a freshly initialized file loads
// cleanly.
const configTemplate = `# relayproxy configuration file
#
# listen_addr is where the proxy accepts client connections.
# target_addr is where every accepted connection is relayed to.
# metrics_addr is where the HTTP responder serves "/" and "/metrics".
listen_addr: "127.0.0.1:9000"
target_addr: "127.0.0.1:9001"
metrics_addr: "127.0.0.1:9100"

# grace_period_secs bounds how long shutdown waits for in-flight
# connections to drain before force-exiting.
grace_period_secs: 60

# metrics_log_interval_secs controls how often a metrics summary line is
# logged. Set to 0 to disable periodic logging.
metrics_log_interval_secs: 10

# channel_buffer_size is the capacity of the metrics event queue between
# relay tasks and the aggregator.
channel_buffer_size: 1000

logging:
  level: INFO
  format: text
  output: stdout

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  prometheus_addr: ""
  profiling:
    enabled: false
    endpoint: http://localhost:4040
`

// InitConfig writes a starter config file to the default location
// (GetDefaultConfigPath), failing unless force is set if one already
// exists. Returns the path written.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a starter config file to path, failing unless
// force is set if one already exists.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
