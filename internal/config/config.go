package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config configures the developer tooling (collector and emitter). The SDK
// itself is configured programmatically by its host; only the binaries read
// the environment.
type Config struct {
	Environment   string `envconfig:"TELLING_ENVIRONMENT" default:"development"`
	CollectorPort string `envconfig:"TELLING_COLLECTOR_PORT" default:"8080"`
	APIKey        string `envconfig:"TELLING_API_KEY" default:"dev-key"`

	// FailStatus, when non-zero, makes the collector answer every batch with
	// that status code. Used to exercise the SDK's backoff and disable paths.
	FailStatus int `envconfig:"TELLING_FAIL_STATUS" default:"0"`

	// RedisAddr, when set, backs the emitter's durable store with Redis
	// instead of local files.
	RedisAddr string `envconfig:"TELLING_REDIS_ADDR"`

	// StorageDir is where the file-backed store keeps its records.
	StorageDir string `envconfig:"TELLING_STORAGE_DIR" default:".telling"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
