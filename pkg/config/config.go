package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wxpppp/garage/pkg/model"
)

// Config is the daemon configuration, loadable from YAML with flag
// overrides on top.
type Config struct {
	// DataDir holds the metadata and block databases.
	DataDir string `yaml:"data_dir"`

	// Listen is the S3 API listen address.
	Listen string `yaml:"listen"`
	// MetricsListen serves Prometheus metrics and pprof.
	MetricsListen string `yaml:"metrics_listen"`

	// BlockSize is the plaintext size of streamed blocks in bytes.
	BlockSize int `yaml:"block_size"`
	// InlineThreshold bounds inline storage: payloads shorter than this
	// are stored in the object table.
	InlineThreshold int `yaml:"inline_threshold"`

	// GCIntervalSecs is the pause between GC sweep cycles, in seconds.
	GCIntervalSecs int `yaml:"gc_interval_secs"`

	// DefaultQuotas apply to buckets created on first use.
	DefaultQuotas model.BucketQuotas `yaml:"default_quotas"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		DataDir:         "/var/lib/garage",
		Listen:          ":3900",
		MetricsListen:   ":3909",
		BlockSize:       1 << 20,
		InlineThreshold: 3072,
		GCIntervalSecs:  600,
		LogLevel:        "info",
	}
}

// GCInterval returns the configured sweep cadence as a duration.
func (c Config) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalSecs) * time.Second
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.BlockSize <= 0 {
		return cfg, fmt.Errorf("block_size must be positive, got %d", cfg.BlockSize)
	}
	if cfg.InlineThreshold < 0 {
		return cfg, fmt.Errorf("inline_threshold must not be negative, got %d", cfg.InlineThreshold)
	}
	return cfg, nil
}
