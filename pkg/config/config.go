// Package config provides configuration loading and management.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/framedeck/pkg/framecache"
	"github.com/user/framedeck/pkg/framedeck"
)

// Config represents the full configuration for framedeck.
type Config struct {
	// Cache policy
	Preset         string      `yaml:"preset"`
	Cache          CacheConfig `yaml:"cache"`
	MemoryBudgetMB int64       `yaml:"memory_budget_mb"`

	// Decoder binaries
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// CacheConfig mirrors the batch cache policy for YAML. A zero struct
// keeps the selected preset untouched.
type CacheConfig struct {
	BatchSize        int   `yaml:"batch_size"`
	PreloadThreshold int   `yaml:"preload_threshold"`
	MaxCachedBatches int   `yaml:"max_cached_batches"`
	MaxDistance      int64 `yaml:"max_distance"`
	WaitTimeoutMs    int   `yaml:"wait_timeout_ms"`
}

// FFmpegConfig points at the decoder binaries.
// Empty paths fall back to searching PATH and common install locations.
type FFmpegConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		// Cache: preset auto-selected from the stream
		Preset:         "",
		MemoryBudgetMB: 512,

		// Logging
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ToOptions converts Config to framedeck open options. The logger and
// source label are the caller's concern.
func (c Config) ToOptions() framedeck.Options {
	opts := framedeck.Options{
		Preset:            framedeck.CachePreset(c.Preset),
		MemoryBudgetBytes: c.MemoryBudgetMB << 20,
	}
	if c.Cache != (CacheConfig{}) {
		opts.Cache = &framecache.Config{
			BatchSize:        c.Cache.BatchSize,
			PreloadThreshold: c.Cache.PreloadThreshold,
			MaxCachedBatches: c.Cache.MaxCachedBatches,
			MaxDistance:      c.Cache.MaxDistance,
			WaitTimeout:      time.Duration(c.Cache.WaitTimeoutMs) * time.Millisecond,
		}
	}
	return opts
}
