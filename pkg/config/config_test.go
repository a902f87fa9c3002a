package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/framedeck/pkg/framedeck"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Preset != "" {
		t.Errorf("expected auto preset, got %q", cfg.Preset)
	}
	if cfg.MemoryBudgetMB != 512 {
		t.Errorf("expected 512MB budget, got %d", cfg.MemoryBudgetMB)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info log level, got %q", cfg.LogLevel)
	}
	if cfg.Cache != (CacheConfig{}) {
		t.Errorf("expected empty cache overrides, got %+v", cfg.Cache)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	yamlContent := `
preset: playback
memory_budget_mb: 1024
log_level: debug
cache:
  batch_size: 45
  preload_threshold: 8
  max_cached_batches: 4
  max_distance: 500
  wait_timeout_ms: 2000
ffmpeg:
  ffmpeg_path: /opt/ffmpeg/bin/ffmpeg
  ffprobe_path: /opt/ffmpeg/bin/ffprobe
`
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Preset != "playback" {
		t.Errorf("expected playback preset, got %q", cfg.Preset)
	}
	if cfg.MemoryBudgetMB != 1024 {
		t.Errorf("expected 1024MB budget, got %d", cfg.MemoryBudgetMB)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %q", cfg.LogLevel)
	}
	if cfg.Cache.BatchSize != 45 {
		t.Errorf("expected batch size 45, got %d", cfg.Cache.BatchSize)
	}
	if cfg.Cache.WaitTimeoutMs != 2000 {
		t.Errorf("expected 2000ms wait timeout, got %d", cfg.Cache.WaitTimeoutMs)
	}
	if cfg.FFmpeg.FFmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("unexpected ffmpeg path %q", cfg.FFmpeg.FFmpegPath)
	}
	if cfg.FFmpeg.FFprobePath != "/opt/ffmpeg/bin/ffprobe" {
		t.Errorf("unexpected ffprobe path %q", cfg.FFmpeg.FFprobePath)
	}
}

func TestLoadFromFile_PartialKeepsDefaults(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected warn log level, got %q", cfg.LogLevel)
	}
	if cfg.MemoryBudgetMB != 512 {
		t.Errorf("expected default budget for unset key, got %d", cfg.MemoryBudgetMB)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromFile_Malformed(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("cache: [not a map\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestConfig_ToOptions(t *testing.T) {
	cfg := Defaults()
	cfg.Preset = "balanced"
	opts := cfg.ToOptions()

	if opts.Preset != framedeck.PresetBalanced {
		t.Errorf("expected balanced preset, got %s", opts.Preset)
	}
	if opts.MemoryBudgetBytes != 512<<20 {
		t.Errorf("expected 512MiB in bytes, got %d", opts.MemoryBudgetBytes)
	}
	// No explicit cache keys means preset selection stays in charge.
	if opts.Cache != nil {
		t.Errorf("expected nil cache config, got %+v", opts.Cache)
	}
}

func TestConfig_ToOptions_CacheOverride(t *testing.T) {
	cfg := Defaults()
	cfg.Cache = CacheConfig{
		BatchSize:        20,
		PreloadThreshold: 4,
		MaxCachedBatches: 5,
		MaxDistance:      200,
		WaitTimeoutMs:    1500,
	}
	opts := cfg.ToOptions()

	if opts.Cache == nil {
		t.Fatal("expected explicit cache config")
	}
	if opts.Cache.BatchSize != 20 {
		t.Errorf("expected batch size 20, got %d", opts.Cache.BatchSize)
	}
	if opts.Cache.WaitTimeout != 1500*time.Millisecond {
		t.Errorf("expected 1.5s wait timeout, got %v", opts.Cache.WaitTimeout)
	}
	if opts.Cache.MaxDistance != 200 {
		t.Errorf("expected max distance 200, got %d", opts.Cache.MaxDistance)
	}
}
