package framedeck

import (
	"time"

	"github.com/user/framedeck/pkg/framecache"
	"github.com/user/framedeck/pkg/ports"
)

// CachePreset names a static batch cache configuration.
type CachePreset string

const (
	// PresetScrub4K keeps small batches and evicts aggressively, for
	// high-resolution sources where a single batch is already large.
	PresetScrub4K CachePreset = "scrub-4k"
	// PresetBalanced suits localized random access at common sizes.
	PresetBalanced CachePreset = "balanced"
	// PresetPlayback keeps large batches and a deep cache for smooth
	// sequential playback.
	PresetPlayback CachePreset = "playback"
	// PresetThumbnail keeps many tiny batches for strip rendering.
	PresetThumbnail CachePreset = "thumbnail"
	// PresetCustom marks a caller-supplied cache config.
	PresetCustom CachePreset = "custom"
)

// DefaultMemoryBudgetBytes is assumed when auto-configuration gets no
// explicit budget.
const DefaultMemoryBudgetBytes = 512 << 20

// Resolution thresholds for AutoConfig, in luma pixels.
const (
	pixels4K  = 3840 * 2160
	pixelsFHD = 1920 * 1080
)

// GetPresetConfig returns the cache policy for a named preset.
// Unknown names fall back to balanced.
func GetPresetConfig(preset CachePreset) framecache.Config {
	switch preset {
	case PresetScrub4K:
		return framecache.Config{
			BatchSize:        10,
			PreloadThreshold: 3,
			MaxCachedBatches: 3,
			MaxDistance:      60,
			WaitTimeout:      10 * time.Second,
		}
	case PresetPlayback:
		return framecache.Config{
			BatchSize:        60,
			PreloadThreshold: 10,
			MaxCachedBatches: 10,
			MaxDistance:      900,
			WaitTimeout:      10 * time.Second,
		}
	case PresetThumbnail:
		return framecache.Config{
			BatchSize:        15,
			PreloadThreshold: 2,
			MaxCachedBatches: 6,
			MaxDistance:      600,
			WaitTimeout:      10 * time.Second,
		}
	default: // balanced
		return framecache.Config{
			BatchSize:        30,
			PreloadThreshold: 5,
			MaxCachedBatches: 8,
			MaxDistance:      300,
			WaitTimeout:      10 * time.Second,
		}
	}
}

// AutoConfig picks a preset from the stream shape and clamps its depth
// to the memory budget. The table is static; it compares resolution
// thresholds and the budget, nothing adaptive.
func AutoConfig(meta ports.StreamMetadata, memoryBudgetBytes int64) (CachePreset, framecache.Config) {
	if memoryBudgetBytes <= 0 {
		memoryBudgetBytes = DefaultMemoryBudgetBytes
	}
	pixels := meta.Width * meta.Height

	var preset CachePreset
	switch {
	case pixels >= pixels4K:
		preset = PresetScrub4K
	case pixels >= pixelsFHD:
		preset = PresetBalanced
	default:
		preset = PresetPlayback
	}
	cfg := GetPresetConfig(preset)

	// A preset's depth assumes its resolution class; shrink it when the
	// budget cannot hold that many populated batches.
	frameBytes := int64(meta.Width) * int64(meta.Height) * 4
	batchBytes := frameBytes * int64(cfg.BatchSize)
	if batchBytes > 0 {
		maxBatches := int(memoryBudgetBytes / batchBytes)
		if maxBatches < 1 {
			maxBatches = 1
		}
		if maxBatches < cfg.MaxCachedBatches {
			cfg.MaxCachedBatches = maxBatches
		}
	}
	return preset, cfg
}
