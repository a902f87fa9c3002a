package framedeck

import (
	"github.com/user/framedeck/pkg/framecache"
	"github.com/user/framedeck/pkg/ports"
)

// Options configures Open. The zero value selects a preset from the
// stream shape and logs nothing.
type Options struct {
	// Cache overrides all preset selection when non-nil.
	Cache *framecache.Config
	// Preset names a static cache policy; empty means auto-select.
	Preset CachePreset
	// MemoryBudgetBytes caps the auto-selected cache footprint.
	// Zero means DefaultMemoryBudgetBytes.
	MemoryBudgetBytes int64
	// Logger receives facade, queue, and cache logs. Nil discards them.
	Logger ports.Logger
	// Source labels the media in logs and errors.
	Source string
}

// OptionsBuilder provides a fluent interface for building Options.
type OptionsBuilder struct {
	opts Options
}

// NewOptionsBuilder creates a builder with auto-selection defaults.
func NewOptionsBuilder() *OptionsBuilder {
	return &OptionsBuilder{}
}

// WithCache pins an explicit cache policy, bypassing presets.
func (b *OptionsBuilder) WithCache(cfg framecache.Config) *OptionsBuilder {
	b.opts.Cache = &cfg
	return b
}

// WithPreset selects a named cache preset.
func (b *OptionsBuilder) WithPreset(preset CachePreset) *OptionsBuilder {
	b.opts.Preset = preset
	return b
}

// WithMemoryBudget caps the auto-selected cache footprint in bytes.
func (b *OptionsBuilder) WithMemoryBudget(bytes int64) *OptionsBuilder {
	b.opts.MemoryBudgetBytes = bytes
	return b
}

// WithLogger sets the logger for the media and its components.
func (b *OptionsBuilder) WithLogger(logger ports.Logger) *OptionsBuilder {
	b.opts.Logger = logger
	return b
}

// WithSource labels the media in logs and errors.
func (b *OptionsBuilder) WithSource(source string) *OptionsBuilder {
	b.opts.Source = source
	return b
}

// Build returns the final Options.
func (b *OptionsBuilder) Build() Options {
	return b.opts
}
