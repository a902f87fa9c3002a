// Package framecache bounds decoded-frame memory by grouping frames
// into fixed-size batches loaded and evicted as units.
package framecache

import (
	"time"

	"github.com/user/framedeck/pkg/decodequeue"
	"github.com/user/framedeck/pkg/ports"
)

// Config is the immutable cache policy. Zero fields take defaults.
type Config struct {
	// BatchSize is the number of consecutive frames loaded as one unit.
	BatchSize int
	// PreloadThreshold is how close to a batch edge a read must land to
	// trigger loading the neighbor batch.
	PreloadThreshold int
	// MaxCachedBatches bounds how many populated batches stay cached.
	MaxCachedBatches int
	// MaxDistance is the frame-index distance from the latest read
	// beyond which a batch is evicted regardless of recency.
	MaxDistance int64
	// WaitTimeout bounds how long a read waits on a loading batch.
	WaitTimeout time.Duration
}

// DefaultConfig returns the policy used when callers pass a zero Config.
func DefaultConfig() Config {
	return Config{
		BatchSize:        30,
		PreloadThreshold: 5,
		MaxCachedBatches: 8,
		MaxDistance:      300,
		WaitTimeout:      10 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PreloadThreshold <= 0 {
		c.PreloadThreshold = d.PreloadThreshold
	}
	if c.MaxCachedBatches <= 0 {
		c.MaxCachedBatches = d.MaxCachedBatches
	}
	if c.MaxDistance <= 0 {
		c.MaxDistance = d.MaxDistance
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	return c
}

// batch is one cache unit: the frames of a contiguous index range,
// loaded together by a single range task.
//
// Lifecycle: loading from creation until the range task populates every
// index (loading flips false, done closes) or the load is aborted
// (removed from the cache, loadErr set, done closes). A populated batch
// never goes back to loading; its frames stay valid until eviction.
type batch struct {
	id     int64
	start  int64 // first frame index, inclusive
	end    int64 // last frame index, inclusive
	frames map[int64]*ports.VideoFrame

	loading bool
	loadErr error
	done    chan struct{}
	taskID  decodequeue.TaskID

	// lastTouched orders LRU eviction. It stays zero until the first
	// read demands the batch, so speculative batches nobody asked for
	// evict first.
	lastTouched time.Time
}

// containsFrame reports whether index lies in the range and is populated.
func (b *batch) containsFrame(index int64) bool {
	if index < b.start || index > b.end {
		return false
	}
	_, ok := b.frames[index]
	return ok
}

// size is the number of frame slots the batch covers.
func (b *batch) size() int {
	return int(b.end - b.start + 1)
}

// distanceTo is the minimum index distance from the batch range to a
// frame index, zero when the index falls inside the range.
func (b *batch) distanceTo(index int64) int64 {
	if index < b.start {
		return b.start - index
	}
	if index > b.end {
		return index - b.end
	}
	return 0
}
