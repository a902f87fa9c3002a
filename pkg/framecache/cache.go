package framecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/framedeck/pkg/decodequeue"
	"github.com/user/framedeck/pkg/ports"
)

var (
	// ErrOutOfRange is returned for frame indices outside the stream.
	// No decode task is issued for such reads.
	ErrOutOfRange = errors.New("frame index out of range")
	// ErrWaitTimeout is returned when a read waited WaitTimeout on a
	// loading batch without the frame appearing.
	ErrWaitTimeout = errors.New("timed out waiting for batch load")
	// ErrLoadCancelled is returned to waiters whose batch load task was
	// cancelled before the batch filled.
	ErrLoadCancelled = errors.New("batch load cancelled")
	// ErrCleared is returned to waiters released by Clear.
	ErrCleared = errors.New("frame cache cleared")
)

// Stats is a read-only snapshot of cache occupancy.
// Hits counts reads served immediately from a populated batch; Misses
// counts batch loads started.
type Stats struct {
	CachedBatches        int
	LoadingBatches       int
	TotalFramesCached    int
	EstimatedMemoryBytes int64
	Hits                 int64
	Misses               int64
}

// Cache partitions the frame index space into fixed-size batches and
// keeps a bounded set of them populated. Misses enqueue one range task
// per batch; at most one load is ever in flight per batch id. Safe for
// concurrent use.
//
// Recency follows demand: a read marks its batch used the moment it
// arrives, populated or not. Preloaded batches stay unmarked until a
// read wants them, so speculative loads nobody asked for are the first
// eviction victims.
type Cache struct {
	cfg    Config
	queue  *decodequeue.Queue
	meta   ports.StreamMetadata
	logger ports.Logger

	mu         sync.Mutex
	batches    map[int64]*batch
	lastAccess int64
	hits       int64
	misses     int64

	subs    map[int]chan ports.BatchEvent
	nextSub int
}

// New creates a cache over a started queue. Zero Config fields take
// defaults.
func New(queue *decodequeue.Queue, cfg Config, logger ports.Logger) *Cache {
	return &Cache{
		cfg:     cfg.withDefaults(),
		queue:   queue,
		meta:    queue.Metadata(),
		logger:  logger.WithComponent("framecache"),
		batches: make(map[int64]*batch),
		subs:    make(map[int]chan ports.BatchEvent),
	}
}

// Config returns the policy the cache was built with.
func (c *Cache) Config() Config {
	return c.cfg
}

// GetFrame returns the frame at index, loading its batch on a miss.
// The calling goroutine blocks until the frame is available, the
// context is done, or WaitTimeout elapses; the decode worker itself
// never blocks here. Reads outside [0, totalFrames) fail without
// issuing any task.
func (c *Cache) GetFrame(ctx context.Context, index int64) (*ports.VideoFrame, error) {
	if index < 0 || index >= c.meta.TotalFrames {
		return nil, ErrOutOfRange
	}
	id := index / int64(c.cfg.BatchSize)
	deadline := time.Now().Add(c.cfg.WaitTimeout)
	immediate := true

	for {
		c.mu.Lock()
		b := c.batches[id]
		if b == nil {
			b = c.startLoadLocked(id)
			immediate = false
			if b.loadErr != nil {
				err := b.loadErr
				c.mu.Unlock()
				return nil, err
			}
		}
		if !b.loading {
			frame, ok := b.frames[index]
			if !ok {
				// The stream ended short of the estimated frame count.
				c.mu.Unlock()
				return nil, ErrOutOfRange
			}
			if immediate {
				c.hits++
			}
			c.touchLocked(b, index)
			c.afterAccessLocked(b, index)
			c.mu.Unlock()
			return frame, nil
		}
		// Waiting on a load counts as a use. Without this the count
		// sweep at load completion could victimize the very batch this
		// read is blocked on.
		c.touchLocked(b, index)
		done := b.done
		c.mu.Unlock()
		immediate = false

		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.logger.Warn("Wait for batch %d timed out", id)
			return nil, ErrWaitTimeout
		}
		timer := time.NewTimer(remaining)
		select {
		case <-done:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			c.logger.Warn("Wait for batch %d timed out", id)
			return nil, ErrWaitTimeout
		}

		c.mu.Lock()
		if b.loadErr != nil {
			err := b.loadErr
			c.mu.Unlock()
			return nil, err
		}
		if frame, ok := b.frames[index]; ok {
			// A sweep may have removed the batch from the map between
			// population and this wake; the batch object still holds
			// its frames.
			c.touchLocked(b, index)
			c.afterAccessLocked(b, index)
			c.mu.Unlock()
			return frame, nil
		}
		c.mu.Unlock()
		// Evicted while we waited without this index ever filling;
		// re-check from the top.
	}
}

// PreloadRange fires loads for every uncached batch overlapping
// [start, end], clamped to the stream, without waiting on any of them.
func (c *Cache) PreloadRange(start, end int64) {
	if start < 0 {
		start = 0
	}
	if end >= c.meta.TotalFrames {
		end = c.meta.TotalFrames - 1
	}
	if start > end {
		return
	}
	first := start / int64(c.cfg.BatchSize)
	last := end / int64(c.cfg.BatchSize)
	c.mu.Lock()
	for id := first; id <= last; id++ {
		if c.batches[id] == nil {
			c.startLoadLocked(id)
		}
	}
	c.mu.Unlock()
}

// Clear evicts every batch unconditionally. In-flight loads are
// cancelled and their waiters released with ErrCleared.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.batches)
	for id, b := range c.batches {
		if b.loading {
			if b.taskID != 0 {
				c.queue.Cancel(b.taskID)
			}
			b.loading = false
			b.loadErr = ErrCleared
			close(b.done)
		}
		delete(c.batches, id)
		c.emitLocked(ports.BatchEvent{Type: ports.BatchRemoved, BatchID: id})
	}
	c.mu.Unlock()
	if n > 0 {
		c.logger.Debug("Cache cleared (%d batches dropped)", n)
	}
}

// Stats returns a snapshot without mutating any cache state.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Hits: c.hits, Misses: c.misses}
	for _, b := range c.batches {
		if b.loading {
			s.LoadingBatches++
			continue
		}
		s.CachedBatches++
		s.TotalFramesCached += len(b.frames)
	}
	frameBytes := int64(c.meta.Width) * int64(c.meta.Height) * 4
	s.EstimatedMemoryBytes = int64(s.TotalFramesCached) * frameBytes
	return s
}

// maxBatchID is the id of the batch holding the last stream frame.
func (c *Cache) maxBatchID() int64 {
	if c.meta.TotalFrames <= 0 {
		return -1
	}
	return (c.meta.TotalFrames - 1) / int64(c.cfg.BatchSize)
}

// startLoadLocked creates a loading batch and enqueues its range task.
// Callers hold c.mu and have checked the id is absent and in range.
func (c *Cache) startLoadLocked(id int64) *batch {
	start := id * int64(c.cfg.BatchSize)
	end := start + int64(c.cfg.BatchSize) - 1
	if end >= c.meta.TotalFrames {
		end = c.meta.TotalFrames - 1
	}
	b := &batch{
		id:      id,
		start:   start,
		end:     end,
		frames:  make(map[int64]*ports.VideoFrame, int(end-start+1)),
		loading: true,
		done:    make(chan struct{}),
	}
	c.batches[id] = b
	c.misses++

	t := decodequeue.NewRangeTask(start, end,
		func(frame *ports.VideoFrame, err error) { c.onFrame(b, frame, err) },
		func(processed, total int) { c.onProgress(b, processed, total) },
	)
	b.taskID = c.queue.Enqueue(t)
	if b.taskID == 0 {
		b.loading = false
		b.loadErr = decodequeue.ErrClosed
		delete(c.batches, id)
		close(b.done)
		return b
	}
	c.logger.Debug("Loading batch %d (frames %d-%d)", id, start, end)
	c.emitLocked(ports.BatchEvent{Type: ports.BatchLoadingStarted, BatchID: id, Total: b.size()})
	go c.watchLoad(b, t)
	return b
}

// onFrame runs on the decode worker for every frame of a batch load.
// A decode failure aborts the whole batch: partial frames are
// discarded, the batch leaves the cache, and waiters get the error. A
// retry after failure re-decodes the batch from its start.
func (c *Cache) onFrame(b *batch, frame *ports.VideoFrame, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !b.loading {
		return
	}
	if err != nil {
		b.loading = false
		b.loadErr = err
		if c.batches[b.id] == b {
			delete(c.batches, b.id)
		}
		c.logger.Warn("Batch %d load failed: %s", b.id, err)
		c.emitLocked(ports.BatchEvent{Type: ports.BatchFailed, BatchID: b.id, Processed: len(b.frames), Total: b.size(), Err: err})
		close(b.done)
		return
	}
	if frame == nil || !(frame.Index >= b.start && frame.Index <= b.end) {
		return
	}
	b.frames[frame.Index] = frame
	if len(b.frames) == b.size() {
		b.loading = false
		close(b.done)
		c.logger.Debug("Batch %d populated with %d frames", b.id, len(b.frames))
		c.emitLocked(ports.BatchEvent{Type: ports.BatchCompleted, BatchID: b.id, Processed: len(b.frames), Total: b.size()})
		c.countEvictLocked()
	}
}

// onProgress forwards range progress to event subscribers.
func (c *Cache) onProgress(b *batch, processed, total int) {
	c.mu.Lock()
	c.emitLocked(ports.BatchEvent{Type: ports.BatchProgress, BatchID: b.id, Processed: processed, Total: total})
	c.mu.Unlock()
}

// watchLoad releases waiters when a load task ends without completing
// its batch, which happens when the task is cancelled or dropped at
// queue close.
func (c *Cache) watchLoad(b *batch, t *decodequeue.Task) {
	<-t.Done()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !b.loading {
		return
	}
	b.loading = false
	b.loadErr = ErrLoadCancelled
	if c.batches[b.id] == b {
		delete(c.batches, b.id)
	}
	c.emitLocked(ports.BatchEvent{Type: ports.BatchFailed, BatchID: b.id, Processed: len(b.frames), Total: b.size(), Err: ErrLoadCancelled})
	close(b.done)
}

// touchLocked records a successful read: the batch becomes the most
// recently used and the access point moves to index.
func (c *Cache) touchLocked(b *batch, index int64) {
	b.lastTouched = time.Now()
	c.lastAccess = index
}

// afterAccessLocked runs the preload heuristic and the eviction sweeps
// that follow every successful read.
func (c *Cache) afterAccessLocked(b *batch, index int64) {
	if index-b.start < int64(c.cfg.PreloadThreshold) {
		c.preloadLocked(b.id - 1)
	}
	if b.end-index < int64(c.cfg.PreloadThreshold) {
		c.preloadLocked(b.id + 1)
	}
	c.distanceEvictLocked(index)
	c.countEvictLocked()
}

// preloadLocked fires a speculative load for a neighbor batch.
func (c *Cache) preloadLocked(id int64) {
	if id < 0 || id > c.maxBatchID() || c.batches[id] != nil {
		return
	}
	c.logger.Debug("Preloading batch %d", id)
	c.startLoadLocked(id)
}

// distanceEvictLocked drops populated batches farther than MaxDistance
// from the access point, regardless of how recently they were read.
// Bounds growth when the caller jumps across the timeline.
func (c *Cache) distanceEvictLocked(index int64) {
	for _, b := range c.batches {
		if b.loading {
			continue
		}
		if d := b.distanceTo(index); d > c.cfg.MaxDistance {
			c.logger.Debug("Evicted batch %d (distance %d)", b.id, d)
			c.evictLocked(b)
		}
	}
}

// countEvictLocked drops least-recently-read batches until the
// populated count fits MaxCachedBatches. Runs after reads and after
// load completions.
func (c *Cache) countEvictLocked() {
	for {
		var populated []*batch
		for _, b := range c.batches {
			if !b.loading {
				populated = append(populated, b)
			}
		}
		if len(populated) <= c.cfg.MaxCachedBatches {
			return
		}
		victim := populated[0]
		for _, b := range populated[1:] {
			if c.olderLocked(b, victim) {
				victim = b
			}
		}
		c.logger.Debug("Evicted batch %d (cache full)", victim.id)
		c.evictLocked(victim)
	}
}

// olderLocked orders batches for LRU eviction: least recently read
// first; among never-read batches the one farther from the last access
// goes first; the lower id breaks remaining ties.
func (c *Cache) olderLocked(a, b *batch) bool {
	if !a.lastTouched.Equal(b.lastTouched) {
		return a.lastTouched.Before(b.lastTouched)
	}
	da, db := a.distanceTo(c.lastAccess), b.distanceTo(c.lastAccess)
	if da != db {
		return da > db
	}
	return a.id < b.id
}

// evictLocked removes a populated batch from the cache.
func (c *Cache) evictLocked(b *batch) {
	delete(c.batches, b.id)
	c.emitLocked(ports.BatchEvent{Type: ports.BatchRemoved, BatchID: b.id})
}
