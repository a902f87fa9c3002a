package framecache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/user/framedeck/pkg/adapters/logger"
	"github.com/user/framedeck/pkg/decodequeue"
	"github.com/user/framedeck/pkg/mocks"
	"github.com/user/framedeck/pkg/ports"
)

// drainQueue waits until the worker has finished everything enqueued
// before it. The sentinel is an audio task the mock session cannot
// serve, so it completes without touching decode state.
func drainQueue(q *decodequeue.Queue) {
	t := decodequeue.NewAudioTask(0, 0, nil)
	q.Enqueue(t)
	<-t.Done()
}

// populatedIDs lists the ids of fully loaded batches in order.
func populatedIDs(c *Cache) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []int64
	for id, b := range c.batches {
		if !b.loading {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func newTestCache(totalFrames int64, cfg Config) (*Cache, *mocks.DecodeSession, *decodequeue.Queue) {
	sess := mocks.NewDecodeSession(totalFrames)
	q := decodequeue.New(sess, logger.NewNoop())
	q.Start()
	return New(q, cfg, logger.NewNoop()), sess, q
}

func TestCache_GetFrame_MissThenHit(t *testing.T) {
	c, _, q := newTestCache(100, Config{BatchSize: 10, PreloadThreshold: 1})
	defer q.Close()

	first, err := c.GetFrame(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Index != 7 {
		t.Errorf("expected frame 7, got %d", first.Index)
	}

	second, err := c.GetFrame(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Error("expected the cached frame on the second read")
	}

	stats := c.Stats()
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.CachedBatches != 1 {
		t.Errorf("expected 1 cached batch, got %d", stats.CachedBatches)
	}
}

func TestCache_GetFrame_OutOfRange(t *testing.T) {
	c, _, q := newTestCache(100, Config{BatchSize: 10})
	defer q.Close()

	tests := []struct {
		name  string
		index int64
	}{
		{"negative", -1},
		{"at total", 100},
		{"past total", 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.GetFrame(context.Background(), tt.index); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("expected ErrOutOfRange, got %v", err)
			}
		})
	}
	if enqueued := q.Stats().Enqueued; enqueued != 0 {
		t.Errorf("expected no decode tasks for out-of-range reads, got %d", enqueued)
	}
}

func TestCache_GetFrame_QueueClosed(t *testing.T) {
	c, _, q := newTestCache(100, Config{BatchSize: 10})
	q.Close()

	if _, err := c.GetFrame(context.Background(), 0); !errors.Is(err, decodequeue.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestCache_GetFrame_SingleFlight(t *testing.T) {
	c, _, q := newTestCache(100, Config{BatchSize: 10, PreloadThreshold: 1})
	defer q.Close()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			frame, err := c.GetFrame(context.Background(), 5)
			if err == nil && frame.Index != 5 {
				err = errors.New("wrong frame")
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("reader %d: unexpected error: %v", i, err)
		}
	}
	if misses := c.Stats().Misses; misses != 1 {
		t.Errorf("expected a single batch load for concurrent readers, got %d", misses)
	}
}

// A read near the batch end preloads the next batch without any read
// landing in it.
func TestCache_Preload_NearBatchEnd(t *testing.T) {
	c, sess, q := newTestCache(100, Config{BatchSize: 30, PreloadThreshold: 5, MaxCachedBatches: 2})
	defer q.Close()

	if _, err := c.GetFrame(context.Background(), 27); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drainQueue(q)

	ids := populatedIDs(c)
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("expected batches [0 1] cached, got %v", ids)
	}
	if misses := c.Stats().Misses; misses != 2 {
		t.Errorf("expected 2 batch loads, got %d", misses)
	}
	// Frames 30-59 were decoded without an explicit read.
	if sess.DecodeCalls != 60 {
		t.Errorf("expected 60 frames decoded, got %d", sess.DecodeCalls)
	}
}

// Walking frames 28, 2, 58 loads batches 0 and 1 and preloads batch 2;
// the count bound then evicts the one batch nothing ever read.
func TestCache_Eviction_SpeculativeBatchFirst(t *testing.T) {
	c, _, q := newTestCache(100, Config{BatchSize: 30, PreloadThreshold: 5, MaxCachedBatches: 2})
	defer q.Close()

	for _, index := range []int64{28, 2, 58} {
		frame, err := c.GetFrame(context.Background(), index)
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", index, err)
		}
		if frame.Index != index {
			t.Fatalf("expected frame %d, got %d", index, frame.Index)
		}
		drainQueue(q)
	}

	ids := populatedIDs(c)
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Errorf("expected batches [0 1] cached, got %v", ids)
	}
	// Batch 2 was loaded by the preload at frame 58 and evicted unread.
	if misses := c.Stats().Misses; misses != 3 {
		t.Errorf("expected 3 batch loads, got %d", misses)
	}
}

func TestCache_Eviction_CountBound(t *testing.T) {
	c, _, q := newTestCache(100, Config{BatchSize: 10, PreloadThreshold: 1, MaxCachedBatches: 2, MaxDistance: 1000})
	defer q.Close()

	for _, index := range []int64{5, 15, 25, 35, 45} {
		if _, err := c.GetFrame(context.Background(), index); err != nil {
			t.Fatalf("frame %d: unexpected error: %v", index, err)
		}
		if n := c.Stats().CachedBatches; n > 2 {
			t.Fatalf("after reading frame %d: %d batches cached, limit 2", index, n)
		}
	}

	ids := populatedIDs(c)
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 4 {
		t.Errorf("expected the two most recently read batches [3 4], got %v", ids)
	}
}

func TestCache_Eviction_Distance(t *testing.T) {
	c, _, q := newTestCache(100, Config{BatchSize: 10, PreloadThreshold: 1, MaxCachedBatches: 8, MaxDistance: 20})
	defer q.Close()

	if _, err := c.GetFrame(context.Background(), 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.GetFrame(context.Background(), 95); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := populatedIDs(c)
	if len(ids) != 1 || ids[0] != 9 {
		t.Errorf("expected only batch 9 after the jump, got %v", ids)
	}
}

func TestCache_GetFrame_FailedBatchNotCached(t *testing.T) {
	c, sess, q := newTestCache(100, Config{BatchSize: 10, PreloadThreshold: 1})
	defer q.Close()

	sess.FailErr = mocks.ErrDecodeFailed
	sess.FailAtIndex = 5

	_, err := c.GetFrame(context.Background(), 3)
	if !errors.Is(err, mocks.ErrDecodeFailed) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	stats := c.Stats()
	if stats.CachedBatches != 0 || stats.LoadingBatches != 0 {
		t.Errorf("expected failed batch absent, got %d cached %d loading", stats.CachedBatches, stats.LoadingBatches)
	}

	// A later read retries the whole batch.
	sess.FailErr = nil
	frame, err := c.GetFrame(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if frame.Index != 3 {
		t.Errorf("expected frame 3, got %d", frame.Index)
	}
	if misses := c.Stats().Misses; misses != 2 {
		t.Errorf("expected 2 batch loads, got %d", misses)
	}
}

func TestCache_GetFrame_WaitTimeout(t *testing.T) {
	sess := mocks.NewDecodeSession(100)
	q := decodequeue.New(sess, logger.NewNoop())
	defer q.Close()
	c := New(q, Config{BatchSize: 10, WaitTimeout: 50 * time.Millisecond}, logger.NewNoop())

	// The worker never starts, so the load never finishes.
	if _, err := c.GetFrame(context.Background(), 0); !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("expected ErrWaitTimeout, got %v", err)
	}
}

func TestCache_GetFrame_ContextCancelled(t *testing.T) {
	sess := mocks.NewDecodeSession(100)
	q := decodequeue.New(sess, logger.NewNoop())
	defer q.Close()
	c := New(q, Config{BatchSize: 10}, logger.NewNoop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetFrame(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCache_Clear_ReleasesWaiters(t *testing.T) {
	sess := mocks.NewDecodeSession(100)
	q := decodequeue.New(sess, logger.NewNoop())
	defer q.Close()
	c := New(q, Config{BatchSize: 10}, logger.NewNoop())

	events, cancel := c.Subscribe()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetFrame(context.Background(), 5)
		errCh <- err
	}()

	// The load has started once its event arrives; the worker is not
	// running, so it can never finish on its own.
	if ev := <-events; ev.Type != ports.BatchLoadingStarted {
		t.Fatalf("expected loading event, got %v", ev.Type)
	}
	c.Clear()

	if err := <-errCh; !errors.Is(err, ErrCleared) {
		t.Errorf("expected ErrCleared, got %v", err)
	}
	if n := c.Stats().LoadingBatches + c.Stats().CachedBatches; n != 0 {
		t.Errorf("expected empty cache after Clear, got %d batches", n)
	}
}

func TestCache_QueueClose_ReleasesWaiters(t *testing.T) {
	sess := mocks.NewDecodeSession(100)
	q := decodequeue.New(sess, logger.NewNoop())
	c := New(q, Config{BatchSize: 10}, logger.NewNoop())

	events, cancel := c.Subscribe()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetFrame(context.Background(), 5)
		errCh <- err
	}()

	if ev := <-events; ev.Type != ports.BatchLoadingStarted {
		t.Fatalf("expected loading event, got %v", ev.Type)
	}
	q.Close()

	if err := <-errCh; !errors.Is(err, ErrLoadCancelled) {
		t.Errorf("expected ErrLoadCancelled, got %v", err)
	}
}

func TestCache_PreloadRange(t *testing.T) {
	c, _, q := newTestCache(100, Config{BatchSize: 25, PreloadThreshold: 1})
	defer q.Close()

	c.PreloadRange(-5, 1000)
	drainQueue(q)

	ids := populatedIDs(c)
	if len(ids) != 4 {
		t.Fatalf("expected 4 batches cached, got %v", ids)
	}
	if misses := c.Stats().Misses; misses != 4 {
		t.Errorf("expected 4 batch loads, got %d", misses)
	}

	// Already cached ranges fire nothing.
	c.PreloadRange(0, 99)
	drainQueue(q)
	if misses := c.Stats().Misses; misses != 4 {
		t.Errorf("expected no further loads, got %d", misses)
	}
}

func TestCache_Stats(t *testing.T) {
	c, _, q := newTestCache(100, Config{BatchSize: 10, PreloadThreshold: 1})
	defer q.Close()

	if _, err := c.GetFrame(context.Background(), 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats := c.Stats()
	if stats.CachedBatches != 1 {
		t.Errorf("expected 1 cached batch, got %d", stats.CachedBatches)
	}
	if stats.TotalFramesCached != 10 {
		t.Errorf("expected 10 cached frames, got %d", stats.TotalFramesCached)
	}
	// 64x36 RGBA frames.
	if want := int64(10 * 64 * 36 * 4); stats.EstimatedMemoryBytes != want {
		t.Errorf("expected %d bytes estimated, got %d", want, stats.EstimatedMemoryBytes)
	}
}

func TestCache_Events_LoadLifecycle(t *testing.T) {
	c, _, q := newTestCache(20, Config{BatchSize: 5, PreloadThreshold: 1})
	defer q.Close()

	events, cancel := c.Subscribe()

	if _, err := c.GetFrame(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var types []ports.BatchEventType
	var lastProcessed int
	for ev := range events {
		types = append(types, ev.Type)
		if ev.Type == ports.BatchProgress {
			lastProcessed = ev.Processed
		}
		if ev.Type == ports.BatchCompleted {
			break
		}
	}
	if types[0] != ports.BatchLoadingStarted {
		t.Errorf("expected loading event first, got %v", types[0])
	}
	if types[len(types)-1] != ports.BatchCompleted {
		t.Errorf("expected completed event last, got %v", types[len(types)-1])
	}
	if lastProcessed != 5 {
		t.Errorf("expected final progress 5, got %d", lastProcessed)
	}

	cancel()
	if _, ok := <-events; ok {
		t.Error("expected event channel closed after cancel")
	}
}

func TestCache_Config_Defaults(t *testing.T) {
	c, _, q := newTestCache(100, Config{})
	defer q.Close()

	if got := c.Config(); got != DefaultConfig() {
		t.Errorf("expected default config, got %+v", got)
	}

	c2, _, q2 := newTestCache(100, Config{BatchSize: 12})
	defer q2.Close()
	got := c2.Config()
	if got.BatchSize != 12 {
		t.Errorf("expected batch size 12, got %d", got.BatchSize)
	}
	if got.MaxCachedBatches != DefaultConfig().MaxCachedBatches {
		t.Errorf("expected default max batches, got %d", got.MaxCachedBatches)
	}
}
