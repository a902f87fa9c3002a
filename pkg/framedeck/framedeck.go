// Package framedeck provides the high-level frame access API: one call
// to fetch any frame of an open media, with batching, caching, and
// preloading handled underneath.
package framedeck

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ideamans/go-l10n"

	"github.com/user/framedeck/pkg/decodequeue"
	"github.com/user/framedeck/pkg/framecache"
	"github.com/user/framedeck/pkg/ports"
)

// noopLogger is the default when Options.Logger is nil.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...interface{}) {}
func (noopLogger) Info(msg string, args ...interface{})  {}
func (noopLogger) Warn(msg string, args ...interface{})  {}
func (noopLogger) Error(msg string, args ...interface{}) {}

func (n noopLogger) WithComponent(component string) ports.Logger { return n }

var (
	// ErrOpen wraps failures to bind a media source.
	ErrOpen = errors.New("cannot open media")
	// ErrReleased is returned for operations on a released media.
	ErrReleased = errors.New("media released")
	// ErrNoAudio is returned when the source carries no decodable audio.
	ErrNoAudio = errors.New("stream has no audio")
	// ErrCancelled is returned when a request's task was cancelled
	// before delivering a result.
	ErrCancelled = errors.New("request cancelled")
)

// extractCacheSize is the number of memoized point extracts kept per
// media. Sized for scrub-bar thumbnails, not playback.
const extractCacheSize = 16

// Stats combines cache occupancy with queue activity.
type Stats struct {
	Cache framecache.Stats
	Queue decodequeue.Stats
}

// Media is an open source bound to its decode session, task queue, and
// batch cache. All methods are safe for concurrent use. Release must
// be called when done.
type Media struct {
	id      string
	source  string
	preset  CachePreset
	session ports.DecodeSession
	queue   *decodequeue.Queue
	cache   *framecache.Cache
	meta    ports.StreamMetadata
	logger  ports.Logger

	extracts *lru.Cache[int64, *ports.VideoFrame]
	released atomic.Bool
}

// Open binds a decode session and builds the queue and cache over it.
// With no explicit cache config or preset, a preset is chosen from the
// stream shape. The media owns the session from here on; Release
// closes it.
func Open(session ports.DecodeSession, opts Options) (*Media, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: nil session", ErrOpen)
	}
	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}
	source := opts.Source
	if source == "" {
		source = "session"
	}
	log.Info(l10n.F("Opening %s", source))

	meta := session.StreamMetadata()
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, fmt.Errorf("%w: no video stream in %s", ErrOpen, source)
	}
	if meta.TotalFrames <= 0 {
		return nil, fmt.Errorf("%w: empty stream in %s", ErrOpen, source)
	}

	preset := opts.Preset
	var cfg framecache.Config
	switch {
	case opts.Cache != nil:
		cfg = *opts.Cache
		preset = PresetCustom
	case preset != "":
		cfg = GetPresetConfig(preset)
	default:
		preset, cfg = AutoConfig(meta, opts.MemoryBudgetBytes)
	}
	log.Info(l10n.F("Selected %s preset", string(preset)))

	extracts, err := lru.New[int64, *ports.VideoFrame](extractCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	queue := decodequeue.New(session, log)
	queue.Start()

	m := &Media{
		id:       uuid.NewString(),
		source:   source,
		preset:   preset,
		session:  session,
		queue:    queue,
		cache:    framecache.New(queue, cfg, log),
		meta:     meta,
		logger:   log,
		extracts: extracts,
	}
	log.Info(l10n.F("Opened %s: %dx%d %.2f fps, %d frames", source, meta.Width, meta.Height, meta.FPS, meta.TotalFrames))
	return m, nil
}

// ID returns the handle identifier assigned at Open.
func (m *Media) ID() string {
	return m.id
}

// Source returns the source label the media was opened with.
func (m *Media) Source() string {
	return m.source
}

// Preset returns the cache preset the media runs with.
func (m *Media) Preset() CachePreset {
	return m.preset
}

// Metadata returns the stream parameters.
func (m *Media) Metadata() ports.StreamMetadata {
	return m.meta
}

// GetFrame returns the frame at index, loading and caching its batch
// on a miss. Blocks the caller up to the cache's wait timeout; never
// blocks the decode worker.
func (m *Media) GetFrame(ctx context.Context, index int64) (*ports.VideoFrame, error) {
	if m.released.Load() {
		return nil, ErrReleased
	}
	return m.cache.GetFrame(ctx, index)
}

// PreloadRange fires loads for all batches overlapping [start, end]
// without waiting for any of them.
func (m *Media) PreloadRange(start, end int64) {
	if m.released.Load() {
		return
	}
	m.cache.PreloadRange(start, end)
}

// PreloadAround preloads the batches within radius frames of center.
func (m *Media) PreloadAround(center, radius int64) {
	m.PreloadRange(center-radius, center+radius)
}

// Cancel flags a task for best-effort cancellation.
func (m *Media) Cancel(id decodequeue.TaskID) {
	m.queue.Cancel(id)
}

// Stats returns cache and queue snapshots.
func (m *Media) Stats() Stats {
	return Stats{
		Cache: m.cache.Stats(),
		Queue: m.queue.Stats(),
	}
}

// Events subscribes to batch lifecycle notifications. The returned
// cancel function must be called to release the subscription.
func (m *Media) Events() (<-chan ports.BatchEvent, func()) {
	return m.cache.Subscribe()
}

// ClearCache drops every cached batch without releasing the media.
func (m *Media) ClearCache() {
	m.cache.Clear()
}

// Release cancels all in-flight work, clears the cache, stops the
// worker, and closes the session. Safe to call more than once.
func (m *Media) Release() error {
	if m.released.Swap(true) {
		return nil
	}
	m.queue.CancelAll()
	m.cache.Clear()
	m.queue.Close()
	m.extracts.Purge()
	err := m.session.Close()
	m.logger.Info(l10n.T("Media released"))
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
