package framedeck

import (
	"context"

	"github.com/user/framedeck/pkg/decodequeue"
	"github.com/user/framedeck/pkg/framecache"
	"github.com/user/framedeck/pkg/ports"
)

// FrameResult is one delivery on a StreamRange channel.
type FrameResult struct {
	Frame *ports.VideoFrame
	Err   error
}

// ExtractFrameAt decodes the first frame at or after timestampMs,
// bypassing the batch cache. Repeated extracts at the same timestamp
// are memoized, which is the scrub-thumbnail pattern: a handful of
// hot spots, no locality between them.
func (m *Media) ExtractFrameAt(ctx context.Context, timestampMs int64) (*ports.VideoFrame, error) {
	if m.released.Load() {
		return nil, ErrReleased
	}
	if timestampMs < 0 || timestampMs > m.meta.DurationMs {
		return nil, framecache.ErrOutOfRange
	}
	if frame, ok := m.extracts.Get(timestampMs); ok {
		return frame, nil
	}

	var (
		frame *ports.VideoFrame
		derr  error
	)
	t := decodequeue.NewSingleTimestampTask(timestampMs, func(f *ports.VideoFrame, err error) {
		frame, derr = f, err
	})
	if m.queue.Enqueue(t) == 0 {
		return nil, ErrReleased
	}
	select {
	case <-t.Done():
	case <-ctx.Done():
		t.Cancel()
		return nil, ctx.Err()
	}
	if derr != nil {
		return nil, derr
	}
	if frame == nil {
		return nil, ErrCancelled
	}
	m.extracts.Add(timestampMs, frame)
	return frame, nil
}

// ExtractAudioAt decodes durationMs of audio starting at timestampMs
// on sessions that support it. Serialized through the queue like every
// session call.
func (m *Media) ExtractAudioAt(ctx context.Context, timestampMs, durationMs int64) (*ports.AudioFrame, error) {
	if m.released.Load() {
		return nil, ErrReleased
	}
	if _, ok := m.session.(ports.AudioDecoder); !ok || !m.meta.HasAudio() {
		return nil, ErrNoAudio
	}
	if timestampMs < 0 || timestampMs > m.meta.DurationMs {
		return nil, framecache.ErrOutOfRange
	}

	var (
		audio *ports.AudioFrame
		derr  error
	)
	t := decodequeue.NewAudioTask(timestampMs, durationMs, func(f *ports.AudioFrame, err error) {
		audio, derr = f, err
	})
	if m.queue.Enqueue(t) == 0 {
		return nil, ErrReleased
	}
	select {
	case <-t.Done():
	case <-ctx.Done():
		t.Cancel()
		return nil, ctx.Err()
	}
	if derr != nil {
		return nil, derr
	}
	if audio == nil {
		return nil, ErrCancelled
	}
	return audio, nil
}

// StreamRange decodes frames start through end in order, delivering
// them on the returned channel. The channel is buffered for the whole
// range so the decode worker never waits on a slow consumer; it closes
// after the last frame or the first error. The returned task id can be
// passed to Cancel.
func (m *Media) StreamRange(ctx context.Context, start, end int64) (<-chan FrameResult, decodequeue.TaskID, error) {
	if m.released.Load() {
		return nil, 0, ErrReleased
	}
	if start < 0 || end >= m.meta.TotalFrames || start > end {
		return nil, 0, framecache.ErrOutOfRange
	}

	ch := make(chan FrameResult, end-start+1)
	t := decodequeue.NewRangeTask(start, end, func(f *ports.VideoFrame, err error) {
		if err != nil {
			ch <- FrameResult{Err: err}
			return
		}
		ch <- FrameResult{Frame: f}
	}, nil)
	id := m.queue.Enqueue(t)
	if id == 0 {
		return nil, 0, ErrReleased
	}
	go func() {
		select {
		case <-ctx.Done():
			t.Cancel()
			<-t.Done()
		case <-t.Done():
		}
		close(ch)
	}()
	return ch, id, nil
}
