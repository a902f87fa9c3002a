// Package decodequeue serializes all decode session access onto a single
// worker goroutine through a FIFO task queue.
package decodequeue

import (
	"sync/atomic"

	"github.com/user/framedeck/pkg/ports"
)

// TaskID identifies an enqueued task. IDs are positive and increase
// monotonically per queue; 0 is never a valid ID.
type TaskID int64

// TaskKind selects how a task drives the decode session.
type TaskKind int

const (
	// KindSingleIndex decodes the one frame with the given index.
	KindSingleIndex TaskKind = iota
	// KindSingleTimestamp decodes the first frame at or after a timestamp.
	KindSingleTimestamp
	// KindRange decodes frames StartIndex through EndIndex sequentially
	// after a single seek.
	KindRange
	// KindAudio decodes an audio span on sessions that support it.
	KindAudio
)

// String returns the string representation of the task kind.
func (k TaskKind) String() string {
	switch k {
	case KindSingleIndex:
		return "single-index"
	case KindSingleTimestamp:
		return "single-timestamp"
	case KindRange:
		return "range"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// FrameCallback delivers one decoded frame, or nil with the error that
// stopped decoding. Invoked on the worker goroutine; implementations
// must not call back into the queue's session.
type FrameCallback func(frame *ports.VideoFrame, err error)

// ProgressCallback reports range progress after each delivered frame.
type ProgressCallback func(processed, total int)

// AudioCallback delivers one decoded audio span or the error that
// prevented it.
type AudioCallback func(frame *ports.AudioFrame, err error)

// Task is one unit of decode work. Parameter fields are read by the
// worker after Enqueue and must not be mutated; cancellation goes
// through Cancel, which is safe from any goroutine.
type Task struct {
	Kind        TaskKind
	FrameIndex  int64 // KindSingleIndex: target frame number
	TimestampMs int64 // KindSingleTimestamp, KindAudio: target timestamp
	DurationMs  int64 // KindAudio: span length
	StartIndex  int64 // KindRange: first frame, inclusive
	EndIndex    int64 // KindRange: last frame, inclusive
	OnFrame     FrameCallback
	OnProgress  ProgressCallback
	OnAudio     AudioCallback

	id        TaskID
	cancelled atomic.Bool
	done      chan struct{}
}

// NewSingleIndexTask creates a task decoding the one frame at index.
func NewSingleIndexTask(index int64, onFrame FrameCallback) *Task {
	return &Task{
		Kind:       KindSingleIndex,
		FrameIndex: index,
		OnFrame:    onFrame,
		done:       make(chan struct{}),
	}
}

// NewSingleTimestampTask creates a task decoding the first frame at or
// after timestampMs.
func NewSingleTimestampTask(timestampMs int64, onFrame FrameCallback) *Task {
	return &Task{
		Kind:        KindSingleTimestamp,
		TimestampMs: timestampMs,
		OnFrame:     onFrame,
		done:        make(chan struct{}),
	}
}

// NewRangeTask creates a task decoding frames start through end
// inclusive with one seek. onProgress may be nil.
func NewRangeTask(start, end int64, onFrame FrameCallback, onProgress ProgressCallback) *Task {
	return &Task{
		Kind:       KindRange,
		StartIndex: start,
		EndIndex:   end,
		OnFrame:    onFrame,
		OnProgress: onProgress,
		done:       make(chan struct{}),
	}
}

// NewAudioTask creates a task decoding durationMs of audio starting at
// timestampMs.
func NewAudioTask(timestampMs, durationMs int64, onAudio AudioCallback) *Task {
	return &Task{
		Kind:        KindAudio,
		TimestampMs: timestampMs,
		DurationMs:  durationMs,
		OnAudio:     onAudio,
		done:        make(chan struct{}),
	}
}

// ID returns the identifier assigned at Enqueue, 0 before that.
func (t *Task) ID() TaskID {
	return t.id
}

// Cancel sets the cancellation flag. Best-effort: callbacks already in
// flight are not rolled back, and a single-frame decode already started
// still runs to completion before the flag is checked.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether the cancellation flag is set.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Done returns a channel closed when the task finishes executing or is
// dropped. The channel never delivers a value.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
