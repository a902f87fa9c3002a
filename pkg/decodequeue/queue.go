package decodequeue

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/user/framedeck/pkg/ports"
)

// maxDecodeAhead bounds how many frames a seek may scan forward before
// giving up. Matches the decoder's keyframe interval upper bound; keeps
// a seek near end of stream from spinning forever.
const maxDecodeAhead = 500

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("decode queue closed")

// ErrAudioUnsupported is delivered to audio tasks when the session
// cannot decode audio.
var ErrAudioUnsupported = errors.New("session cannot decode audio")

// Stats is a point-in-time snapshot of queue activity.
type Stats struct {
	Pending   int    // tasks waiting in the queue
	Executing TaskID // task currently on the worker, 0 when idle
	Enqueued  int64  // total tasks accepted
	Completed int64  // total tasks executed, including failed ones
	Cancelled int64  // total tasks dropped before execution
}

// Queue drains decode tasks in FIFO order on one worker goroutine.
// The session is owned by the worker; no decode call ever overlaps
// another. All other methods are safe for concurrent use.
type Queue struct {
	session ports.DecodeSession
	meta    ports.StreamMetadata
	logger  ports.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	pending   *list.List // of *Task
	tasks     map[TaskID]*Task
	nextID    TaskID
	executing TaskID
	closed    bool
	started   bool

	enqueued  int64
	completed int64
	cancelled int64

	wg sync.WaitGroup
}

// New creates a queue bound to one decode session. The queue does not
// own the session's lifetime; callers close the session after Close.
func New(session ports.DecodeSession, logger ports.Logger) *Queue {
	q := &Queue{
		session: session,
		meta:    session.StreamMetadata(),
		logger:  logger.WithComponent("decodequeue"),
		pending: list.New(),
		tasks:   make(map[TaskID]*Task),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker goroutine. Calling Start twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.wg.Add(1)
	go q.worker()
}

// Close stops the worker after the in-flight task finishes. Queued
// tasks are dropped without callbacks; their Done channels close.
// Close blocks until the worker exits and is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	q.cond.Broadcast()
	started := q.started
	if !started {
		q.dropPendingLocked()
	}
	q.mu.Unlock()
	if started {
		q.wg.Wait()
	}
}

// Enqueue appends a task and returns its identifier. Never blocks on
// decode completion. Returns 0 if the queue is closed; the task is then
// dropped with its Done channel closed and no callbacks.
func (q *Queue) Enqueue(t *Task) TaskID {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		close(t.done)
		return 0
	}
	q.nextID++
	t.id = q.nextID
	q.tasks[t.id] = t
	q.pending.PushBack(t)
	q.enqueued++
	q.cond.Signal()
	q.mu.Unlock()
	return t.id
}

// Cancel sets the cancellation flag on a queued or executing task.
// Unknown and already-completed IDs are a no-op.
func (q *Queue) Cancel(id TaskID) {
	q.mu.Lock()
	t := q.tasks[id]
	q.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

// CancelAll flags every queued and executing task.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	tasks := make([]*Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		tasks = append(tasks, t)
	}
	q.mu.Unlock()
	if len(tasks) > 0 {
		q.logger.Debug("Cancelling %d pending tasks", len(tasks))
	}
	for _, t := range tasks {
		t.Cancel()
	}
}

// Metadata returns the stream parameters of the underlying session,
// captured at queue construction.
func (q *Queue) Metadata() ports.StreamMetadata {
	return q.meta
}

// Stats returns a snapshot of queue activity.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:   q.pending.Len(),
		Executing: q.executing,
		Enqueued:  q.enqueued,
		Completed: q.completed,
		Cancelled: q.cancelled,
	}
}

// worker is the single goroutine through which every session call runs.
func (q *Queue) worker() {
	defer q.wg.Done()
	q.logger.Debug("Decode worker started")
	for {
		q.mu.Lock()
		for q.pending.Len() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.dropPendingLocked()
			q.mu.Unlock()
			break
		}
		front := q.pending.Front()
		q.pending.Remove(front)
		t := front.Value.(*Task)
		q.executing = t.id
		q.mu.Unlock()

		ran := q.execute(t)

		q.mu.Lock()
		q.executing = 0
		delete(q.tasks, t.id)
		if ran {
			q.completed++
		} else {
			q.cancelled++
		}
		q.mu.Unlock()
		close(t.done)
	}
	q.logger.Debug("Decode worker stopped")
}

// dropPendingLocked discards all queued tasks. Callers hold q.mu.
func (q *Queue) dropPendingLocked() {
	for e := q.pending.Front(); e != nil; e = e.Next() {
		t := e.Value.(*Task)
		delete(q.tasks, t.id)
		q.cancelled++
		close(t.done)
	}
	q.pending.Init()
}

// execute runs one task to completion or cancellation. Returns false
// when the task was dropped before touching the session.
func (q *Queue) execute(t *Task) bool {
	if t.Cancelled() {
		q.logger.Debug("Task %d cancelled before execution", t.id)
		return false
	}
	q.logger.Debug("Executing task %d (%s)", t.id, t.Kind)
	switch t.Kind {
	case KindSingleIndex:
		q.executeSingle(t, ports.PtsForFrameIndex(t.FrameIndex, q.meta.FPS))
	case KindSingleTimestamp:
		q.executeSingle(t, t.TimestampMs)
	case KindRange:
		q.executeRange(t)
	case KindAudio:
		q.executeAudio(t)
	}
	return true
}

// executeAudio runs an audio span decode on sessions that support it.
func (q *Queue) executeAudio(t *Task) {
	ad, ok := q.session.(ports.AudioDecoder)
	if !ok {
		if !t.Cancelled() && t.OnAudio != nil {
			t.OnAudio(nil, ErrAudioUnsupported)
		}
		return
	}
	frame, err := ad.DecodeAudioAt(t.TimestampMs, t.DurationMs)
	if t.Cancelled() {
		return
	}
	if err != nil {
		q.logger.Debug("Task %d failed: %s", t.id, err)
		if t.OnAudio != nil {
			t.OnAudio(nil, fmt.Errorf("decode audio at %dms: %w", t.TimestampMs, err))
		}
		return
	}
	if t.OnAudio != nil {
		t.OnAudio(frame, nil)
	}
}

// executeSingle decodes the first frame at or after targetMs and
// delivers exactly one callback, unless cancelled first.
func (q *Queue) executeSingle(t *Task, targetMs int64) {
	frame, err := q.decodeAt(targetMs)
	if t.Cancelled() {
		return
	}
	if err != nil {
		q.logger.Debug("Task %d failed: %s", t.id, err)
		if t.OnFrame != nil {
			t.OnFrame(nil, err)
		}
		return
	}
	if t.OnFrame != nil {
		t.OnFrame(frame, nil)
	}
}

// decodeAt seeks at-or-before targetMs and scans forward to the first
// frame whose timestamp reaches it.
func (q *Queue) decodeAt(targetMs int64) (*ports.VideoFrame, error) {
	if err := q.session.SeekNear(targetMs); err != nil {
		return nil, fmt.Errorf("seek to %dms: %w", targetMs, err)
	}
	for i := 0; i < maxDecodeAhead; i++ {
		frame, err := q.session.DecodeNextFrame()
		if err != nil {
			return nil, fmt.Errorf("decode near %dms: %w", targetMs, err)
		}
		if frame.PtsMs >= targetMs {
			return frame, nil
		}
	}
	return nil, fmt.Errorf("no frame at %dms within %d decodes", targetMs, maxDecodeAhead)
}

// executeRange seeks once to the range start, then decodes forward
// delivering each in-range frame in order. Stops at the range end, at
// the first decode failure, or when the cancellation flag is seen. The
// single seek is what makes a range cheaper than its frames requested
// one by one.
func (q *Queue) executeRange(t *Task) {
	total := int(t.EndIndex - t.StartIndex + 1)
	startMs := ports.PtsForFrameIndex(t.StartIndex, q.meta.FPS)
	if err := q.session.SeekNear(startMs); err != nil {
		if !t.Cancelled() && t.OnFrame != nil {
			t.OnFrame(nil, fmt.Errorf("seek to frame %d: %w", t.StartIndex, err))
		}
		return
	}

	processed := 0
	preroll := 0
	for processed < total {
		if t.Cancelled() {
			return
		}
		frame, err := q.session.DecodeNextFrame()
		if err != nil {
			q.logger.Debug("Task %d failed: %s", t.id, err)
			if t.OnFrame != nil {
				t.OnFrame(nil, fmt.Errorf("decode frame %d: %w", t.StartIndex+int64(processed), err))
			}
			return
		}
		// Frames between the seek keyframe and the range start are
		// decoded but not delivered.
		if frame.Index < t.StartIndex {
			preroll++
			if preroll > maxDecodeAhead {
				if t.OnFrame != nil {
					t.OnFrame(nil, fmt.Errorf("no frame %d within %d decodes", t.StartIndex, maxDecodeAhead))
				}
				return
			}
			continue
		}
		if frame.Index > t.EndIndex {
			return
		}
		if t.OnFrame != nil {
			t.OnFrame(frame, nil)
		}
		processed++
		if t.OnProgress != nil {
			t.OnProgress(processed, total)
		}
		if frame.Index == t.EndIndex {
			return
		}
	}
}
