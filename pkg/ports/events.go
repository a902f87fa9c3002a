package ports

// BatchEventType identifies a batch cache lifecycle notification.
type BatchEventType int

const (
	// BatchLoadingStarted fires when a load task is enqueued for a batch.
	BatchLoadingStarted BatchEventType = iota
	// BatchProgress fires after each frame of a batch load arrives.
	BatchProgress
	// BatchCompleted fires when a batch becomes fully populated.
	BatchCompleted
	// BatchFailed fires when a batch load is aborted by a decode error.
	BatchFailed
	// BatchRemoved fires when a batch is evicted or cleared.
	BatchRemoved
)

// String returns the string representation of the event type.
func (t BatchEventType) String() string {
	switch t {
	case BatchLoadingStarted:
		return "loading-started"
	case BatchProgress:
		return "progress"
	case BatchCompleted:
		return "completed"
	case BatchFailed:
		return "failed"
	case BatchRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// BatchEvent is a batch cache notification delivered on a side channel.
// The getFrame return value alone does not distinguish timeout from
// decode failure; subscribers use these events for diagnostics.
type BatchEvent struct {
	Type      BatchEventType
	BatchID   int64
	Processed int
	Total     int
	Err       error
}
