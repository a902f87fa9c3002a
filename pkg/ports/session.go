// Package ports defines the interfaces between the scheduling core and its adapters.
package ports

// VideoFrame represents one decoded video frame with timing information.
// The pixel buffer is packed RGBA, Stride bytes per row. A frame is
// immutable once produced; ownership passes to whoever stores it.
type VideoFrame struct {
	Data   []byte
	Width  int
	Height int
	Stride int
	PtsMs  int64
	Index  int64 // frame number derived from PtsMs and the stream fps, -1 if unknown
}

// AudioFrame represents a run of decoded audio samples.
// Samples are interleaved float32 in channel order.
type AudioFrame struct {
	Samples     []float32
	SampleRate  int
	Channels    int
	PtsMs       int64
	SampleCount int // samples per channel
}

// StreamMetadata describes an opened media stream.
// Audio fields are zero when the source has no audio track.
type StreamMetadata struct {
	Width           int
	Height          int
	FPS             float64
	TotalFrames     int64
	DurationMs      int64
	AudioSampleRate int
	AudioChannels   int
}

// HasAudio reports whether the stream carries a decodable audio track.
func (m StreamMetadata) HasAudio() bool {
	return m.AudioSampleRate > 0 && m.AudioChannels > 0
}

// FallbackFPS is assumed when a container reports no usable frame rate.
const FallbackFPS = 30.0

// FrameIndexForPts converts a presentation timestamp to a frame number.
// Container timestamps are millisecond-truncated, so the conversion
// rounds half-up rather than flooring (33ms at 30fps is frame 1, not 0).
// Returns -1 when fps is unknown.
func FrameIndexForPts(ptsMs int64, fps float64) int64 {
	if fps <= 0 {
		return -1
	}
	return int64(float64(ptsMs)/1000.0*fps + 0.5)
}

// PtsForFrameIndex converts a frame number to its presentation timestamp.
func PtsForFrameIndex(index int64, fps float64) int64 {
	if fps <= 0 {
		fps = FallbackFPS
	}
	return int64(float64(index) * 1000.0 / fps)
}

// EstimateTotalFrames derives a frame count from duration and rate for
// containers that do not declare one.
func EstimateTotalFrames(durationMs int64, fps float64) int64 {
	if fps <= 0 {
		fps = FallbackFPS
	}
	return int64(float64(durationMs) / 1000.0 * fps)
}

// DecodeSession is a stateful decode engine bound to one media source.
//
// Implementations are not safe for concurrent use. The session's seek
// position is owned by whichever goroutine drives it; the decode queue
// serializes all calls onto its single worker.
type DecodeSession interface {
	// SeekNear positions the session at the keyframe at or before the
	// given timestamp. Subsequent DecodeNextFrame calls produce frames
	// from that keyframe forward.
	SeekNear(timestampMs int64) error

	// DecodeNextFrame decodes the next frame and advances the session
	// position. Returns an error on decode failure or end of stream.
	DecodeNextFrame() (*VideoFrame, error)

	// StreamMetadata returns the stream parameters determined at open.
	StreamMetadata() StreamMetadata

	// Close releases the session. The session must not be used afterwards.
	Close() error
}

// AudioDecoder is implemented by sessions that can also decode audio.
// Calls must be serialized with video calls on the same session.
type AudioDecoder interface {
	// DecodeAudioAt decodes durationMs of audio starting at the given
	// timestamp.
	DecodeAudioAt(timestampMs, durationMs int64) (*AudioFrame, error)
}
