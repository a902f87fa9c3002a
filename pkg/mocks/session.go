package mocks

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/user/framedeck/pkg/ports"
)

// ErrDecodeFailed is the error the mock session reports at FailAtIndex.
var ErrDecodeFailed = errors.New("mock decode failed")

// DecodeSession is a mock implementation of ports.DecodeSession.
//
// By default it simulates an ideal stream over Meta: SeekNear lands on
// the frame at or before the timestamp (quantized to KeyframeInterval
// when set) and DecodeNextFrame produces frames in order until the
// stream ends with io.EOF. Set the Func fields to override.
type DecodeSession struct {
	SeekNearFunc        func(timestampMs int64) error
	DecodeNextFrameFunc func() (*ports.VideoFrame, error)
	StreamMetadataFunc  func() ports.StreamMetadata
	CloseFunc           func() error

	// Recorded calls for verification
	SeekCalls   []int64
	DecodeCalls int
	CloseCalled bool

	// Simulated stream shape
	Meta             ports.StreamMetadata
	KeyframeInterval int64 // seek granularity in frames, 0 for exact
	FailAtIndex      int64 // frame whose decode fails with FailErr
	FailErr          error // nil disables failure injection

	position int64
}

// NewDecodeSession returns a mock over a synthetic 64x36 stream with
// the given frame count at 30 fps.
func NewDecodeSession(totalFrames int64) *DecodeSession {
	return &DecodeSession{
		Meta: ports.StreamMetadata{
			Width:       64,
			Height:      36,
			FPS:         30,
			TotalFrames: totalFrames,
			DurationMs:  int64(float64(totalFrames) / 30.0 * 1000.0),
		},
	}
}

func (m *DecodeSession) SeekNear(timestampMs int64) error {
	m.SeekCalls = append(m.SeekCalls, timestampMs)
	if m.SeekNearFunc != nil {
		return m.SeekNearFunc(timestampMs)
	}
	idx := int64(float64(timestampMs) / 1000.0 * m.fps())
	if idx < 0 {
		idx = 0
	}
	if m.KeyframeInterval > 0 {
		idx -= idx % m.KeyframeInterval
	}
	if idx > m.Meta.TotalFrames {
		idx = m.Meta.TotalFrames
	}
	m.position = idx
	return nil
}

func (m *DecodeSession) DecodeNextFrame() (*ports.VideoFrame, error) {
	m.DecodeCalls++
	if m.DecodeNextFrameFunc != nil {
		return m.DecodeNextFrameFunc()
	}
	if m.position >= m.Meta.TotalFrames {
		return nil, io.EOF
	}
	if m.FailErr != nil && m.position == m.FailAtIndex {
		return nil, m.FailErr
	}
	f := m.FrameAt(m.position)
	m.position++
	return f, nil
}

func (m *DecodeSession) StreamMetadata() ports.StreamMetadata {
	if m.StreamMetadataFunc != nil {
		return m.StreamMetadataFunc()
	}
	return m.Meta
}

func (m *DecodeSession) Close() error {
	m.CloseCalled = true
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// FrameAt builds the frame the default stream produces for an index.
// The index is stamped into the first pixel bytes so tests can check
// frame identity.
func (m *DecodeSession) FrameAt(index int64) *ports.VideoFrame {
	data := make([]byte, m.Meta.Width*m.Meta.Height*4)
	binary.LittleEndian.PutUint64(data, uint64(index))
	return &ports.VideoFrame{
		Data:   data,
		Width:  m.Meta.Width,
		Height: m.Meta.Height,
		Stride: m.Meta.Width * 4,
		PtsMs:  ports.PtsForFrameIndex(index, m.fps()),
		Index:  index,
	}
}

func (m *DecodeSession) fps() float64 {
	if m.Meta.FPS > 0 {
		return m.Meta.FPS
	}
	return ports.FallbackFPS
}

var _ ports.DecodeSession = (*DecodeSession)(nil)
