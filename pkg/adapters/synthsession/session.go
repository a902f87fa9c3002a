// Package synthsession provides a decode session that renders
// deterministic synthetic frames, for development and testing without
// media files.
//
// A source descriptor has the form
//
//	synth:WIDTHxHEIGHT@FPS:FRAMES[:audio]
//
// e.g. "synth:640x360@30:300". The optional audio suffix enables a
// generated stereo tone so the session also satisfies audio extraction.
package synthsession

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/user/framedeck/pkg/ports"
)

// Prefix marks a source string as synthetic.
const Prefix = "synth:"

const (
	audioSampleRate = 48000
	audioChannels   = 2
	toneHz          = 440.0
	toneAmplitude   = 0.2
)

// Session renders frames on demand. Every frame is derived from its
// index alone, so seeks are exact and repeated decodes are identical.
type Session struct {
	meta     ports.StreamMetadata
	position int64
	closed   bool
}

// Open parses a synthetic source descriptor and returns a session.
// The "synth:" prefix is optional.
func Open(descriptor string) (*Session, error) {
	spec := strings.TrimPrefix(descriptor, Prefix)

	withAudio := false
	if rest, ok := strings.CutSuffix(spec, ":audio"); ok {
		withAudio = true
		spec = rest
	}

	dims, rest, ok := strings.Cut(spec, "@")
	if !ok {
		return nil, fmt.Errorf("invalid synthetic descriptor %q: missing @FPS", descriptor)
	}
	ws, hs, ok := strings.Cut(dims, "x")
	if !ok {
		return nil, fmt.Errorf("invalid synthetic descriptor %q: dimensions must be WIDTHxHEIGHT", descriptor)
	}
	fpsStr, framesStr, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("invalid synthetic descriptor %q: missing frame count", descriptor)
	}

	width, err := strconv.Atoi(ws)
	if err != nil || width <= 0 {
		return nil, fmt.Errorf("invalid synthetic width %q", ws)
	}
	height, err := strconv.Atoi(hs)
	if err != nil || height <= 0 {
		return nil, fmt.Errorf("invalid synthetic height %q", hs)
	}
	fps, err := strconv.ParseFloat(fpsStr, 64)
	if err != nil || fps <= 0 {
		return nil, fmt.Errorf("invalid synthetic fps %q", fpsStr)
	}
	frames, err := strconv.ParseInt(framesStr, 10, 64)
	if err != nil || frames <= 0 {
		return nil, fmt.Errorf("invalid synthetic frame count %q", framesStr)
	}

	meta := ports.StreamMetadata{
		Width:       width,
		Height:      height,
		FPS:         fps,
		TotalFrames: frames,
		DurationMs:  int64(float64(frames) * 1000.0 / fps),
	}
	if withAudio {
		meta.AudioSampleRate = audioSampleRate
		meta.AudioChannels = audioChannels
	}

	return &Session{meta: meta}, nil
}

// SeekNear positions the session at or before the given timestamp.
// Synthetic frames are all independent, so the seek is exact.
func (s *Session) SeekNear(timestampMs int64) error {
	if s.closed {
		return fmt.Errorf("session closed")
	}
	idx := int64(float64(timestampMs) / 1000.0 * s.meta.FPS)
	if idx < 0 {
		idx = 0
	}
	if idx >= s.meta.TotalFrames {
		idx = s.meta.TotalFrames - 1
	}
	s.position = idx
	return nil
}

// DecodeNextFrame renders the frame at the current position and
// advances. Returns io.EOF past the last frame.
func (s *Session) DecodeNextFrame() (*ports.VideoFrame, error) {
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if s.position >= s.meta.TotalFrames {
		return nil, io.EOF
	}
	frame := s.renderFrame(s.position)
	s.position++
	return frame, nil
}

// StreamMetadata returns the parameters parsed from the descriptor.
func (s *Session) StreamMetadata() ports.StreamMetadata {
	return s.meta
}

// Close releases the session.
func (s *Session) Close() error {
	s.closed = true
	return nil
}

// DecodeAudioAt generates a stereo tone span. The tone phase is
// derived from absolute sample position, so adjacent spans splice
// without a click.
func (s *Session) DecodeAudioAt(timestampMs, durationMs int64) (*ports.AudioFrame, error) {
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if !s.meta.HasAudio() {
		return nil, fmt.Errorf("descriptor has no audio")
	}
	if timestampMs < 0 || durationMs <= 0 {
		return nil, fmt.Errorf("invalid audio span %dms+%dms", timestampMs, durationMs)
	}

	startSample := timestampMs * audioSampleRate / 1000
	count := int(durationMs * audioSampleRate / 1000)
	samples := make([]float32, count*audioChannels)
	for i := 0; i < count; i++ {
		t := float64(startSample+int64(i)) / audioSampleRate
		v := float32(math.Sin(2*math.Pi*toneHz*t) * toneAmplitude)
		samples[i*audioChannels] = v
		samples[i*audioChannels+1] = v
	}

	return &ports.AudioFrame{
		Samples:     samples,
		SampleRate:  audioSampleRate,
		Channels:    audioChannels,
		PtsMs:       timestampMs,
		SampleCount: count,
	}, nil
}

// renderFrame draws one frame: an index-derived background hue, a
// marker sweeping left to right across the stream, and a burned-in
// index and timestamp label.
func (s *Session) renderFrame(index int64) *ports.VideoFrame {
	w, h := s.meta.Width, s.meta.Height
	ptsMs := ports.PtsForFrameIndex(index, s.meta.FPS)

	dc := gg.NewContext(w, h)
	dc.SetColor(hueColor(float64(index*7%360), 0.45, 0.30))
	dc.Clear()

	// Sweep marker: one full crossing over the whole stream.
	progress := 0.0
	if s.meta.TotalFrames > 1 {
		progress = float64(index) / float64(s.meta.TotalFrames-1)
	}
	markerW := float64(w) / 20
	dc.SetColor(color.White)
	dc.DrawRectangle(progress*(float64(w)-markerW), float64(h)*0.45, markerW, float64(h)*0.1)
	dc.Fill()

	// Second ticks along the bottom edge.
	if s.meta.DurationMs >= 1000 {
		dc.SetColor(color.RGBA{R: 255, G: 255, B: 255, A: 128})
		for sec := int64(0); sec <= s.meta.DurationMs/1000; sec++ {
			x := float64(sec*1000) / float64(s.meta.DurationMs) * float64(w)
			dc.DrawLine(x, float64(h)-8, x, float64(h))
			dc.Stroke()
		}
	}

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(fmt.Sprintf("#%06d", index), 8, 14, 0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%8.3fs", float64(ptsMs)/1000.0), 8, 28, 0, 0.5)

	rgba, ok := dc.Image().(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), dc.Image(), image.Point{}, draw.Src)
	}

	return &ports.VideoFrame{
		Data:   rgba.Pix,
		Width:  w,
		Height: h,
		Stride: rgba.Stride,
		PtsMs:  ptsMs,
		Index:  index,
	}
}

// hueColor converts HSV to an opaque RGBA color. Hue is in degrees.
func hueColor(hue, sat, val float64) color.Color {
	c := val * sat
	x := c * (1 - math.Abs(math.Mod(hue/60, 2)-1))
	m := val - c

	var r, g, b float64
	switch {
	case hue < 60:
		r, g, b = c, x, 0
	case hue < 120:
		r, g, b = x, c, 0
	case hue < 180:
		r, g, b = 0, c, x
	case hue < 240:
		r, g, b = 0, x, c
	case hue < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return color.RGBA{
		R: uint8((r + m) * 255),
		G: uint8((g + m) * 255),
		B: uint8((b + m) * 255),
		A: 255,
	}
}

// Ensure Session implements the session ports
var (
	_ ports.DecodeSession = (*Session)(nil)
	_ ports.AudioDecoder  = (*Session)(nil)
)
