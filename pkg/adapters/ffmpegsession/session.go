// Package ffmpegsession decodes media through the ffmpeg and ffprobe
// binaries. It handles any container and codec the installed ffmpeg
// does, at the cost of an external process per decode position.
package ffmpegsession

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/user/framedeck/pkg/ports"
)

var (
	// ErrFFmpegNotFound is returned when no usable ffmpeg binary exists.
	ErrFFmpegNotFound = errors.New("ffmpeg not found")
	// ErrFFprobeNotFound is returned when no usable ffprobe binary exists.
	ErrFFprobeNotFound = errors.New("ffprobe not found")
)

// Options configures binary discovery and logging.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// FFprobePath is an optional custom path to the ffprobe binary.
	FFprobePath string
	// Logger reports binary discovery and process restarts.
	Logger ports.Logger
}

// Session drives one ffmpeg decode process at a time. A seek kills the
// running process and starts a new one at the target; frames stream
// from its stdout as raw RGBA.
type Session struct {
	source     string
	ffmpegPath string
	meta       ports.StreamMetadata
	logger     ports.Logger

	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   bytes.Buffer
	position int64
	eof      bool
	closed   bool
}

// Available reports whether both ffmpeg and ffprobe can be found.
func Available() bool {
	if _, err := findFFmpeg(""); err != nil {
		return false
	}
	_, err := findFFprobe("")
	return err == nil
}

// Open probes the source and prepares a session. The decode process
// starts lazily on the first seek or decode call.
func Open(source string, opts Options) (*Session, error) {
	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("source not accessible: %w", err)
	}

	ffmpegPath, err := findFFmpeg(opts.FFmpegPath)
	if err != nil {
		return nil, err
	}
	ffprobePath, err := findFFprobe(opts.FFprobePath)
	if err != nil {
		return nil, err
	}

	if opts.Logger != nil {
		opts.Logger.Debug("Using ffmpeg at %s", ffmpegPath)
		opts.Logger.Debug("Using ffprobe at %s", ffprobePath)
	}

	meta, estimated, err := probeSource(ffprobePath, source)
	if err != nil {
		return nil, err
	}
	if estimated && opts.Logger != nil {
		opts.Logger.Warn("No frame count in container, estimating from duration")
	}

	return &Session{
		source:     source,
		ffmpegPath: ffmpegPath,
		meta:       meta,
		logger:     opts.Logger,
	}, nil
}

// SeekNear restarts the decode process at the frame at or before the
// given timestamp.
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

	return s.startPipe(idx)
}

// DecodeNextFrame reads one raw RGBA frame from the decode process.
// Returns io.EOF at end of stream.
func (s *Session) DecodeNextFrame() (*ports.VideoFrame, error) {
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if s.eof {
		return nil, io.EOF
	}
	if s.cmd == nil {
		if err := s.startPipe(s.position); err != nil {
			return nil, err
		}
	}

	frameBytes := s.meta.Width * s.meta.Height * 4
	buf := make([]byte, frameBytes)
	if _, err := io.ReadFull(s.stdout, buf); err != nil {
		return nil, s.finishPipe(err)
	}

	idx := s.position
	s.position++
	return &ports.VideoFrame{
		Data:   buf,
		Width:  s.meta.Width,
		Height: s.meta.Height,
		Stride: s.meta.Width * 4,
		PtsMs:  ports.PtsForFrameIndex(idx, s.meta.FPS),
		Index:  idx,
	}, nil
}

// StreamMetadata returns the parameters probed at open.
func (s *Session) StreamMetadata() ports.StreamMetadata {
	return s.meta
}

// Close kills any running decode process.
func (s *Session) Close() error {
	s.stopPipe()
	s.closed = true
	return nil
}

// DecodeAudioAt extracts a span of audio samples as interleaved
// float32 through a one-shot ffmpeg process.
func (s *Session) DecodeAudioAt(timestampMs, durationMs int64) (*ports.AudioFrame, error) {
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if !s.meta.HasAudio() {
		return nil, fmt.Errorf("source has no audio stream")
	}
	if timestampMs < 0 || durationMs <= 0 {
		return nil, fmt.Errorf("invalid audio span %dms+%dms", timestampMs, durationMs)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(s.ffmpegPath,
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", float64(timestampMs)/1000.0),
		"-i", s.source,
		"-t", fmt.Sprintf("%.3f", float64(durationMs)/1000.0),
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", strconv.Itoa(s.meta.AudioSampleRate),
		"-ac", strconv.Itoa(s.meta.AudioChannels),
		"-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg audio decode failed: %w\nstderr: %s", err, stderr.String())
	}

	raw := stdout.Bytes()
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return &ports.AudioFrame{
		Samples:     samples,
		SampleRate:  s.meta.AudioSampleRate,
		Channels:    s.meta.AudioChannels,
		PtsMs:       timestampMs,
		SampleCount: len(samples) / s.meta.AudioChannels,
	}, nil
}

// startPipe replaces the decode process with one positioned at the
// given frame index. Seeking by the frame's exact time keeps the pipe
// output aligned with index arithmetic.
func (s *Session) startPipe(index int64) error {
	s.stopPipe()

	seekSec := float64(index) / s.meta.FPS
	cmd := exec.Command(s.ffmpegPath,
		"-v", "error",
		"-ss", fmt.Sprintf("%.6f", seekSec),
		"-i", s.source,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	s.stderr.Reset()
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.position = index
	s.eof = false

	if s.logger != nil {
		s.logger.Debug("Decoder process started at %d ms", ports.PtsForFrameIndex(index, s.meta.FPS))
	}
	return nil
}

// stopPipe kills the decode process if one is running.
func (s *Session) stopPipe() {
	if s.cmd == nil {
		return
	}
	s.cmd.Process.Kill()
	s.cmd.Wait()
	if s.stdout != nil {
		s.stdout.Close()
	}
	s.cmd = nil
	s.stdout = nil
}

// finishPipe resolves a short read: either the clean end of the stream
// or a failed process with diagnostics on stderr.
func (s *Session) finishPipe(readErr error) error {
	waitErr := s.cmd.Wait()
	if s.stdout != nil {
		s.stdout.Close()
	}
	s.cmd = nil
	s.stdout = nil
	s.eof = true

	if waitErr != nil {
		return fmt.Errorf("ffmpeg decode failed: %w\nstderr: %s", waitErr, s.stderr.String())
	}
	if errors.Is(readErr, io.ErrUnexpectedEOF) {
		return fmt.Errorf("truncated frame at index %d", s.position)
	}
	return io.EOF
}

// findFFmpeg locates the ffmpeg binary.
func findFFmpeg(custom string) (string, error) {
	path, err := findBinary("ffmpeg", custom)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFFmpegNotFound, err)
	}
	return path, nil
}

// findFFprobe locates the ffprobe binary.
func findFFprobe(custom string) (string, error) {
	path, err := findBinary("ffprobe", custom)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFFprobeNotFound, err)
	}
	return path, nil
}

// findBinary searches for a binary in PATH and common locations.
// If custom is set, only that path is accepted.
func findBinary(name, custom string) (string, error) {
	if custom != "" {
		if _, err := os.Stat(custom); err == nil {
			return custom, nil
		}
		return "", fmt.Errorf("custom path %s not found", custom)
	}

	execName := name
	if runtime.GOOS == "windows" {
		execName = name + ".exe"
	}

	path, err := exec.LookPath(execName)
	if err == nil {
		return path, nil
	}

	var commonPaths []string
	if runtime.GOOS == "windows" {
		commonPaths = []string{
			`C:\ffmpeg\bin\` + execName,
			`C:\Program Files\ffmpeg\bin\` + execName,
			`C:\Program Files (x86)\ffmpeg\bin\` + execName,
		}
	} else {
		commonPaths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
			"/opt/homebrew/bin/" + name,
			"/snap/bin/" + name,
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("not found in PATH or common locations")
}

// probeOutput mirrors the ffprobe JSON fields the session needs.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// probeSource reads stream parameters with ffprobe. The second result
// reports whether the frame count had to be estimated from duration.
func probeSource(ffprobePath, source string) (ports.StreamMetadata, bool, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		source,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ports.StreamMetadata{}, false, fmt.Errorf("ffprobe failed: %w\nstderr: %s", err, stderr.String())
	}

	var probed probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &probed); err != nil {
		return ports.StreamMetadata{}, false, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var meta ports.StreamMetadata
	for _, st := range probed.Streams {
		switch st.CodecType {
		case "video":
			if meta.Width != 0 {
				continue
			}
			meta.Width = st.Width
			meta.Height = st.Height
			fps := parseRational(st.RFrameRate)
			if fps <= 0 {
				fps = parseRational(st.AvgFrameRate)
			}
			if fps <= 0 {
				fps = ports.FallbackFPS
			}
			meta.FPS = fps
			if n, err := strconv.ParseInt(st.NbFrames, 10, 64); err == nil && n > 0 {
				meta.TotalFrames = n
			}
			if d, err := strconv.ParseFloat(st.Duration, 64); err == nil && d > 0 {
				meta.DurationMs = int64(d * 1000)
			}
		case "audio":
			if meta.AudioSampleRate != 0 {
				continue
			}
			if sr, err := strconv.Atoi(st.SampleRate); err == nil {
				meta.AudioSampleRate = sr
			}
			meta.AudioChannels = st.Channels
		}
	}

	if meta.Width == 0 || meta.Height == 0 {
		return meta, false, fmt.Errorf("no video stream in %s", source)
	}

	if meta.DurationMs == 0 {
		if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil && d > 0 {
			meta.DurationMs = int64(d * 1000)
		}
	}

	estimated := false
	if meta.TotalFrames == 0 && meta.DurationMs > 0 {
		meta.TotalFrames = ports.EstimateTotalFrames(meta.DurationMs, meta.FPS)
		estimated = true
	}
	if meta.TotalFrames == 0 {
		return meta, false, fmt.Errorf("could not determine stream length of %s", source)
	}
	if meta.DurationMs == 0 {
		meta.DurationMs = ports.PtsForFrameIndex(meta.TotalFrames, meta.FPS)
	}

	return meta, estimated, nil
}

// parseRational converts an ffprobe "num/den" rate to a float.
func parseRational(r string) float64 {
	num, den, ok := strings.Cut(r, "/")
	if !ok {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Ensure Session implements the session ports
var (
	_ ports.DecodeSession = (*Session)(nil)
	_ ports.AudioDecoder  = (*Session)(nil)
)
