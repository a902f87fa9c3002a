package synthsession

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/user/framedeck/pkg/ports"
)

func TestOpen_Descriptor(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		wantErr    bool
	}{
		{"basic", "synth:640x360@30:300", false},
		{"with audio", "synth:320x180@25:50:audio", false},
		{"without prefix", "64x36@30:10", false},
		{"fractional fps", "synth:64x36@29.97:100", false},
		{"missing fps", "synth:640x360:300", true},
		{"missing frames", "synth:640x360@30", true},
		{"bad dimensions", "synth:640@30:300", true},
		{"zero width", "synth:0x360@30:300", true},
		{"zero fps", "synth:640x360@0:300", true},
		{"negative frames", "synth:640x360@30:-5", true},
		{"garbage fps", "synth:640x360@abc:300", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.descriptor)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			s.Close()
		})
	}
}

func TestOpen_Metadata(t *testing.T) {
	s, err := Open("synth:640x360@30:300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	meta := s.StreamMetadata()
	if meta.Width != 640 || meta.Height != 360 {
		t.Errorf("expected 640x360, got %dx%d", meta.Width, meta.Height)
	}
	if meta.FPS != 30 {
		t.Errorf("expected 30 fps, got %v", meta.FPS)
	}
	if meta.TotalFrames != 300 {
		t.Errorf("expected 300 frames, got %d", meta.TotalFrames)
	}
	if meta.DurationMs != 10000 {
		t.Errorf("expected 10s duration, got %dms", meta.DurationMs)
	}
	if meta.HasAudio() {
		t.Error("expected no audio without the audio suffix")
	}

	withAudio, err := Open("synth:64x36@30:30:audio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer withAudio.Close()
	am := withAudio.StreamMetadata()
	if !am.HasAudio() {
		t.Error("expected audio metadata")
	}
	if am.AudioSampleRate != 48000 || am.AudioChannels != 2 {
		t.Errorf("expected 48kHz stereo, got %dHz %dch", am.AudioSampleRate, am.AudioChannels)
	}
}

func TestSession_DecodeNextFrame_Sequence(t *testing.T) {
	s, err := Open("synth:64x36@30:5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	for i := int64(0); i < 5; i++ {
		frame, err := s.DecodeNextFrame()
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		if frame.Index != i {
			t.Errorf("expected index %d, got %d", i, frame.Index)
		}
		if frame.PtsMs != ports.PtsForFrameIndex(i, 30) {
			t.Errorf("frame %d: expected pts %d, got %d", i, ports.PtsForFrameIndex(i, 30), frame.PtsMs)
		}
		if frame.Width != 64 || frame.Height != 36 {
			t.Errorf("frame %d: expected 64x36, got %dx%d", i, frame.Width, frame.Height)
		}
		if len(frame.Data) != frame.Stride*frame.Height {
			t.Errorf("frame %d: buffer is %d bytes, stride %d height %d", i, len(frame.Data), frame.Stride, frame.Height)
		}
	}

	if _, err := s.DecodeNextFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF past the last frame, got %v", err)
	}
}

func TestSession_DecodeNextFrame_Deterministic(t *testing.T) {
	s, err := Open("synth:64x36@30:100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if err := s.SeekNear(ports.PtsForFrameIndex(42, 30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, err := s.DecodeNextFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SeekNear(ports.PtsForFrameIndex(42, 30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.DecodeNextFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Index != 42 || second.Index != 42 {
		t.Fatalf("expected frame 42 twice, got %d and %d", first.Index, second.Index)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("expected identical pixels for the same index")
	}
}

func TestSession_SeekNear(t *testing.T) {
	tests := []struct {
		name          string
		timestampMs   int64
		expectedIndex int64
	}{
		{"start", 0, 0},
		{"exact second", 1000, 30},
		{"between frames floors", 505, 15},
		{"negative clamps to start", -50, 0},
		{"past end clamps to last", 99999, 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open("synth:64x36@30:100")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer s.Close()

			if err := s.SeekNear(tt.timestampMs); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			frame, err := s.DecodeNextFrame()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if frame.Index != tt.expectedIndex {
				t.Errorf("expected frame %d, got %d", tt.expectedIndex, frame.Index)
			}
			if tt.timestampMs > 0 && frame.PtsMs > tt.timestampMs {
				t.Errorf("seek landed after the target: pts %d > %d", frame.PtsMs, tt.timestampMs)
			}
		})
	}
}

func TestSession_DecodeAudioAt(t *testing.T) {
	s, err := Open("synth:64x36@30:300:audio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	audio, err := s.DecodeAudioAt(500, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if audio.SampleCount != 4800 {
		t.Errorf("expected 4800 samples per channel, got %d", audio.SampleCount)
	}
	if len(audio.Samples) != 9600 {
		t.Errorf("expected 9600 interleaved samples, got %d", len(audio.Samples))
	}
	if audio.SampleRate != 48000 || audio.Channels != 2 {
		t.Errorf("expected 48kHz stereo, got %dHz %dch", audio.SampleRate, audio.Channels)
	}
	if audio.PtsMs != 500 {
		t.Errorf("expected pts 500, got %d", audio.PtsMs)
	}

	// Both channels carry the same tone.
	for i := 0; i < audio.SampleCount; i++ {
		if audio.Samples[i*2] != audio.Samples[i*2+1] {
			t.Fatalf("sample %d: channels differ", i)
		}
	}
}

// Adjacent spans must continue the tone phase exactly, as if decoded in
// one call.
func TestSession_DecodeAudioAt_SpansSplice(t *testing.T) {
	s, err := Open("synth:64x36@30:300:audio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	whole, err := s.DecodeAudioAt(0, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstHalf, err := s.DecodeAudioAt(0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	secondHalf, err := s.DecodeAudioAt(100, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spliced := append(append([]float32{}, firstHalf.Samples...), secondHalf.Samples...)
	if len(spliced) != len(whole.Samples) {
		t.Fatalf("expected %d samples, got %d", len(whole.Samples), len(spliced))
	}
	for i := range spliced {
		if spliced[i] != whole.Samples[i] {
			t.Fatalf("sample %d: spliced %v, whole %v", i, spliced[i], whole.Samples[i])
		}
	}
}

func TestSession_DecodeAudioAt_Errors(t *testing.T) {
	noAudio, err := Open("synth:64x36@30:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer noAudio.Close()
	if _, err := noAudio.DecodeAudioAt(0, 100); err == nil {
		t.Error("expected error for descriptor without audio")
	}

	s, err := Open("synth:64x36@30:30:audio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	if _, err := s.DecodeAudioAt(-1, 100); err == nil {
		t.Error("expected error for negative timestamp")
	}
	if _, err := s.DecodeAudioAt(0, 0); err == nil {
		t.Error("expected error for empty span")
	}
}

func TestSession_Closed(t *testing.T) {
	s, err := Open("synth:64x36@30:30:audio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Close()

	if err := s.SeekNear(0); err == nil {
		t.Error("expected error from SeekNear after close")
	}
	if _, err := s.DecodeNextFrame(); err == nil {
		t.Error("expected error from DecodeNextFrame after close")
	}
	if _, err := s.DecodeAudioAt(0, 100); err == nil {
		t.Error("expected error from DecodeAudioAt after close")
	}
}
