// Package autosession selects a decode session by inspecting the
// source: synthetic descriptors, pure-Go motion-JPEG, or the ffmpeg
// fallback for everything else.
package autosession

import (
	"fmt"
	"os"
	"strings"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framedeck/pkg/adapters/ffmpegsession"
	"github.com/user/framedeck/pkg/adapters/mjpegsession"
	"github.com/user/framedeck/pkg/adapters/synthsession"
	"github.com/user/framedeck/pkg/ports"
)

// Backend identifies which session implementation was selected.
type Backend string

const (
	// BackendSynthetic renders generated frames from a descriptor.
	BackendSynthetic Backend = "synthetic"
	// BackendMJPEG decodes motion-JPEG MP4 files in pure Go.
	BackendMJPEG Backend = "mjpeg"
	// BackendFFmpeg decodes through the ffmpeg binary.
	BackendFFmpeg Backend = "ffmpeg"
)

// Info contains information about the selected session.
type Info struct {
	// Backend is the session implementation being used.
	Backend Backend
}

// Options configures session selection.
type Options struct {
	// FFmpegPath is an optional custom path to the ffmpeg binary.
	FFmpegPath string
	// FFprobePath is an optional custom path to the ffprobe binary.
	FFprobePath string
	// Logger reports backend selection and fallbacks.
	Logger ports.Logger
}

// Open selects and opens a decode session for the source.
//
// The selection flow:
//   - "synth:" descriptor: synthetic session
//   - fragmented MP4 with a motion-JPEG track: pure-Go session
//   - anything else: ffmpeg session
func Open(source string, opts Options) (ports.DecodeSession, Info, error) {
	if strings.HasPrefix(source, synthsession.Prefix) {
		sess, err := synthsession.Open(source)
		if err != nil {
			return nil, Info{}, err
		}
		return sess, Info{Backend: BackendSynthetic}, nil
	}

	if codec, err := DetectVideoCodec(source); err == nil && codec == "jpeg" {
		sess, err := mjpegsession.Open(source)
		if err == nil {
			return sess, Info{Backend: BackendMJPEG}, nil
		}
		if opts.Logger != nil {
			opts.Logger.Warn("Motion-JPEG session failed, falling back to ffmpeg: %s", err)
		}
	}

	sess, err := ffmpegsession.Open(source, ffmpegsession.Options{
		FFmpegPath:  opts.FFmpegPath,
		FFprobePath: opts.FFprobePath,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, Info{}, err
	}
	return sess, Info{Backend: BackendFFmpeg}, nil
}

// DetectVideoCodec returns the sample entry type of the first video
// track in an MP4 file, e.g. "jpeg" or "avc1".
func DetectVideoCodec(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	mp4File, err := mp4.DecodeFile(f)
	if err != nil {
		return "", fmt.Errorf("decode mp4: %w", err)
	}

	var traks []*mp4.TrakBox
	if mp4File.IsFragmented() {
		if mp4File.Init != nil && mp4File.Init.Moov != nil {
			traks = mp4File.Init.Moov.Traks
		}
	} else if mp4File.Moov != nil {
		traks = mp4File.Moov.Traks
	}

	for _, trak := range traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
			continue
		}
		for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
			return child.Type(), nil
		}
	}

	return "", fmt.Errorf("no video track found")
}
