// Package mjpegsession decodes motion-JPEG video tracks from
// fragmented MP4 files in pure Go.
//
// Every sample in a motion-JPEG track is an independent JPEG image, so
// the whole sample table is indexed at open and frames are decoded on
// demand. Seeks land on the sync sample at or before the target.
package mjpegsession

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"os"
	"sort"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/framedeck/pkg/ports"
)

// sample is one compressed frame with resolved timing.
type sample struct {
	data  []byte
	ptsMs int64
	sync  bool
}

// Session implements ports.DecodeSession over an indexed sample table.
type Session struct {
	meta     ports.StreamMetadata
	samples  []sample
	position int
	closed   bool
}

// Open reads and indexes a fragmented MP4 file.
func Open(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return OpenReader(f)
}

// OpenReader reads and indexes a fragmented MP4 from an io.ReadSeeker.
// The reader is not used after OpenReader returns.
func OpenReader(reader io.ReadSeeker) (*Session, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	if !mp4File.IsFragmented() {
		return nil, fmt.Errorf("progressive MP4 not supported, use fragmented MP4")
	}

	// Find the motion-JPEG video track and its trex
	var videoTrackID uint32
	var trex *mp4.TrexBox
	var timescale uint32 = 1000
	var width, height int
	var videoCodec string

	if mp4File.Init != nil && mp4File.Init.Moov != nil {
		for _, trak := range mp4File.Init.Moov.Traks {
			if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
				continue
			}
			if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
				continue
			}
			for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
				if videoCodec == "" {
					videoCodec = child.Type()
				}
				if child.Type() != "jpeg" {
					continue
				}
				videoTrackID = trak.Tkhd.TrackID
				if trak.Mdia.Mdhd != nil {
					timescale = trak.Mdia.Mdhd.Timescale
				}
				// Tkhd dimensions are 16.16 fixed point; the sample
				// entry carries exact pixel dimensions when decoded.
				width = int(trak.Tkhd.Width >> 16)
				height = int(trak.Tkhd.Height >> 16)
				if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
					width = int(vse.Width)
					height = int(vse.Height)
				}
				break
			}
			if videoTrackID != 0 {
				break
			}
		}
		if mp4File.Init.Moov.Mvex != nil {
			for _, t := range mp4File.Init.Moov.Mvex.Trexs {
				if t.TrackID == videoTrackID {
					trex = t
					break
				}
			}
		}
	}

	if videoTrackID == 0 {
		if videoCodec != "" {
			return nil, fmt.Errorf("video track codec %q is not motion-JPEG", videoCodec)
		}
		return nil, fmt.Errorf("no video track found")
	}

	// Index all samples across fragments
	var samples []sample
	var totalDur uint64

	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}

			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd.TrackID != videoTrackID {
					continue
				}

				var baseDecodeTime uint64
				if traf.Tfdt != nil {
					baseDecodeTime = traf.Tfdt.BaseMediaDecodeTime()
				}

				fullSamples, err := frag.GetFullSamples(trex)
				if err != nil {
					return nil, fmt.Errorf("get samples: %w", err)
				}

				currentTime := baseDecodeTime
				for _, fs := range fullSamples {
					samples = append(samples, sample{
						data:  fs.Data,
						ptsMs: int64(currentTime * 1000 / uint64(timescale)),
						sync:  fs.Flags == mp4.SyncSampleFlags,
					})
					currentTime += uint64(fs.Dur)
					totalDur += uint64(fs.Dur)
				}
			}
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples in video track")
	}

	durationMs := int64(totalDur * 1000 / uint64(timescale))
	fps := ports.FallbackFPS
	if totalDur > 0 {
		fps = float64(len(samples)) * float64(timescale) / float64(totalDur)
	}

	return &Session{
		meta: ports.StreamMetadata{
			Width:       width,
			Height:      height,
			FPS:         fps,
			TotalFrames: int64(len(samples)),
			DurationMs:  durationMs,
		},
		samples: samples,
	}, nil
}

// SeekNear positions the session at the sync sample at or before the
// given timestamp.
func (s *Session) SeekNear(timestampMs int64) error {
	if s.closed {
		return fmt.Errorf("session closed")
	}
	if timestampMs < 0 {
		timestampMs = 0
	}

	// First sample past the target, then back to the nearest sync.
	idx := sort.Search(len(s.samples), func(i int) bool {
		return s.samples[i].ptsMs > timestampMs
	}) - 1
	if idx < 0 {
		idx = 0
	}
	for idx > 0 && !s.samples[idx].sync {
		idx--
	}
	s.position = idx
	return nil
}

// DecodeNextFrame decodes the sample at the current position and
// advances. Returns io.EOF past the last sample.
func (s *Session) DecodeNextFrame() (*ports.VideoFrame, error) {
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if s.position >= len(s.samples) {
		return nil, io.EOF
	}

	sm := s.samples[s.position]
	img, err := jpeg.Decode(bytes.NewReader(sm.data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg sample %d: %w", s.position, err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	s.position++
	return &ports.VideoFrame{
		Data:   rgba.Pix,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Stride: rgba.Stride,
		PtsMs:  sm.ptsMs,
		Index:  ports.FrameIndexForPts(sm.ptsMs, s.meta.FPS),
	}, nil
}

// StreamMetadata returns the parameters read from the container.
func (s *Session) StreamMetadata() ports.StreamMetadata {
	return s.meta
}

// Close releases the indexed samples.
func (s *Session) Close() error {
	s.closed = true
	s.samples = nil
	return nil
}

// Ensure Session implements ports.DecodeSession
var _ ports.DecodeSession = (*Session)(nil)
