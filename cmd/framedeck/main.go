// Package main provides the CLI entry point for framedeck.
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fogleman/gg"
	"github.com/ideamans/go-l10n"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"github.com/user/framedeck/pkg/adapters/autosession"
	"github.com/user/framedeck/pkg/adapters/logger"
	"github.com/user/framedeck/pkg/config"
	"github.com/user/framedeck/pkg/framedeck"
	"github.com/user/framedeck/pkg/ports"
)

// CLI defines the command-line interface with subcommands.
type CLI struct {
	Probe   ProbeCmd   `cmd:"" help:"Show stream information for a media source."`
	Frame   FrameCmd   `cmd:"" help:"Extract a single frame as an image."`
	Strip   StripCmd   `cmd:"" help:"Render a filmstrip contact sheet."`
	Export  ExportCmd  `cmd:"" help:"Export a frame range as numbered images."`
	Audio   AudioCmd   `cmd:"" help:"Extract an audio span as a WAV file."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// mediaFlags are the flags shared by every command that opens a source.
type mediaFlags struct {
	// Configuration
	Config string `help:"Path to YAML configuration file."`
	Preset string `short:"p" default:"auto" enum:"auto,scrub-4k,balanced,playback,thumbnail" help:"Cache preset (auto, scrub-4k, balanced, playback, thumbnail)."`

	// Cache options (override preset)
	BatchSize        *int   `help:"Frames per cache batch."`
	PreloadThreshold *int   `help:"Edge distance that triggers neighbor preload."`
	MaxBatches       *int   `help:"Maximum batches held in memory."`
	MaxDistance      *int64 `help:"Eviction distance from the last access in frames."`
	WaitTimeoutMs    *int   `help:"Timeout waiting for an in-flight batch in milliseconds."`
	MemoryBudgetMB   *int64 `help:"Memory budget for cached frames in megabytes."`

	// Decoder options
	FFmpegPath  string `help:"Path to ffmpeg executable (falls back to PATH, then common locations)."`
	FFprobePath string `help:"Path to ffprobe executable."`

	// Logging options
	LogLevel *string `short:"l" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)."`
	Quiet    bool    `short:"Q" help:"Suppress all log output."`
}

// ProbeCmd shows stream information without decoding frames.
type ProbeCmd struct {
	Source string `arg:"" help:"Media file or synth: descriptor."`
	mediaFlags
}

// FrameCmd extracts one frame as an image file.
type FrameCmd struct {
	Source string `arg:"" help:"Media file or synth: descriptor."`
	Output string `short:"o" required:"" help:"Output image path (.png or .jpg)."`
	Index  *int64 `short:"n" help:"Frame number to extract."`
	At     *int64 `help:"Timestamp to extract in milliseconds."`
	Width  *int   `short:"W" help:"Resize output to this width."`
	mediaFlags
}

// StripCmd renders evenly spaced frames as a contact sheet.
type StripCmd struct {
	Source    string `arg:"" help:"Media file or synth: descriptor."`
	Output    string `short:"o" required:"" help:"Output image path (.png or .jpg)."`
	Count     int    `default:"10" help:"Number of frames in the sheet."`
	Columns   int    `default:"5" help:"Tiles per row."`
	TileWidth int    `default:"160" help:"Width of each tile in pixels."`
	mediaFlags
}

// ExportCmd dumps a frame range as numbered images.
type ExportCmd struct {
	Source string `arg:"" help:"Media file or synth: descriptor."`
	Output string `short:"o" required:"" help:"Output directory."`
	Start  int64  `default:"0" help:"First frame to export."`
	End    *int64 `help:"Last frame to export (default: end of stream)."`
	mediaFlags
}

// AudioCmd extracts a span of audio samples.
type AudioCmd struct {
	Source   string `arg:"" help:"Media file or synth: descriptor."`
	Output   string `short:"o" required:"" help:"Output WAV path."`
	At       int64  `default:"0" help:"Span start in milliseconds."`
	Duration int64  `default:"1000" help:"Span length in milliseconds."`
	mediaFlags
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("framedeck"),
		kong.Description("Random access to video frames with asynchronous decode and caching."),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// buildConfig merges the config file and CLI overrides.
func (f *mediaFlags) buildConfig() (config.Config, error) {
	cfg := config.Defaults()
	if f.Config != "" {
		var err error
		cfg, err = config.LoadFromFile(f.Config)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}

	if f.Preset != "auto" {
		cfg.Preset = f.Preset
	}
	if f.BatchSize != nil {
		cfg.Cache.BatchSize = *f.BatchSize
	}
	if f.PreloadThreshold != nil {
		cfg.Cache.PreloadThreshold = *f.PreloadThreshold
	}
	if f.MaxBatches != nil {
		cfg.Cache.MaxCachedBatches = *f.MaxBatches
	}
	if f.MaxDistance != nil {
		cfg.Cache.MaxDistance = *f.MaxDistance
	}
	if f.WaitTimeoutMs != nil {
		cfg.Cache.WaitTimeoutMs = *f.WaitTimeoutMs
	}
	if f.MemoryBudgetMB != nil {
		cfg.MemoryBudgetMB = *f.MemoryBudgetMB
	}
	if f.FFmpegPath != "" {
		cfg.FFmpeg.FFmpegPath = f.FFmpegPath
	}
	if f.FFprobePath != "" {
		cfg.FFmpeg.FFprobePath = f.FFprobePath
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}

	return cfg, nil
}

// openMedia opens the source with the merged configuration.
func (f *mediaFlags) openMedia(source string) (*framedeck.Media, ports.Logger, error) {
	cfg, err := f.buildConfig()
	if err != nil {
		return nil, nil, err
	}

	var log ports.Logger
	if f.Quiet {
		log = logger.NewNoop()
	} else {
		log = logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
	}

	session, info, err := autosession.Open(source, autosession.Options{
		FFmpegPath:  cfg.FFmpeg.FFmpegPath,
		FFprobePath: cfg.FFmpeg.FFprobePath,
		Logger:      log,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Debug("Decoding via %s backend", info.Backend)

	opts := cfg.ToOptions()
	opts.Logger = log
	opts.Source = source

	media, err := framedeck.Open(session, opts)
	if err != nil {
		session.Close()
		return nil, nil, err
	}

	return media, log, nil
}

// signalContext cancels the returned context on SIGINT or SIGTERM.
func signalContext(log ports.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn(l10n.T("Interrupted, shutting down..."))
		cancel()
	}()

	return ctx, cancel
}

// Run executes the probe command.
func (cmd *ProbeCmd) Run() error {
	media, _, err := cmd.openMedia(cmd.Source)
	if err != nil {
		return err
	}
	defer media.Release()

	meta := media.Metadata()
	fmt.Println(l10n.F("Source: %s", cmd.Source))
	fmt.Println(l10n.F("Resolution: %dx%d", meta.Width, meta.Height))
	fmt.Println(l10n.F("Frame rate: %.3f fps", meta.FPS))
	fmt.Println(l10n.F("Frames: %d", meta.TotalFrames))
	fmt.Println(l10n.F("Duration: %s", formatDuration(meta.DurationMs)))
	if meta.HasAudio() {
		fmt.Println(l10n.F("Audio: %d Hz, %d channels", meta.AudioSampleRate, meta.AudioChannels))
	} else {
		fmt.Println(l10n.T("Audio: none"))
	}
	fmt.Println(l10n.F("Cache preset: %s", media.Preset()))
	return nil
}

// Run executes the frame command.
func (cmd *FrameCmd) Run() error {
	if (cmd.Index == nil) == (cmd.At == nil) {
		return errors.New(l10n.T("exactly one of --index or --at is required"))
	}

	media, log, err := cmd.openMedia(cmd.Source)
	if err != nil {
		return err
	}
	defer media.Release()

	ctx, cancel := signalContext(log)
	defer cancel()

	var frame *ports.VideoFrame
	if cmd.Index != nil {
		frame, err = media.GetFrame(ctx, *cmd.Index)
	} else {
		frame, err = media.ExtractFrameAt(ctx, *cmd.At)
	}
	if err != nil {
		return err
	}

	img := frameImage(frame)
	if cmd.Width != nil && *cmd.Width > 0 && *cmd.Width != frame.Width {
		height := frame.Height * *cmd.Width / frame.Width
		img = resizeImage(img, *cmd.Width, height)
	}

	if err := saveImage(cmd.Output, img); err != nil {
		return err
	}

	log.Info(l10n.F("Saved frame %d to %s", frame.Index, cmd.Output))
	return nil
}

// Run executes the strip command.
func (cmd *StripCmd) Run() error {
	if cmd.Count < 2 {
		return errors.New(l10n.T("at least 2 frames are required for a filmstrip"))
	}
	if cmd.Columns < 1 {
		cmd.Columns = 1
	}

	media, log, err := cmd.openMedia(cmd.Source)
	if err != nil {
		return err
	}
	defer media.Release()

	ctx, cancel := signalContext(log)
	defer cancel()

	meta := media.Metadata()
	count := cmd.Count
	if int64(count) > meta.TotalFrames {
		count = int(meta.TotalFrames)
	}
	if count < 2 {
		return errors.New(l10n.T("source too short for a filmstrip"))
	}

	tileW := cmd.TileWidth
	tileH := meta.Height * tileW / meta.Width
	const gap = 8
	const captionH = 18

	cols := cmd.Columns
	rows := (count + cols - 1) / cols
	dc := gg.NewContext(cols*(tileW+gap)+gap, rows*(tileH+captionH+gap)+gap)
	dc.SetRGB(0.12, 0.12, 0.12)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	for i := 0; i < count; i++ {
		idx := int64(i) * (meta.TotalFrames - 1) / int64(count-1)
		frame, err := media.ExtractFrameAt(ctx, ports.PtsForFrameIndex(idx, meta.FPS))
		if err != nil {
			return err
		}

		x := gap + (i%cols)*(tileW+gap)
		y := gap + (i/cols)*(tileH+captionH+gap)
		dc.DrawImage(resizeImage(frameImage(frame), tileW, tileH), x, y)

		dc.SetRGB(0.9, 0.9, 0.9)
		caption := fmt.Sprintf("#%d  %s", frame.Index, formatTimestamp(frame.PtsMs))
		dc.DrawStringAnchored(caption, float64(x+tileW/2), float64(y+tileH+captionH/2), 0.5, 0.5)
	}

	if err := saveImage(cmd.Output, dc.Image()); err != nil {
		return err
	}

	log.Info(l10n.F("Saved filmstrip of %d frames to %s", count, cmd.Output))
	return nil
}

// Run executes the export command.
func (cmd *ExportCmd) Run() error {
	media, log, err := cmd.openMedia(cmd.Source)
	if err != nil {
		return err
	}
	defer media.Release()

	ctx, cancel := signalContext(log)
	defer cancel()

	end := media.Metadata().TotalFrames - 1
	if cmd.End != nil {
		end = *cmd.End
	}

	if err := os.MkdirAll(cmd.Output, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	ch, _, err := media.StreamRange(ctx, cmd.Start, end)
	if err != nil {
		return err
	}

	count := 0
	for r := range ch {
		if r.Err != nil {
			return r.Err
		}
		name := filepath.Join(cmd.Output, fmt.Sprintf("frame_%06d.png", r.Frame.Index))
		if err := saveImage(name, frameImage(r.Frame)); err != nil {
			return err
		}
		count++
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log.Info(l10n.F("Exported %d frames to %s", count, cmd.Output))
	return nil
}

// Run executes the audio command.
func (cmd *AudioCmd) Run() error {
	media, log, err := cmd.openMedia(cmd.Source)
	if err != nil {
		return err
	}
	defer media.Release()

	ctx, cancel := signalContext(log)
	defer cancel()

	af, err := media.ExtractAudioAt(ctx, cmd.At, cmd.Duration)
	if err != nil {
		return err
	}

	if err := writeWAV(cmd.Output, af); err != nil {
		return err
	}

	log.Info(l10n.F("Saved %d audio samples to %s", af.SampleCount, cmd.Output))
	return nil
}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println(l10n.F("framedeck version %s", version))
	return nil
}

// frameImage wraps a decoded frame's pixels without copying.
func frameImage(f *ports.VideoFrame) *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// resizeImage resizes an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// saveImage writes an image as PNG or JPEG based on the extension.
func saveImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
			return fmt.Errorf("encode JPEG: %w", err)
		}
	default:
		if err := png.Encode(f, img); err != nil {
			return fmt.Errorf("encode PNG: %w", err)
		}
	}

	return nil
}

// writeWAV writes interleaved float32 samples as an IEEE-float WAV.
func writeWAV(path string, af *ports.AudioFrame) error {
	dataLen := len(af.Samples) * 4

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(3)) // IEEE float
	binary.Write(buf, binary.LittleEndian, uint16(af.Channels))
	binary.Write(buf, binary.LittleEndian, uint32(af.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(af.SampleRate*af.Channels*4))
	binary.Write(buf, binary.LittleEndian, uint16(af.Channels*4))
	binary.Write(buf, binary.LittleEndian, uint16(32))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range af.Samples {
		binary.Write(buf, binary.LittleEndian, math.Float32bits(s))
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// formatDuration renders a millisecond count as h/m/s text.
func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

// formatTimestamp renders a millisecond timestamp as m:ss.mmm.
func formatTimestamp(ms int64) string {
	return fmt.Sprintf("%d:%06.3f", ms/60000, float64(ms%60000)/1000.0)
}
