// Package extractor turns uploaded video files into transcription-ready
// WAV audio and still frames using FFmpeg subprocesses with a hard
// wall-clock ceiling.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/juniormartinxo/transcription/internal/config"
	"github.com/juniormartinxo/transcription/internal/ffmpeg"
	"github.com/juniormartinxo/transcription/internal/models"
)

// Target audio parameters for transcription input.
const (
	audioCodec      = "pcm_s16le"
	audioSampleRate = 16000
	audioChannels   = 1
)

// videoExtensions is the accepted container allow-list.
var videoExtensions = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".wmv": {}, ".flv": {},
	".webm": {}, ".m4v": {}, ".3gp": {}, ".mpg": {}, ".mpeg": {},
}

// IsVideoFile reports whether the filename has a supported video extension.
func IsVideoFile(filename string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// SupportedVideoFormats lists the accepted extensions for error messages.
func SupportedVideoFormats() []string {
	out := make([]string, 0, len(videoExtensions))
	for ext := range videoExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extractor runs FFmpeg extraction jobs under a wall-clock ceiling. On
// expiry the process receives SIGTERM and is killed after a short grace.
type Extractor struct {
	ffmpegPath string
	prober     *ffmpeg.Prober
	timeout    time.Duration
	logger     *slog.Logger
}

// defaultTimeout guards direct construction; config validation enforces
// a positive value for loaded configurations.
const defaultTimeout = 10 * time.Minute

// New creates an extractor from the decoder configuration.
func New(cfg config.ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Extractor{
		ffmpegPath: cfg.FFmpegPath,
		prober:     ffmpeg.NewProber(cfg.FFprobePath),
		timeout:    timeout,
		logger:     logger,
	}
}

// ExtractAudio decodes the audio track of videoPath into a 16 kHz mono
// WAV at outputPath. The source file is left in place; callers decide
// when to remove it.
func (e *Extractor) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	if !IsVideoFile(videoPath) {
		return fmt.Errorf("%s: %w", filepath.Ext(videoPath), models.ErrUnsupportedFormat)
	}
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("reading video: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	cmd := ffmpeg.NewCommandBuilder(e.ffmpegPath).
		HideBanner().
		Overwrite().
		Input(videoPath).
		NoVideo().
		AudioCodec(audioCodec).
		AudioSampleRate(audioSampleRate).
		AudioChannels(audioChannels).
		Output(outputPath).
		Build()

	e.logger.Debug("extracting audio", "command", cmd.String())

	if err := e.run(ctx, cmd); err != nil {
		return err
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("extraction produced no audio: %w", models.ErrDecoderFailed)
	}

	e.verifyAudio(ctx, outputPath)

	e.logger.Info("audio extracted",
		"video", filepath.Base(videoPath),
		"output", filepath.Base(outputPath),
		"size_bytes", info.Size(),
		"took", cmd.Duration().Round(time.Millisecond),
	)
	return nil
}

// verifyAudio probes the extraction output and warns when it does not
// match the expected transcription input format. Probe failures are not
// fatal; the decode already succeeded.
func (e *Extractor) verifyAudio(ctx context.Context, path string) {
	result, err := e.prober.Probe(ctx, path)
	if err != nil {
		e.logger.Warn("could not verify extracted audio", "path", path, "error", err)
		return
	}
	audio := result.GetAudioStream()
	if audio == nil {
		e.logger.Warn("extracted file has no audio stream", "path", path)
		return
	}
	rate, _ := strconv.Atoi(audio.SampleRate)
	if audio.CodecName != audioCodec || rate != audioSampleRate || audio.Channels != audioChannels {
		e.logger.Warn("extracted audio differs from expected format",
			"path", path,
			"codec", audio.CodecName,
			"sample_rate", audio.SampleRate,
			"channels", audio.Channels,
		)
	}
}

// FrameOptions selects the frame extraction mode. Interval wins over
// FPS when both are set; Keyframes wins over both.
type FrameOptions struct {
	FPS       float64 // frames per second (default 1.0)
	Interval  float64 // seconds between frames
	Keyframes bool    // extract only I-frames
	Format    string  // jpg or png (default jpg)
	Quality   int     // JPEG quality 1-31, lower is better (default 2)
}

// normalize fills defaults without mutating the caller's copy.
func (o FrameOptions) normalize() FrameOptions {
	if o.FPS <= 0 {
		o.FPS = 1.0
	}
	if o.Format == "" {
		o.Format = "jpg"
	}
	if o.Quality == 0 {
		o.Quality = 2
	}
	return o
}

// Validate rejects option combinations FFmpeg cannot honor.
func (o FrameOptions) Validate() error {
	switch o.Format {
	case "", "jpg", "png":
	default:
		return fmt.Errorf("frame format must be jpg or png, got %q: %w", o.Format, models.ErrInvalidOptions)
	}
	if o.Quality != 0 && (o.Quality < 1 || o.Quality > 31) {
		return fmt.Errorf("frame quality must be between 1 and 31, got %d: %w", o.Quality, models.ErrInvalidOptions)
	}
	if o.Interval < 0 || o.FPS < 0 {
		return fmt.Errorf("fps and interval must not be negative: %w", models.ErrInvalidOptions)
	}
	return nil
}

// Mode names the effective extraction mode.
func (o FrameOptions) Mode() string {
	switch {
	case o.Keyframes:
		return "keyframes"
	case o.Interval > 0:
		return "interval"
	default:
		return "fps"
	}
}

// FrameResult reports the produced frame files.
type FrameResult struct {
	Frames []string `json:"frames"`
	Count  int      `json:"count"`
	Mode   string   `json:"mode"`
}

// ExtractFrames writes still images from videoPath into outDir. The
// returned paths are sorted by frame number.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath, outDir string, opts FrameOptions) (*FrameResult, error) {
	if !IsVideoFile(videoPath) {
		return nil, fmt.Errorf("%s: %w", filepath.Ext(videoPath), models.ErrUnsupportedFormat)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.normalize()

	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating frames directory: %w", err)
	}

	prefix := "frame"
	builder := ffmpeg.NewCommandBuilder(e.ffmpegPath).
		HideBanner().
		Overwrite().
		Input(videoPath)

	switch {
	case opts.Keyframes:
		prefix = "keyframe"
		builder.VideoFilter(`select=eq(pict_type\,I)`).OutputArgs("-vsync", "vfr")
	case opts.Interval > 0:
		builder.VideoFilter(fmt.Sprintf("fps=%g", 1.0/opts.Interval))
	default:
		builder.VideoFilter(fmt.Sprintf("fps=%g", opts.FPS))
	}

	if opts.Format == "jpg" {
		builder.OutputArgs("-q:v", strconv.Itoa(opts.Quality))
	} else {
		builder.OutputArgs("-compression_level", "0")
	}

	pattern := filepath.Join(outDir, fmt.Sprintf("%s_%%06d.%s", prefix, opts.Format))
	cmd := builder.Output(pattern).Build()

	e.logger.Debug("extracting frames", "command", cmd.String())

	if err := e.run(ctx, cmd); err != nil {
		return nil, err
	}

	frames, err := filepath.Glob(filepath.Join(outDir, prefix+"_*."+opts.Format))
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames produced: %w", models.ErrDecoderFailed)
	}
	sort.Strings(frames)

	e.logger.Info("frames extracted",
		"video", filepath.Base(videoPath),
		"mode", opts.Mode(),
		"count", len(frames),
	)
	return &FrameResult{Frames: frames, Count: len(frames), Mode: opts.Mode()}, nil
}

// Probe returns the simplified media summary for a local file.
func (e *Extractor) Probe(ctx context.Context, path string) (*ffmpeg.MediaInfo, error) {
	return e.prober.ProbeMedia(ctx, path)
}

// run executes the command under the extractor's wall-clock ceiling and
// classifies failures into the decoder error taxonomy.
func (e *Extractor) run(ctx context.Context, cmd *ffmpeg.Command) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := cmd.Run(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("ffmpeg exceeded %v: %w", e.timeout, models.ErrDecoderTimeout)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tail := cmd.StderrTail(3)
	if tail != "" {
		return fmt.Errorf("ffmpeg: %s: %w", tail, models.ErrDecoderFailed)
	}
	return fmt.Errorf("ffmpeg: %v: %w", err, models.ErrDecoderFailed)
}
