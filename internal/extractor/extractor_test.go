package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniormartinxo/transcription/internal/config"
	"github.com/juniormartinxo/transcription/internal/models"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// writeStub drops an executable shell script into dir and returns its path.
func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

// ffprobeStub always reports a 16 kHz mono pcm_s16le stream.
func ffprobeStub(t *testing.T, dir string) string {
	t.Helper()
	return writeStub(t, dir, "ffprobe", `cat <<'EOF'
{"format":{"filename":"out.wav","nb_streams":1,"format_name":"wav","duration":"1.5","size":"48000"},"streams":[{"index":0,"codec_name":"pcm_s16le","codec_type":"audio","sample_rate":"16000","channels":1}]}
EOF
`)
}

func newTestExtractor(t *testing.T, ffmpegScript string, timeout time.Duration) *Extractor {
	t.Helper()
	dir := t.TempDir()
	return New(config.ExtractorConfig{
		FFmpegPath:  writeStub(t, dir, "ffmpeg", ffmpegScript),
		FFprobePath: ffprobeStub(t, dir),
		Timeout:     config.Duration(timeout),
	}, newTestLogger())
}

func fakeVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0o644))
	return path
}

// lastArgToOutput is a stub body that treats the final argument as the
// output path, mirroring how the real binary is invoked.
const lastArgToOutput = `for a in "$@"; do out="$a"; done
printf 'RIFFxxxxWAVEdata' > "$out"
`

func TestIsVideoFile(t *testing.T) {
	assert.True(t, IsVideoFile("meeting.mp4"))
	assert.True(t, IsVideoFile("MEETING.MKV"))
	assert.True(t, IsVideoFile("/some/dir/clip.webm"))
	assert.False(t, IsVideoFile("audio.wav"))
	assert.False(t, IsVideoFile("archive.tar.gz"))
	assert.False(t, IsVideoFile("noextension"))
}

func TestExtractAudio(t *testing.T) {
	t.Run("writes output", func(t *testing.T) {
		ext := newTestExtractor(t, lastArgToOutput, 30*time.Second)
		video := fakeVideo(t, "meeting.mp4")
		out := filepath.Join(t.TempDir(), "meeting.wav")

		require.NoError(t, ext.ExtractAudio(context.Background(), video, out))

		info, err := os.Stat(out)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	})

	t.Run("rejects unsupported extension", func(t *testing.T) {
		ext := newTestExtractor(t, lastArgToOutput, 30*time.Second)
		audio := fakeVideo(t, "already-audio.wav")

		err := ext.ExtractAudio(context.Background(), audio, filepath.Join(t.TempDir(), "out.wav"))
		assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
	})

	t.Run("missing input", func(t *testing.T) {
		ext := newTestExtractor(t, lastArgToOutput, 30*time.Second)

		err := ext.ExtractAudio(context.Background(), filepath.Join(t.TempDir(), "ghost.mp4"), filepath.Join(t.TempDir(), "out.wav"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, models.ErrDecoderFailed)
	})

	t.Run("decoder failure carries stderr", func(t *testing.T) {
		ext := newTestExtractor(t, `echo "Invalid data found when processing input" >&2
exit 1
`, 30*time.Second)
		video := fakeVideo(t, "broken.mp4")

		err := ext.ExtractAudio(context.Background(), video, filepath.Join(t.TempDir(), "out.wav"))
		require.ErrorIs(t, err, models.ErrDecoderFailed)
		assert.Contains(t, err.Error(), "Invalid data found")
	})

	t.Run("timeout", func(t *testing.T) {
		ext := newTestExtractor(t, "exec sleep 10\n", 100*time.Millisecond)
		video := fakeVideo(t, "long.mp4")

		start := time.Now()
		err := ext.ExtractAudio(context.Background(), video, filepath.Join(t.TempDir(), "out.wav"))
		require.ErrorIs(t, err, models.ErrDecoderTimeout)
		assert.Less(t, time.Since(start), 8*time.Second)
	})

	t.Run("empty output is a decoder failure", func(t *testing.T) {
		ext := newTestExtractor(t, `for a in "$@"; do out="$a"; done
: > "$out"
`, 30*time.Second)
		video := fakeVideo(t, "silent.mp4")

		err := ext.ExtractAudio(context.Background(), video, filepath.Join(t.TempDir(), "out.wav"))
		assert.ErrorIs(t, err, models.ErrDecoderFailed)
	})
}

// patternToFrames expands the %06d output pattern into n files.
func patternToFrames(n int) string {
	return fmt.Sprintf(`for a in "$@"; do out="$a"; done
i=1
while [ "$i" -le %d ]; do
  : > "$(printf "$out" "$i")"
  i=$((i+1))
done
`, n)
}

func TestExtractFrames(t *testing.T) {
	t.Run("fps mode", func(t *testing.T) {
		ext := newTestExtractor(t, patternToFrames(3), 30*time.Second)
		video := fakeVideo(t, "talk.mp4")
		outDir := t.TempDir()

		res, err := ext.ExtractFrames(context.Background(), video, outDir, FrameOptions{})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Count)
		assert.Equal(t, "fps", res.Mode)
		require.Len(t, res.Frames, 3)
		assert.Equal(t, filepath.Join(outDir, "frame_000001.jpg"), res.Frames[0])
	})

	t.Run("keyframes use their own prefix", func(t *testing.T) {
		ext := newTestExtractor(t, patternToFrames(2), 30*time.Second)
		video := fakeVideo(t, "talk.mp4")
		outDir := t.TempDir()

		res, err := ext.ExtractFrames(context.Background(), video, outDir, FrameOptions{Keyframes: true, Format: "png"})
		require.NoError(t, err)
		assert.Equal(t, "keyframes", res.Mode)
		assert.Equal(t, filepath.Join(outDir, "keyframe_000001.png"), res.Frames[0])
	})

	t.Run("interval overrides fps", func(t *testing.T) {
		opts := FrameOptions{FPS: 5, Interval: 2}
		assert.Equal(t, "interval", opts.Mode())
	})

	t.Run("invalid format", func(t *testing.T) {
		ext := newTestExtractor(t, patternToFrames(1), 30*time.Second)
		video := fakeVideo(t, "talk.mp4")

		_, err := ext.ExtractFrames(context.Background(), video, t.TempDir(), FrameOptions{Format: "gif"})
		assert.ErrorIs(t, err, models.ErrInvalidOptions)
	})

	t.Run("invalid quality", func(t *testing.T) {
		ext := newTestExtractor(t, patternToFrames(1), 30*time.Second)
		video := fakeVideo(t, "talk.mp4")

		_, err := ext.ExtractFrames(context.Background(), video, t.TempDir(), FrameOptions{Quality: 99})
		assert.ErrorIs(t, err, models.ErrInvalidOptions)
	})

	t.Run("no frames is a decoder failure", func(t *testing.T) {
		ext := newTestExtractor(t, "exit 0\n", 30*time.Second)
		video := fakeVideo(t, "still.mp4")

		_, err := ext.ExtractFrames(context.Background(), video, t.TempDir(), FrameOptions{})
		assert.ErrorIs(t, err, models.ErrDecoderFailed)
	})
}

func TestFrameOptionsDefaults(t *testing.T) {
	opts := FrameOptions{}.normalize()
	assert.Equal(t, 1.0, opts.FPS)
	assert.Equal(t, "jpg", opts.Format)
	assert.Equal(t, 2, opts.Quality)
}
