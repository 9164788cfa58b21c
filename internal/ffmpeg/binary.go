// Package ffmpeg wraps FFmpeg/FFprobe subprocess execution: binary
// detection, command building with graceful termination, and media
// probing.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
)

// BinaryInfo describes a resolved FFmpeg installation.
type BinaryInfo struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
	Version     string `json:"version"`
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

// BinaryDetector resolves and caches the ffmpeg/ffprobe binaries so the
// health endpoint can poll availability without re-execing every time.
type BinaryDetector struct {
	ffmpegPath  string
	ffprobePath string

	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewBinaryDetector creates a detector for the configured binary names
// or paths ("ffmpeg" and "ffprobe" resolve through PATH).
func NewBinaryDetector(ffmpegPath, ffprobePath string) *BinaryDetector {
	return &BinaryDetector{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		cacheTTL:    5 * time.Minute,
	}
}

// WithCacheTTL sets how long a detection result is reused.
func (d *BinaryDetector) WithCacheTTL(ttl time.Duration) *BinaryDetector {
	d.cacheTTL = ttl
	return d
}

// Detect resolves both binaries and reports the ffmpeg version.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	ffmpeg, err := exec.LookPath(d.ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobe, err := exec.LookPath(d.ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	version, err := probeVersion(ctx, ffmpeg)
	if err != nil {
		return nil, err
	}

	return &BinaryInfo{
		FFmpegPath:  ffmpeg,
		FFprobePath: ffprobe,
		Version:     version,
	}, nil
}

// probeVersion runs "ffmpeg -version" and extracts the version token.
func probeVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("running %s -version: %w", path, err)
	}
	return ParseVersion(string(out)), nil
}

// ParseVersion extracts the version token from "ffmpeg -version" output,
// e.g. "6.1.1" from "ffmpeg version 6.1.1 Copyright ...". Returns
// "unknown" when the banner is unrecognizable.
func ParseVersion(output string) string {
	m := versionRe.FindStringSubmatch(output)
	if len(m) < 2 {
		return "unknown"
	}
	return strings.TrimSpace(m[1])
}
