// Package startup provides one-time reconciliation tasks run before the
// server accepts work.
package startup

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/juniormartinxo/transcription/internal/storage"
)

// UploadMarker tags staging files written while an upload streams in.
// Ingest removes them when it finishes; a crash mid-upload leaves them
// behind.
const UploadMarker = ".upload"

// DefaultMaxAge is the default age after which a staging file is
// considered abandoned. Uploads still streaming keep a fresh mtime.
const DefaultMaxAge = 1 * time.Hour

// CleanStaleUploads removes abandoned upload staging files from the
// audio sandbox. Only regular files carrying the UploadMarker and older
// than maxAge are touched; everything else in the sandbox belongs to a
// task and is left alone.
//
// Returns the number of files removed and any error encountered.
func CleanStaleUploads(logger *slog.Logger, audios *storage.Sandbox, maxAge time.Duration) (int, error) {
	entries, err := audios.List(".")
	if err != nil {
		logger.Error("failed to read audio sandbox for cleanup",
			"path", audios.BaseDir(),
			"error", err,
		)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.Contains(entry.Name(), UploadMarker) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to stat staging file",
				"name", entry.Name(),
				"error", err,
			)
			continue
		}

		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent staging file",
				"name", entry.Name(),
				"age", time.Since(info.ModTime()).Round(time.Second),
			)
			continue
		}

		if err := audios.Remove(entry.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove stale staging file",
				"name", entry.Name(),
				"error", err,
			)
			continue
		}

		logger.Info("removed stale upload staging file",
			"name", entry.Name(),
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
		removed++
	}

	return removed, nil
}
