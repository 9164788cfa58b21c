// Package ingest admits uploaded media into the transcription pipeline.
// It stages upload bytes inside the audio sandbox, creates task records
// and hands accepted tasks to the scheduler. Video uploads are decoded
// to WAV before any record exists, so a failed extraction leaves no
// trace in the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juniormartinxo/transcription/internal/config"
	"github.com/juniormartinxo/transcription/internal/extractor"
	"github.com/juniormartinxo/transcription/internal/models"
	"github.com/juniormartinxo/transcription/internal/storage"
	"github.com/juniormartinxo/transcription/internal/store"
)

// audioExtensions lists the upload formats accepted without decoding.
var audioExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".ogg":  {},
	".m4a":  {},
	".flac": {},
	".aac":  {},
}

// IsAudioFile reports whether the filename carries a supported audio
// extension.
func IsAudioFile(filename string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// SupportedAudioFormats returns the accepted audio extensions without
// the leading dot.
func SupportedAudioFormats() []string {
	formats := make([]string, 0, len(audioExtensions))
	for ext := range audioExtensions {
		formats = append(formats, strings.TrimPrefix(ext, "."))
	}
	return formats
}

// Queue admits created tasks for processing. Implemented by
// scheduler.Scheduler.
type Queue interface {
	Enqueue(taskID string) error
}

// Upload is a single file received from a client. Body is streamed to
// disk, never buffered whole.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Ingestor validates uploads, stages them inside the audio sandbox and
// creates task records for the scheduler.
type Ingestor struct {
	store     *store.TaskStore
	queue     Queue
	extractor *extractor.Extractor
	audios    *storage.Sandbox

	maxAudioBytes int64
	maxVideoBytes int64

	logger *slog.Logger
}

// New creates an Ingestor writing through the given sandbox.
func New(st *store.TaskStore, queue Queue, ex *extractor.Extractor, audios *storage.Sandbox, cfg config.StorageConfig) *Ingestor {
	return &Ingestor{
		store:         st,
		queue:         queue,
		extractor:     ex,
		audios:        audios,
		maxAudioBytes: cfg.MaxAudioBytes.Int64(),
		maxVideoBytes: cfg.MaxVideoBytes.Int64(),
		logger:        slog.Default(),
	}
}

// WithLogger sets the logger used for ingest events.
func (i *Ingestor) WithLogger(logger *slog.Logger) *Ingestor {
	if logger != nil {
		i.logger = logger
	}
	return i
}

// IngestAudio stages an audio upload and creates one pending task.
func (i *Ingestor) IngestAudio(ctx context.Context, up Upload, opts models.TaskOptions) (*models.TaskRecord, error) {
	return i.ingestAudioAs(ctx, models.NewTaskID(time.Now()), "", up, opts)
}

// ingestAudioAs stages an audio upload under a caller-chosen task id.
// batchID is stamped on the record when non-empty.
func (i *Ingestor) ingestAudioAs(_ context.Context, taskID, batchID string, up Upload, opts models.TaskOptions) (*models.TaskRecord, error) {
	if !IsAudioFile(up.Filename) {
		return nil, fmt.Errorf("audio upload %q: %w", up.Filename, models.ErrUnsupportedFormat)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	rel := taskID + "_" + SanitizeFilename(up.Filename)
	absPath, err := i.stage(rel, up.Body, i.maxAudioBytes)
	if err != nil {
		return nil, err
	}

	rec := models.NewTaskRecord(taskID, up.Filename, absPath, opts)
	rec.BatchID = batchID
	if err := i.createAndEnqueue(rec, rel); err != nil {
		return nil, err
	}

	i.logger.Info("audio upload accepted",
		slog.String("task_id", taskID),
		slog.String("filename", up.Filename))
	return rec, nil
}

// VideoResult describes a video ingest: the extracted audio artifact and
// the sibling tasks that share it.
type VideoResult struct {
	BatchID   string
	AudioPath string
	Tasks     []*models.TaskRecord
}

// IngestVideo stages a video upload, extracts its audio track and fans
// out one task per transcription variant. The siblings share the
// extracted WAV and carry batch_id equal to the base task id.
func (i *Ingestor) IngestVideo(ctx context.Context, up Upload, opts models.TaskOptions) (*VideoResult, error) {
	baseID := models.NewTaskID(time.Now())
	return i.ingestVideoAs(ctx, baseID, baseID, up, opts)
}

// ingestVideoAs extracts audio under a caller-chosen base id and creates
// the variant siblings atomically. On extraction failure nothing is
// recorded in the store.
func (i *Ingestor) ingestVideoAs(ctx context.Context, baseID, batchID string, up Upload, opts models.TaskOptions) (*VideoResult, error) {
	if !extractor.IsVideoFile(up.Filename) {
		return nil, fmt.Errorf("video upload %q: %w", up.Filename, models.ErrUnsupportedFormat)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	sanitized := SanitizeFilename(up.Filename)
	stem := strings.TrimSuffix(sanitized, filepath.Ext(sanitized))

	wavRel := baseID + "_" + stem + ".wav"
	wavPath, err := i.stageAndExtract(ctx, baseID, sanitized, wavRel, up.Body)
	if err != nil {
		return nil, err
	}

	variants := models.Variants()
	records := make([]*models.TaskRecord, 0, len(variants))
	for _, v := range variants {
		rec := models.NewTaskRecord(models.SiblingID(baseID, v), up.Filename, wavPath, v.Apply(opts))
		rec.Variant = v
		rec.BatchID = batchID
		records = append(records, rec)
	}

	if err := i.store.CreateMany(records); err != nil {
		i.discard(wavRel)
		return nil, fmt.Errorf("creating sibling tasks: %w", err)
	}

	if err := i.enqueueSiblings(records, wavRel); err != nil {
		return nil, err
	}

	i.logger.Info("video upload accepted",
		slog.String("batch_id", batchID),
		slog.String("filename", up.Filename),
		slog.String("audio_path", wavPath),
		slog.Int("tasks", len(records)))
	return &VideoResult{BatchID: batchID, AudioPath: wavPath, Tasks: records}, nil
}

// FrameIngest describes an extract-frames run. Frames are written under
// frames/{task_id}/ inside the audio sandbox; no task record is created
// because frames are not transcribable.
type FrameIngest struct {
	TaskID string
	Frames []string
	Count  int
	Mode   string
}

// IngestFrames stages a video upload and extracts still frames from it.
// The staged video is removed afterwards regardless of outcome.
func (i *Ingestor) IngestFrames(ctx context.Context, up Upload, fopts extractor.FrameOptions) (*FrameIngest, error) {
	if !extractor.IsVideoFile(up.Filename) {
		return nil, fmt.Errorf("video upload %q: %w", up.Filename, models.ErrUnsupportedFormat)
	}
	if err := fopts.Validate(); err != nil {
		return nil, err
	}

	taskID := models.NewTaskID(time.Now())
	sanitized := SanitizeFilename(up.Filename)

	tempRel := tempVideoName(taskID, sanitized)
	if _, err := i.stage(tempRel, up.Body, i.maxVideoBytes); err != nil {
		return nil, err
	}
	defer i.discard(tempRel)

	tempPath, err := i.audios.ResolvePath(tempRel)
	if err != nil {
		return nil, err
	}
	outDir, err := i.audios.ResolvePath(filepath.Join("frames", taskID))
	if err != nil {
		return nil, err
	}

	res, err := i.extractor.ExtractFrames(ctx, tempPath, outDir, fopts)
	if err != nil {
		return nil, err
	}

	i.logger.Info("frames extracted",
		slog.String("task_id", taskID),
		slog.String("filename", up.Filename),
		slog.Int("frames", res.Count),
		slog.String("mode", res.Mode))
	return &FrameIngest{TaskID: taskID, Frames: res.Frames, Count: res.Count, Mode: res.Mode}, nil
}

// tempVideoName builds the staging name for an uploaded video. The
// ".upload" marker sits before the extension so the extractor still sees
// the container format and the startup sweep can find stale leftovers.
func tempVideoName(id, sanitized string) string {
	ext := filepath.Ext(sanitized)
	return id + "_" + strings.TrimSuffix(sanitized, ext) + ".upload" + ext
}

// stageAndExtract streams a video body to a temp path, decodes its audio
// track to wavRel and removes the temp. Returns the absolute WAV path.
func (i *Ingestor) stageAndExtract(ctx context.Context, baseID, sanitized, wavRel string, body io.Reader) (string, error) {
	tempRel := tempVideoName(baseID, sanitized)
	if _, err := i.stage(tempRel, body, i.maxVideoBytes); err != nil {
		return "", err
	}
	defer i.discard(tempRel)

	tempPath, err := i.audios.ResolvePath(tempRel)
	if err != nil {
		return "", err
	}
	wavPath, err := i.audios.ResolvePath(wavRel)
	if err != nil {
		return "", err
	}

	if err := i.extractor.ExtractAudio(ctx, tempPath, wavPath); err != nil {
		return "", err
	}
	return wavPath, nil
}

// stage streams body to rel inside the audio sandbox, enforcing the byte
// cap. The partial file is removed on any error, including cap
// exceedance and empty bodies.
func (i *Ingestor) stage(rel string, body io.Reader, limit int64) (string, error) {
	f, err := i.audios.OpenFile(rel, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("staging upload: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(body, limit+1))
	closeErr := f.Close()

	switch {
	case err != nil:
		i.discard(rel)
		return "", fmt.Errorf("staging upload: %w", err)
	case closeErr != nil:
		i.discard(rel)
		return "", fmt.Errorf("staging upload: %w", closeErr)
	case written == 0:
		i.discard(rel)
		return "", fmt.Errorf("upload %q: %w", filepath.Base(rel), models.ErrEmptyUpload)
	case written > limit:
		i.discard(rel)
		return "", fmt.Errorf("upload exceeds %s: %w", config.ByteSize(limit), models.ErrFileTooLarge)
	}

	return f.Name(), nil
}

// discard removes a staged file, logging when cleanup itself fails.
func (i *Ingestor) discard(rel string) {
	if err := i.audios.Remove(rel); err != nil && !errors.Is(err, os.ErrNotExist) {
		i.logger.Warn("failed to remove staged upload",
			slog.String("path", rel),
			slog.Any("error", err))
	}
}

// createAndEnqueue persists the record and admits it. Both the record
// and the staged file are unwound when admission fails so a rejected
// upload leaves no pending orphan for recovery to resurrect.
func (i *Ingestor) createAndEnqueue(rec *models.TaskRecord, rel string) error {
	if err := i.store.Create(rec); err != nil {
		i.discard(rel)
		return fmt.Errorf("creating task %s: %w", rec.TaskID, err)
	}

	if err := i.queue.Enqueue(rec.TaskID); err != nil {
		if delErr := i.store.Delete(rec.TaskID); delErr != nil {
			i.logger.Warn("failed to roll back task after enqueue failure",
				slog.String("task_id", rec.TaskID),
				slog.Any("error", delErr))
		}
		i.discard(rel)
		return fmt.Errorf("enqueuing task %s: %w", rec.TaskID, err)
	}
	return nil
}

// enqueueSiblings admits fan-out records. Siblings the scheduler rejects
// are marked failed in place; when none are admitted the whole fan-out
// is rolled back and the admission error returned.
func (i *Ingestor) enqueueSiblings(records []*models.TaskRecord, wavRel string) error {
	errs := make([]error, len(records))
	admitted := 0
	for n, rec := range records {
		if err := i.queue.Enqueue(rec.TaskID); err != nil {
			errs[n] = err
		} else {
			admitted++
		}
	}
	if admitted == len(records) {
		return nil
	}

	if admitted == 0 {
		for _, rec := range records {
			if err := i.store.Delete(rec.TaskID); err != nil {
				i.logger.Warn("failed to roll back sibling after enqueue failure",
					slog.String("task_id", rec.TaskID),
					slog.Any("error", err))
			}
		}
		i.discard(wavRel)
		return fmt.Errorf("enqueuing siblings: %w", errs[0])
	}

	for n, rec := range records {
		if errs[n] == nil {
			continue
		}
		updated, err := i.store.Update(rec.TaskID, func(r *models.TaskRecord) error {
			return r.MarkFailed(admissionError(errs[n]))
		})
		if err != nil {
			i.logger.Warn("failed to mark rejected sibling",
				slog.String("task_id", rec.TaskID),
				slog.Any("error", err))
			continue
		}
		records[n] = updated
	}
	return nil
}

// admissionError maps a scheduler admission failure to the task error
// message stored on the record.
func admissionError(err error) string {
	if errors.Is(err, models.ErrQueueFull) {
		return "queue full"
	}
	return "scheduler unavailable"
}
