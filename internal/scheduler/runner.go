package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/juniormartinxo/transcription/internal/models"
	"github.com/juniormartinxo/transcription/internal/store"
	"github.com/juniormartinxo/transcription/internal/transcriber"
)

// Terminal outcome labels for the tasks_total metric.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeCanceled  = "canceled"
	outcomeTimeout   = "timeout"
)

// TranscriberSource resolves the engine for a task's options. Satisfied
// by transcriber.Provider.
type TranscriberSource interface {
	For(opts models.TaskOptions) transcriber.Transcriber
}

// HistoryRecorder receives terminal task transitions for the audit
// trail. Implementations must never fail the task; errors are theirs to
// log and swallow.
type HistoryRecorder interface {
	RecordTransition(ctx context.Context, task *models.TaskRecord)
}

// JobRunner executes one task end to end: claim it, run the engine,
// finalize the record. All transitions go through the TaskStore.
type JobRunner struct {
	store             *store.TaskStore
	source            TranscriberSource
	transcriptionsDir string
	history           HistoryRecorder
	logger            *slog.Logger
}

// NewJobRunner creates a runner writing transcripts into transcriptionsDir.
func NewJobRunner(st *store.TaskStore, source TranscriberSource, transcriptionsDir string) *JobRunner {
	return &JobRunner{
		store:             st,
		source:            source,
		transcriptionsDir: transcriptionsDir,
		logger:            slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *JobRunner) WithLogger(logger *slog.Logger) *JobRunner {
	r.logger = logger
	return r
}

// WithHistory sets the terminal-transition recorder.
func (r *JobRunner) WithHistory(history HistoryRecorder) *JobRunner {
	r.history = history
	return r
}

// outputPath derives the transcript location for a task. The stamp is
// taken at execution time, so retries of the same id never collide.
func (r *JobRunner) outputPath(taskID string, format models.OutputFormat) string {
	stamp := time.Now().Format("20060102_150405")
	return filepath.Join(r.transcriptionsDir, fmt.Sprintf("%s_transcricao_%s.%s", taskID, stamp, format))
}

// Run claims the task and drives it to a terminal state. A task that is
// no longer pending (canceled while queued, or deleted) is skipped
// without error.
func (r *JobRunner) Run(ctx context.Context, taskID string) error {
	rec, err := r.store.Update(taskID, func(t *models.TaskRecord) error {
		return t.MarkProcessing()
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrTaskNotFound) {
			r.logger.Debug("skipping task no longer pending",
				slog.String("task_id", taskID),
				slog.Any("reason", err))
			return nil
		}
		return fmt.Errorf("claiming task %s: %w", taskID, err)
	}

	outputPath := r.outputPath(taskID, rec.Options.OutputFormat)
	r.logger.Info("task started",
		slog.String("task_id", taskID),
		slog.String("filename", rec.Filename),
		slog.Bool("timestamps", rec.Options.Timestamps),
		slog.Bool("diarization", rec.Options.Diarization))

	engine := r.source.For(rec.Options)
	_, runErr := engine.Transcribe(ctx, transcriber.Request{
		AudioPath:  rec.SourcePath,
		OutputPath: outputPath,
		Options:    rec.Options,
	})

	if runErr == nil {
		return r.finalize(taskID, outcomeCompleted, outputPath, "")
	}

	r.removePartial(outputPath)
	switch {
	case errors.Is(runErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return r.finalize(taskID, outcomeTimeout, "", models.ErrorTimeout)
	case errors.Is(runErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return r.finalize(taskID, outcomeCanceled, "", models.ErrorCanceled)
	default:
		return r.finalize(taskID, outcomeFailed, "", redactPaths(runErr.Error()))
	}
}

// finalize applies the terminal transition, records history and counts
// the outcome. The task context may already be canceled here, so the
// history write gets its own.
func (r *JobRunner) finalize(taskID, outcome, outputPath, errMsg string) error {
	updated, err := r.store.Update(taskID, func(t *models.TaskRecord) error {
		if outcome == outcomeCompleted {
			return t.MarkCompleted(outputPath)
		}
		return t.MarkFailed(errMsg)
	})
	if err != nil {
		return fmt.Errorf("finalizing task %s as %s: %w", taskID, outcome, err)
	}

	recordOutcome(outcome)
	if r.history != nil {
		r.history.RecordTransition(context.Background(), updated)
	}

	attrs := []any{
		slog.String("task_id", taskID),
		slog.String("outcome", outcome),
		slog.Duration("took", updated.Duration().Round(time.Millisecond)),
	}
	if errMsg != "" {
		attrs = append(attrs, slog.String("error", errMsg))
	}
	if outcome == outcomeCompleted {
		r.logger.Info("task completed", attrs...)
	} else {
		r.logger.Warn("task did not complete", attrs...)
	}
	return nil
}

// removePartial deletes a half-written transcript, if any.
func (r *JobRunner) removePartial(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("could not remove partial output",
			slog.String("path", path),
			slog.Any("error", err))
	}
}

// pathRe matches absolute paths with at least two components.
var pathRe = regexp.MustCompile(`(?:/[\w@%+=.-]+){2,}`)

// redactPaths strips filesystem locations from messages that end up in
// client-visible task records, keeping only base names.
func redactPaths(msg string) string {
	return pathRe.ReplaceAllStringFunc(msg, filepath.Base)
}
