package handlers

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/juniormartinxo/transcription/internal/ffmpeg"
	"github.com/juniormartinxo/transcription/internal/models"
	"github.com/juniormartinxo/transcription/internal/storage"
)

// ListTasksInput is the input for listing tasks.
type ListTasksInput struct{}

// ListTasksOutput lists every known task.
type ListTasksOutput struct {
	Body struct {
		Tasks []*models.TaskRecord `json:"tasks"`
		Total int                  `json:"total"`
	}
}

// List returns every known task ordered by creation time.
func (h *TranscribeHandler) List(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
	tasks := h.store.List()

	resp := &ListTasksOutput{}
	resp.Body.Tasks = tasks
	resp.Body.Total = len(tasks)
	return resp, nil
}

// GetTaskInput identifies one task.
type GetTaskInput struct {
	TaskID string `path:"task_id"`
}

// GetTaskOutput carries one task record.
type GetTaskOutput struct {
	Body models.TaskRecord
}

// Get returns the current state of one task.
func (h *TranscribeHandler) Get(ctx context.Context, input *GetTaskInput) (*GetTaskOutput, error) {
	rec, err := h.store.Get(input.TaskID)
	if err != nil {
		return nil, apiError("failed to get task", err)
	}
	return &GetTaskOutput{Body: *rec}, nil
}

// CancelTaskInput identifies the task to cancel.
type CancelTaskInput struct {
	TaskID string `path:"task_id"`
}

// CancelTaskOutput carries the record as of the cancel request.
type CancelTaskOutput struct {
	Body models.TaskRecord
}

// Cancel cancels a pending or processing task. Terminal tasks are
// returned unchanged.
func (h *TranscribeHandler) Cancel(ctx context.Context, input *CancelTaskInput) (*CancelTaskOutput, error) {
	rec, err := h.scheduler.Cancel(input.TaskID)
	if err != nil {
		return nil, apiError("failed to cancel task", err)
	}
	return &CancelTaskOutput{Body: *rec}, nil
}

// DeleteTaskInput identifies the task to delete. Files are removed
// unless with_files=false.
type DeleteTaskInput struct {
	TaskID    string `path:"task_id"`
	WithFiles bool   `query:"with_files" default:"true"`
}

// DeleteTaskOutput is empty; the route answers 204.
type DeleteTaskOutput struct{}

// Delete removes a task record in any state. In-flight work is canceled
// first so no runner keeps writing after the record is gone.
func (h *TranscribeHandler) Delete(ctx context.Context, input *DeleteTaskInput) (*DeleteTaskOutput, error) {
	rec, err := h.store.Get(input.TaskID)
	if err != nil {
		return nil, apiError("failed to delete task", err)
	}

	if _, err := h.scheduler.Cancel(input.TaskID); err != nil && !errors.Is(err, models.ErrTaskNotFound) {
		return nil, apiError("failed to cancel task before delete", err)
	}

	if err := h.store.Delete(input.TaskID); err != nil {
		return nil, apiError("failed to delete task", err)
	}

	if input.WithFiles {
		h.removeTaskFiles(rec)
		if h.history != nil {
			if err := h.history.Forget(ctx, input.TaskID); err != nil {
				h.logger.Warn("could not delete task history",
					slog.String("task_id", input.TaskID),
					slog.Any("error", err))
			}
		}
	}

	h.logger.Info("task deleted",
		slog.String("task_id", input.TaskID),
		slog.Bool("with_files", input.WithFiles))
	return &DeleteTaskOutput{}, nil
}

// removeTaskFiles removes the artifacts of a deleted task. The staged
// audio stays when a fan-out sibling still references it. Failures are
// logged, not surfaced: the record is already gone.
func (h *TranscribeHandler) removeTaskFiles(rec *models.TaskRecord) {
	if rec.OutputPath != "" {
		h.removeSandboxed(h.transcriptions, rec.OutputPath, rec.TaskID)
	}
	if rec.SourcePath != "" && !h.sourceShared(rec) {
		h.removeSandboxed(h.audios, rec.SourcePath, rec.TaskID)
	}
}

func (h *TranscribeHandler) removeSandboxed(sb *storage.Sandbox, absPath, taskID string) {
	rel, err := sb.Rel(absPath)
	if err != nil {
		h.logger.Warn("task file outside its sandbox",
			slog.String("task_id", taskID),
			slog.String("path", absPath))
		return
	}
	if err := sb.Remove(rel); err != nil && !errors.Is(err, os.ErrNotExist) {
		h.logger.Warn("could not remove task file",
			slog.String("task_id", taskID),
			slog.String("path", absPath),
			slog.Any("error", err))
	}
}

// sourceShared reports whether another live record references the same
// staged audio artifact. Video fan-out siblings share one WAV.
func (h *TranscribeHandler) sourceShared(rec *models.TaskRecord) bool {
	for _, other := range h.store.List() {
		if other.TaskID != rec.TaskID && other.SourcePath == rec.SourcePath {
			return true
		}
	}
	return false
}

// FileInfo describes one on-disk artifact of a task.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

// TaskFilesInput identifies the task whose files to list.
type TaskFilesInput struct {
	TaskID string `path:"task_id"`
}

// TaskFilesOutput lists the task artifacts with sizes and a probe
// summary of the source media.
type TaskFilesOutput struct {
	Body struct {
		TaskID             string            `json:"task_id"`
		AudioFiles         []FileInfo        `json:"audio_files"`
		TranscriptionFiles []FileInfo        `json:"transcription_files"`
		TotalSize          int64             `json:"total_size"`
		Media              *ffmpeg.MediaInfo `json:"media,omitempty"`
	}
}

// Files returns the on-disk artifacts of a task.
func (h *TranscribeHandler) Files(ctx context.Context, input *TaskFilesInput) (*TaskFilesOutput, error) {
	rec, err := h.store.Get(input.TaskID)
	if err != nil {
		return nil, apiError("failed to get task files", err)
	}

	resp := &TaskFilesOutput{}
	resp.Body.TaskID = rec.TaskID
	resp.Body.AudioFiles = []FileInfo{}
	resp.Body.TranscriptionFiles = []FileInfo{}

	if info := statSandboxed(h.audios, rec.SourcePath); info != nil {
		resp.Body.AudioFiles = append(resp.Body.AudioFiles, *info)
		resp.Body.TotalSize += info.Size
	}
	if rec.OutputPath != "" {
		if info := statSandboxed(h.transcriptions, rec.OutputPath); info != nil {
			resp.Body.TranscriptionFiles = append(resp.Body.TranscriptionFiles, *info)
			resp.Body.TotalSize += info.Size
		}
	}

	// Probing is best effort; a missing or undecodable source just
	// leaves media unset.
	if media, err := h.extractor.Probe(ctx, rec.SourcePath); err == nil {
		resp.Body.Media = media
	}
	return resp, nil
}

// statSandboxed returns file info for an absolute path inside a sandbox,
// or nil when the file is gone or the path escapes.
func statSandboxed(sb *storage.Sandbox, absPath string) *FileInfo {
	rel, err := sb.Rel(absPath)
	if err != nil {
		return nil
	}
	info, err := sb.Stat(rel)
	if err != nil {
		return nil
	}
	return &FileInfo{Name: info.Name(), Size: info.Size(), Path: absPath}
}

// TaskHistoryInput identifies the task whose history to return.
type TaskHistoryInput struct {
	TaskID string `path:"task_id"`
}

// TaskHistoryOutput lists the recorded status transitions of a task.
type TaskHistoryOutput struct {
	Body struct {
		TaskID string              `json:"task_id"`
		Events []*models.TaskEvent `json:"events"`
		Total  int                 `json:"total"`
	}
}

// History returns the status transitions recorded for a task, oldest
// first. Events outlive the task record, so a deleted task may still
// answer here.
func (h *TranscribeHandler) History(ctx context.Context, input *TaskHistoryInput) (*TaskHistoryOutput, error) {
	if h.history == nil {
		return nil, huma.Error503ServiceUnavailable("task history is disabled")
	}

	events, err := h.history.Events(ctx, input.TaskID)
	if err != nil {
		return nil, apiError("failed to load task history", err)
	}
	if len(events) == 0 {
		// No events and no record means the id was never seen.
		if _, err := h.store.Get(input.TaskID); err != nil {
			return nil, apiError("failed to load task history", err)
		}
		events = []*models.TaskEvent{}
	}

	resp := &TaskHistoryOutput{}
	resp.Body.TaskID = input.TaskID
	resp.Body.Events = events
	resp.Body.Total = len(events)
	return resp, nil
}
