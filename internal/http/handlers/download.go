package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/juniormartinxo/transcription/internal/models"
)

// RegisterChiRoutes registers the transcript download as a raw chi
// handler. Huma's StreamResponse commits HTTP 200 before the body
// callback runs, so the conditional 404/409 statuses need a plain
// handler; Register adds the matching documentation-only operation.
func (h *TranscribeHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/transcribe/{task_id}/download", h.DownloadTranscription)
	router.Head("/transcribe/{task_id}/download", h.DownloadTranscription)
}

// DownloadTranscription serves the output file of a completed task as a
// plain text attachment.
func (h *TranscribeHandler) DownloadTranscription(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		writeProblem(w, http.StatusBadRequest, "task_id required")
		return
	}

	rec, err := h.store.Get(taskID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, fmt.Sprintf("task %s not found", taskID))
		return
	}
	if rec.Status != models.TaskStatusCompleted {
		writeProblem(w, http.StatusConflict,
			fmt.Sprintf("task %s is %s, not completed", taskID, rec.Status))
		return
	}

	rel, err := h.transcriptions.Rel(rec.OutputPath)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "transcription file is outside the storage root")
		return
	}
	file, err := h.transcriptions.OpenFile(rel, os.O_RDONLY, 0)
	if err != nil {
		writeProblem(w, http.StatusNotFound,
			fmt.Sprintf("transcription file for task %s is missing", taskID))
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(rec.OutputPath)))
	if info, err := file.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}

	if r.Method == http.MethodHead {
		return
	}
	io.Copy(w, file)
}

// DownloadTranscriptionInput documents the download path parameter.
type DownloadTranscriptionInput struct {
	TaskID string `path:"task_id"`
}

// registerDownloadDocs registers a documentation-only operation for the
// download endpoint so it appears in the OpenAPI spec. Requests never
// reach it; RegisterChiRoutes re-registers the same pattern afterwards
// and the later registration wins.
func (h *TranscribeHandler) registerDownloadDocs(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "downloadTranscription",
		Method:      "GET",
		Path:        "/transcribe/{task_id}/download",
		Summary:     "Download a finished transcription",
		Description: "Returns the transcription output of a completed task as a plain text attachment.",
		Tags:        []string{"Transcription"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Transcription file content",
				Headers: map[string]*huma.Param{
					"Content-Type":        {Description: "text/plain; charset=utf-8"},
					"Content-Disposition": {Description: "attachment with the output filename"},
					"Content-Length":      {Description: "File size in bytes"},
				},
			},
			"404": {Description: "Unknown task or missing output file"},
			"409": {Description: "Task is not completed"},
		},
		SkipValidateBody: true,
	}, h.downloadDocsHandler)
}

// downloadDocsHandler exists only for OpenAPI generation; the chi route
// handles the real requests.
func (h *TranscribeHandler) downloadDocsHandler(ctx context.Context, input *DownloadTranscriptionInput) (*huma.StreamResponse, error) {
	return nil, huma.Error500InternalServerError("this endpoint is handled by raw chi handlers", nil)
}
