package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/juniormartinxo/transcription/internal/extractor"
	"github.com/juniormartinxo/transcription/internal/ingest"
	"github.com/juniormartinxo/transcription/internal/models"
	"github.com/juniormartinxo/transcription/internal/scheduler"
	"github.com/juniormartinxo/transcription/internal/service"
	"github.com/juniormartinxo/transcription/internal/storage"
	"github.com/juniormartinxo/transcription/internal/store"
)

// TaskScheduler is the scheduler surface the handlers need. Satisfied by
// *scheduler.Scheduler.
type TaskScheduler interface {
	Cancel(taskID string) (*models.TaskRecord, error)
	Status() scheduler.Status
}

// TranscribeHandler handles the transcription task endpoints.
type TranscribeHandler struct {
	ingestor       *ingest.Ingestor
	store          *store.TaskStore
	scheduler      TaskScheduler
	extractor      *extractor.Extractor
	audios         *storage.Sandbox
	transcriptions *storage.Sandbox
	history        *service.HistoryService
	logger         *slog.Logger
}

// NewTranscribeHandler creates the task API handler.
func NewTranscribeHandler(ing *ingest.Ingestor, st *store.TaskStore, sched TaskScheduler, ex *extractor.Extractor, audios, transcriptions *storage.Sandbox) *TranscribeHandler {
	return &TranscribeHandler{
		ingestor:       ing,
		store:          st,
		scheduler:      sched,
		extractor:      ex,
		audios:         audios,
		transcriptions: transcriptions,
		logger:         slog.Default(),
	}
}

// WithHistory enables the task history endpoint.
func (h *TranscribeHandler) WithHistory(history *service.HistoryService) *TranscribeHandler {
	h.history = history
	return h
}

// WithLogger sets the logger used for handler diagnostics.
func (h *TranscribeHandler) WithLogger(logger *slog.Logger) *TranscribeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// Register registers the task routes with the API. The transcript
// download endpoint is registered via RegisterChiRoutes; Register only
// adds its documentation.
func (h *TranscribeHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:      "transcribeAudio",
		Method:           "POST",
		Path:             "/transcribe/",
		Summary:          "Upload audio for transcription",
		Description:      "Accepts one audio file plus option form fields and creates a pending transcription task.",
		Tags:             []string{"Transcription"},
		DefaultStatus:    201,
		RequestBody:      &huma.RequestBody{Content: map[string]*huma.MediaType{"multipart/form-data": {}}},
		SkipValidateBody: true,
	}, h.Transcribe)

	huma.Register(api, huma.Operation{
		OperationID:      "transcribeAudioBatch",
		Method:           "POST",
		Path:             "/transcribe/batch-audio",
		Summary:          "Upload a batch of audio files",
		Description:      "Accepts up to 10 audio files under one batch id. Files are admitted independently; a rejected file does not abort the rest.",
		Tags:             []string{"Transcription"},
		DefaultStatus:    201,
		RequestBody:      &huma.RequestBody{Content: map[string]*huma.MediaType{"multipart/form-data": {}}},
		SkipValidateBody: true,
	}, h.BatchAudio)

	huma.Register(api, huma.Operation{
		OperationID:      "extractAudio",
		Method:           "POST",
		Path:             "/transcribe/extract-audio",
		Summary:          "Upload video and transcribe its audio",
		Description:      "Extracts the audio track of one video file and fans out the four transcription variants against the shared WAV.",
		Tags:             []string{"Transcription"},
		DefaultStatus:    201,
		RequestBody:      &huma.RequestBody{Content: map[string]*huma.MediaType{"multipart/form-data": {}}},
		SkipValidateBody: true,
	}, h.ExtractAudio)

	huma.Register(api, huma.Operation{
		OperationID:      "transcribeVideoBatch",
		Method:           "POST",
		Path:             "/transcribe/batch-video",
		Summary:          "Upload a batch of video files",
		Description:      "Accepts up to 5 video files under one batch id. Each admitted video fans out into its transcription variants.",
		Tags:             []string{"Transcription"},
		DefaultStatus:    201,
		RequestBody:      &huma.RequestBody{Content: map[string]*huma.MediaType{"multipart/form-data": {}}},
		SkipValidateBody: true,
	}, h.BatchVideo)

	huma.Register(api, huma.Operation{
		OperationID:      "extractFrames",
		Method:           "POST",
		Path:             "/transcribe/extract-frames",
		Summary:          "Extract still frames from a video",
		Description:      "Extracts frames by fps, interval or keyframes. No transcription task is created.",
		Tags:             []string{"Transcription"},
		DefaultStatus:    201,
		RequestBody:      &huma.RequestBody{Content: map[string]*huma.MediaType{"multipart/form-data": {}}},
		SkipValidateBody: true,
	}, h.ExtractFrames)

	huma.Register(api, huma.Operation{
		OperationID: "listTasks",
		Method:      "GET",
		Path:        "/transcribe/",
		Summary:     "List transcription tasks",
		Description: "Returns every known task ordered by creation time.",
		Tags:        []string{"Transcription"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getTask",
		Method:      "GET",
		Path:        "/transcribe/{task_id}",
		Summary:     "Get a transcription task",
		Description: "Returns the current state of one task.",
		Tags:        []string{"Transcription"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "getTaskFiles",
		Method:      "GET",
		Path:        "/transcribe/{task_id}/files",
		Summary:     "List the files of a task",
		Description: "Returns the audio and transcription files of a task with sizes and a media probe summary.",
		Tags:        []string{"Transcription"},
	}, h.Files)

	huma.Register(api, huma.Operation{
		OperationID: "getTaskHistory",
		Method:      "GET",
		Path:        "/transcribe/{task_id}/history",
		Summary:     "Get the status history of a task",
		Description: "Returns the recorded status transitions of a task, oldest first.",
		Tags:        []string{"Transcription"},
	}, h.History)

	huma.Register(api, huma.Operation{
		OperationID:   "cancelTask",
		Method:        "POST",
		Path:          "/transcribe/{task_id}/cancel",
		Summary:       "Cancel a transcription task",
		Description:   "Cancels a pending or processing task. Canceling a finished task is a no-op; the response always carries the current record.",
		Tags:          []string{"Transcription"},
		DefaultStatus: 202,
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteTask",
		Method:        "DELETE",
		Path:          "/transcribe/{task_id}",
		Summary:       "Delete a transcription task",
		Description:   "Removes the task record and, unless with_files=false, its audio and transcription files.",
		Tags:          []string{"Transcription"},
		DefaultStatus: 204,
	}, h.Delete)

	h.registerDownloadDocs(api)
}

// TranscribeInput is the multipart input for a single audio upload.
type TranscribeInput struct {
	RawBody multipart.Form
}

// TranscribeOutput carries the created task.
type TranscribeOutput struct {
	Body models.TaskRecord
}

// Transcribe handles a single audio upload.
func (h *TranscribeHandler) Transcribe(ctx context.Context, input *TranscribeInput) (*TranscribeOutput, error) {
	opts, err := parseTaskOptions(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid transcription options", err)
	}

	up, closeUpload, err := singleUpload(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid upload", err)
	}
	defer closeUpload()

	rec, err := h.ingestor.IngestAudio(ctx, up, opts)
	if err != nil {
		return nil, apiError("failed to ingest audio", err)
	}
	return &TranscribeOutput{Body: *rec}, nil
}

// BatchAudioItem is the per-file outcome of an audio batch upload.
type BatchAudioItem struct {
	Filename string `json:"filename"`
	TaskID   string `json:"task_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchAudioInput is the multipart input for an audio batch upload.
type BatchAudioInput struct {
	RawBody multipart.Form
}

// BatchAudioOutput summarizes an audio batch upload.
type BatchAudioOutput struct {
	Body struct {
		BatchID  string           `json:"batch_id"`
		Items    []BatchAudioItem `json:"items"`
		Total    int              `json:"total"`
		Accepted int              `json:"accepted"`
	}
}

// BatchAudio handles a batch of audio uploads.
func (h *TranscribeHandler) BatchAudio(ctx context.Context, input *BatchAudioInput) (*BatchAudioOutput, error) {
	opts, err := parseTaskOptions(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid transcription options", err)
	}

	uploads, closeUploads, err := batchUploads(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid upload", err)
	}
	defer closeUploads()

	result, err := h.ingestor.IngestAudioBatch(ctx, uploads, opts)
	if err != nil {
		return nil, apiError("failed to ingest audio batch", err)
	}

	resp := &BatchAudioOutput{}
	resp.Body.BatchID = result.BatchID
	resp.Body.Items = make([]BatchAudioItem, 0, len(result.Items))
	for _, it := range result.Items {
		item := BatchAudioItem{Filename: it.Filename}
		if it.Err != nil {
			item.Error = it.Err.Error()
		} else if len(it.Tasks) > 0 {
			item.TaskID = it.Tasks[0].TaskID
		}
		resp.Body.Items = append(resp.Body.Items, item)
	}
	resp.Body.Total = len(result.Items)
	resp.Body.Accepted = result.Accepted()
	return resp, nil
}

// VariantSummary counts the fan-out variants of a video ingest.
type VariantSummary struct {
	Total int      `json:"total"`
	Types []string `json:"types"`
}

// ExtractAudioInput is the multipart input for a video upload.
type ExtractAudioInput struct {
	RawBody multipart.Form
}

// ExtractAudioOutput describes the extracted audio and its fan-out tasks.
type ExtractAudioOutput struct {
	Body struct {
		BatchID        string               `json:"batch_id"`
		AudioPath      string               `json:"audio_path"`
		Transcriptions []*models.TaskRecord `json:"transcriptions"`
		Summary        VariantSummary       `json:"summary"`
	}
}

// ExtractAudio handles a single video upload: extract audio, fan out the
// transcription variants.
func (h *TranscribeHandler) ExtractAudio(ctx context.Context, input *ExtractAudioInput) (*ExtractAudioOutput, error) {
	opts, err := parseTaskOptions(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid transcription options", err)
	}

	up, closeUpload, err := singleUpload(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid upload", err)
	}
	defer closeUpload()

	res, err := h.ingestor.IngestVideo(ctx, up, opts)
	if err != nil {
		return nil, apiError("failed to ingest video", err)
	}

	resp := &ExtractAudioOutput{}
	resp.Body.BatchID = res.BatchID
	resp.Body.AudioPath = res.AudioPath
	resp.Body.Transcriptions = res.Tasks
	resp.Body.Summary = variantSummary(res.Tasks)
	return resp, nil
}

// BatchVideoItem is the per-file outcome of a video batch upload.
type BatchVideoItem struct {
	Filename       string               `json:"filename"`
	Transcriptions []*models.TaskRecord `json:"transcriptions,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// BatchVideoInput is the multipart input for a video batch upload.
type BatchVideoInput struct {
	RawBody multipart.Form
}

// BatchVideoOutput summarizes a video batch upload.
type BatchVideoOutput struct {
	Body struct {
		BatchID  string           `json:"batch_id"`
		Items    []BatchVideoItem `json:"items"`
		Total    int              `json:"total"`
		Accepted int              `json:"accepted"`
	}
}

// BatchVideo handles a batch of video uploads.
func (h *TranscribeHandler) BatchVideo(ctx context.Context, input *BatchVideoInput) (*BatchVideoOutput, error) {
	opts, err := parseTaskOptions(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid transcription options", err)
	}

	uploads, closeUploads, err := batchUploads(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid upload", err)
	}
	defer closeUploads()

	result, err := h.ingestor.IngestVideoBatch(ctx, uploads, opts)
	if err != nil {
		return nil, apiError("failed to ingest video batch", err)
	}

	resp := &BatchVideoOutput{}
	resp.Body.BatchID = result.BatchID
	resp.Body.Items = make([]BatchVideoItem, 0, len(result.Items))
	for _, it := range result.Items {
		item := BatchVideoItem{Filename: it.Filename}
		if it.Err != nil {
			item.Error = it.Err.Error()
		} else {
			item.Transcriptions = it.Tasks
		}
		resp.Body.Items = append(resp.Body.Items, item)
	}
	resp.Body.Total = len(result.Items)
	resp.Body.Accepted = result.Accepted()
	return resp, nil
}

// ExtractFramesInput is the multipart input for frame extraction.
type ExtractFramesInput struct {
	RawBody multipart.Form
}

// ExtractFramesOutput lists the extracted frame files.
type ExtractFramesOutput struct {
	Body struct {
		TaskID string   `json:"task_id"`
		Frames []string `json:"frames"`
		Total  int      `json:"total"`
		Mode   string   `json:"mode"`
	}
}

// ExtractFrames handles a video upload for still frame extraction.
func (h *TranscribeHandler) ExtractFrames(ctx context.Context, input *ExtractFramesInput) (*ExtractFramesOutput, error) {
	fopts, err := parseFrameOptions(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid frame options", err)
	}

	up, closeUpload, err := singleUpload(&input.RawBody)
	if err != nil {
		return nil, apiError("invalid upload", err)
	}
	defer closeUpload()

	res, err := h.ingestor.IngestFrames(ctx, up, fopts)
	if err != nil {
		return nil, apiError("failed to extract frames", err)
	}

	resp := &ExtractFramesOutput{}
	resp.Body.TaskID = res.TaskID
	resp.Body.Frames = res.Frames
	resp.Body.Total = res.Count
	resp.Body.Mode = res.Mode
	return resp, nil
}

// variantSummary summarizes the variants of a fan-out, preserving order.
func variantSummary(tasks []*models.TaskRecord) VariantSummary {
	summary := VariantSummary{Total: len(tasks), Types: make([]string, 0, len(tasks))}
	for _, t := range tasks {
		summary.Types = append(summary.Types, string(t.Variant))
	}
	return summary
}

// formValue returns the first value of a multipart form field.
func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// parseTaskOptions reads the option form fields sent beside the file.
// Absent fields keep their defaults; malformed values reject the request.
func parseTaskOptions(form *multipart.Form) (models.TaskOptions, error) {
	opts := models.DefaultTaskOptions()
	if v := formValue(form, "timestamps"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("timestamps must be a boolean, got %q: %w", v, models.ErrInvalidOptions)
		}
		opts.Timestamps = b
	}
	if v := formValue(form, "diarization"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("diarization must be a boolean, got %q: %w", v, models.ErrInvalidOptions)
		}
		opts.Diarization = b
	}
	if v := formValue(form, "output_format"); v != "" {
		opts.OutputFormat = models.OutputFormat(strings.ToLower(v))
	}
	if v := formValue(form, "model"); v != "" {
		opts.Model = v
	}
	return opts, opts.Validate()
}

// parseFrameOptions reads the frame extraction form fields.
func parseFrameOptions(form *multipart.Form) (extractor.FrameOptions, error) {
	var fopts extractor.FrameOptions
	if v := formValue(form, "fps"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fopts, fmt.Errorf("fps must be a number, got %q: %w", v, models.ErrInvalidOptions)
		}
		fopts.FPS = f
	}
	if v := formValue(form, "interval_seconds"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fopts, fmt.Errorf("interval_seconds must be a number, got %q: %w", v, models.ErrInvalidOptions)
		}
		fopts.Interval = f
	}
	if v := formValue(form, "extract_keyframes"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fopts, fmt.Errorf("extract_keyframes must be a boolean, got %q: %w", v, models.ErrInvalidOptions)
		}
		fopts.Keyframes = b
	}
	if v := formValue(form, "format"); v != "" {
		fopts.Format = strings.ToLower(v)
	}
	if v := formValue(form, "quality"); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil {
			return fopts, fmt.Errorf("quality must be an integer, got %q: %w", v, models.ErrInvalidOptions)
		}
		fopts.Quality = q
	}
	return fopts, fopts.Validate()
}

// singleUpload opens the one file sent under the "file" field. The close
// func must run after the body has been consumed.
func singleUpload(form *multipart.Form) (ingest.Upload, func(), error) {
	headers := form.File["file"]
	if len(headers) == 0 {
		return ingest.Upload{}, nil, fmt.Errorf("multipart field %q: %w", "file", models.ErrEmptyUpload)
	}

	f, err := headers[0].Open()
	if err != nil {
		return ingest.Upload{}, nil, fmt.Errorf("opening upload %q: %w", headers[0].Filename, err)
	}
	return ingest.Upload{Filename: headers[0].Filename, Body: f}, func() { f.Close() }, nil
}

// batchUploads opens every file sent under the "files" field, falling
// back to repeated "file" fields, preserving client order.
func batchUploads(form *multipart.Form) ([]ingest.Upload, func(), error) {
	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		return nil, nil, fmt.Errorf("multipart field %q: %w", "files", models.ErrEmptyUpload)
	}

	uploads := make([]ingest.Upload, 0, len(headers))
	open := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range open {
			f.Close()
		}
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("opening upload %q: %w", fh.Filename, err)
		}
		open = append(open, f)
		uploads = append(uploads, ingest.Upload{Filename: fh.Filename, Body: f})
	}
	return uploads, closeAll, nil
}
