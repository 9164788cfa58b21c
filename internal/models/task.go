package models

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a transcription task.
type TaskStatus string

const (
	// TaskStatusPending means the task is created and waiting for a slot.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusProcessing means a runner is executing the task.
	TaskStatusProcessing TaskStatus = "processing"
	// TaskStatusCompleted means the transcription finished and the output
	// file exists.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed means the task ended with an error, was canceled,
	// or was interrupted by an unclean shutdown.
	TaskStatusFailed TaskStatus = "failed"
)

// IsValid returns true for a known status value.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for completed and failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Error strings recorded on tasks that did not fail inside the transcriber.
const (
	// ErrorCanceled is recorded when a task is canceled by the client.
	ErrorCanceled = "canceled"
	// ErrorInterrupted is recorded at startup for tasks that were
	// processing when the previous process died.
	ErrorInterrupted = "interrupted"
	// ErrorTimeout is recorded when the task wall-clock limit fires.
	ErrorTimeout = "timeout"
)

// OutputFormat selects the rendering of the transcription output file.
type OutputFormat string

const (
	OutputFormatTxt  OutputFormat = "txt"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatSRT  OutputFormat = "srt"
)

// IsValid returns true for a known output format.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatTxt, OutputFormatJSON, OutputFormatSRT:
		return true
	}
	return false
}

// Variant names one of the four canonical option sets a video upload fans
// out into.
type Variant string

const (
	VariantLimpa       Variant = "limpa"
	VariantTimestamps  Variant = "timestamps"
	VariantDiarization Variant = "diarization"
	VariantCompleta    Variant = "completa"
)

// Variants returns the four fan-out variants in their canonical order.
func Variants() []Variant {
	return []Variant{VariantLimpa, VariantTimestamps, VariantDiarization, VariantCompleta}
}

// Apply sets the variant's timestamp/diarization pair on a copy of opts.
func (v Variant) Apply(opts TaskOptions) TaskOptions {
	switch v {
	case VariantLimpa:
		opts.Timestamps, opts.Diarization = false, false
	case VariantTimestamps:
		opts.Timestamps, opts.Diarization = true, false
	case VariantDiarization:
		opts.Timestamps, opts.Diarization = false, true
	case VariantCompleta:
		opts.Timestamps, opts.Diarization = true, true
	}
	return opts
}

// TaskOptions are the transcription options fixed at task creation.
type TaskOptions struct {
	Timestamps   bool         `json:"timestamps"`
	Diarization  bool         `json:"diarization"`
	OutputFormat OutputFormat `json:"output_format"`
	Model        string       `json:"model,omitempty"`
}

// DefaultTaskOptions returns the option set applied when the client sends
// none: full annotation in plain text, mirroring the original service.
func DefaultTaskOptions() TaskOptions {
	return TaskOptions{
		Timestamps:   true,
		Diarization:  true,
		OutputFormat: OutputFormatTxt,
	}
}

// Validate checks the option values.
func (o TaskOptions) Validate() error {
	if !o.OutputFormat.IsValid() {
		return fmt.Errorf("%w: output_format %q", ErrInvalidOptions, o.OutputFormat)
	}
	return nil
}

// TaskRecord is the central entity: one transcription unit against one
// audio artifact with one option set. Field names and shapes are part of
// the external JSON format.
type TaskRecord struct {
	TaskID      string      `json:"task_id"`
	Filename    string      `json:"filename"`
	SourcePath  string      `json:"source_path"`
	Status      TaskStatus  `json:"status"`
	Options     TaskOptions `json:"options"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	OutputPath  string      `json:"output_path,omitempty"`
	Error       string      `json:"error,omitempty"`
	Variant     Variant     `json:"variant,omitempty"`
	BatchID     string      `json:"batch_id,omitempty"`
}

// NewTaskRecord creates a pending task record.
func NewTaskRecord(taskID, filename, sourcePath string, opts TaskOptions) *TaskRecord {
	return &TaskRecord{
		TaskID:     taskID,
		Filename:   filename,
		SourcePath: sourcePath,
		Status:     TaskStatusPending,
		Options:    opts,
		CreatedAt:  time.Now(),
	}
}

// IsTerminal returns true when no further transitions are permitted.
func (t *TaskRecord) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// MarkProcessing transitions pending -> processing and stamps started_at.
func (t *TaskRecord) MarkProcessing() error {
	if t.Status != TaskStatusPending {
		return fmt.Errorf("%w: %s -> processing", ErrInvalidTransition, t.Status)
	}
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	return nil
}

// MarkCompleted transitions processing -> completed with the output path.
func (t *TaskRecord) MarkCompleted(outputPath string) error {
	if t.Status != TaskStatusProcessing {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, t.Status)
	}
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.OutputPath = outputPath
	return nil
}

// MarkFailed transitions a non-terminal task to failed with the given
// error string. Pending tasks may fail directly (cancellation and startup
// recovery); started_at stays unset on that path.
func (t *TaskRecord) MarkFailed(message string) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> failed", ErrInvalidTransition, t.Status)
	}
	now := time.Now()
	t.Status = TaskStatusFailed
	t.CompletedAt = &now
	t.Error = message
	return nil
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (t *TaskRecord) Clone() *TaskRecord {
	clone := *t
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}

// Validate checks structural invariants of the record.
func (t *TaskRecord) Validate() error {
	if t.TaskID == "" {
		return ErrTaskIDRequired
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	if err := t.Options.Validate(); err != nil {
		return err
	}
	return nil
}

// Duration returns the wall-clock execution time for terminal tasks that
// ran, and zero otherwise.
func (t *TaskRecord) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// NewTaskID generates a task id of the form {YYYYMMDD}_{HHMMSS}_{8 hex}.
// The shape is observable by clients and must not change.
func NewTaskID(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("%s_%s", now.Format("20060102_150405"), hex.EncodeToString(u[:4]))
}

// SiblingID derives a video fan-out sibling id from the shared base id.
func SiblingID(baseID string, v Variant) string {
	return fmt.Sprintf("%s_%s", baseID, v)
}
