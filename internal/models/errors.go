package models

import "errors"

// Sentinel errors shared across the service. Handlers map these onto HTTP
// status codes; internal callers test them with errors.Is.
var (
	// ErrTaskIDRequired indicates a record without a task id.
	ErrTaskIDRequired = errors.New("task_id is required")

	// ErrTaskExists indicates an insert with an already-present task id.
	// Ids must never be silently overwritten.
	ErrTaskExists = errors.New("task already exists")

	// ErrTaskNotFound indicates an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition indicates a status change outside the
	// pending -> processing -> completed/failed machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidOptions indicates unknown option values at the boundary.
	ErrInvalidOptions = errors.New("invalid task options")

	// ErrQueueFull indicates the admission queue rejected new work.
	ErrQueueFull = errors.New("task queue is full")

	// ErrSchedulerStopped indicates enqueue after shutdown began.
	ErrSchedulerStopped = errors.New("scheduler is stopped")

	// ErrUnsupportedFormat indicates an extension outside the allow-list.
	ErrUnsupportedFormat = errors.New("unsupported media format")

	// ErrFileTooLarge indicates an upload over the configured byte cap.
	ErrFileTooLarge = errors.New("file exceeds size limit")

	// ErrEmptyUpload indicates a multipart request without file content.
	ErrEmptyUpload = errors.New("no file provided")

	// ErrBatchTooLarge indicates more files than a batch request accepts.
	ErrBatchTooLarge = errors.New("too many files in batch")

	// ErrDecoderFailed indicates a nonzero decoder subprocess exit.
	ErrDecoderFailed = errors.New("decoder failed")

	// ErrDecoderTimeout indicates the decoder hit its wall-clock ceiling.
	ErrDecoderTimeout = errors.New("decoder timed out")

	// ErrNotCompleted indicates a download of a task that has no output
	// yet.
	ErrNotCompleted = errors.New("task is not completed")
)
