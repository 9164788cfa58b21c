// Package repository defines data access interfaces for the task history
// database. All database access goes through these interfaces, enabling
// easy testing and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/juniormartinxo/transcription/internal/models"
)

// TaskEventRepository defines operations for the task audit trail.
type TaskEventRepository interface {
	// Create appends an audit event.
	Create(ctx context.Context, event *models.TaskEvent) error
	// ListByTask returns the events of one task, oldest first.
	ListByTask(ctx context.Context, taskID string) ([]*models.TaskEvent, error)
	// ListByBatch returns the events of all tasks in a batch, oldest first.
	ListByBatch(ctx context.Context, batchID string) ([]*models.TaskEvent, error)
	// DeleteBefore removes events recorded before the cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteByTask removes all events of one task.
	DeleteByTask(ctx context.Context, taskID string) error
}
