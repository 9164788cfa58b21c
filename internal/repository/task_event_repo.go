package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/juniormartinxo/transcription/internal/models"
)

// taskEventRepo implements TaskEventRepository using GORM.
type taskEventRepo struct {
	db *gorm.DB
}

// NewTaskEventRepository creates a new TaskEventRepository.
func NewTaskEventRepository(db *gorm.DB) *taskEventRepo {
	return &taskEventRepo{db: db}
}

// Create appends an audit event.
func (r *taskEventRepo) Create(ctx context.Context, event *models.TaskEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("creating task event: %w", err)
	}
	return nil
}

// ListByTask returns the events of one task, oldest first.
func (r *taskEventRepo) ListByTask(ctx context.Context, taskID string) ([]*models.TaskEvent, error) {
	var events []*models.TaskEvent
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing task events: %w", err)
	}
	return events, nil
}

// ListByBatch returns the events of all tasks in a batch, oldest first.
func (r *taskEventRepo) ListByBatch(ctx context.Context, batchID string) ([]*models.TaskEvent, error) {
	var events []*models.TaskEvent
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing batch events: %w", err)
	}
	return events, nil
}

// DeleteBefore removes events recorded before the cutoff and reports how
// many rows went away.
func (r *taskEventRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.TaskEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning task events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteByTask removes all events of one task, used when the task record
// itself is deleted.
func (r *taskEventRepo) DeleteByTask(ctx context.Context, taskID string) error {
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Delete(&models.TaskEvent{}).Error; err != nil {
		return fmt.Errorf("deleting task events: %w", err)
	}
	return nil
}
