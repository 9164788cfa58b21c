package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskEvent is an audit row recorded for every terminal task transition.
// Events are observational: they never drive orchestration decisions, and
// a failed event write never fails the task that produced it.
type TaskEvent struct {
	ID         ULID       `gorm:"primarykey;type:varchar(26)" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	TaskID     string     `gorm:"index;size:80;not null" json:"task_id"`
	BatchID    string     `gorm:"index;size:80" json:"batch_id,omitempty"`
	Variant    Variant    `gorm:"size:16" json:"variant,omitempty"`
	Status     TaskStatus `gorm:"size:16;not null" json:"status"`
	Error      string     `json:"error,omitempty"`
	OutputPath string     `json:"output_path,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// TableName overrides the GORM table name.
func (TaskEvent) TableName() string {
	return "task_events"
}

// BeforeCreate generates a ULID if not already set.
func (e *TaskEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID.IsZero() {
		e.ID = NewULID()
	}
	return nil
}

// NewTaskEvent builds an event from a terminal task record.
func NewTaskEvent(t *TaskRecord) *TaskEvent {
	return &TaskEvent{
		TaskID:     t.TaskID,
		BatchID:    t.BatchID,
		Variant:    t.Variant,
		Status:     t.Status,
		Error:      t.Error,
		OutputPath: t.OutputPath,
		DurationMS: t.Duration().Milliseconds(),
	}
}
