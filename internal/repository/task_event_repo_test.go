package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/juniormartinxo/transcription/internal/models"
)

func setupEventTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.TaskEvent{}))
	return db
}

func completedEvent(taskID string) *models.TaskEvent {
	return &models.TaskEvent{
		TaskID:     taskID,
		Status:     models.TaskStatusCompleted,
		OutputPath: "/out/" + taskID + ".txt",
	}
}

func TestTaskEventRepo_Create(t *testing.T) {
	repo := NewTaskEventRepository(setupEventTestDB(t))
	ctx := context.Background()

	event := completedEvent("20250101_120000_aabbccdd")
	require.NoError(t, repo.Create(ctx, event))
	assert.False(t, event.ID.IsZero(), "BeforeCreate should assign a ULID")

	events, err := repo.ListByTask(ctx, event.TaskID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TaskStatusCompleted, events[0].Status)
	assert.Equal(t, event.OutputPath, events[0].OutputPath)
}

func TestTaskEventRepo_ListByTask(t *testing.T) {
	repo := NewTaskEventRepository(setupEventTestDB(t))
	ctx := context.Background()

	first := &models.TaskEvent{TaskID: "task-a", Status: models.TaskStatusProcessing}
	require.NoError(t, repo.Create(ctx, first))
	second := &models.TaskEvent{TaskID: "task-a", Status: models.TaskStatusFailed, Error: "timeout"}
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, completedEvent("task-b")))

	events, err := repo.ListByTask(ctx, "task-a")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.TaskStatusProcessing, events[0].Status)
	assert.Equal(t, models.TaskStatusFailed, events[1].Status)
	assert.Equal(t, "timeout", events[1].Error)

	none, err := repo.ListByTask(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTaskEventRepo_ListByBatch(t *testing.T) {
	repo := NewTaskEventRepository(setupEventTestDB(t))
	ctx := context.Background()

	for _, variant := range models.Variants() {
		event := &models.TaskEvent{
			TaskID:  models.SiblingID("base", variant),
			BatchID: "base",
			Variant: variant,
			Status:  models.TaskStatusCompleted,
		}
		require.NoError(t, repo.Create(ctx, event))
	}
	require.NoError(t, repo.Create(ctx, completedEvent("unrelated")))

	events, err := repo.ListByBatch(ctx, "base")
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestTaskEventRepo_DeleteBefore(t *testing.T) {
	repo := NewTaskEventRepository(setupEventTestDB(t))
	ctx := context.Background()

	old := completedEvent("old-task")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Create(ctx, old))

	fresh := completedEvent("fresh-task")
	require.NoError(t, repo.Create(ctx, fresh))

	removed, err := repo.DeleteBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	remaining, err := repo.ListByTask(ctx, "fresh-task")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	gone, err := repo.ListByTask(ctx, "old-task")
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestTaskEventRepo_DeleteByTask(t *testing.T) {
	repo := NewTaskEventRepository(setupEventTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.TaskEvent{TaskID: "task-a", Status: models.TaskStatusProcessing}))
	require.NoError(t, repo.Create(ctx, &models.TaskEvent{TaskID: "task-a", Status: models.TaskStatusCompleted}))
	require.NoError(t, repo.Create(ctx, completedEvent("task-b")))

	require.NoError(t, repo.DeleteByTask(ctx, "task-a"))

	gone, err := repo.ListByTask(ctx, "task-a")
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := repo.ListByTask(ctx, "task-b")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
