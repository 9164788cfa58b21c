package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/juniormartinxo/transcription/internal/config"
	"github.com/juniormartinxo/transcription/internal/models"
	"github.com/juniormartinxo/transcription/internal/repository"
)

func setupHistoryService(t *testing.T, cfg config.HistoryConfig) (*HistoryService, repository.TaskEventRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TaskEvent{}))

	repo := repository.NewTaskEventRepository(db)
	svc := NewHistoryService(repo, cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, repo
}

func completedRecord(t *testing.T, taskID string) *models.TaskRecord {
	t.Helper()
	rec := models.NewTaskRecord(taskID, "audio.wav", "/data/audio.wav", models.DefaultTaskOptions())
	require.NoError(t, rec.MarkProcessing())
	require.NoError(t, rec.MarkCompleted("/out/"+taskID+".txt"))
	return rec
}

func TestHistoryService_RecordTransition(t *testing.T) {
	svc, _ := setupHistoryService(t, config.HistoryConfig{})
	ctx := context.Background()

	rec := completedRecord(t, "20250101_120000_aabbccdd")
	svc.RecordTransition(ctx, rec)

	events, err := svc.Events(ctx, rec.TaskID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TaskStatusCompleted, events[0].Status)
	assert.Equal(t, rec.OutputPath, events[0].OutputPath)
	assert.False(t, events[0].ID.IsZero())
}

type failingEventRepo struct{}

func (failingEventRepo) Create(context.Context, *models.TaskEvent) error {
	return errors.New("disk on fire")
}

func (failingEventRepo) ListByTask(context.Context, string) ([]*models.TaskEvent, error) {
	return nil, nil
}

func (failingEventRepo) ListByBatch(context.Context, string) ([]*models.TaskEvent, error) {
	return nil, nil
}

func (failingEventRepo) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (failingEventRepo) DeleteByTask(context.Context, string) error {
	return nil
}

func TestHistoryService_RecordTransitionSwallowsErrors(t *testing.T) {
	svc := NewHistoryService(failingEventRepo{}, config.HistoryConfig{}).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	// must not panic or propagate: the task outcome outranks its audit row
	svc.RecordTransition(context.Background(), completedRecord(t, "task-x"))
}

func TestHistoryService_BatchEvents(t *testing.T) {
	svc, repo := setupHistoryService(t, config.HistoryConfig{})
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

	events, err := svc.BatchEvents(ctx, "base")
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestHistoryService_Prune(t *testing.T) {
	svc, repo := setupHistoryService(t, config.HistoryConfig{
		Retention: config.Duration(24 * time.Hour),
	})
	ctx := context.Background()

	old := &models.TaskEvent{TaskID: "old-task", Status: models.TaskStatusCompleted}
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, &models.TaskEvent{TaskID: "fresh-task", Status: models.TaskStatusCompleted}))

	removed, err := svc.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	gone, err := svc.Events(ctx, "old-task")
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := svc.Events(ctx, "fresh-task")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestHistoryService_Forget(t *testing.T) {
	svc, repo := setupHistoryService(t, config.HistoryConfig{})
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.TaskEvent{TaskID: "task-a", Status: models.TaskStatusCompleted}))
	require.NoError(t, svc.Forget(ctx, "task-a"))

	events, err := svc.Events(ctx, "task-a")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestHistoryService_StartPruning(t *testing.T) {
	t.Run("runs the prune job on schedule", func(t *testing.T) {
		svc, repo := setupHistoryService(t, config.HistoryConfig{
			Retention:     config.Duration(time.Hour),
			PruneSchedule: "* * * * * *",
		})
		ctx := context.Background()

		old := &models.TaskEvent{TaskID: "old-task", Status: models.TaskStatusCompleted}
		old.CreatedAt = time.Now().Add(-2 * time.Hour)
		require.NoError(t, repo.Create(ctx, old))

		require.NoError(t, svc.StartPruning())
		defer svc.StopPruning()

		require.Eventually(t, func() bool {
			events, err := svc.Events(ctx, "old-task")
			return err == nil && len(events) == 0
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("rejects a second start", func(t *testing.T) {
		svc, _ := setupHistoryService(t, config.HistoryConfig{PruneSchedule: "0 0 3 * * *"})
		require.NoError(t, svc.StartPruning())
		defer svc.StopPruning()

		assert.Error(t, svc.StartPruning())
	})

	t.Run("rejects a bad schedule", func(t *testing.T) {
		svc, _ := setupHistoryService(t, config.HistoryConfig{PruneSchedule: "every now and then"})
		assert.Error(t, svc.StartPruning())
	})
}
