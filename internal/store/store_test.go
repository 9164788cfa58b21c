package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniormartinxo/transcription/internal/models"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTask(id string) *models.TaskRecord {
	return models.NewTaskRecord(id, "audio.wav", "/tmp/audio.wav", models.DefaultTaskOptions())
}

func TestTaskStoreCreateAndGet(t *testing.T) {
	s, err := New(t.TempDir(), newTestLogger())
	require.NoError(t, err)

	task := newTask("20250101_120000_deadbeef")
	require.NoError(t, s.Create(task))

	got, err := s.Get(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, got.TaskID)
	assert.Equal(t, models.TaskStatusPending, got.Status)

	// The returned record is a copy; mutating it must not leak back.
	got.Status = models.TaskStatusCompleted
	again, err := s.Get(task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, again.Status)
}

func TestTaskStoreCreateDuplicate(t *testing.T) {
	s, err := New(t.TempDir(), newTestLogger())
	require.NoError(t, err)

	task := newTask("20250101_120000_deadbeef")
	require.NoError(t, s.Create(task))

	err = s.Create(newTask(task.TaskID))
	assert.ErrorIs(t, err, models.ErrTaskExists)
	assert.Equal(t, 1, s.Len())
}

func TestTaskStoreGetUnknown(t *testing.T) {
	s, err := New(t.TempDir(), newTestLogger())
	require.NoError(t, err)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}

func TestTaskStoreUpdate(t *testing.T) {
	t.Run("persists the mutated record", func(t *testing.T) {
		dir := t.TempDir()
		s, err := New(dir, newTestLogger())
		require.NoError(t, err)

		task := newTask("20250101_120000_deadbeef")
		require.NoError(t, s.Create(task))

		updated, err := s.Update(task.TaskID, func(r *models.TaskRecord) error {
			return r.MarkProcessing()
		})
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusProcessing, updated.Status)
		require.NotNil(t, updated.StartedAt)

		// A fresh store reading the same document sees the transition.
		reloaded, err := New(dir, newTestLogger())
		require.NoError(t, err)
		got, err := reloaded.Get(task.TaskID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusProcessing, got.Status)
	})

	t.Run("mutator error leaves the record untouched", func(t *testing.T) {
		s, err := New(t.TempDir(), newTestLogger())
		require.NoError(t, err)

		task := newTask("20250101_120000_deadbeef")
		require.NoError(t, s.Create(task))
		_, err = s.Update(task.TaskID, func(r *models.TaskRecord) error {
			require.NoError(t, r.MarkProcessing())
			require.NoError(t, r.MarkCompleted("/tmp/out.txt"))
			return r.MarkProcessing() // completed is terminal
		})
		assert.ErrorIs(t, err, models.ErrInvalidTransition)

		got, err := s.Get(task.TaskID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusPending, got.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		s, err := New(t.TempDir(), newTestLogger())
		require.NoError(t, err)

		_, err = s.Update("missing", func(r *models.TaskRecord) error { return nil })
		assert.ErrorIs(t, err, models.ErrTaskNotFound)
	})
}

func TestTaskStoreCreateMany(t *testing.T) {
	t.Run("all records become visible together", func(t *testing.T) {
		dir := t.TempDir()
		s, err := New(dir, newTestLogger())
		require.NoError(t, err)

		base := "20250101_120000_deadbeef"
		var records []*models.TaskRecord
		for _, v := range models.Variants() {
			r := newTask(models.SiblingID(base, v))
			r.Variant = v
			r.BatchID = base
			r.Options = v.Apply(r.Options)
			records = append(records, r)
		}
		require.NoError(t, s.CreateMany(records))
		assert.Equal(t, 4, s.Len())

		reloaded, err := New(dir, newTestLogger())
		require.NoError(t, err)
		assert.Equal(t, 4, reloaded.Len())
	})

	t.Run("existing id aborts the whole batch", func(t *testing.T) {
		s, err := New(t.TempDir(), newTestLogger())
		require.NoError(t, err)

		existing := newTask("20250101_120000_deadbeef_limpa")
		require.NoError(t, s.Create(existing))

		batch := []*models.TaskRecord{
			newTask("20250101_120000_deadbeef_limpa"),
			newTask("20250101_120000_deadbeef_completa"),
		}
		err = s.CreateMany(batch)
		assert.ErrorIs(t, err, models.ErrTaskExists)
		assert.Equal(t, 1, s.Len())
		_, err = s.Get("20250101_120000_deadbeef_completa")
		assert.ErrorIs(t, err, models.ErrTaskNotFound)
	})

	t.Run("duplicate inside the batch aborts", func(t *testing.T) {
		s, err := New(t.TempDir(), newTestLogger())
		require.NoError(t, err)

		batch := []*models.TaskRecord{
			newTask("20250101_120000_deadbeef"),
			newTask("20250101_120000_deadbeef"),
		}
		err = s.CreateMany(batch)
		assert.ErrorIs(t, err, models.ErrTaskExists)
		assert.Equal(t, 0, s.Len())
	})
}

func TestTaskStoreDelete(t *testing.T) {
	s, err := New(t.TempDir(), newTestLogger())
	require.NoError(t, err)

	task := newTask("20250101_120000_deadbeef")
	require.NoError(t, s.Create(task))

	require.NoError(t, s.Delete(task.TaskID))
	_, err = s.Get(task.TaskID)
	assert.ErrorIs(t, err, models.ErrTaskNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, s.Delete(task.TaskID))
}

func TestTaskStoreListOrder(t *testing.T) {
	s, err := New(t.TempDir(), newTestLogger())
	require.NoError(t, err)

	now := time.Now().UTC()
	older := newTask("20250101_110000_00000001")
	older.CreatedAt = now.Add(-time.Hour)
	newer := newTask("20250101_120000_00000002")
	newer.CreatedAt = now

	require.NoError(t, s.Create(newer))
	require.NoError(t, s.Create(older))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, older.TaskID, list[0].TaskID)
	assert.Equal(t, newer.TaskID, list[1].TaskID)
}

func TestTaskStoreLoadTolerance(t *testing.T) {
	t.Run("corrupt document starts empty", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, tasksFileName), []byte("{not json"), 0o644))

		s, err := New(dir, newTestLogger())
		require.NoError(t, err)
		assert.Equal(t, 0, s.Len())

		// The next mutation rewrites the document cleanly.
		require.NoError(t, s.Create(newTask("20250101_120000_deadbeef")))
		reloaded, err := New(dir, newTestLogger())
		require.NoError(t, err)
		assert.Equal(t, 1, reloaded.Len())
	})

	t.Run("missing document starts empty", func(t *testing.T) {
		s, err := New(t.TempDir(), newTestLogger())
		require.NoError(t, err)
		assert.Equal(t, 0, s.Len())
	})
}

func TestTaskStorePersistFailureRollsBack(t *testing.T) {
	s, err := New(t.TempDir(), newTestLogger())
	require.NoError(t, err)

	task := newTask("20250101_120000_deadbeef")
	require.NoError(t, s.Create(task))

	// Point the document at an unwritable location to force persist errors.
	s.path = filepath.Join(t.TempDir(), "missing", "tasks.json")

	err = s.Create(newTask("20250101_130000_cafebabe"))
	require.Error(t, err)
	assert.Equal(t, 1, s.Len())

	_, err = s.Update(task.TaskID, func(r *models.TaskRecord) error {
		return r.MarkProcessing()
	})
	require.Error(t, err)
	got, _ := s.Get(task.TaskID)
	assert.Equal(t, models.TaskStatusPending, got.Status)

	err = s.Delete(task.TaskID)
	require.Error(t, err)
	assert.Equal(t, 1, s.Len())
}
