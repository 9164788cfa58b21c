// Package store persists transcription task records as a single JSON
// document, mirroring every mutation to disk with an atomic replace so a
// crash never leaves a half-written task file behind.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/juniormartinxo/transcription/internal/models"
)

// tasksFileName is the JSON document holding every task keyed by id.
const tasksFileName = "tasks.json"

// fallbackDirName is created under os.TempDir() when the configured
// directory is not writable.
const fallbackDirName = "transcription-tasks"

// TaskStore keeps all task records in memory and re-serializes the full
// set to tasks.json on each mutation. A failed persist rolls the
// in-memory change back so memory and disk never diverge.
type TaskStore struct {
	mu     sync.RWMutex
	tasks  map[string]*models.TaskRecord
	path   string
	logger *slog.Logger
}

// New opens the task store backed by dir/tasks.json, creating the
// directory as needed. A missing document starts an empty store; a
// corrupt one is logged and discarded rather than refusing to boot. When
// dir cannot be written the store falls back to a directory under
// os.TempDir() so the service can still accept work.
func New(dir string, logger *slog.Logger) (*TaskStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	path, err := resolvePath(dir)
	if err != nil {
		fallback := filepath.Join(os.TempDir(), fallbackDirName)
		fbPath, fbErr := resolvePath(fallback)
		if fbErr != nil {
			return nil, fmt.Errorf("opening task store in %s: %w", dir, err)
		}
		logger.Warn("tasks directory not writable, using temp fallback",
			"dir", dir,
			"fallback", fallback,
			"error", err,
		)
		path = fbPath
	}

	s := &TaskStore{
		tasks:  make(map[string]*models.TaskRecord),
		path:   path,
		logger: logger,
	}
	s.load()
	return s, nil
}

// resolvePath ensures dir exists and is writable, returning the task
// document path inside it.
func resolvePath(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	path := filepath.Join(dir, tasksFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("probing writability: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing probe: %w", err)
	}
	return path, nil
}

// load reads the persisted document into memory. Failures leave the
// store empty; the document is rewritten on the next mutation.
func (s *TaskStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read task document, starting empty",
				"path", s.path,
				"error", err,
			)
		}
		return
	}
	if len(data) == 0 {
		return
	}

	var tasks map[string]*models.TaskRecord
	if err := json.Unmarshal(data, &tasks); err != nil {
		s.logger.Warn("task document is corrupt, starting empty",
			"path", s.path,
			"error", err,
		)
		return
	}

	s.tasks = tasks
	s.logger.Info("loaded task records", "count", len(tasks), "path", s.path)
}

// Path returns the location of the backing JSON document.
func (s *TaskStore) Path() string {
	return s.path
}

// Create inserts a new record. Existing ids are never overwritten.
func (s *TaskStore) Create(t *models.TaskRecord) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.TaskID]; exists {
		return fmt.Errorf("task %s: %w", t.TaskID, models.ErrTaskExists)
	}

	s.tasks[t.TaskID] = t.Clone()
	if err := s.persistLocked(); err != nil {
		delete(s.tasks, t.TaskID)
		return fmt.Errorf("persisting task %s: %w", t.TaskID, err)
	}
	return nil
}

// CreateMany inserts all records or none of them. Used for the video
// fan-out where the four sibling tasks must become visible together.
func (s *TaskStore) CreateMany(records []*models.TaskRecord) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(records))
	for _, t := range records {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := seen[t.TaskID]; dup {
			return fmt.Errorf("task %s: %w", t.TaskID, models.ErrTaskExists)
		}
		seen[t.TaskID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range records {
		if _, exists := s.tasks[t.TaskID]; exists {
			return fmt.Errorf("task %s: %w", t.TaskID, models.ErrTaskExists)
		}
	}

	for _, t := range records {
		s.tasks[t.TaskID] = t.Clone()
	}
	if err := s.persistLocked(); err != nil {
		for _, t := range records {
			delete(s.tasks, t.TaskID)
		}
		return fmt.Errorf("persisting %d tasks: %w", len(records), err)
	}
	return nil
}

// Get returns a copy of the record, so callers can never mutate stored
// state without going through Update.
func (s *TaskStore) Get(id string) (*models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrTaskNotFound)
	}
	return t.Clone(), nil
}

// Update applies mutate to a copy of the record and persists the result.
// The stored record is untouched when mutate or the persist fails, which
// keeps illegal transitions and disk errors from leaking partial state.
func (s *TaskStore) Update(id string, mutate func(*models.TaskRecord) error) (*models.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrTaskNotFound)
	}

	updated := current.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}

	s.tasks[id] = updated
	if err := s.persistLocked(); err != nil {
		s.tasks[id] = current
		return nil, fmt.Errorf("persisting task %s: %w", id, err)
	}
	return updated.Clone(), nil
}

// List returns a snapshot of every record ordered by creation time.
func (s *TaskStore) List() []*models.TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.TaskRecord, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TaskID < out[j].TaskID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes the record. Deleting an unknown id is a no-op.
func (s *TaskStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return nil
	}

	delete(s.tasks, id)
	if err := s.persistLocked(); err != nil {
		s.tasks[id] = current
		return fmt.Errorf("persisting after delete of %s: %w", id, err)
	}
	return nil
}

// Len reports the number of stored records.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// persistLocked serializes the full task map and atomically replaces the
// document. Callers must hold the write lock.
func (s *TaskStore) persistLocked() error {
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tasks: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}
