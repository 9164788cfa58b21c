// Package service contains the background services sitting between the
// HTTP surface and the persistence layers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/juniormartinxo/transcription/internal/config"
	"github.com/juniormartinxo/transcription/internal/models"
	"github.com/juniormartinxo/transcription/internal/repository"
)

// defaultRetention bounds the audit trail when the configuration carries
// no usable value.
const defaultRetention = 30 * 24 * time.Hour

// HistoryService records task transitions to the audit database and
// prunes old rows on a schedule. Recording is best effort: a failed
// write logs a warning and never fails the task that produced it.
type HistoryService struct {
	repo      repository.TaskEventRepository
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewHistoryService creates a history service over the event repository.
func NewHistoryService(repo repository.TaskEventRepository, cfg config.HistoryConfig) *HistoryService {
	retention := time.Duration(cfg.Retention)
	if retention <= 0 {
		retention = defaultRetention
	}
	return &HistoryService{
		repo:      repo,
		retention: retention,
		schedule:  cfg.PruneSchedule,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger used for history events.
func (s *HistoryService) WithLogger(logger *slog.Logger) *HistoryService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// RecordTransition implements the scheduler's history hook.
func (s *HistoryService) RecordTransition(ctx context.Context, task *models.TaskRecord) {
	event := models.NewTaskEvent(task)
	if err := s.repo.Create(ctx, event); err != nil {
		s.logger.Warn("failed to record task event",
			slog.String("task_id", task.TaskID),
			slog.String("status", string(task.Status)),
			slog.Any("error", err))
	}
}

// Events returns the audit trail of one task, oldest first.
func (s *HistoryService) Events(ctx context.Context, taskID string) ([]*models.TaskEvent, error) {
	return s.repo.ListByTask(ctx, taskID)
}

// BatchEvents returns the audit trail of all tasks in a batch.
func (s *HistoryService) BatchEvents(ctx context.Context, batchID string) ([]*models.TaskEvent, error) {
	return s.repo.ListByBatch(ctx, batchID)
}

// Forget removes the audit trail of a task, used when the task record is
// deleted.
func (s *HistoryService) Forget(ctx context.Context, taskID string) error {
	return s.repo.DeleteByTask(ctx, taskID)
}

// Prune removes events older than the retention window.
func (s *HistoryService) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.retention)
	removed, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("pruned task history",
			slog.Int64("events", removed),
			slog.Time("cutoff", cutoff))
	}
	return removed, nil
}

// StartPruning schedules the retention job. The schedule uses six-field
// cron syntax with a seconds column.
func (s *HistoryService) StartPruning() error {
	if s.cron != nil {
		return fmt.Errorf("history pruning already started")
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Prune(context.Background()); err != nil {
			s.logger.Error("history prune failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("scheduling history prune: %w", err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("history pruning scheduled",
		slog.String("schedule", s.schedule),
		slog.Duration("retention", s.retention))
	return nil
}

// StopPruning stops the prune scheduler and waits for an in-flight run.
func (s *HistoryService) StopPruning() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}
