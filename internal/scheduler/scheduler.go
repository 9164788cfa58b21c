// Package scheduler owns the transcription task lifecycle between
// creation and terminal state: a bounded FIFO queue feeds a fixed pool
// of workers, a registry of cancel handles serves cancellation, and
// startup recovery reconciles records left behind by an unclean stop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/juniormartinxo/transcription/internal/config"
	"github.com/juniormartinxo/transcription/internal/models"
	"github.com/juniormartinxo/transcription/internal/store"
)

// errTaskStarted signals that a cancel target moved to processing
// between lookup and transition.
var errTaskStarted = errors.New("task already started")

// Scheduler dispatches pending tasks to worker slots in FIFO order.
type Scheduler struct {
	mu sync.RWMutex

	store   *store.TaskStore
	runner  *JobRunner
	logger  *slog.Logger
	history HistoryRecorder

	queue       chan string
	workerCount int
	taskTimeout time.Duration

	// active maps running task ids to their cancel handles.
	activeMu sync.Mutex
	active   map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler for the given store and runner. Queue depth
// defaults to sixteen slots per worker.
func New(st *store.TaskStore, runner *JobRunner, cfg config.SchedulerConfig) *Scheduler {
	workers := cfg.MaxConcurrentTasks
	if workers <= 0 {
		workers = 1
	}
	depth := cfg.EffectiveQueueDepth()
	if depth <= 0 {
		depth = workers * 16
	}
	return &Scheduler{
		store:       st,
		runner:      runner,
		logger:      slog.Default(),
		queue:       make(chan string, depth),
		workerCount: workers,
		taskTimeout: cfg.TaskTimeout.Std(),
		active:      make(map[string]context.CancelFunc),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithHistory sets the recorder used for transitions the scheduler
// applies itself (pending cancels, startup recovery).
func (s *Scheduler) WithHistory(history HistoryRecorder) *Scheduler {
	s.history = history
	return s
}

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.logger.Info("scheduler started",
		slog.Int("workers", s.workerCount),
		slog.Int("queue_capacity", cap(s.queue)),
		slog.Duration("task_timeout", s.taskTimeout))
	return nil
}

// Stop halts intake, cancels running tasks and waits for the workers,
// bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}

	s.mu.Lock()
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return nil
}

// Enqueue offers a pending task to the queue without blocking. A full
// queue is reported as models.ErrQueueFull for the transport to map.
func (s *Scheduler) Enqueue(taskID string) error {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return models.ErrSchedulerStopped
	}
	if !s.offer(taskID) {
		return fmt.Errorf("task %s: %w", taskID, models.ErrQueueFull)
	}
	return nil
}

// offer performs the non-blocking queue send.
func (s *Scheduler) offer(taskID string) bool {
	select {
	case s.queue <- taskID:
		queueDepth.Inc()
		return true
	default:
		return false
	}
}

// Cancel stops a task wherever it currently is. Pending tasks fail
// synchronously with "canceled"; processing tasks get their context
// canceled and the runner finalizes them; terminal tasks are left
// untouched. Safe to call repeatedly.
func (s *Scheduler) Cancel(taskID string) (*models.TaskRecord, error) {
	rec, err := s.store.Get(taskID)
	if err != nil {
		return nil, err
	}
	if rec.IsTerminal() {
		return rec, nil
	}

	if handle := s.handle(taskID); handle != nil {
		handle()
		s.logger.Info("cancel signaled", slog.String("task_id", taskID))
		return rec, nil
	}

	updated, err := s.store.Update(taskID, func(t *models.TaskRecord) error {
		if t.Status == models.TaskStatusProcessing {
			return errTaskStarted
		}
		return t.MarkFailed(models.ErrorCanceled)
	})
	switch {
	case err == nil:
		recordOutcome(outcomeCanceled)
		if s.history != nil {
			s.history.RecordTransition(context.Background(), updated)
		}
		s.logger.Info("pending task canceled", slog.String("task_id", taskID))
		return updated, nil
	case errors.Is(err, errTaskStarted):
		// lost the race with a worker; the handle exists now
		if handle := s.handle(taskID); handle != nil {
			handle()
		}
		return s.store.Get(taskID)
	case errors.Is(err, models.ErrInvalidTransition):
		// finished in the meantime; cancel is a no-op
		return s.store.Get(taskID)
	default:
		return nil, err
	}
}

// handle returns the cancel func of a running task, or nil.
func (s *Scheduler) handle(taskID string) context.CancelFunc {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.active[taskID]
}

// RecoverResult summarizes what startup recovery did.
type RecoverResult struct {
	Interrupted int `json:"interrupted"`
	Requeued    int `json:"requeued"`
	Dropped     int `json:"dropped"`
}

// Recover reconciles the store with reality after a restart: records
// stuck in processing belonged to a dead process and fail with
// "interrupted"; pending records are re-queued oldest first. Call before
// Start so recovered work is dispatched ahead of new uploads.
func (s *Scheduler) Recover(ctx context.Context) (RecoverResult, error) {
	var result RecoverResult
	records := s.store.List()

	var pending []*models.TaskRecord
	for _, rec := range records {
		switch rec.Status {
		case models.TaskStatusProcessing:
			updated, err := s.store.Update(rec.TaskID, func(t *models.TaskRecord) error {
				return t.MarkFailed(models.ErrorInterrupted)
			})
			if err != nil {
				s.logger.Error("could not mark interrupted task",
					slog.String("task_id", rec.TaskID),
					slog.Any("error", err))
				continue
			}
			result.Interrupted++
			recoveredTotal.WithLabelValues("interrupted").Inc()
			if s.history != nil {
				s.history.RecordTransition(ctx, updated)
			}
		case models.TaskStatusPending:
			pending = append(pending, rec)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	for _, rec := range pending {
		if s.offer(rec.TaskID) {
			result.Requeued++
			recoveredTotal.WithLabelValues("requeued").Inc()
			continue
		}
		// queue smaller than the backlog; fail loudly rather than losing
		// the task silently
		updated, err := s.store.Update(rec.TaskID, func(t *models.TaskRecord) error {
			return t.MarkFailed("queue full")
		})
		if err != nil {
			s.logger.Error("could not mark dropped task",
				slog.String("task_id", rec.TaskID),
				slog.Any("error", err))
			continue
		}
		result.Dropped++
		recoveredTotal.WithLabelValues("dropped").Inc()
		if s.history != nil {
			s.history.RecordTransition(ctx, updated)
		}
		s.logger.Warn("pending task dropped at recovery",
			slog.String("task_id", rec.TaskID))
	}

	if result.Interrupted > 0 || result.Requeued > 0 || result.Dropped > 0 {
		s.logger.Info("startup recovery finished",
			slog.Int("interrupted", result.Interrupted),
			slog.Int("requeued", result.Requeued),
			slog.Int("dropped", result.Dropped))
	}
	return result, nil
}

// worker pulls task ids off the queue until the scheduler stops.
func (s *Scheduler) worker(id int) {
	defer s.wg.Done()
	s.logger.Debug("worker started", slog.Int("worker", id))

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("worker stopping", slog.Int("worker", id))
			return
		case taskID := <-s.queue:
			queueDepth.Dec()
			s.runTask(taskID)
		}
	}
}

// runTask registers the cancel handle and hands the task to the runner.
// The handle is registered before the runner claims the record, so any
// task observed in processing has a live handle.
func (s *Scheduler) runTask(taskID string) {
	var taskCtx context.Context
	var cancel context.CancelFunc
	if s.taskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(s.ctx, s.taskTimeout)
	} else {
		taskCtx, cancel = context.WithCancel(s.ctx)
	}

	s.activeMu.Lock()
	s.active[taskID] = cancel
	s.activeMu.Unlock()
	defer func() {
		s.activeMu.Lock()
		delete(s.active, taskID)
		s.activeMu.Unlock()
		cancel()
	}()

	tasksRunning.Inc()
	defer tasksRunning.Dec()

	if err := s.runner.Run(taskCtx, taskID); err != nil {
		s.logger.Error("task run failed",
			slog.String("task_id", taskID),
			slog.Any("error", err))
	}
}

// Status is a point-in-time snapshot for health reporting.
type Status struct {
	Running       bool `json:"running"`
	Workers       int  `json:"workers"`
	QueueDepth    int  `json:"queue_depth"`
	QueueCapacity int  `json:"queue_capacity"`
	ActiveTasks   int  `json:"active_tasks"`
}

// Status reports the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	running := s.ctx != nil && s.ctx.Err() == nil
	s.mu.RUnlock()

	s.activeMu.Lock()
	activeTasks := len(s.active)
	s.activeMu.Unlock()

	return Status{
		Running:       running,
		Workers:       s.workerCount,
		QueueDepth:    len(s.queue),
		QueueCapacity: cap(s.queue),
		ActiveTasks:   activeTasks,
	}
}
