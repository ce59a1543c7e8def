package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/repo"
)

// Default configuration values.
const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// ErrSchedulerStopped: планировщик остановлен.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Notifier будит процессор после создания execution. Реализуется mq.Publisher.
type Notifier interface {
	PublishExecutionPending(ctx context.Context, executionID, workflowID uuid.UUID) error
}

// Locker выбирает единственного лидера среди экземпляров планировщика.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Scheduler превращает наступившие schedules в pending executions.
type Scheduler struct {
	schedules  repo.ScheduleStore
	executions repo.ExecutionStore
	workflows  repo.WorkflowStore

	notifier Notifier
	lock     Locker
	logger   *slog.Logger

	interval  time.Duration
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Config: конфигурация Scheduler.
type Config struct {
	Stores *repo.Stores

	// Notifier: сигнал executions.pending (опционально).
	Notifier Notifier

	// Lock: leader election (default: repo.LocalLock).
	Lock Locker

	Interval  time.Duration // период тика (default: 1s)
	BatchSize int           // schedules за один тик (default: 100)

	Now    func() time.Time
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var lock Locker = repo.LocalLock{}
	if cfg.Lock != nil {
		lock = cfg.Lock
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Scheduler{
		schedules:  cfg.Stores.Schedules,
		executions: cfg.Stores.Executions,
		workflows:  cfg.Stores.Workflows,
		notifier:   cfg.Notifier,
		lock:       lock,
		logger:     logger.With("component", "scheduler"),
		interval:   interval,
		batchSize:  batchSize,
		now:        now,
	}
}

// Start запускает цикл тиков. Повторный вызов ничего не делает.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return nil
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// Stop останавливает цикл и отпускает лидерство.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	defer func() {
		if err := s.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release leadership", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		leader, err := s.lock.TryLock(ctx)
		if err != nil {
			s.logger.Error("leader election failed", "error", err)
			continue
		}
		if !leader {
			continue
		}

		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	}
}

// Tick обрабатывает наступившие schedules и возвращает число созданных executions.
//
// Ошибка одного schedule не мешает остальным.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now()

	due, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due schedules: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var created int
	for i := range due {
		sched := &due[i]

		ok, err := s.fire(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"schedule_name", sched.Name,
				"error", err,
			)
			continue
		}
		if ok {
			created++
		}
	}

	s.logger.Info("scheduler tick completed", "due", len(due), "executions_created", created)
	return created, nil
}

// fire создаёт execution для одного schedule и сдвигает next_due_at.
// Возвращает true, если execution создан сейчас, а не ранее.
func (s *Scheduler) fire(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	if _, err := s.workflows.GetByID(ctx, sched.WorkflowID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("workflow not found for schedule, skipping",
				"schedule_id", sched.ID,
				"workflow_id", sched.WorkflowID,
			)
			return false, nil
		}
		return false, fmt.Errorf("get workflow: %w", err)
	}

	// Один execution на schedule и конкретное время запуска
	key := fmt.Sprintf("%s_%d", sched.ID, sched.NextDueAt.Unix())

	exec := domain.NewExecution(sched.WorkflowID, domain.CloneMap(sched.Inputs))
	exec.IdempotencyKey = key
	exec.CreatedAt = now

	created := true
	err := s.executions.Create(ctx, exec)
	if errors.Is(err, repo.ErrAlreadyExists) {
		existing, err := s.executions.GetByIdempotencyKey(ctx, sched.WorkflowID, key)
		if err != nil {
			return false, fmt.Errorf("load existing execution: %w", err)
		}
		s.logger.Debug("execution already exists", "schedule_id", sched.ID, "idempotency_key", key)
		exec, created = existing, false
	} else if err != nil {
		return false, fmt.Errorf("create execution: %w", err)
	}

	next, err := NextDue(sched, now)
	if err != nil {
		// Расписание испорчено: выключаем, чтобы не срабатывать каждый тик
		s.logger.Error("failed to calculate next due, disabling schedule",
			"schedule_id", sched.ID,
			"error", err,
		)
		sched.Enabled = false
		sched.UpdatedAt = now
		if err := s.schedules.Update(ctx, sched); err != nil {
			return created, fmt.Errorf("disable schedule: %w", err)
		}
		return created, nil
	}

	sched.RecordRun(exec.ID, next)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return created, fmt.Errorf("update schedule: %w", err)
	}

	if created {
		s.logger.Info("created execution from schedule",
			"execution_id", exec.ID,
			"schedule_id", sched.ID,
			"workflow_id", sched.WorkflowID,
			"next_due_at", next,
		)
		s.notify(ctx, exec)
	}
	return created, nil
}

func (s *Scheduler) notify(ctx context.Context, exec *domain.Execution) {
	if s.notifier == nil {
		return
	}
	// Не фатально: процессор подберёт execution опросом
	if err := s.notifier.PublishExecutionPending(ctx, exec.ID, exec.WorkflowID); err != nil {
		s.logger.Warn("failed to publish execution.pending", "execution_id", exec.ID, "error", err)
	}
}
