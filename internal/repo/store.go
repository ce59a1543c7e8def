package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// WorkflowStore: хранилище определений workflow.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	List(ctx context.Context, filter WorkflowFilter) ([]domain.Workflow, error)
	Update(ctx context.Context, wf *domain.Workflow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExecutionStore: хранилище executions.
//
// Переходы статуса атомарны: Claim переводит только pending в running,
// Finish только running в терминальный статус.
type ExecutionStore interface {
	// Create сохраняет pending execution.
	// Повтор idempotency key для того же workflow даёт ErrAlreadyExists.
	Create(ctx context.Context, exec *domain.Execution) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	GetByIdempotencyKey(ctx context.Context, workflowID uuid.UUID, key string) (*domain.Execution, error)
	List(ctx context.Context, filter ExecutionFilter) ([]domain.Execution, error)

	// LatestByWorkflow возвращает самый свежий execution или ErrNotFound.
	LatestByWorkflow(ctx context.Context, workflowID uuid.UUID) (*domain.Execution, error)

	// ListPending возвращает pending executions в порядке создания.
	ListPending(ctx context.Context, limit int) ([]domain.Execution, error)

	// Claim атомарно переводит pending → running.
	// Если execution уже не pending, возвращает ErrClaimConflict.
	Claim(ctx context.Context, id uuid.UUID, startedAt time.Time) error

	// Finish переводит running → completed|failed.
	// Если execution не running, возвращает ErrInvalidState.
	Finish(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, finishedAt time.Time, errMsg string) error

	// FailStale помечает failed все running executions, стартовавшие раньше
	// cutoff, вместе с их pending шагами. Возвращает ID помеченных.
	FailStale(ctx context.Context, cutoff, now time.Time, reason string) ([]uuid.UUID, error)
}

// StepStore: хранилище шагов выполнения.
type StepStore interface {
	// Save записывает шаг. pending можно перезаписать; итоговый шаг
	// пишется один раз, повторная запись даёт ErrStepFinalized.
	Save(ctx context.Context, step domain.ExecutionStep) error

	// ListByExecution возвращает шаги в порядке посещения.
	ListByExecution(ctx context.Context, executionID uuid.UUID) ([]domain.ExecutionStep, error)
}

// ScheduleStore: хранилище расписаний.
type ScheduleStore interface {
	Create(ctx context.Context, schedule *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	List(ctx context.Context, filter ScheduleFilter) ([]domain.Schedule, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Stores: набор хранилищ одного backend.
type Stores struct {
	Workflows  WorkflowStore
	Executions ExecutionStore
	Steps      StepStore
	Schedules  ScheduleStore
}

// NewPostgres создаёт хранилища поверх пула pgx.
func NewPostgres(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Workflows:  NewWorkflowRepo(pool),
		Executions: NewExecutionRepo(pool),
		Steps:      NewStepRepo(pool),
		Schedules:  NewScheduleRepo(pool),
	}
}

// --- Filters ---

// WorkflowFilter: параметры выборки workflows.
type WorkflowFilter struct {
	Limit  int
	Offset int
}

// ExecutionFilter: параметры выборки executions.
type ExecutionFilter struct {
	WorkflowID *uuid.UUID
	Status     domain.ExecutionStatus
	Limit      int
	Offset     int
}

// ScheduleFilter: параметры выборки schedules.
type ScheduleFilter struct {
	WorkflowID *uuid.UUID
	Enabled    *bool
	Limit      int
	Offset     int
}

const defaultLimit = 100

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}
