package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/shaiso/Nodeflow/internal/repo"
	"github.com/shaiso/Nodeflow/internal/steps"
)

// Notifier будит процессор после создания execution. Реализуется mq.Publisher.
type Notifier interface {
	PublishExecutionPending(ctx context.Context, executionID, workflowID uuid.UUID) error
}

// Handler: главный обработчик API с зависимостями.
type Handler struct {
	workflows  repo.WorkflowStore
	executions repo.ExecutionStore
	steps      repo.StepStore
	schedules  repo.ScheduleStore

	registry *steps.Registry
	notifier Notifier
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// Config: конфигурация для создания Handler.
type Config struct {
	Stores *repo.Stores

	// Registry: интеграции для валидации графа (default: steps.DefaultRegistry()).
	Registry *steps.Registry

	// Notifier: сигнал executions.pending (опционально).
	Notifier Notifier

	Now    func() time.Time
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Handler{
		workflows:  cfg.Stores.Workflows,
		executions: cfg.Stores.Executions,
		steps:      cfg.Stores.Steps,
		schedules:  cfg.Stores.Schedules,
		registry:   registry,
		notifier:   cfg.Notifier,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
		now:        now,
	}
}
