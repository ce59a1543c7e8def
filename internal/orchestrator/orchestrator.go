package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/engine"
	"github.com/shaiso/Nodeflow/internal/steps"
)

const tracerName = "github.com/shaiso/Nodeflow/internal/orchestrator"

// StepSink сохраняет шаг сразу после его появления.
//
// Вызывается дважды на посещённый узел: с pending и с итоговым статусом.
// Ошибка sink считается инфраструктурной и прерывает проход.
type StepSink func(ctx context.Context, step domain.ExecutionStep) error

// Outcome: итог прохода по графу.
type Outcome struct {
	// Status: completed, если ни один шаг не упал, иначе failed.
	Status domain.ExecutionStatus

	// Error: причина неуспеха для Execution.Error.
	Error string

	// Steps: итоговые шаги в порядке посещения.
	Steps []domain.ExecutionStep

	// Pruned и Blocked: узлы, не получившие шага.
	Pruned  []string
	Blocked []string

	// Interrupted: проход остановлен контекстом.
	Interrupted bool

	Stats RunStats
}

// Scheduler исполняет граф workflow.
//
// Scheduler не хранит состояние между вызовами Run и может
// использоваться повторно.
type Scheduler struct {
	registry *steps.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Config: конфигурация Scheduler.
type Config struct {
	// Registry: интеграции по subtype (default: steps.DefaultRegistry()).
	Registry *steps.Registry

	// Tracer: трассировщик (default: глобальный провайдер otel).
	Tracer trace.Tracer

	// Now: источник времени; нужен тестам.
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		registry: registry,
		logger:   logger,
		tracer:   tracer,
		now:      now,
	}
}

// Run выполняет workflow от начала до конца.
//
// Алгоритм:
//  1. Строим DAG снимка и берём топологический порядок
//  2. Для каждого узла решаем по входящим рёбрам: запуск, отсечение или блокировка
//  3. Запускаемый узел исполняем (handlers.go) и фиксируем итог
//  4. Если контекст завершён до старта узла, останавливаемся
//
// Ошибка возвращается только для невалидного графа и ошибок sink;
// падения узлов отражаются в Outcome.
func (s *Scheduler) Run(ctx context.Context, wf *domain.Workflow, wctx *domain.WorkflowContext, sink StepSink) (*Outcome, error) {
	if wctx == nil {
		return nil, ErrNilContext
	}

	ctx, span := s.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.id", wf.ID.String()),
		attribute.String("execution.id", wctx.ExecutionID.String()),
	))
	defer span.End()

	dag, err := engine.BuildDAG(wf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid graph")
		return nil, fmt.Errorf("build graph: %w", err)
	}

	logger := s.logger.With("execution_id", wctx.ExecutionID, "workflow_id", wf.ID)
	logger.Info("execution walk started", "nodes", dag.Size())

	state := NewRunState(dag)
	outcome := &Outcome{}
	var firstFailure string

	for _, gn := range dag.Order {
		switch state.classify(gn) {
		case decisionBlocked:
			state.MarkBlocked(gn.ID)
			outcome.Blocked = append(outcome.Blocked, gn.ID)
			logger.Debug("node blocked by failed dependency", "node_id", gn.ID)
			continue
		case decisionPruned:
			state.MarkPruned(gn.ID)
			outcome.Pruned = append(outcome.Pruned, gn.ID)
			logger.Debug("node pruned", "node_id", gn.ID)
			continue
		}

		if ctx.Err() != nil {
			outcome.Interrupted = true
			break
		}

		step, err := s.runNode(ctx, gn, wctx, state.NextPosition(), sink, logger)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step sink failed")
			return outcome, err
		}
		outcome.Steps = append(outcome.Steps, *step)

		if step.Status == domain.StepStatusCompleted {
			state.MarkCompleted(gn.ID, step.Result)
			continue
		}

		state.MarkFailed(gn.ID, step.Result)
		if firstFailure == "" {
			firstFailure = fmt.Sprintf("node %s failed: %s", gn.ID, step.Result.Error)
		}
	}

	outcome.Stats = state.Stats()

	switch {
	case outcome.Interrupted:
		outcome.Status = domain.ExecutionStatusFailed
		outcome.Error = interruptReason(ctx)
	case state.HasFailed():
		outcome.Status = domain.ExecutionStatusFailed
		outcome.Error = firstFailure
	default:
		outcome.Status = domain.ExecutionStatusCompleted
	}

	// Упавший последним узел мог упасть из-за отмены контекста
	if outcome.Status == domain.ExecutionStatusFailed && !outcome.Interrupted && ctx.Err() != nil {
		outcome.Interrupted = true
		outcome.Error = interruptReason(ctx)
	}

	if outcome.Status == domain.ExecutionStatusFailed {
		span.SetStatus(codes.Error, outcome.Error)
	}
	span.SetAttributes(
		attribute.String("execution.status", string(outcome.Status)),
		attribute.Int("execution.steps", len(outcome.Steps)),
	)

	logger.Info("execution walk finished",
		"status", outcome.Status,
		"steps", len(outcome.Steps),
		"pruned", len(outcome.Pruned),
		"blocked", len(outcome.Blocked),
		"interrupted", outcome.Interrupted,
	)

	return outcome, nil
}

// interruptReason формирует причину остановки из контекста.
// Причина, заданная через context.WithCancelCause или WithTimeoutCause, важнее стандартной.
func interruptReason(ctx context.Context) string {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return ErrInterrupted.Error()
	case errors.Is(cause, context.DeadlineExceeded):
		return fmt.Sprintf("%v: timed out", ErrInterrupted)
	case errors.Is(cause, context.Canceled):
		return fmt.Sprintf("%v: cancelled", ErrInterrupted)
	default:
		return cause.Error()
	}
}
