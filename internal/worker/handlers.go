package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/mq"
	"github.com/shaiso/Nodeflow/internal/repo"
)

// Tick выполняет один проход процессора:
//  1. Помечает потерянные running executions как failed
//  2. Берёт pending executions в порядке создания
//  3. Пытается claim по очереди; проигранный claim ведёт к следующему кандидату
//  4. Исполняет первый захваченный execution до конца
//
// Возвращает true, если execution был исполнен.
func (p *Processor) Tick(ctx context.Context) (bool, error) {
	if p.IsStopped() {
		return false, ErrProcessorStopped
	}

	p.sweepStale(ctx)

	pending, err := p.executions.ListPending(ctx, p.batchSize)
	if err != nil {
		return false, fmt.Errorf("list pending: %w", err)
	}

	for i := range pending {
		exec := &pending[i]
		startedAt := p.now()

		err := p.executions.Claim(ctx, exec.ID, startedAt)
		if errors.Is(err, repo.ErrClaimConflict) {
			claimConflicts.Inc()
			p.logger.Debug("claim lost", "execution_id", exec.ID)
			continue
		}
		if err != nil {
			return false, fmt.Errorf("claim execution %s: %w", exec.ID, err)
		}

		executionsClaimed.Inc()
		exec.Status = domain.ExecutionStatusRunning
		exec.StartedAt = &startedAt

		p.execute(ctx, exec)
		return true, nil
	}

	return false, nil
}

// sweepStale завершает executions, чей процессор пропал.
func (p *Processor) sweepStale(ctx context.Context) {
	now := p.now()
	ids, err := p.executions.FailStale(ctx, now.Add(-p.staleAfter), now, reasonStale)
	if err != nil {
		p.logger.Error("stale sweep failed", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	staleSwept.Add(float64(len(ids)))
	p.logger.Warn("stale executions failed", "count", len(ids), "execution_ids", ids)
}

// execute исполняет захваченный execution и финализирует его.
//
// Контекст прохода не наследует отмену ctx: остановка цикла не должна
// обрывать шаг. Оборвать его могут только таймаут и abandonInFlight.
func (p *Processor) execute(ctx context.Context, exec *domain.Execution) {
	p.runs.Add(1)
	defer p.runs.Done()

	logger := p.logger.With("execution_id", exec.ID, "workflow_id", exec.WorkflowID)
	logger.Info("execution claimed")

	runCtx, abandon := context.WithCancelCause(context.WithoutCancel(ctx))
	defer abandon(nil)
	p.track(exec.ID, abandon)
	defer p.untrack(exec.ID)

	runCtx, cancel := context.WithTimeoutCause(runCtx, p.executionTimeout,
		fmt.Errorf("execution timed out after %s", p.executionTimeout))
	defer cancel()

	status, errMsg, steps := p.run(runCtx, exec)

	finishCtx, cancelFinish := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancelFinish()

	finishedAt := p.now()
	if err := p.executions.Finish(finishCtx, exec.ID, status, finishedAt, errMsg); err != nil {
		// Обычно означает, что execution уже снят stale sweep
		logger.Error("failed to finish execution", "status", status, "error", err)
		return
	}

	duration := finishedAt.Sub(*exec.StartedAt)
	executionsFinished.WithLabelValues(string(status)).Inc()
	executionDuration.Observe(duration.Seconds())

	logger.Info("execution finished",
		"status", status,
		"steps", steps,
		"duration", duration,
		"error", errMsg,
	)

	if p.events != nil {
		err := p.events.PublishFinished(finishCtx, mq.ExecutionFinishedPayload{
			ExecutionID: exec.ID,
			WorkflowID:  exec.WorkflowID,
			Status:      string(status),
			Error:       errMsg,
			Steps:       steps,
			DurationMs:  duration.Milliseconds(),
		})
		if err != nil {
			logger.Warn("failed to publish finished event", "error", err)
		}
	}
}

// run загружает снимок workflow и проходит граф.
func (p *Processor) run(ctx context.Context, exec *domain.Execution) (domain.ExecutionStatus, string, int) {
	wf, err := p.workflows.GetByID(ctx, exec.WorkflowID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ExecutionStatusFailed, ErrWorkflowMissing.Error(), 0
	}
	if err != nil {
		return domain.ExecutionStatusFailed, fmt.Sprintf("load workflow: %v", err), 0
	}

	wctx := domain.NewWorkflowContext(exec.ID, exec.Inputs)

	outcome, err := p.scheduler.Run(ctx, wf.Snapshot(), wctx, p.sink)
	if err != nil {
		steps := 0
		if outcome != nil {
			steps = len(outcome.Steps)
		}
		return domain.ExecutionStatusFailed, err.Error(), steps
	}
	return outcome.Status, outcome.Error, len(outcome.Steps)
}

// sink сохраняет шаг и публикует событие о нём.
func (p *Processor) sink(ctx context.Context, step domain.ExecutionStep) error {
	if err := p.steps.Save(ctx, step); err != nil {
		return err
	}
	stepsPersisted.WithLabelValues(string(step.Status)).Inc()

	if p.events == nil {
		return nil
	}

	event := mq.StepEventPayload{
		ExecutionID: step.ExecutionID,
		NodeID:      step.NodeID,
		Position:    step.Position,
		Status:      string(step.Status),
	}
	if step.Result != nil {
		event.Error = step.Result.Error
	}
	if err := p.events.PublishStep(ctx, event); err != nil {
		p.logger.Warn("failed to publish step event",
			"execution_id", step.ExecutionID,
			"node_id", step.NodeID,
			"error", err,
		)
	}
	return nil
}
