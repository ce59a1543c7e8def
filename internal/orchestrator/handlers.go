package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/engine"
	"github.com/shaiso/Nodeflow/internal/steps"
)

// runNode исполняет один узел и сохраняет оба его шага.
//
// Шаги пишутся через WithoutCancel: итог узла должен попасть в хранилище
// даже после таймаута execution.
func (s *Scheduler) runNode(
	ctx context.Context,
	gn *engine.GraphNode,
	wctx *domain.WorkflowContext,
	position int,
	sink StepSink,
	logger *slog.Logger,
) (*domain.ExecutionStep, error) {
	node := gn.Node

	ctx, span := s.tracer.Start(ctx, "node.execute", trace.WithAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.kind", string(node.Kind)),
		attribute.String("node.subtype", node.Subtype),
	))
	defer span.End()

	persistCtx := context.WithoutCancel(ctx)

	startedAt := s.now()
	step := domain.ExecutionStep{
		ExecutionID: wctx.ExecutionID,
		NodeID:      node.ID,
		Position:    position,
		Status:      domain.StepStatusPending,
		StartedAt:   &startedAt,
	}
	if err := sink(persistCtx, step); err != nil {
		return nil, fmt.Errorf("%w: node %s (pending): %v", ErrStepSink, node.ID, err)
	}

	// 1. Разрешаем выражения конфигурации
	config, misses := engine.ResolveConfig(node.Config, wctx, engine.ModeBare)
	for _, miss := range misses {
		logger.Warn("unresolved expression",
			"node_id", node.ID,
			"expression", miss.Expression,
			"reason", miss.Reason,
		)
	}

	// 2. Вызываем интеграцию
	produced := s.invoke(ctx, node, config, wctx, logger)

	completedAt := s.now()

	// Результат копируем: интеграция могла вернуть общий экземпляр
	result := *produced
	// Служебные поля задаёт scheduler, Extra интеграции сохраняется
	result.Metadata = domain.ResultMetadata{
		NodeType:   node.Kind,
		Subtype:    node.Subtype,
		DurationMs: completedAt.Sub(startedAt).Milliseconds(),
		Extra:      domain.CloneMap(produced.Metadata.Extra),
	}

	// 3. Обновляем контекст
	wctx.SetNodeOutput(node.ID, &result)
	if result.Success && result.Metadata.Subtype == domain.SubtypeSetVariable {
		if name, ok := result.Data["variableName"].(string); ok && name != "" {
			wctx.SetVariable(name, result.Data["value"])
		}
	}

	// 4. Итоговый шаг
	step.Status = domain.StepStatusCompleted
	if !result.Success {
		step.Status = domain.StepStatusFailed
		span.SetStatus(codes.Error, result.Error)
	}
	step.CompletedAt = &completedAt
	step.Result = &result

	if err := sink(persistCtx, step); err != nil {
		return nil, fmt.Errorf("%w: node %s (%s): %v", ErrStepSink, node.ID, step.Status, err)
	}

	logger.Info("node finished",
		"node_id", node.ID,
		"subtype", node.Subtype,
		"status", step.Status,
		"duration_ms", result.Metadata.DurationMs,
	)

	return &step, nil
}

// invoke вызывает интеграцию и превращает ошибку или панику в неуспешный результат.
func (s *Scheduler) invoke(
	ctx context.Context,
	node *domain.Node,
	config map[string]any,
	wctx *domain.WorkflowContext,
	logger *slog.Logger,
) (result *domain.ExecutionResult) {
	integration, err := s.registry.Get(node.Subtype)
	if err != nil {
		return domain.Failed(err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("integration panicked",
				"node_id", node.ID,
				"subtype", node.Subtype,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = domain.Failed(fmt.Sprintf("%v: panic: %v", engine.ErrNodeExecutionFailure, r))
		}
	}()

	res, err := integration.Execute(ctx, &steps.Request{
		NodeID:    node.ID,
		Kind:      node.Kind,
		Config:    config,
		RawConfig: node.Config,
		Context:   wctx,
	})
	if err != nil {
		logger.Error("integration returned error",
			"node_id", node.ID,
			"subtype", node.Subtype,
			"error", err,
		)
		return domain.Failed(fmt.Sprintf("%v: %v", engine.ErrNodeExecutionFailure, err))
	}
	if res == nil {
		return domain.Failed(fmt.Sprintf("%v: integration returned no result", engine.ErrNodeExecutionFailure))
	}

	return res
}
