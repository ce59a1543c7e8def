package api

import (
	"errors"
	"net/http"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/repo"
)

// StartExecution ставит workflow в очередь на выполнение.
// POST /api/v1/workflows/{id}/executions
//
// Алгоритм:
//  1. Загружаем workflow (404, если нет)
//  2. С idempotency_key возвращаем уже созданный execution
//  3. Проверяем граф и конфигурации; при ошибках 422 и ничего не создаём
//  4. Создаём pending execution и будим процессор
//
// Ответ 202 приходит сразу, выполнение идёт асинхронно.
func (h *Handler) StartExecution(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	var req StartExecutionRequest
	if !h.decode(w, r, &req) {
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), workflowID)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if req.IdempotencyKey != "" {
		existing, err := h.executions.GetByIdempotencyKey(r.Context(), workflowID, req.IdempotencyKey)
		if err == nil {
			Accepted(w, StartExecutionResponse{ID: existing.ID, Status: existing.Status})
			return
		}
		if !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.logger, err)
			return
		}
	}

	report := h.registry.ValidateWorkflow(wf)
	if !report.Valid() {
		ValidationFailed(w, "workflow is invalid", issues(report.Errors))
		return
	}

	exec := domain.NewExecution(wf.ID, req.Inputs)
	exec.IdempotencyKey = req.IdempotencyKey
	exec.CreatedAt = h.now()

	err = h.executions.Create(r.Context(), exec)
	if errors.Is(err, repo.ErrAlreadyExists) && req.IdempotencyKey != "" {
		// Проиграли гонку параллельному запросу с тем же ключом
		existing, err := h.executions.GetByIdempotencyKey(r.Context(), workflowID, req.IdempotencyKey)
		if HandleRepoError(w, h.logger, err, "execution not found") {
			return
		}
		Accepted(w, StartExecutionResponse{ID: existing.ID, Status: existing.Status})
		return
	}
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("execution queued", "execution_id", exec.ID, "workflow_id", wf.ID)

	if h.notifier != nil {
		if err := h.notifier.PublishExecutionPending(r.Context(), exec.ID, wf.ID); err != nil {
			// Процессор всё равно подберёт execution опросом
			h.logger.Warn("failed to publish execution.pending", "execution_id", exec.ID, "error", err)
		}
	}

	Accepted(w, StartExecutionResponse{ID: exec.ID, Status: exec.Status})
}

// GetExecution возвращает статус execution и записанные шаги.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "execution")
	if !ok {
		return
	}

	exec, err := h.executions.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	steps, err := h.steps.ListByExecution(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if steps == nil {
		steps = []domain.ExecutionStep{}
	}

	Success(w, ExecutionDetailResponse{
		Execution: ExecutionFromDomain(*exec),
		Steps:     steps,
	})
}

// ListWorkflowExecutions возвращает executions workflow, новые первыми.
// GET /api/v1/workflows/{id}/executions?latest=true&status=...&limit=...&offset=...
//
// С latest=true возвращает только последний execution или data: null.
func (h *Handler) ListWorkflowExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	if _, err := h.workflows.GetByID(r.Context(), workflowID); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	q := r.URL.Query()
	if q.Get("latest") == "true" {
		exec, err := h.executions.LatestByWorkflow(r.Context(), workflowID)
		if errors.Is(err, repo.ErrNotFound) {
			Success(w, nil)
			return
		}
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
		Success(w, ExecutionFromDomain(*exec))
		return
	}

	limit, offset, ok := page(w, r)
	if !ok {
		return
	}

	filter := repo.ExecutionFilter{WorkflowID: &workflowID, Limit: limit, Offset: offset}
	if status := q.Get("status"); status != "" {
		parsed, err := domain.ParseExecutionStatus(status)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		filter.Status = parsed
	}

	executions, err := h.executions.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(executions))
	for i, e := range executions {
		result[i] = ExecutionFromDomain(e)
	}

	List(w, result, len(result))
}
