package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/repo"
)

// ListWorkflows возвращает список workflows.
// GET /api/v1/workflows?limit=...&offset=...
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}

	workflows, err := h.workflows.List(r.Context(), repo.WorkflowFilter{Limit: limit, Offset: offset})
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowSummary, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowSummaryFromDomain(wf)
	}

	List(w, result, len(result))
}

// CreateWorkflow сохраняет новый граф.
// POST /api/v1/workflows
//
// Граф сохраняется как есть: незаконченный черновик допустим,
// проверка выполняется при запуске и через /validate.
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if !h.decode(w, r, &req) {
		return
	}

	now := h.now()
	wf := &domain.Workflow{
		ID:        uuid.New(),
		Name:      req.Name,
		Nodes:     req.Nodes,
		Edges:     req.Edges,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.workflows.Create(r.Context(), wf); HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("workflow created", "workflow_id", wf.ID, "nodes", len(wf.Nodes))
	Created(w, wf)
}

// GetWorkflow возвращает workflow по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, wf)
}

// UpdateWorkflow заменяет имя и граф workflow.
// PUT /api/v1/workflows/{id}
//
// Уже созданные executions не затрагиваются: процессор берёт снимок графа при claim.
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	var req WorkflowRequest
	if !h.decode(w, r, &req) {
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	wf.Name = req.Name
	wf.Nodes = req.Nodes
	wf.Edges = req.Edges
	wf.UpdatedAt = h.now()

	if err := h.workflows.Update(r.Context(), wf); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, wf)
}

// DeleteWorkflow удаляет workflow вместе с его executions и schedules.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	if err := h.workflows.Delete(r.Context(), id); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	NoContent(w)
}

// ValidateWorkflow проверяет граф и конфигурации узлов без запуска.
// POST /api/v1/workflows/{id}/validate
func (h *Handler) ValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, ValidationFromReport(h.registry.ValidateWorkflow(wf)))
}
