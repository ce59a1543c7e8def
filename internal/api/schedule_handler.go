package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/repo"
	"github.com/shaiso/Nodeflow/internal/scheduler"
)

// ListSchedules возвращает список schedules с фильтрацией.
// GET /api/v1/schedules?workflow_id=...&enabled=...&limit=...&offset=...
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	filter := repo.ScheduleFilter{Limit: limit, Offset: offset}

	q := r.URL.Query()
	if v := q.Get("workflow_id"); v != "" {
		workflowID, err := uuid.Parse(v)
		if err != nil {
			BadRequest(w, "invalid workflow_id")
			return
		}
		filter.WorkflowID = &workflowID
	}
	if v := q.Get("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(w, "invalid enabled")
			return
		}
		filter.Enabled = &enabled
	}

	schedules, err := h.schedules.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if schedules == nil {
		schedules = []domain.Schedule{}
	}

	List(w, schedules, len(schedules))
}

// CreateSchedule создаёт расписание для workflow.
// POST /api/v1/workflows/{id}/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := pathID(w, r, "workflow")
	if !ok {
		return
	}

	var req CreateScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.workflows.GetByID(r.Context(), workflowID); HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	now := h.now()
	sched := &domain.Schedule{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		Name:        req.Name,
		CronExpr:    req.CronExpr,
		IntervalSec: req.IntervalSec,
		Timezone:    req.Timezone,
		Enabled:     req.Enabled == nil || *req.Enabled,
		Inputs:      req.Inputs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sched.Timezone == "" {
		sched.Timezone = "UTC"
	}

	if err := scheduler.Validate(sched); err != nil {
		ValidationFailed(w, err.Error(), nil)
		return
	}
	if err := scheduler.InitialNextDue(sched, now); err != nil {
		ValidationFailed(w, err.Error(), nil)
		return
	}

	if err := h.schedules.Create(r.Context(), sched); HandleRepoError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("schedule created",
		"schedule_id", sched.ID,
		"workflow_id", workflowID,
		"next_due_at", sched.NextDueAt,
	)
	Created(w, sched)
}

// GetSchedule возвращает schedule по ID.
// GET /api/v1/schedules/{id}
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	sched, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, sched)
}

// DeleteSchedule удаляет schedule.
// DELETE /api/v1/schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	if err := h.schedules.Delete(r.Context(), id); HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	NoContent(w)
}

// SetScheduleEnabled включает или выключает schedule.
// PUT /api/v1/schedules/{id}/enabled
//
// При включении next_due_at считается заново от текущего момента,
// чтобы не запускать пропущенное за время простоя.
func (h *Handler) SetScheduleEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "schedule")
	if !ok {
		return
	}

	var req SetEnabledRequest
	if !h.decode(w, r, &req) {
		return
	}

	sched, err := h.schedules.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	now := h.now()
	if *req.Enabled && !sched.Enabled {
		if err := scheduler.InitialNextDue(sched, now); err != nil {
			ValidationFailed(w, err.Error(), nil)
			return
		}
	}
	sched.Enabled = *req.Enabled
	sched.UpdatedAt = now

	if err := h.schedules.Update(r.Context(), sched); HandleRepoError(w, h.logger, err, "schedule not found") {
		return
	}

	Success(w, sched)
}
