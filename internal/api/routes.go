package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, chain(fn))
	}

	// Workflows
	handle("GET /api/v1/workflows", h.ListWorkflows)
	handle("POST /api/v1/workflows", h.CreateWorkflow)
	handle("GET /api/v1/workflows/{id}", h.GetWorkflow)
	handle("PUT /api/v1/workflows/{id}", h.UpdateWorkflow)
	handle("DELETE /api/v1/workflows/{id}", h.DeleteWorkflow)
	handle("POST /api/v1/workflows/{id}/validate", h.ValidateWorkflow)

	// Executions
	handle("POST /api/v1/workflows/{id}/executions", h.StartExecution)
	handle("GET /api/v1/workflows/{id}/executions", h.ListWorkflowExecutions)
	handle("GET /api/v1/executions/{id}", h.GetExecution)

	// Integrations
	handle("GET /api/v1/integrations", h.ListIntegrations)
	handle("POST /api/v1/integrations/{type}/validate", h.ValidateIntegration)

	// Schedules
	handle("GET /api/v1/schedules", h.ListSchedules)
	handle("POST /api/v1/workflows/{id}/schedules", h.CreateSchedule)
	handle("GET /api/v1/schedules/{id}", h.GetSchedule)
	handle("DELETE /api/v1/schedules/{id}", h.DeleteSchedule)
	handle("PUT /api/v1/schedules/{id}/enabled", h.SetScheduleEnabled)
}
