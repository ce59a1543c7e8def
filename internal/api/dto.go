package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/engine"
)

// Workflow DTOs

// WorkflowRequest: тело создания и полной замены workflow.
type WorkflowRequest struct {
	Name  string        `json:"name" validate:"required,max=200"`
	Nodes []domain.Node `json:"nodes" validate:"required,min=1,dive"`
	Edges []domain.Edge `json:"edges" validate:"dive"`
}

// WorkflowSummary: элемент списка workflows.
type WorkflowSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowSummaryFromDomain конвертирует domain.Workflow в WorkflowSummary.
func WorkflowSummaryFromDomain(wf domain.Workflow) WorkflowSummary {
	return WorkflowSummary{
		ID:        wf.ID,
		Name:      wf.Name,
		NodeCount: len(wf.Nodes),
		EdgeCount: len(wf.Edges),
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}
}

// Issue: одна ошибка или предупреждение валидации графа.
type Issue struct {
	Kind    string `json:"kind"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResponse: результат POST /workflows/{id}/validate.
type ValidationResponse struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// ValidationFromReport конвертирует engine.Report в ValidationResponse.
func ValidationFromReport(report *engine.Report) ValidationResponse {
	return ValidationResponse{
		Valid:    report.Valid(),
		Errors:   issues(report.Errors),
		Warnings: issues(report.Warnings),
	}
}

func issues(errs []*engine.GraphError) []Issue {
	out := make([]Issue, len(errs))
	for i, e := range errs {
		out[i] = Issue{
			Kind:    e.Kind(),
			NodeID:  e.NodeID,
			EdgeID:  e.EdgeID,
			Field:   e.Field,
			Message: e.Message,
		}
	}
	return out
}

// Execution DTOs

// StartExecutionRequest: тело запуска workflow. Пустое тело допустимо.
type StartExecutionRequest struct {
	Inputs         map[string]any `json:"inputs,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty" validate:"omitempty,max=200,printascii"`
}

// StartExecutionResponse: ответ 202 на запуск.
type StartExecutionResponse struct {
	ID     uuid.UUID              `json:"id"`
	Status domain.ExecutionStatus `json:"status"`
}

// ExecutionResponse: execution с вычисленной длительностью.
type ExecutionResponse struct {
	domain.Execution
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e domain.Execution) ExecutionResponse {
	resp := ExecutionResponse{Execution: e}
	if e.FinishedAt != nil {
		resp.DurationMs = e.Duration().Milliseconds()
	}
	return resp
}

// ExecutionDetailResponse: ответ опроса статуса: execution и шаги в порядке посещения.
type ExecutionDetailResponse struct {
	Execution ExecutionResponse      `json:"execution"`
	Steps     []domain.ExecutionStep `json:"steps"`
}

// Integration DTOs

// IntegrationResponse: зарегистрированная интеграция.
type IntegrationResponse struct {
	Type string `json:"type"`
}

// ValidateConfigRequest: проверка конфигурации одной интеграции.
type ValidateConfigRequest struct {
	Config map[string]any `json:"config" validate:"required"`
}

// Schedule DTOs

// CreateScheduleRequest: запрос на создание schedule.
// Ровно одно из CronExpr и IntervalSec.
type CreateScheduleRequest struct {
	Name        string         `json:"name" validate:"max=200"`
	CronExpr    string         `json:"cron_expr,omitempty" validate:"required_without=IntervalSec,excluded_with=IntervalSec"`
	IntervalSec int            `json:"interval_sec,omitempty" validate:"omitempty,min=1"`
	Timezone    string         `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
}

// SetEnabledRequest: запрос на включение/выключение.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
