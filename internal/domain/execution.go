package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution: одна попытка выполнения workflow.
type Execution struct {
	// ID: уникальный идентификатор.
	ID uuid.UUID `json:"id"`

	// WorkflowID: выполняемый workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Status: текущий статус.
	Status ExecutionStatus `json:"status"`

	// Inputs: начальные значения переменных контекста.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Error: причина неуспеха (таймаут, остановка процесса, упавший шаг).
	Error string `json:"error,omitempty"`

	// IdempotencyKey: защищает от повторного создания (используется schedules).
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// StartedAt: момент claim процессором.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt: момент установки терминального статуса.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt: время создания.
	CreatedAt time.Time `json:"created_at"`
}

// NewExecution создаёт execution в статусе pending.
func NewExecution(workflowID uuid.UUID, inputs map[string]any) *Execution {
	return &Execution{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Status:     ExecutionStatusPending,
		Inputs:     inputs,
		CreatedAt:  time.Now().UTC(),
	}
}

// IsFinished проверяет, завершён ли execution.
func (e *Execution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// Duration возвращает длительность выполнения.
// Если execution ещё не стартовал, возвращает 0.
func (e *Execution) Duration() time.Duration {
	if e.StartedAt == nil {
		return 0
	}
	if e.FinishedAt == nil {
		return time.Since(*e.StartedAt)
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// ExecutionStep: зафиксированный результат одного узла в одном execution.
type ExecutionStep struct {
	ExecutionID uuid.UUID  `json:"execution_id"`
	NodeID      string     `json:"node_id"`
	Position    int        `json:"position"`
	Status      StepStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result: пусто, пока шаг в pending.
	Result *ExecutionResult `json:"result,omitempty"`
}

// ExecutionResult: результат вызова интеграции.
// Создаётся один раз на вызов узла и дальше не меняется.
type ExecutionResult struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata ResultMetadata `json:"metadata"`
}

// ResultMetadata: сведения об узле, выдавшем результат.
type ResultMetadata struct {
	NodeType NodeKind `json:"nodeType"`
	Subtype  string   `json:"subtype"`

	// DurationMs: длительность вызова интеграции.
	DurationMs int64 `json:"durationMs,omitempty"`

	// Extra: произвольные сведения от интеграции (код ответа, попытки и т.п.).
	// В AsMap разворачиваются рядом с nodeType/subtype, но не перекрывают их.
	Extra map[string]any `json:"extra,omitempty"`
}

// Succeeded создаёт успешный результат.
func Succeeded(data map[string]any) *ExecutionResult {
	return &ExecutionResult{Success: true, Data: data}
}

// Failed создаёт результат ожидаемой ошибки.
func Failed(msg string) *ExecutionResult {
	return &ExecutionResult{Success: false, Error: msg}
}

// AsMap возвращает результат в JSON-виде, по которому ходят выражения
// {{$node.<id>.data.x}}.
func (r *ExecutionResult) AsMap() map[string]any {
	meta := make(map[string]any, len(r.Metadata.Extra)+3)
	for k, v := range r.Metadata.Extra {
		meta[k] = v
	}
	meta["nodeType"] = string(r.Metadata.NodeType)
	meta["subtype"] = r.Metadata.Subtype
	meta["durationMs"] = r.Metadata.DurationMs

	m := map[string]any{
		"success":  r.Success,
		"metadata": meta,
	}
	if r.Data != nil {
		m["data"] = r.Data
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}
