package steps

import (
	"context"
	"time"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// Subtype триггеров.
const (
	SubtypeManualTrigger   = "manual_trigger"
	SubtypeScheduleTrigger = "schedule_trigger"
	SubtypeWebhookTrigger  = "webhook_trigger"
)

// TriggerStep: точка входа графа.
//
// Сам запуск execution делают API или scheduler; узел-триггер лишь
// публикует входные переменные, чтобы следующие узлы могли ссылаться
// на {{$node.<trigger>.data.inputs.x}}.
//
// Outputs:
//
//	{
//	    "triggeredAt": "2024-01-01T09:00:00Z",
//	    "inputs": {...},
//	    "payload": {...}   // config.payload, если задан
//	}
type TriggerStep struct {
	subtype string
}

// NewTriggerStep создаёт триггер с заданным subtype.
func NewTriggerStep(subtype string) *TriggerStep {
	return &TriggerStep{subtype: subtype}
}

// Type возвращает subtype триггера.
func (s *TriggerStep) Type() string {
	return s.subtype
}

// Validate допускает любую конфигурацию-объект.
func (s *TriggerStep) Validate(config map[string]any) ValidationResult {
	return validateSchema(objectSchema(nil, map[string]any{
		"payload": map[string]any{"type": "object"},
	}), config)
}

// Execute возвращает снимок входных переменных.
func (s *TriggerStep) Execute(ctx context.Context, req *Request) (*domain.ExecutionResult, error) {
	var inputs map[string]any
	if req.Context != nil {
		inputs = domain.CloneMap(req.Context.Variables)
	}

	data := map[string]any{
		"triggeredAt": time.Now().UTC().Format(time.RFC3339),
		"inputs":      inputs,
	}
	if payload, ok := req.Config["payload"]; ok {
		data["payload"] = payload
	}

	return domain.Succeeded(data), nil
}
