package steps

import (
	"context"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// SetVariableStep: запись переменной контекста.
//
// Шаг только возвращает {variableName, value}; переменную в контекст
// копирует scheduler, так как интеграции контекст не изменяют.
//
// Конфигурация:
//
//	{
//	    "variableName": "x",
//	    "value": 5
//	}
type SetVariableStep struct{}

// NewSetVariableStep создаёт новый SetVariableStep.
func NewSetVariableStep() *SetVariableStep {
	return &SetVariableStep{}
}

// Type возвращает subtype.
func (s *SetVariableStep) Type() string {
	return domain.SubtypeSetVariable
}

// Validate требует непустое variableName и наличие value.
func (s *SetVariableStep) Validate(config map[string]any) ValidationResult {
	return validateSchema(objectSchema(
		[]string{"variableName", "value"},
		map[string]any{
			"variableName": map[string]any{"type": "string", "minLength": 1},
		},
	), config)
}

// Execute возвращает имя и значение переменной.
func (s *SetVariableStep) Execute(ctx context.Context, req *Request) (*domain.ExecutionResult, error) {
	name := GetConfigString(req.Config, "variableName")
	if name == "" {
		return domain.Failed("variableName is required"), nil
	}

	value, ok := req.Config["value"]
	if !ok {
		return domain.Failed("value is required"), nil
	}

	return domain.Succeeded(map[string]any{
		"variableName": name,
		"value":        value,
	}), nil
}
