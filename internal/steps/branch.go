package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/engine"
)

// BranchStep: условное ветвление.
//
// Условие берётся из исходной конфигурации и разрешается в quoted режиме,
// чтобы строки из контекста стали литералами. Затем оно вычисляется
// engine.EvaluateCondition; произвольный код не исполняется.
//
// Конфигурация:
//
//	{
//	    "condition": "{{$vars.x}} === 5"
//	}
//
// Outputs:
//
//	{
//	    "path": "true",            // или "false"
//	    "condition": "5 === 5"     // условие после подстановки
//	}
type BranchStep struct{}

// NewBranchStep создаёт новый BranchStep.
func NewBranchStep() *BranchStep {
	return &BranchStep{}
}

// Type возвращает subtype.
func (s *BranchStep) Type() string {
	return domain.SubtypeBranchCondition
}

// Validate требует непустое условие.
func (s *BranchStep) Validate(config map[string]any) ValidationResult {
	return validateSchema(objectSchema(
		[]string{"condition"},
		map[string]any{
			"condition": map[string]any{"type": "string", "minLength": 1},
		},
	), config)
}

// Execute вычисляет условие и выбирает ветку.
func (s *BranchStep) Execute(ctx context.Context, req *Request) (*domain.ExecutionResult, error) {
	raw := GetConfigString(req.RawConfig, "condition")
	if raw == "" {
		raw = GetConfigString(req.Config, "condition")
	}
	if raw == "" {
		return domain.Failed("condition is required"), nil
	}

	expr, misses := engine.ResolveString(raw, req.Context, engine.ModeQuoted)
	if len(misses) > 0 {
		return domain.Failed(misses[0].Error()), nil
	}

	ok, err := engine.EvaluateCondition(expr)
	if err != nil {
		return domain.Failed(fmt.Sprintf("evaluate %q: %v", expr, err)), nil
	}

	path := domain.BranchFalse
	if ok {
		path = domain.BranchTrue
	}

	return domain.Succeeded(map[string]any{
		"path":      path,
		"condition": expr,
	}), nil
}
