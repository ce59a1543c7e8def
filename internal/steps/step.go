package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/engine"
)

// Ошибки шагов.
var (
	// ErrUnknownIntegration: subtype не найден в реестре.
	ErrUnknownIntegration = engine.ErrUnknownIntegration

	// ErrInvalidConfig: невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepCancelled: выполнение шага отменено через context.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// Step: контракт интеграции, которую вызывает scheduler.
//
// Ожидаемые ошибки (плохой ввод, недоступный сервис) возвращаются как
// ExecutionResult{Success: false}. Возврат error или паника означают
// программную ошибку; scheduler превращает их в failed шаг.
type Step interface {
	// Type возвращает subtype, по которому узлы выбирают интеграцию.
	Type() string

	// Validate проверяет конфигурацию узла. Чистая и синхронная.
	Validate(config map[string]any) ValidationResult

	// Execute выполняет узел. Контекст workflow доступен только на чтение.
	// Шаг должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, req *Request) (*domain.ExecutionResult, error)
}

// Request: входные данные для выполнения шага.
type Request struct {
	// NodeID: идентификатор узла.
	NodeID string

	// Kind: категория узла.
	Kind domain.NodeKind

	// Config: конфигурация после разрешения выражений (bare режим).
	Config map[string]any

	// RawConfig: конфигурация как в графе; нужна шагам, которые сами
	// разрешают выражения в другом режиме (branch_condition).
	RawConfig map[string]any

	// Context: состояние execution. Только чтение.
	Context *domain.WorkflowContext
}

// ValidationResult: результат проверки конфигурации.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Err возвращает ошибку ErrInvalidConfig с перечнем полей или nil.
func (v ValidationResult) Err() error {
	if v.Valid {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, v.Errors)
}

// validResult: конфигурация без ошибок.
func validResult() ValidationResult {
	return ValidationResult{Valid: true}
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
// Строки с числом (результат разрешения выражения) тоже принимаются.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		case string:
			var i int
			if _, err := fmt.Sscan(n, &i); err == nil {
				return i
			}
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			switch b {
			case "true":
				return true
			case "false":
				return false
			}
		}
	}
	return defaultVal
}

// GetConfigMapString извлекает map[string]string из конфига.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string, len(m))
			for k, val := range m {
				if s, ok := val.(string); ok {
					result[k] = s
				}
			}
			return result
		}
	}
	return nil
}
