// Package steps содержит интеграции, которые исполняют узлы workflow.
//
// # Контракт
//
// Каждая интеграция реализует Step:
//
//	type Step interface {
//	    Type() string
//	    Validate(config map[string]any) ValidationResult
//	    Execute(ctx context.Context, req *Request) (*domain.ExecutionResult, error)
//	}
//
// Validate чистая и синхронная, вызывается при сохранении и перед запуском.
// Execute получает конфигурацию после разрешения выражений и контекст
// execution только для чтения. Ожидаемые неуспехи возвращаются как
// ExecutionResult{Success: false}; error и паника считаются программной
// ошибкой, scheduler фиксирует их как failed шаг.
//
// # Registry
//
//	registry := steps.DefaultRegistry()
//	step, err := registry.Get("http_request")
//	if errors.Is(err, steps.ErrUnknownIntegration) {
//	    // неизвестный subtype
//	}
//
// ValidateWorkflow объединяет структурную проверку графа (engine.Validate)
// с проверкой конфигурации каждого узла.
//
// # Встроенные интеграции
//
//   - manual_trigger, schedule_trigger, webhook_trigger (trigger.go)
//   - set_variable (variable.go)
//   - branch_condition (branch.go)
//   - delay (delay.go)
//   - http_request (http.go)
//   - transform (transform.go), jq через gojq
//   - log (log.go)
//
// Схемы конфигураций проверяются gojsonschema (schema.go).
package steps
