package steps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/engine"
)

// Registry: реестр интеграций по subtype.
//
// Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными интеграциями.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewTriggerStep(SubtypeManualTrigger))
	r.Register(NewTriggerStep(SubtypeScheduleTrigger))
	r.Register(NewTriggerStep(SubtypeWebhookTrigger))
	r.Register(NewSetVariableStep())
	r.Register(NewBranchStep())
	r.Register(NewDelayStep())
	r.Register(NewHTTPStep())
	r.Register(NewTransformStep())
	r.Register(NewLogStep(nil))

	return r
}

// Register регистрирует шаг в реестре.
// Если шаг с таким типом уже существует, он будет перезаписан.
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.Type()] = step
}

// Get возвращает шаг по subtype.
// Возвращает ErrUnknownIntegration, если шаг не найден.
func (r *Registry) Get(subtype string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[subtype]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegration, subtype)
	}

	return step, nil
}

// Has проверяет, зарегистрирован ли шаг.
func (r *Registry) Has(subtype string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.steps[subtype]
	return exists
}

// Types возвращает отсортированный список зарегистрированных subtype.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.steps))
	for t := range r.steps {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ValidateWorkflow проверяет граф и конфигурацию каждого узла.
//
// Сначала структурная проверка (engine.Validate с этим реестром),
// затем Validate каждой интеграции; ошибки конфигурации добавляются
// в тот же отчёт.
func (r *Registry) ValidateWorkflow(wf *domain.Workflow) *engine.Report {
	report := engine.Validate(wf, r.Has)

	for i := range wf.Nodes {
		node := &wf.Nodes[i]
		step, err := r.Get(node.Subtype)
		if err != nil {
			continue // уже отражено как UnknownIntegration
		}

		result := step.Validate(node.Config)
		if result.Valid {
			continue
		}
		fields := make([]string, 0, len(result.Errors))
		for f := range result.Errors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			report.AddError(engine.NewConfigError(node.ID, f, result.Errors[f]))
		}
	}

	return report
}
