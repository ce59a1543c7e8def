package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/shaiso/Nodeflow/internal/domain"
)

const (
	// SubtypeTransform: subtype шага трансформации.
	SubtypeTransform = "transform"

	configQuery = "query"
	configInput = "input"
)

// TransformStep: преобразование данных jq-запросом (gojq).
//
// По умолчанию вход запроса: снимок контекста:
//
//	{"vars": {...}, "nodes": {"<id>": {"success": ..., "data": ...}}}
//
// Конфигурация:
//
//	{
//	    "query": "[.nodes.fetch.data.body.items[] | .id]",
//	    "input": "{{$node.fetch.data.body}}"   // опционально
//	}
//
// Outputs:
//
//	{"result": [1, 2, 3]}
//
// Несколько результатов jq собираются в массив. Доступ к $ENV закрыт.
type TransformStep struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewTransformStep создаёт новый TransformStep.
func NewTransformStep() *TransformStep {
	return &TransformStep{cache: make(map[string]*gojq.Code)}
}

// Type возвращает subtype.
func (s *TransformStep) Type() string {
	return SubtypeTransform
}

// Validate проверяет наличие и синтаксис query.
func (s *TransformStep) Validate(config map[string]any) ValidationResult {
	result := validateSchema(objectSchema(
		[]string{configQuery},
		map[string]any{configQuery: map[string]any{"type": "string", "minLength": 1}},
	), config)
	if !result.Valid {
		return result
	}
	if _, err := s.compile(GetConfigString(config, configQuery)); err != nil {
		return ValidationResult{Errors: map[string]string{configQuery: err.Error()}}
	}
	return result
}

// Execute выполняет jq-запрос.
func (s *TransformStep) Execute(ctx context.Context, req *Request) (*domain.ExecutionResult, error) {
	query := GetConfigString(req.Config, configQuery)
	if query == "" {
		return domain.Failed("query is required"), nil
	}

	code, err := s.compile(query)
	if err != nil {
		return domain.Failed(err.Error()), nil
	}

	input := s.input(req)

	iter := code.RunWithContext(ctx, normalizeForJQ(input))
	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return domain.Failed(fmt.Sprintf("jq evaluation failed for %q: %v", query, err)), nil
		}
		results = append(results, val)
	}

	var out any
	switch len(results) {
	case 0:
		out = nil
	case 1:
		out = results[0]
	default:
		out = results
	}

	return domain.Succeeded(map[string]any{"result": out}), nil
}

// input выбирает вход запроса.
// Строковый input (например, JSON после подстановки выражения) разбирается как JSON.
func (s *TransformStep) input(req *Request) any {
	raw, ok := req.Config[configInput]
	if !ok {
		if req.Context == nil {
			return map[string]any{}
		}
		return req.Context.Snapshot()
	}

	if str, isStr := raw.(string); isStr {
		var parsed any
		if err := json.Unmarshal([]byte(str), &parsed); err == nil {
			return parsed
		}
	}
	return raw
}

// compile возвращает скомпилированный запрос из кэша или компилирует новый.
func (s *TransformStep) compile(query string) (*gojq.Code, error) {
	s.mu.RLock()
	if code, ok := s.cache[query]; ok {
		s.mu.RUnlock()
		return code, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if code, ok := s.cache[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("jq parse error in %q: %w", query, err)
	}

	code, err := gojq.Compile(parsed,
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, fmt.Errorf("jq compile error in %q: %w", query, err)
	}

	s.cache[query] = code
	return code, nil
}

// normalizeForJQ приводит Go-типы к тем, что понимает gojq:
// числа к float64, map[string]string и []string к map[string]any и []any.
func normalizeForJQ(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeForJQ(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeForJQ(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
