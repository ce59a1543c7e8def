package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Nodeflow/internal/domain"
)

const (
	// SubtypeDelay: subtype шага задержки.
	SubtypeDelay = "delay"

	// Ключи конфигурации delay.
	configDurationSec = "duration_sec"
	configDurationMs  = "duration_ms"

	// maxDelay ограничивает задержку, чтобы узел не держал execution бесконечно.
	maxDelay = time.Hour
)

// DelayStep: шаг задержки.
//
// Приостанавливает выполнение на указанное время.
// Поддерживает graceful shutdown через context cancellation.
//
// Конфигурация:
//
//	{
//	    "duration_sec": 10,    // задержка в секундах
//	    // или
//	    "duration_ms": 5000    // задержка в миллисекундах
//	}
type DelayStep struct{}

// NewDelayStep создаёт новый DelayStep.
func NewDelayStep() *DelayStep {
	return &DelayStep{}
}

// Type возвращает subtype.
func (s *DelayStep) Type() string {
	return SubtypeDelay
}

// Validate требует хотя бы одно из duration_sec и duration_ms.
func (s *DelayStep) Validate(config map[string]any) ValidationResult {
	result := validateSchema(objectSchema(nil, map[string]any{
		configDurationSec: stringOrNumber,
		configDurationMs:  stringOrNumber,
	}), config)
	if !result.Valid {
		return result
	}
	_, hasSec := config[configDurationSec]
	_, hasMs := config[configDurationMs]
	if !hasSec && !hasMs {
		return ValidationResult{Errors: map[string]string{
			configDurationMs: "duration_sec or duration_ms is required",
		}}
	}
	return result
}

// Execute выполняет задержку.
func (s *DelayStep) Execute(ctx context.Context, req *Request) (*domain.ExecutionResult, error) {
	duration, err := s.parseDuration(req.Config)
	if err != nil {
		return domain.Failed(err.Error()), nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		// Контекст отменён: soft timeout или остановка процессора
		return domain.Failed(fmt.Sprintf("%v: %v", ErrStepCancelled, ctx.Err())), nil
	case <-timer.C:
		return domain.Succeeded(map[string]any{
			"duration_ms": duration.Milliseconds(),
		}), nil
	}
}

// parseDuration извлекает длительность из конфигурации.
func (s *DelayStep) parseDuration(config map[string]any) (time.Duration, error) {
	var d time.Duration
	if sec := GetConfigInt(config, configDurationSec); sec > 0 {
		d = time.Duration(sec) * time.Second
	} else if ms := GetConfigInt(config, configDurationMs); ms > 0 {
		d = time.Duration(ms) * time.Millisecond
	} else {
		return 0, fmt.Errorf("%w: %s: duration_sec or duration_ms required", ErrInvalidConfig, SubtypeDelay)
	}

	if d > maxDelay {
		return 0, fmt.Errorf("%w: %s: duration %s exceeds %s", ErrInvalidConfig, SubtypeDelay, d, maxDelay)
	}
	return d, nil
}
