package steps

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// SubtypeLog: subtype шага записи в лог.
const SubtypeLog = "log"

// LogStep пишет сообщение в structured log процесса.
//
// Конфигурация:
//
//	{
//	    "message": "order {{$vars.order_id}} processed",
//	    "level": "info"    // debug, info, warn, error
//	}
type LogStep struct {
	logger *slog.Logger
}

// NewLogStep создаёт LogStep. Если logger nil, используется slog.Default().
func NewLogStep(logger *slog.Logger) *LogStep {
	return &LogStep{logger: logger}
}

// Type возвращает subtype.
func (s *LogStep) Type() string {
	return SubtypeLog
}

// Validate требует message.
func (s *LogStep) Validate(config map[string]any) ValidationResult {
	return validateSchema(objectSchema(
		[]string{"message"},
		map[string]any{
			"message": map[string]any{"type": "string"},
			"level":   map[string]any{"type": "string", "enum": []any{"debug", "info", "warn", "error"}},
		},
	), config)
}

// Execute пишет сообщение.
func (s *LogStep) Execute(ctx context.Context, req *Request) (*domain.ExecutionResult, error) {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}

	message := GetConfigString(req.Config, "message")
	level := slog.LevelInfo
	switch strings.ToLower(GetConfigString(req.Config, "level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	attrs := []any{"node_id", req.NodeID}
	if req.Context != nil {
		attrs = append(attrs, "execution_id", req.Context.ExecutionID)
	}
	logger.Log(ctx, level, message, attrs...)

	return domain.Succeeded(map[string]any{
		"message": message,
		"level":   level.String(),
	}), nil
}
