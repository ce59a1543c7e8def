package worker

import "errors"

// Ошибки процессора.
var (
	// ErrProcessorStopped: процессор уже остановлен и не может быть запущен снова.
	ErrProcessorStopped = errors.New("processor stopped")

	// ErrWorkflowMissing: execution ссылается на удалённый workflow.
	ErrWorkflowMissing = errors.New("workflow not found")
)

// Причины, с которыми процессор завершает executions.
const (
	reasonStale     = "stale: processor lost"
	reasonAbandoned = "abandoned during shutdown"
)
