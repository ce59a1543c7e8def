package orchestrator

import "errors"

// Ошибки планировщика.
var (
	// ErrStepSink: не удалось сохранить шаг. Проход прерывается.
	ErrStepSink = errors.New("persist execution step")

	// ErrNilContext: Run вызван без WorkflowContext.
	ErrNilContext = errors.New("workflow context is required")

	// ErrInterrupted: проход остановлен до завершения (таймаут или остановка процессора).
	ErrInterrupted = errors.New("execution interrupted")
)
