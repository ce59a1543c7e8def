package domain

import "fmt"

// ExecutionStatus: статус выполнения workflow.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  → failed
//
// Терминальный статус устанавливается ровно один раз.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal возвращает true для completed и failed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// ParseExecutionStatus разбирает строку в ExecutionStatus.
func ParseExecutionStatus(s string) (ExecutionStatus, error) {
	switch ExecutionStatus(s) {
	case ExecutionStatusPending, ExecutionStatusRunning,
		ExecutionStatusCompleted, ExecutionStatusFailed:
		return ExecutionStatus(s), nil
	}
	return "", fmt.Errorf("unknown execution status %q", s)
}

// StepStatus: статус шага выполнения.
//
// pending пишется при старте узла и переходит в completed или failed
// один раз; терминальная запись больше не перезаписывается.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// IsTerminal возвращает true для completed и failed.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}
