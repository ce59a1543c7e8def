package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule: расписание автоматического запуска workflow.
//
// Запуск по cron-выражению ("0 9 * * *") или по интервалу в секундах.
// Когда наступает NextDueAt, scheduler создаёт pending execution.
type Schedule struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	Name       string    `json:"name,omitempty"`

	// CronExpr: пятипольное cron-выражение; имеет приоритет над IntervalSec.
	CronExpr string `json:"cron_expr,omitempty"`

	// IntervalSec: интервал между запусками, если CronExpr пуст.
	IntervalSec int `json:"interval_sec,omitempty"`

	// Timezone: часовой пояс для cron ("UTC" по умолчанию).
	Timezone string `json:"timezone"`

	Enabled bool `json:"enabled"`

	NextDueAt       *time.Time `json:"next_due_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastExecutionID *uuid.UUID `json:"last_execution_id,omitempty"`

	// Inputs: переменные, передаваемые в каждый созданный execution.
	Inputs map[string]any `json:"inputs,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun фиксирует созданный execution и следующее время запуска.
func (s *Schedule) RecordRun(executionID uuid.UUID, nextDue time.Time) {
	now := time.Now().UTC()
	s.LastRunAt = &now
	s.LastExecutionID = &executionID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}
