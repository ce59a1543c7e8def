package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// ScheduleRepo: репозиторий schedules.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

const selectSchedules = `
	SELECT id, workflow_id, name, cron_expr, interval_sec, timezone, enabled,
	       next_due_at, last_run_at, last_execution_id, inputs, created_at, updated_at
	FROM schedules`

// scheduleRecord: строка таблицы schedules; nullable колонки как указатели.
type scheduleRecord struct {
	ID              uuid.UUID  `db:"id"`
	WorkflowID      uuid.UUID  `db:"workflow_id"`
	Name            *string    `db:"name"`
	CronExpr        *string    `db:"cron_expr"`
	IntervalSec     *int       `db:"interval_sec"`
	Timezone        string     `db:"timezone"`
	Enabled         bool       `db:"enabled"`
	NextDueAt       *time.Time `db:"next_due_at"`
	LastRunAt       *time.Time `db:"last_run_at"`
	LastExecutionID *uuid.UUID `db:"last_execution_id"`
	Inputs          []byte     `db:"inputs"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (rec *scheduleRecord) toDomain() (*domain.Schedule, error) {
	s := &domain.Schedule{
		ID:              rec.ID,
		WorkflowID:      rec.WorkflowID,
		Timezone:        rec.Timezone,
		Enabled:         rec.Enabled,
		NextDueAt:       rec.NextDueAt,
		LastRunAt:       rec.LastRunAt,
		LastExecutionID: rec.LastExecutionID,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if rec.Name != nil {
		s.Name = *rec.Name
	}
	if rec.CronExpr != nil {
		s.CronExpr = *rec.CronExpr
	}
	if rec.IntervalSec != nil {
		s.IntervalSec = *rec.IntervalSec
	}
	if len(rec.Inputs) > 0 {
		if err := json.Unmarshal(rec.Inputs, &s.Inputs); err != nil {
			return nil, fmt.Errorf("schedule %s: unmarshal inputs: %w", rec.ID, err)
		}
	}
	return s, nil
}

// scheduleArgs: именованные параметры для INSERT и UPDATE.
func scheduleArgs(s *domain.Schedule) (pgx.NamedArgs, error) {
	inputs, err := json.Marshal(s.Inputs)
	if err != nil {
		return nil, fmt.Errorf("marshal inputs: %w", err)
	}
	return pgx.NamedArgs{
		"id":                s.ID,
		"workflow_id":       s.WorkflowID,
		"name":              nullString(s.Name),
		"cron_expr":         nullString(s.CronExpr),
		"interval_sec":      nullInt(s.IntervalSec),
		"timezone":          s.Timezone,
		"enabled":           s.Enabled,
		"next_due_at":       s.NextDueAt,
		"last_run_at":       s.LastRunAt,
		"last_execution_id": s.LastExecutionID,
		"inputs":            inputs,
		"created_at":        s.CreatedAt,
		"updated_at":        s.UpdatedAt,
	}, nil
}

// Create создаёт новый schedule.
func (r *ScheduleRepo) Create(ctx context.Context, schedule *domain.Schedule) error {
	args, err := scheduleArgs(schedule)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO schedules (id, workflow_id, name, cron_expr, interval_sec, timezone,
		                       enabled, next_due_at, inputs, created_at, updated_at)
		VALUES (@id, @workflow_id, @name, @cron_expr, @interval_sec, @timezone,
		        @enabled, @next_due_at, @inputs, @created_at, @updated_at)
	`, args)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, selectSchedules+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[scheduleRecord])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return rec.toDomain()
}

// List возвращает schedules, новые первыми.
func (r *ScheduleRepo) List(ctx context.Context, filter ScheduleFilter) ([]domain.Schedule, error) {
	return r.collect(ctx, selectSchedules+`
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::boolean IS NULL OR enabled = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		nullUUID(filter.WorkflowID),
		filter.Enabled,
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
}

// ListDue возвращает включённые schedules с next_due_at <= now,
// самые просроченные первыми.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	return r.collect(ctx, selectSchedules+`
		WHERE enabled AND next_due_at <= $1
		ORDER BY next_due_at
		LIMIT $2`,
		now, limitOrDefault(limit),
	)
}

// Update перезаписывает изменяемые поля; workflow_id и created_at не трогает.
func (r *ScheduleRepo) Update(ctx context.Context, schedule *domain.Schedule) error {
	args, err := scheduleArgs(schedule)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET name = @name, cron_expr = @cron_expr, interval_sec = @interval_sec,
		    timezone = @timezone, enabled = @enabled, next_due_at = @next_due_at,
		    last_run_at = @last_run_at, last_execution_id = @last_execution_id,
		    inputs = @inputs, updated_at = @updated_at
		WHERE id = @id
	`, args)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет schedule.
func (r *ScheduleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ScheduleRepo) collect(ctx context.Context, query string, args ...any) ([]domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[scheduleRecord])
	if err != nil {
		return nil, fmt.Errorf("scan schedules: %w", err)
	}

	schedules := make([]domain.Schedule, 0, len(records))
	for i := range records {
		s, err := records[i].toDomain()
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, nil
}
