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

// ExecutionRepo: репозиторий executions.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `id, workflow_id, status, inputs, error, idempotency_key,
	started_at, finished_at, created_at`

// Create создаёт новый execution.
func (r *ExecutionRepo) Create(ctx context.Context, exec *domain.Execution) error {
	inputsJSON, err := json.Marshal(exec.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, inputs, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		exec.ID,
		exec.WorkflowID,
		exec.Status,
		inputsJSON,
		nullString(exec.IdempotencyKey),
		exec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByID возвращает execution по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIdempotencyKey возвращает execution по ключу идемпотентности.
func (r *ExecutionRepo) GetByIdempotencyKey(ctx context.Context, workflowID uuid.UUID, key string) (*domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1 AND idempotency_key = $2
	`
	return r.getOne(ctx, query, workflowID, key)
}

// LatestByWorkflow возвращает самый свежий execution workflow.
func (r *ExecutionRepo) LatestByWorkflow(ctx context.Context, workflowID uuid.UUID) (*domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, workflowID)
}

// List возвращает executions с фильтрацией, новые первыми.
func (r *ExecutionRepo) List(ctx context.Context, filter ExecutionFilter) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	return r.list(ctx, query,
		nullUUID(filter.WorkflowID),
		nullString(string(filter.Status)),
		limitOrDefault(filter.Limit),
		filter.Offset,
	)
}

// ListPending возвращает pending executions в порядке создания.
func (r *ExecutionRepo) ListPending(ctx context.Context, limit int) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	return r.list(ctx, query, limitOrDefault(limit))
}

// Claim атомарно переводит execution из pending в running.
//
// Условие WHERE status = 'pending' гарантирует, что из двух конкурентных
// claim успешен ровно один.
func (r *ExecutionRepo) Claim(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = 'running', started_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, startedAt)
	if err != nil {
		return fmt.Errorf("claim execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrClaimConflict
	}
	return nil
}

// Finish переводит running execution в терминальный статус.
func (r *ExecutionRepo) Finish(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, finishedAt time.Time, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: finish with non-terminal status %q", ErrInvalidState, status)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, finished_at = $3, error = $4
		WHERE id = $1 AND status = 'running'
	`, id, status, finishedAt, nullString(errMsg))
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: execution %s is not running", ErrInvalidState, id)
	}
	return nil
}

// FailStale помечает зависшие executions и их pending шаги как failed.
func (r *ExecutionRepo) FailStale(ctx context.Context, cutoff, now time.Time, reason string) ([]uuid.UUID, error) {
	var ids []uuid.UUID

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			UPDATE executions
			SET status = 'failed', finished_at = $2, error = $3
			WHERE status = 'running' AND started_at < $1
			RETURNING id
		`, cutoff, now, reason)
		if err != nil {
			return fmt.Errorf("fail stale executions: %w", err)
		}
		ids, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return fmt.Errorf("collect stale ids: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		resultJSON, err := json.Marshal(domain.Failed(reason))
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE execution_steps
			SET status = 'failed', completed_at = $2, result = $3
			WHERE execution_id = ANY($1) AND status = 'pending'
		`, ids, now, resultJSON)
		if err != nil {
			return fmt.Errorf("fail stale steps: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// --- Helpers ---

func (r *ExecutionRepo) getOne(ctx context.Context, query string, args ...any) (*domain.Execution, error) {
	exec, err := scanExecution(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return exec, err
}

func (r *ExecutionRepo) list(ctx context.Context, query string, args ...any) ([]domain.Execution, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *exec)
	}
	return executions, rows.Err()
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var exec domain.Execution
	var inputsJSON []byte
	var execError, idempotencyKey *string

	err := row.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.Status,
		&inputsJSON,
		&execError,
		&idempotencyKey,
		&exec.StartedAt,
		&exec.FinishedAt,
		&exec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	if inputsJSON != nil {
		if err := json.Unmarshal(inputsJSON, &exec.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal inputs: %w", err)
		}
	}
	if execError != nil {
		exec.Error = *execError
	}
	if idempotencyKey != nil {
		exec.IdempotencyKey = *idempotencyKey
	}

	return &exec, nil
}
