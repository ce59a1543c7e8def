package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// StepRepo: репозиторий шагов выполнения.
type StepRepo struct {
	pool *pgxpool.Pool
}

// NewStepRepo создаёт новый StepRepo.
func NewStepRepo(pool *pgxpool.Pool) *StepRepo {
	return &StepRepo{pool: pool}
}

// Save записывает шаг (upsert по execution_id, node_id).
//
// Существующая строка обновляется только пока она pending: итоговый
// результат узла не перезаписывается.
func (r *StepRepo) Save(ctx context.Context, step domain.ExecutionStep) error {
	var resultJSON []byte
	if step.Result != nil {
		var err error
		resultJSON, err = json.Marshal(step.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	query := `
		INSERT INTO execution_steps (execution_id, node_id, position, status, started_at, completed_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (execution_id, node_id) DO UPDATE
		SET status = EXCLUDED.status,
		    completed_at = EXCLUDED.completed_at,
		    result = EXCLUDED.result
		WHERE execution_steps.status = 'pending'
	`
	result, err := r.pool.Exec(ctx, query,
		step.ExecutionID,
		step.NodeID,
		step.Position,
		step.Status,
		step.StartedAt,
		step.CompletedAt,
		resultJSON,
	)
	if err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrStepFinalized, step.ExecutionID, step.NodeID)
	}
	return nil
}

// ListByExecution возвращает шаги execution в порядке посещения.
func (r *StepRepo) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]domain.ExecutionStep, error) {
	query := `
		SELECT execution_id, node_id, position, status, started_at, completed_at, result
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.ExecutionStep
	for rows.Next() {
		var step domain.ExecutionStep
		var resultJSON []byte

		err := rows.Scan(
			&step.ExecutionID,
			&step.NodeID,
			&step.Position,
			&step.Status,
			&step.StartedAt,
			&step.CompletedAt,
			&resultJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}

		if resultJSON != nil {
			step.Result = &domain.ExecutionResult{}
			if err := json.Unmarshal(resultJSON, step.Result); err != nil {
				return nil, fmt.Errorf("unmarshal result: %w", err)
			}
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}
