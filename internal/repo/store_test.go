package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// Контрактные тесты, общие для in-memory и PostgreSQL хранилищ.

func newTestWorkflow(t *testing.T, ctx context.Context, stores *Stores) *domain.Workflow {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	wf := &domain.Workflow{
		ID:   uuid.New(),
		Name: "orders",
		Nodes: []domain.Node{
			{ID: "start", Kind: domain.NodeKindTrigger, Subtype: "manual_trigger"},
			{ID: "log", Kind: domain.NodeKindAction, Subtype: "log", Config: map[string]any{"message": "hi {{$vars.x}}"}},
		},
		Edges:     []domain.Edge{{ID: "e1", Source: "start", Target: "log"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, stores.Workflows.Create(ctx, wf))
	return wf
}

func newTestExecution(t *testing.T, ctx context.Context, stores *Stores, wfID uuid.UUID, createdAt time.Time) *domain.Execution {
	t.Helper()
	exec := domain.NewExecution(wfID, map[string]any{"x": "y"})
	exec.CreatedAt = createdAt.UTC().Truncate(time.Microsecond)
	require.NoError(t, stores.Executions.Create(ctx, exec))
	return exec
}

func runStoreContract(t *testing.T, newStores func(t *testing.T) *Stores) {
	ctx := context.Background()

	t.Run("workflow CRUD", func(t *testing.T) {
		stores := newStores(t)
		wf := newTestWorkflow(t, ctx, stores)

		got, err := stores.Workflows.GetByID(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, wf.Name, got.Name)
		assert.Equal(t, []string{"start", "log"}, []string{got.Nodes[0].ID, got.Nodes[1].ID})
		assert.Equal(t, "hi {{$vars.x}}", got.Nodes[1].Config["message"])

		got.Name = "renamed"
		got.UpdatedAt = time.Now().UTC()
		require.NoError(t, stores.Workflows.Update(ctx, got))

		list, err := stores.Workflows.List(ctx, WorkflowFilter{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "renamed", list[0].Name)

		require.NoError(t, stores.Workflows.Delete(ctx, wf.ID))
		_, err = stores.Workflows.GetByID(ctx, wf.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, stores.Workflows.Delete(ctx, wf.ID), ErrNotFound)
	})

	t.Run("claim is exclusive", func(t *testing.T) {
		stores := newStores(t)
		wf := newTestWorkflow(t, ctx, stores)
		exec := newTestExecution(t, ctx, stores, wf.ID, time.Now())

		const claimers = 8
		var wg sync.WaitGroup
		results := make(chan error, claimers)
		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- stores.Executions.Claim(ctx, exec.ID, time.Now().UTC())
			}()
		}
		wg.Wait()
		close(results)

		won, lost := 0, 0
		for err := range results {
			if err == nil {
				won++
				continue
			}
			assert.ErrorIs(t, err, ErrClaimConflict)
			lost++
		}
		assert.Equal(t, 1, won)
		assert.Equal(t, claimers-1, lost)

		got, err := stores.Executions.GetByID(ctx, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusRunning, got.Status)
		assert.NotNil(t, got.StartedAt)
	})

	t.Run("finish only from running", func(t *testing.T) {
		stores := newStores(t)
		wf := newTestWorkflow(t, ctx, stores)
		exec := newTestExecution(t, ctx, stores, wf.ID, time.Now())

		err := stores.Executions.Finish(ctx, exec.ID, domain.ExecutionStatusCompleted, time.Now().UTC(), "")
		assert.ErrorIs(t, err, ErrInvalidState)

		require.NoError(t, stores.Executions.Claim(ctx, exec.ID, time.Now().UTC()))
		require.NoError(t, stores.Executions.Finish(ctx, exec.ID, domain.ExecutionStatusFailed, time.Now().UTC(), "node B failed"))

		got, err := stores.Executions.GetByID(ctx, exec.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
		assert.Equal(t, "node B failed", got.Error)
		assert.NotNil(t, got.FinishedAt)

		// Терминальный статус не меняется
		err = stores.Executions.Finish(ctx, exec.ID, domain.ExecutionStatusCompleted, time.Now().UTC(), "")
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.ErrorIs(t, stores.Executions.Claim(ctx, exec.ID, time.Now().UTC()), ErrClaimConflict)
	})

	t.Run("pending order and latest", func(t *testing.T) {
		stores := newStores(t)
		wf := newTestWorkflow(t, ctx, stores)
		base := time.Now().Add(-time.Hour)

		first := newTestExecution(t, ctx, stores, wf.ID, base)
		second := newTestExecution(t, ctx, stores, wf.ID, base.Add(time.Minute))
		third := newTestExecution(t, ctx, stores, wf.ID, base.Add(2*time.Minute))
		require.NoError(t, stores.Executions.Claim(ctx, second.ID, time.Now().UTC()))

		pending, err := stores.Executions.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, first.ID, pending[0].ID)
		assert.Equal(t, third.ID, pending[1].ID)
		assert.Equal(t, "y", pending[0].Inputs["x"])

		latest, err := stores.Executions.LatestByWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, third.ID, latest.ID)

		_, err = stores.Executions.LatestByWorkflow(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)

		running, err := stores.Executions.List(ctx, ExecutionFilter{WorkflowID: &wf.ID, Status: domain.ExecutionStatusRunning})
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Equal(t, second.ID, running[0].ID)

		all, err := stores.Executions.List(ctx, ExecutionFilter{WorkflowID: &wf.ID})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, third.ID, all[0].ID)
	})

	t.Run("idempotency key", func(t *testing.T) {
		stores := newStores(t)
		wf := newTestWorkflow(t, ctx, stores)

		exec := domain.NewExecution(wf.ID, nil)
		exec.IdempotencyKey = "sched_1700000000"
		require.NoError(t, stores.Executions.Create(ctx, exec))

		dup := domain.NewExecution(wf.ID, nil)
		dup.IdempotencyKey = "sched_1700000000"
		assert.ErrorIs(t, stores.Executions.Create(ctx, dup), ErrAlreadyExists)

		got, err := stores.Executions.GetByIdempotencyKey(ctx, wf.ID, "sched_1700000000")
		require.NoError(t, err)
		assert.Equal(t, exec.ID, got.ID)
	})

	t.Run("steps are write-once", func(t *testing.T) {
		stores := newStores(t)
		wf := newTestWorkflow(t, ctx, stores)
		exec := newTestExecution(t, ctx, stores, wf.ID, time.Now())

		started := time.Now().UTC().Truncate(time.Microsecond)
		pending := domain.ExecutionStep{
			ExecutionID: exec.ID,
			NodeID:      "log",
			Position:    1,
			Status:      domain.StepStatusPending,
			StartedAt:   &started,
		}
		require.NoError(t, stores.Steps.Save(ctx, pending))
		require.NoError(t, stores.Steps.Save(ctx, domain.ExecutionStep{
			ExecutionID: exec.ID,
			NodeID:      "start",
			Position:    0,
			Status:      domain.StepStatusCompleted,
			StartedAt:   &started,
			CompletedAt: &started,
			Result:      domain.Succeeded(map[string]any{"ok": true}),
		}))

		done := pending
		done.Status = domain.StepStatusCompleted
		done.CompletedAt = &started
		done.Result = domain.Succeeded(map[string]any{"message": "hi"})
		require.NoError(t, stores.Steps.Save(ctx, done))

		again := done
		again.Status = domain.StepStatusFailed
		again.Result = domain.Failed("late write")
		assert.ErrorIs(t, stores.Steps.Save(ctx, again), ErrStepFinalized)

		steps, err := stores.Steps.ListByExecution(ctx, exec.ID)
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, "start", steps[0].NodeID)
		assert.Equal(t, "log", steps[1].NodeID)
		assert.Equal(t, domain.StepStatusCompleted, steps[1].Status)
		require.NotNil(t, steps[1].Result)
		assert.Equal(t, "hi", steps[1].Result.Data["message"])
	})

	t.Run("fail stale", func(t *testing.T) {
		stores := newStores(t)
		wf := newTestWorkflow(t, ctx, stores)

		stale := newTestExecution(t, ctx, stores, wf.ID, time.Now().Add(-time.Hour))
		fresh := newTestExecution(t, ctx, stores, wf.ID, time.Now())
		require.NoError(t, stores.Executions.Claim(ctx, stale.ID, time.Now().Add(-time.Hour).UTC()))
		require.NoError(t, stores.Executions.Claim(ctx, fresh.ID, time.Now().UTC()))

		started := time.Now().Add(-time.Hour).UTC()
		require.NoError(t, stores.Steps.Save(ctx, domain.ExecutionStep{
			ExecutionID: stale.ID, NodeID: "start", Position: 0,
			Status: domain.StepStatusPending, StartedAt: &started,
		}))

		now := time.Now().UTC()
		ids, err := stores.Executions.FailStale(ctx, now.Add(-10*time.Minute), now, "stale: processor lost")
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{stale.ID}, ids)

		got, err := stores.Executions.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
		assert.Equal(t, "stale: processor lost", got.Error)

		got, err = stores.Executions.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionStatusRunning, got.Status)

		steps, err := stores.Steps.ListByExecution(ctx, stale.ID)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, domain.StepStatusFailed, steps[0].Status)
		require.NotNil(t, steps[0].Result)
		assert.Equal(t, "stale: processor lost", steps[0].Result.Error)
	})

	t.Run("schedules", func(t *testing.T) {
		stores := newStores(t)
		wf := newTestWorkflow(t, ctx, stores)

		now := time.Now().UTC().Truncate(time.Microsecond)
		past := now.Add(-time.Minute)
		future := now.Add(time.Hour)

		due := &domain.Schedule{
			ID: uuid.New(), WorkflowID: wf.ID, Name: "every 5m", CronExpr: "*/5 * * * *", Timezone: "UTC",
			Enabled: true, NextDueAt: &past, Inputs: map[string]any{"region": "eu"},
			CreatedAt: now, UpdatedAt: now,
		}
		later := &domain.Schedule{
			ID: uuid.New(), WorkflowID: wf.ID, IntervalSec: 60, Timezone: "UTC",
			Enabled: true, NextDueAt: &future, CreatedAt: now, UpdatedAt: now,
		}
		disabled := &domain.Schedule{
			ID: uuid.New(), WorkflowID: wf.ID, IntervalSec: 60, Timezone: "UTC",
			Enabled: false, NextDueAt: &past, CreatedAt: now, UpdatedAt: now,
		}
		for _, s := range []*domain.Schedule{due, later, disabled} {
			require.NoError(t, stores.Schedules.Create(ctx, s))
		}

		list, err := stores.Schedules.ListDue(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, due.ID, list[0].ID)

		execID := uuid.New()
		due.RecordRun(execID, future)
		require.NoError(t, stores.Schedules.Update(ctx, due))

		got, err := stores.Schedules.GetByID(ctx, due.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastExecutionID)
		assert.Equal(t, execID, *got.LastExecutionID)
		assert.Equal(t, "every 5m", got.Name)
		assert.Equal(t, map[string]any{"region": "eu"}, got.Inputs)
		assert.Zero(t, got.IntervalSec)

		// Пустые name и cron_expr хранятся как NULL и читаются обратно нулями
		gotLater, err := stores.Schedules.GetByID(ctx, later.ID)
		require.NoError(t, err)
		assert.Empty(t, gotLater.Name)
		assert.Empty(t, gotLater.CronExpr)
		assert.Equal(t, 60, gotLater.IntervalSec)
		assert.Nil(t, gotLater.LastRunAt)

		missing := *later
		missing.ID = uuid.New()
		assert.ErrorIs(t, stores.Schedules.Update(ctx, &missing), ErrNotFound)

		enabled := true
		all, err := stores.Schedules.List(ctx, ScheduleFilter{WorkflowID: &wf.ID, Enabled: &enabled})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		require.NoError(t, stores.Schedules.Delete(ctx, disabled.ID))
		_, err = stores.Schedules.GetByID(ctx, disabled.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStores(t *testing.T) {
	runStoreContract(t, func(*testing.T) *Stores { return NewMemory() })
}

func TestMemoryStores_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory()
	wf := newTestWorkflow(t, ctx, stores)

	got, err := stores.Workflows.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	got.Nodes[1].Config["message"] = "mutated"

	again, err := stores.Workflows.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi {{$vars.x}}", again.Nodes[1].Config["message"])
}

func TestMemoryStores_DeleteWorkflowCascades(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory()
	wf := newTestWorkflow(t, ctx, stores)
	exec := newTestExecution(t, ctx, stores, wf.ID, time.Now())

	require.NoError(t, stores.Workflows.Delete(ctx, wf.ID))

	_, err := stores.Executions.GetByID(ctx, exec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
