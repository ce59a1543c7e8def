package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Nodeflow/internal/domain"
)

// memState: общее состояние in-memory хранилищ.
// Один мьютекс на все таблицы, как одна транзакция в БД.
type memState struct {
	mu sync.Mutex

	workflows  map[uuid.UUID]*domain.Workflow
	executions map[uuid.UUID]*memExecution
	steps      map[uuid.UUID]map[string]*domain.ExecutionStep
	schedules  map[uuid.UUID]*domain.Schedule

	seq int64
}

// memExecution хранит порядковый номер вставки для стабильной сортировки.
type memExecution struct {
	exec domain.Execution
	seq  int64
}

// NewMemory создаёт хранилища в памяти процесса.
// Используется при STORE=memory и в тестах.
func NewMemory() *Stores {
	st := &memState{
		workflows:  make(map[uuid.UUID]*domain.Workflow),
		executions: make(map[uuid.UUID]*memExecution),
		steps:      make(map[uuid.UUID]map[string]*domain.ExecutionStep),
		schedules:  make(map[uuid.UUID]*domain.Schedule),
	}
	return &Stores{
		Workflows:  &memWorkflows{st},
		Executions: &memExecutions{st},
		Steps:      &memSteps{st},
		Schedules:  &memSchedules{st},
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit = limitOrDefault(limit); len(items) > limit {
		items = items[:limit]
	}
	return items
}

// --- Workflows ---

type memWorkflows struct{ *memState }

func (m *memWorkflows) Create(_ context.Context, wf *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.workflows[wf.ID]; exists {
		return ErrAlreadyExists
	}
	m.workflows[wf.ID] = wf.Snapshot()
	return nil
}

func (m *memWorkflows) GetByID(_ context.Context, id uuid.UUID) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return wf.Snapshot(), nil
}

func (m *memWorkflows) List(_ context.Context, filter WorkflowFilter) ([]domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		out = append(out, *wf.Snapshot())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

func (m *memWorkflows) Update(_ context.Context, wf *domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.workflows[wf.ID]
	if !ok {
		return ErrNotFound
	}
	cp := wf.Snapshot()
	cp.CreatedAt = existing.CreatedAt
	m.workflows[wf.ID] = cp
	return nil
}

func (m *memWorkflows) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(m.workflows, id)

	// Каскад как ON DELETE CASCADE
	for execID, e := range m.executions {
		if e.exec.WorkflowID == id {
			delete(m.executions, execID)
			delete(m.steps, execID)
		}
	}
	for schedID, s := range m.schedules {
		if s.WorkflowID == id {
			delete(m.schedules, schedID)
		}
	}
	return nil
}

// --- Executions ---

type memExecutions struct{ *memState }

func copyExecution(e *domain.Execution) *domain.Execution {
	cp := *e
	cp.Inputs = domain.CloneMap(e.Inputs)
	return &cp
}

func (m *memExecutions) Create(_ context.Context, exec *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workflows[exec.WorkflowID]; !ok {
		return fmt.Errorf("insert execution: workflow %s: %w", exec.WorkflowID, ErrNotFound)
	}
	if _, exists := m.executions[exec.ID]; exists {
		return ErrAlreadyExists
	}
	if exec.IdempotencyKey != "" {
		for _, e := range m.executions {
			if e.exec.WorkflowID == exec.WorkflowID && e.exec.IdempotencyKey == exec.IdempotencyKey {
				return ErrAlreadyExists
			}
		}
	}

	m.seq++
	m.executions[exec.ID] = &memExecution{exec: *copyExecution(exec), seq: m.seq}
	return nil
}

func (m *memExecutions) GetByID(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyExecution(&e.exec), nil
}

func (m *memExecutions) GetByIdempotencyKey(_ context.Context, workflowID uuid.UUID, key string) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.executions {
		if e.exec.WorkflowID == workflowID && e.exec.IdempotencyKey == key {
			return copyExecution(&e.exec), nil
		}
	}
	return nil, ErrNotFound
}

// sorted возвращает executions по возрастанию (created_at, порядок вставки).
// Вызывается под мьютексом.
func (m *memExecutions) sorted(match func(*domain.Execution) bool) []*memExecution {
	var out []*memExecution
	for _, e := range m.executions {
		if match(&e.exec) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].exec.CreatedAt.Equal(out[j].exec.CreatedAt) {
			return out[i].exec.CreatedAt.Before(out[j].exec.CreatedAt)
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (m *memExecutions) List(_ context.Context, filter ExecutionFilter) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := m.sorted(func(e *domain.Execution) bool {
		if filter.WorkflowID != nil && *filter.WorkflowID != uuid.Nil && e.WorkflowID != *filter.WorkflowID {
			return false
		}
		return filter.Status == "" || e.Status == filter.Status
	})

	out := make([]domain.Execution, 0, len(matched))
	for i := len(matched) - 1; i >= 0; i-- {
		out = append(out, *copyExecution(&matched[i].exec))
	}
	return page(out, filter.Limit, filter.Offset), nil
}

func (m *memExecutions) LatestByWorkflow(_ context.Context, workflowID uuid.UUID) (*domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := m.sorted(func(e *domain.Execution) bool { return e.WorkflowID == workflowID })
	if len(matched) == 0 {
		return nil, ErrNotFound
	}
	return copyExecution(&matched[len(matched)-1].exec), nil
}

func (m *memExecutions) ListPending(_ context.Context, limit int) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := m.sorted(func(e *domain.Execution) bool { return e.Status == domain.ExecutionStatusPending })

	out := make([]domain.Execution, 0, len(matched))
	for _, e := range matched {
		out = append(out, *copyExecution(&e.exec))
	}
	return page(out, limit, 0), nil
}

func (m *memExecutions) Claim(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.executions[id]
	if !ok || e.exec.Status != domain.ExecutionStatusPending {
		return ErrClaimConflict
	}
	e.exec.Status = domain.ExecutionStatusRunning
	e.exec.StartedAt = &startedAt
	return nil
}

func (m *memExecutions) Finish(_ context.Context, id uuid.UUID, status domain.ExecutionStatus, finishedAt time.Time, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: finish with non-terminal status %q", ErrInvalidState, status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.executions[id]
	if !ok || e.exec.Status != domain.ExecutionStatusRunning {
		return fmt.Errorf("%w: execution %s is not running", ErrInvalidState, id)
	}
	e.exec.Status = status
	e.exec.FinishedAt = &finishedAt
	e.exec.Error = errMsg
	return nil
}

func (m *memExecutions) FailStale(_ context.Context, cutoff, now time.Time, reason string) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uuid.UUID
	for id, e := range m.executions {
		if e.exec.Status != domain.ExecutionStatusRunning || e.exec.StartedAt == nil || !e.exec.StartedAt.Before(cutoff) {
			continue
		}
		finishedAt := now
		e.exec.Status = domain.ExecutionStatusFailed
		e.exec.FinishedAt = &finishedAt
		e.exec.Error = reason
		ids = append(ids, id)

		for _, step := range m.steps[id] {
			if step.Status == domain.StepStatusPending {
				completedAt := now
				step.Status = domain.StepStatusFailed
				step.CompletedAt = &completedAt
				step.Result = domain.Failed(reason)
			}
		}
	}
	return ids, nil
}

// --- Steps ---

type memSteps struct{ *memState }

func (m *memSteps) Save(_ context.Context, step domain.ExecutionStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.executions[step.ExecutionID]; !ok {
		return fmt.Errorf("save step: execution %s: %w", step.ExecutionID, ErrNotFound)
	}

	byNode := m.steps[step.ExecutionID]
	if byNode == nil {
		byNode = make(map[string]*domain.ExecutionStep)
		m.steps[step.ExecutionID] = byNode
	}

	if existing, ok := byNode[step.NodeID]; ok {
		if existing.Status.IsTerminal() {
			return fmt.Errorf("%w: %s/%s", ErrStepFinalized, step.ExecutionID, step.NodeID)
		}
		// Как ON CONFLICT DO UPDATE: position и started_at остаются от первой записи
		step.Position = existing.Position
		step.StartedAt = existing.StartedAt
	}

	byNode[step.NodeID] = &step
	return nil
}

func (m *memSteps) ListByExecution(_ context.Context, executionID uuid.UUID) ([]domain.ExecutionStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.ExecutionStep, 0, len(m.steps[executionID]))
	for _, s := range m.steps[executionID] {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// --- Schedules ---

type memSchedules struct{ *memState }

func copySchedule(s *domain.Schedule) *domain.Schedule {
	cp := *s
	cp.Inputs = domain.CloneMap(s.Inputs)
	return &cp
}

func (m *memSchedules) Create(_ context.Context, schedule *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.schedules[schedule.ID]; exists {
		return ErrAlreadyExists
	}
	m.schedules[schedule.ID] = copySchedule(schedule)
	return nil
}

func (m *memSchedules) GetByID(_ context.Context, id uuid.UUID) (*domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySchedule(s), nil
}

func (m *memSchedules) List(_ context.Context, filter ScheduleFilter) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Schedule
	for _, s := range m.schedules {
		if filter.WorkflowID != nil && *filter.WorkflowID != uuid.Nil && s.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.Enabled != nil && s.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, *copySchedule(s))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

func (m *memSchedules) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Schedule
	for _, s := range m.schedules {
		if s.IsDue(now) {
			out = append(out, *copySchedule(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NextDueAt.Before(*out[j].NextDueAt) })
	return page(out, limit, 0), nil
}

func (m *memSchedules) Update(_ context.Context, schedule *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[schedule.ID]; !ok {
		return ErrNotFound
	}
	m.schedules[schedule.ID] = copySchedule(schedule)
	return nil
}

func (m *memSchedules) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}
