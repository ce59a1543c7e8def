package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/repo"
	"github.com/shaiso/Nodeflow/internal/steps"
)

var testNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type notifier struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (n *notifier) PublishExecutionPending(_ context.Context, executionID, _ uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, executionID)
	return nil
}

type testServer struct {
	t        *testing.T
	stores   *repo.Stores
	notifier *notifier
	mux      *http.ServeMux
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{t: t, stores: repo.NewMemory(), notifier: &notifier{}, mux: http.NewServeMux()}
	h := NewHandler(Config{
		Stores:   s.stores,
		Notifier: s.notifier,
		Now:      func() time.Time { return testNow },
	})
	h.RegisterRoutes(s.mux)
	return s
}

// do выполняет запрос и декодирует конверт ответа.
func (s *testServer) do(method, path string, body any) (int, map[string]any) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (s *testServer) createWorkflow(wf map[string]any) string {
	s.t.Helper()
	code, body := s.do(http.MethodPost, "/api/v1/workflows", wf)
	require.Equal(s.t, http.StatusCreated, code, body)
	return body["data"].(map[string]any)["id"].(string)
}

func validWorkflow() map[string]any {
	return map[string]any{
		"name": "greet",
		"nodes": []map[string]any{
			{"id": "A", "kind": "trigger", "subtype": steps.SubtypeManualTrigger},
			{"id": "B", "kind": "logic", "subtype": domain.SubtypeSetVariable, "config": map[string]any{"variableName": "x", "value": 5}},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "A", "target": "B"},
		},
	}
}

func errorCode(body map[string]any) string {
	return body["error"].(map[string]any)["code"].(string)
}

// --- workflows ---

func TestWorkflowCRUD(t *testing.T) {
	s := newServer(t)
	id := s.createWorkflow(validWorkflow())

	code, body := s.do(http.MethodGet, "/api/v1/workflows/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "greet", body["data"].(map[string]any)["name"])

	code, body = s.do(http.MethodGet, "/api/v1/workflows", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])
	item := body["data"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 2, item["node_count"])

	update := validWorkflow()
	update["name"] = "renamed"
	code, body = s.do(http.MethodPut, "/api/v1/workflows/"+id, update)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "renamed", body["data"].(map[string]any)["name"])

	code, _ = s.do(http.MethodDelete, "/api/v1/workflows/"+id, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, body = s.do(http.MethodGet, "/api/v1/workflows/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(ErrCodeNotFound), errorCode(body))
}

func TestCreateWorkflow_RequestValidation(t *testing.T) {
	s := newServer(t)

	code, body := s.do(http.MethodPost, "/api/v1/workflows", map[string]any{"nodes": []any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(ErrCodeValidationFailed), errorCode(body))
	assert.NotEmpty(t, body["error"].(map[string]any)["details"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkflow_BadID(t *testing.T) {
	s := newServer(t)
	code, body := s.do(http.MethodGet, "/api/v1/workflows/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(ErrCodeBadRequest), errorCode(body))
}

func TestValidateWorkflowEndpoint(t *testing.T) {
	s := newServer(t)
	wf := validWorkflow()
	wf["edges"] = []map[string]any{
		{"id": "e1", "source": "A", "target": "B"},
		{"id": "e2", "source": "B", "target": "A"},
	}
	id := s.createWorkflow(wf)

	code, body := s.do(http.MethodPost, "/api/v1/workflows/"+id+"/validate", nil)
	require.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]any)
	assert.Equal(t, false, data["valid"])
	kinds := []string{}
	for _, e := range data["errors"].([]any) {
		kinds = append(kinds, e.(map[string]any)["kind"].(string))
	}
	assert.Contains(t, kinds, "GraphCycle")
}

// --- executions ---

func TestStartExecution(t *testing.T) {
	s := newServer(t)
	id := s.createWorkflow(validWorkflow())

	code, body := s.do(http.MethodPost, "/api/v1/workflows/"+id+"/executions", map[string]any{
		"inputs": map[string]any{"name": "ada"},
	})
	require.Equal(t, http.StatusAccepted, code, body)

	data := body["data"].(map[string]any)
	assert.Equal(t, "pending", data["status"])
	execID := uuid.MustParse(data["id"].(string))
	assert.Equal(t, []uuid.UUID{execID}, s.notifier.ids)

	exec, err := s.stores.Executions.GetByID(context.Background(), execID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada"}, exec.Inputs)
}

func TestStartExecution_EmptyBody(t *testing.T) {
	s := newServer(t)
	id := s.createWorkflow(validWorkflow())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/"+id+"/executions", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestStartExecution_InvalidGraphCreatesNothing(t *testing.T) {
	s := newServer(t)
	wf := validWorkflow()
	wf["nodes"] = []map[string]any{
		{"id": "A", "kind": "trigger", "subtype": steps.SubtypeManualTrigger},
		{"id": "B", "kind": "action", "subtype": "teleport"},
	}
	id := s.createWorkflow(wf)

	code, body := s.do(http.MethodPost, "/api/v1/workflows/"+id+"/executions", nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(ErrCodeValidationFailed), errorCode(body))

	details := body["error"].(map[string]any)["details"].([]any)
	kinds := []string{}
	for _, d := range details {
		kinds = append(kinds, d.(map[string]any)["kind"].(string))
	}
	assert.Contains(t, kinds, "UnknownIntegration")

	list, err := s.stores.Executions.List(context.Background(), repo.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, s.notifier.ids)
}

func TestStartExecution_IdempotencyKey(t *testing.T) {
	s := newServer(t)
	id := s.createWorkflow(validWorkflow())
	req := map[string]any{"idempotency_key": "order-42"}

	_, first := s.do(http.MethodPost, "/api/v1/workflows/"+id+"/executions", req)
	code, second := s.do(http.MethodPost, "/api/v1/workflows/"+id+"/executions", req)

	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, first["data"].(map[string]any)["id"], second["data"].(map[string]any)["id"])
	assert.Len(t, s.notifier.ids, 1)
}

func TestStartExecution_UnknownWorkflow(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(http.MethodPost, "/api/v1/workflows/"+uuid.NewString()+"/executions", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetExecution_WithSteps(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	id := s.createWorkflow(validWorkflow())
	_, started := s.do(http.MethodPost, "/api/v1/workflows/"+id+"/executions", nil)
	execID := uuid.MustParse(started["data"].(map[string]any)["id"].(string))

	// Имитируем процессор: claim и два шага
	require.NoError(t, s.stores.Executions.Claim(ctx, execID, testNow))
	for i, nodeID := range []string{"A", "B"} {
		result := domain.Succeeded(map[string]any{"i": i})
		require.NoError(t, s.stores.Steps.Save(ctx, domain.ExecutionStep{
			ExecutionID: execID,
			NodeID:      nodeID,
			Position:    i,
			Status:      domain.StepStatusCompleted,
			Result:      result,
		}))
	}

	code, body := s.do(http.MethodGet, "/api/v1/executions/"+execID.String(), nil)
	require.Equal(t, http.StatusOK, code)

	data := body["data"].(map[string]any)
	assert.Equal(t, "running", data["execution"].(map[string]any)["status"])
	stepList := data["steps"].([]any)
	require.Len(t, stepList, 2)
	assert.Equal(t, "A", stepList[0].(map[string]any)["node_id"])
	assert.Equal(t, "B", stepList[1].(map[string]any)["node_id"])
}

func TestGetExecution_NotFound(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(http.MethodGet, "/api/v1/executions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLatestExecution(t *testing.T) {
	s := newServer(t)
	id := s.createWorkflow(validWorkflow())

	code, body := s.do(http.MethodGet, "/api/v1/workflows/"+id+"/executions?latest=true", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "data")
	assert.Nil(t, body["data"])

	s.do(http.MethodPost, "/api/v1/workflows/"+id+"/executions", nil)
	_, second := s.do(http.MethodPost, "/api/v1/workflows/"+id+"/executions", nil)

	_, body = s.do(http.MethodGet, "/api/v1/workflows/"+id+"/executions?latest=true", nil)
	assert.Equal(t, second["data"].(map[string]any)["id"], body["data"].(map[string]any)["id"])

	code, body = s.do(http.MethodGet, "/api/v1/workflows/"+id+"/executions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["total"])

	code, _ = s.do(http.MethodGet, "/api/v1/workflows/"+id+"/executions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

// --- integrations ---

func TestIntegrations(t *testing.T) {
	s := newServer(t)

	code, body := s.do(http.MethodGet, "/api/v1/integrations", nil)
	require.Equal(t, http.StatusOK, code)
	types := []string{}
	for _, item := range body["data"].([]any) {
		types = append(types, item.(map[string]any)["type"].(string))
	}
	assert.Contains(t, types, steps.SubtypeHTTP)
	assert.Contains(t, types, domain.SubtypeBranchCondition)

	code, body = s.do(http.MethodPost, "/api/v1/integrations/"+steps.SubtypeHTTP+"/validate",
		map[string]any{"config": map[string]any{"method": "GET"}})
	require.Equal(t, http.StatusOK, code)
	result := body["data"].(map[string]any)
	assert.Equal(t, false, result["valid"])
	assert.Contains(t, result["errors"], "url")

	code, _ = s.do(http.MethodPost, "/api/v1/integrations/teleport/validate",
		map[string]any{"config": map[string]any{}})
	assert.Equal(t, http.StatusNotFound, code)
}

// --- schedules ---

func TestScheduleLifecycle(t *testing.T) {
	s := newServer(t)
	id := s.createWorkflow(validWorkflow())

	code, body := s.do(http.MethodPost, "/api/v1/workflows/"+id+"/schedules", map[string]any{
		"name":      "morning",
		"cron_expr": "0 9 * * *",
	})
	require.Equal(t, http.StatusCreated, code, body)
	sched := body["data"].(map[string]any)
	schedID := sched["id"].(string)
	assert.Equal(t, true, sched["enabled"])
	assert.Equal(t, "UTC", sched["timezone"])
	assert.Equal(t, "2026-05-01T09:00:00Z", sched["next_due_at"])

	code, body = s.do(http.MethodGet, "/api/v1/schedules?workflow_id="+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["total"])

	code, body = s.do(http.MethodPut, "/api/v1/schedules/"+schedID+"/enabled", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["data"].(map[string]any)["enabled"])

	code, _ = s.do(http.MethodDelete, "/api/v1/schedules/"+schedID, nil)
	assert.Equal(t, http.StatusNoContent, code)

	code, _ = s.do(http.MethodGet, "/api/v1/schedules/"+schedID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateSchedule_Invalid(t *testing.T) {
	s := newServer(t)
	id := s.createWorkflow(validWorkflow())
	path := "/api/v1/workflows/" + id + "/schedules"

	tests := map[string]map[string]any{
		"neither":      {"name": "x"},
		"both":         {"cron_expr": "* * * * *", "interval_sec": 60},
		"bad cron":     {"cron_expr": "every day"},
		"bad timezone": {"interval_sec": 60, "timezone": "Nowhere/City"},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			code, body := s.do(http.MethodPost, path, req)
			assert.Equal(t, http.StatusUnprocessableEntity, code)
			assert.Equal(t, string(ErrCodeValidationFailed), errorCode(body))
		})
	}
}

// --- middleware ---

func TestRecoveryMiddleware(t *testing.T) {
	h := Chain(Recovery(noopLogger()), Metrics())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
