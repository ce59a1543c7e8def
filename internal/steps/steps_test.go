package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Nodeflow/internal/domain"
	"github.com/shaiso/Nodeflow/internal/engine"
)

func testRequest(config map[string]any, vars map[string]any) *Request {
	return &Request{
		NodeID:    "n1",
		Kind:      domain.NodeKindAction,
		Config:    config,
		RawConfig: config,
		Context:   domain.NewWorkflowContext(uuid.New(), vars),
	}
}

// Registry

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Types())

	r.Register(NewDelayStep())
	assert.True(t, r.Has(SubtypeDelay))

	step, err := r.Get(SubtypeDelay)
	require.NoError(t, err)
	assert.Equal(t, SubtypeDelay, step.Type())

	_, err = r.Get("nonexistent")
	assert.ErrorIs(t, err, ErrUnknownIntegration)
	assert.ErrorIs(t, err, engine.ErrUnknownIntegration)
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{
		domain.SubtypeBranchCondition,
		SubtypeDelay,
		SubtypeHTTP,
		SubtypeLog,
		SubtypeManualTrigger,
		SubtypeScheduleTrigger,
		domain.SubtypeSetVariable,
		SubtypeTransform,
		SubtypeWebhookTrigger,
	}, r.Types())
}

func TestRegistry_ValidateWorkflow(t *testing.T) {
	r := DefaultRegistry()

	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.Node{
			{ID: "start", Kind: domain.NodeKindTrigger, Subtype: SubtypeManualTrigger},
			{ID: "call", Kind: domain.NodeKindAction, Subtype: SubtypeHTTP, Config: map[string]any{"method": "GET"}},
		},
		Edges: []domain.Edge{{ID: "e1", Source: "start", Target: "call"}},
	}

	report := r.ValidateWorkflow(wf)
	require.False(t, report.Valid())
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "InvalidConfig", report.Errors[0].Kind())
	assert.Equal(t, "call", report.Errors[0].NodeID)
	assert.Equal(t, "url", report.Errors[0].Field)

	wf.Nodes[1].Config["url"] = "http://example.com"
	assert.True(t, r.ValidateWorkflow(wf).Valid())
}

func TestRegistry_ValidateWorkflow_UnknownIntegration(t *testing.T) {
	r := DefaultRegistry()

	wf := &domain.Workflow{
		ID: uuid.New(),
		Nodes: []domain.Node{
			{ID: "start", Kind: domain.NodeKindTrigger, Subtype: SubtypeManualTrigger},
			{ID: "x", Kind: domain.NodeKindAction, Subtype: "send_fax"},
		},
		Edges: []domain.Edge{{ID: "e1", Source: "start", Target: "x"}},
	}

	report := r.ValidateWorkflow(wf)
	require.False(t, report.Valid())
	assert.ErrorIs(t, report.Err(), engine.ErrUnknownIntegration)
}

// Trigger

func TestTriggerStep_Execute(t *testing.T) {
	step := NewTriggerStep(SubtypeManualTrigger)
	assert.Equal(t, SubtypeManualTrigger, step.Type())

	req := testRequest(map[string]any{"payload": map[string]any{"source": "test"}}, map[string]any{"x": 1})
	result, err := step.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, map[string]any{"x": 1}, result.Data["inputs"])
	assert.Equal(t, map[string]any{"source": "test"}, result.Data["payload"])
	assert.NotEmpty(t, result.Data["triggeredAt"])
}

// set_variable

func TestSetVariableStep(t *testing.T) {
	step := NewSetVariableStep()

	assert.True(t, step.Validate(map[string]any{"variableName": "x", "value": 5}).Valid)

	res := step.Validate(map[string]any{"value": 5})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "variableName")
	assert.ErrorIs(t, res.Err(), ErrInvalidConfig)

	result, err := step.Execute(context.Background(), testRequest(map[string]any{"variableName": "x", "value": 5}, nil))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "x", result.Data["variableName"])
	assert.Equal(t, 5, result.Data["value"])
}

func TestSetVariableStep_NullValue(t *testing.T) {
	step := NewSetVariableStep()

	result, err := step.Execute(context.Background(), testRequest(map[string]any{"variableName": "x", "value": nil}, nil))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.Data["value"])
}

// branch_condition

func TestBranchStep(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		vars      map[string]any
		wantPath  string
		wantExpr  string
	}{
		{"number true", "{{$vars.x}} === 5", map[string]any{"x": 5}, domain.BranchTrue, "5 === 5"},
		{"number false", "{{$vars.x}} > 10", map[string]any{"x": 5}, domain.BranchFalse, "5 > 10"},
		{"string literal", "{{$vars.s}} === 'ok'", map[string]any{"s": "ok"}, domain.BranchTrue, "'ok' === 'ok'"},
		{"string with quote", "{{$vars.s}} !== 'x'", map[string]any{"s": "it's"}, domain.BranchTrue, `'it\'s' !== 'x'`},
		{"logical", "{{$vars.a}} && !{{$vars.b}}", map[string]any{"a": true, "b": false}, domain.BranchTrue, "true && !false"},
	}

	step := NewBranchStep()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := step.Execute(context.Background(), testRequest(map[string]any{"condition": tt.condition}, tt.vars))
			require.NoError(t, err)
			require.True(t, result.Success, result.Error)
			assert.Equal(t, tt.wantPath, result.Data["path"])
			assert.Equal(t, tt.wantExpr, result.Data["condition"])
		})
	}
}

func TestBranchStep_UsesRawConfig(t *testing.T) {
	step := NewBranchStep()
	req := testRequest(nil, map[string]any{"s": "ok"})
	// Config уже разрешён в bare режиме, кавычки потеряны.
	req.Config = map[string]any{"condition": "ok === 'ok'"}
	req.RawConfig = map[string]any{"condition": "{{$vars.s}} === 'ok'"}

	result, err := step.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, domain.BranchTrue, result.Data["path"])
}

func TestBranchStep_Failures(t *testing.T) {
	step := NewBranchStep()

	t.Run("missing variable", func(t *testing.T) {
		result, err := step.Execute(context.Background(), testRequest(map[string]any{"condition": "{{$vars.nope}} === 1"}, nil))
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "$vars.nope")
	})

	t.Run("syntax error", func(t *testing.T) {
		result, err := step.Execute(context.Background(), testRequest(map[string]any{"condition": "1 ==="}, nil))
		require.NoError(t, err)
		assert.False(t, result.Success)
	})

	t.Run("no code execution", func(t *testing.T) {
		result, err := step.Execute(context.Background(), testRequest(map[string]any{"condition": "process.exit(1)"}, nil))
		require.NoError(t, err)
		assert.False(t, result.Success)
	})

	t.Run("validate", func(t *testing.T) {
		assert.False(t, step.Validate(map[string]any{}).Valid)
		assert.False(t, step.Validate(map[string]any{"condition": ""}).Valid)
	})
}

// delay

func TestDelayStep_Execute(t *testing.T) {
	step := NewDelayStep()

	start := time.Now()
	result, err := step.Execute(context.Background(), testRequest(map[string]any{"duration_ms": 50}, nil))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.EqualValues(t, 50, result.Data["duration_ms"])
}

func TestDelayStep_StringDuration(t *testing.T) {
	step := NewDelayStep()

	assert.True(t, step.Validate(map[string]any{"duration_ms": "{{$vars.wait}}"}).Valid)

	result, err := step.Execute(context.Background(), testRequest(map[string]any{"duration_ms": "10"}, nil))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestDelayStep_Cancellation(t *testing.T) {
	step := NewDelayStep()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := step.Execute(ctx, testRequest(map[string]any{"duration_sec": 10}, nil))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, ErrStepCancelled.Error())
}

func TestDelayStep_InvalidConfig(t *testing.T) {
	step := NewDelayStep()

	assert.False(t, step.Validate(map[string]any{}).Valid)
	assert.False(t, step.Validate(map[string]any{"duration_ms": true}).Valid)

	result, err := step.Execute(context.Background(), testRequest(map[string]any{"duration_sec": 7200}, nil))
	require.NoError(t, err)
	assert.False(t, result.Success)
}

// http_request

func TestHTTPStep_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []int{1, 2, 3}})
	}))
	defer server.Close()

	step := NewHTTPStep()
	result, err := step.Execute(context.Background(), testRequest(map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"Authorization": "Bearer token"},
	}, nil))
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	assert.Equal(t, http.StatusOK, result.Data["status_code"])
	body, ok := result.Data["body"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, body["items"], 3)

	headers, ok := result.Data["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", headers["Content-Type"])
}

func TestHTTPStep_TruncatesLargeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[1,2,3,4,5,6,7,8,9]}`))
	}))
	defer server.Close()

	step := NewHTTPStep()
	step.maxBody = 10

	result, err := step.Execute(context.Background(), testRequest(map[string]any{"url": server.URL}, nil))
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, true, result.Data["body_truncated"])
	assert.Equal(t, `{"items":[`, result.Data["body"])

	// Тело ровно по лимиту не считается обрезанным
	step.maxBody = int64(len(`{"items":[1,2,3,4,5,6,7,8,9]}`))
	result, err = step.Execute(context.Background(), testRequest(map[string]any{"url": server.URL}, nil))
	require.NoError(t, err)
	assert.Equal(t, false, result.Data["body_truncated"])
	assert.IsType(t, map[string]any{}, result.Data["body"])
}

func TestHTTPStep_POST_JSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "alice", payload["name"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer server.Close()

	step := NewHTTPStep()
	result, err := step.Execute(context.Background(), testRequest(map[string]any{
		"method": "post",
		"url":    server.URL,
		"body":   map[string]any{"name": "alice"},
	}, nil))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, http.StatusCreated, result.Data["status_code"])
	assert.Equal(t, "created", result.Data["body"])
}

func TestHTTPStep_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	step := NewHTTPStep()
	result, err := step.Execute(context.Background(), testRequest(map[string]any{"url": server.URL}, nil))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "HTTP 500")
	assert.Equal(t, http.StatusInternalServerError, result.Data["status_code"])
}

func TestHTTPStep_Validate(t *testing.T) {
	step := NewHTTPStep()

	assert.True(t, step.Validate(map[string]any{"url": "http://x"}).Valid)

	res := step.Validate(map[string]any{"method": "GET"})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "url")

	assert.False(t, step.Validate(map[string]any{"url": "http://x", "method": "FETCH"}).Valid)
}

func TestHTTPStep_Cancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	step := NewHTTPStep()
	result, err := step.Execute(ctx, testRequest(map[string]any{"url": server.URL}, nil))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, ErrStepCancelled.Error())
}

// transform

func TestTransformStep_Snapshot(t *testing.T) {
	step := NewTransformStep()

	req := testRequest(map[string]any{"query": ".vars.x + 1"}, map[string]any{"x": 5})
	result, err := step.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	assert.EqualValues(t, 6, result.Data["result"])
}

func TestTransformStep_NodeOutputs(t *testing.T) {
	step := NewTransformStep()

	req := testRequest(map[string]any{"query": "[.nodes.fetch.data.items[] | .id]"}, nil)
	req.Context.SetNodeOutput("fetch", domain.Succeeded(map[string]any{
		"items": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}},
	}))

	result, err := step.Execute(context.Background(), req)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, []any{"a", "b"}, result.Data["result"])
}

func TestTransformStep_ExplicitInput(t *testing.T) {
	step := NewTransformStep()

	t.Run("json string", func(t *testing.T) {
		result, err := step.Execute(context.Background(), testRequest(map[string]any{
			"query": ".name",
			"input": `{"name":"alice"}`,
		}, nil))
		require.NoError(t, err)
		require.True(t, result.Success)
		assert.Equal(t, "alice", result.Data["result"])
	})

	t.Run("multiple results", func(t *testing.T) {
		result, err := step.Execute(context.Background(), testRequest(map[string]any{
			"query": ".[]",
			"input": []any{"a", "b"},
		}, nil))
		require.NoError(t, err)
		require.True(t, result.Success)
		assert.Equal(t, []any{"a", "b"}, result.Data["result"])
	})

	t.Run("no results", func(t *testing.T) {
		result, err := step.Execute(context.Background(), testRequest(map[string]any{
			"query": "empty",
			"input": map[string]any{},
		}, nil))
		require.NoError(t, err)
		require.True(t, result.Success)
		assert.Nil(t, result.Data["result"])
	})
}

func TestTransformStep_Errors(t *testing.T) {
	step := NewTransformStep()

	res := step.Validate(map[string]any{"query": ".foo | "})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "query")

	assert.False(t, step.Validate(map[string]any{}).Valid)
	assert.True(t, step.Validate(map[string]any{"query": ".vars"}).Valid)

	result, err := step.Execute(context.Background(), testRequest(map[string]any{
		"query": `error("bad")`,
		"input": map[string]any{},
	}, nil))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "bad")
}

func TestTransformStep_NoEnv(t *testing.T) {
	step := NewTransformStep()
	t.Setenv("NODEFLOW_SECRET", "s3cr3t")

	result, err := step.Execute(context.Background(), testRequest(map[string]any{
		"query": "$ENV.NODEFLOW_SECRET",
		"input": map[string]any{},
	}, nil))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Nil(t, result.Data["result"])
}

// log

func TestLogStep(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	step := NewLogStep(logger)
	assert.True(t, step.Validate(map[string]any{"message": "hi"}).Valid)
	assert.False(t, step.Validate(map[string]any{"message": "hi", "level": "trace"}).Valid)

	result, err := step.Execute(context.Background(), testRequest(map[string]any{
		"message": "order processed",
		"level":   "warn",
	}, nil))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "order processed", result.Data["message"])
	assert.Equal(t, "WARN", result.Data["level"])

	assert.Contains(t, buf.String(), `"msg":"order processed"`)
	assert.Contains(t, buf.String(), `"node_id":"n1"`)
}

// Config helpers

func TestGetConfigHelpers(t *testing.T) {
	config := map[string]any{
		"str":      "hello",
		"int":      42,
		"float":    3.0,
		"numstr":   "17",
		"bool":     true,
		"boolstr":  "false",
		"map":      map[string]any{"a": "1", "b": 2},
		"strmap":   map[string]string{"x": "y"},
		"notAnInt": "abc",
	}

	assert.Equal(t, "hello", GetConfigString(config, "str"))
	assert.Equal(t, "", GetConfigString(config, "int"))
	assert.Equal(t, 42, GetConfigInt(config, "int"))
	assert.Equal(t, 3, GetConfigInt(config, "float"))
	assert.Equal(t, 17, GetConfigInt(config, "numstr"))
	assert.Equal(t, 0, GetConfigInt(config, "notAnInt"))
	assert.True(t, GetConfigBool(config, "bool", false))
	assert.False(t, GetConfigBool(config, "boolstr", true))
	assert.True(t, GetConfigBool(config, "missing", true))
	assert.Equal(t, map[string]string{"a": "1"}, GetConfigMapString(config, "map"))
	assert.Equal(t, map[string]string{"x": "y"}, GetConfigMapString(config, "strmap"))
	assert.Nil(t, GetConfigMapString(config, "missing"))
}
