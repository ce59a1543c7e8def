package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// --- Response types (CLI не импортирует internal/api, форма ответа дублируется) ---

// WorkflowResponse: workflow из API. Узлы и рёбра остаются сырыми JSON.
type WorkflowResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Nodes     json.RawMessage `json:"nodes,omitempty"`
	Edges     json.RawMessage `json:"edges,omitempty"`
	NodeCount int             `json:"node_count,omitempty"`
	EdgeCount int             `json:"edge_count,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// ValidationIssue: одна проблема графа.
type ValidationIssue struct {
	Kind    string `json:"kind"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResponse: результат проверки графа.
type ValidationResponse struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// ExecutionResponse: execution из API.
type ExecutionResponse struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	Status         string         `json:"status"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	Error          string         `json:"error,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	StartedAt      string         `json:"started_at,omitempty"`
	FinishedAt     string         `json:"finished_at,omitempty"`
	CreatedAt      string         `json:"created_at"`
	DurationMs     int64          `json:"duration_ms,omitempty"`
}

// Terminal сообщает, что execution больше не изменится.
func (e *ExecutionResponse) Terminal() bool {
	switch e.Status {
	case "completed", "failed":
		return true
	}
	return false
}

// StepResult: результат шага.
type StepResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// StepResponse: шаг execution.
type StepResponse struct {
	NodeID      string      `json:"node_id"`
	Position    int         `json:"position"`
	Status      string      `json:"status"`
	StartedAt   string      `json:"started_at,omitempty"`
	CompletedAt string      `json:"completed_at,omitempty"`
	Result      *StepResult `json:"result,omitempty"`
}

// ExecutionDetail: ответ опроса статуса.
type ExecutionDetail struct {
	Execution ExecutionResponse `json:"execution"`
	Steps     []StepResponse    `json:"steps"`
}

// IntegrationResponse: зарегистрированный тип узла.
type IntegrationResponse struct {
	Type string `json:"type"`
}

// ConfigValidation: результат проверки конфигурации интеграции.
type ConfigValidation struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
}

// ScheduleResponse: schedule из API.
type ScheduleResponse struct {
	ID              string         `json:"id"`
	WorkflowID      string         `json:"workflow_id"`
	Name            string         `json:"name,omitempty"`
	CronExpr        string         `json:"cron_expr,omitempty"`
	IntervalSec     int            `json:"interval_sec,omitempty"`
	Timezone        string         `json:"timezone"`
	Enabled         bool           `json:"enabled"`
	NextDueAt       string         `json:"next_due_at,omitempty"`
	LastRunAt       string         `json:"last_run_at,omitempty"`
	LastExecutionID string         `json:"last_execution_id,omitempty"`
	Inputs          map[string]any `json:"inputs,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

// --- Request types ---

// StartExecutionRequest: тело запуска.
type StartExecutionRequest struct {
	Inputs         map[string]any `json:"inputs,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// CreateScheduleRequest: тело создания schedule.
type CreateScheduleRequest struct {
	Name        string         `json:"name,omitempty"`
	CronExpr    string         `json:"cron_expr,omitempty"`
	IntervalSec int            `json:"interval_sec,omitempty"`
	Timezone    string         `json:"timezone,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Inputs      map[string]any `json:"inputs,omitempty"`
}

// ListExecutionsOpts: фильтры списка executions.
type ListExecutionsOpts struct {
	Status string
	Limit  int
}

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details,omitempty"`
	} `json:"error"`
}

// APIError: ошибка, которую вернул сервер.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return e.Code + ": " + e.Message
}

// Client: HTTP клиент Nodeflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для baseURL (например, http://localhost:8080).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает список workflows.
func (c *Client) ListWorkflows(ctx context.Context) ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	_, err := c.list(ctx, "/api/v1/workflows", nil, &workflows)
	return workflows, err
}

// CreateWorkflow создаёт workflow из JSON-документа {name, nodes, edges}.
func (c *Client) CreateWorkflow(ctx context.Context, doc json.RawMessage) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post(ctx, "/api/v1/workflows", doc, &wf)
	return &wf, err
}

// CreateWorkflowFromFile читает документ workflow из файла ("-": stdin).
func (c *Client) CreateWorkflowFromFile(ctx context.Context, path string) (*WorkflowResponse, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return c.CreateWorkflow(ctx, doc)
}

// UpdateWorkflow заменяет граф workflow.
func (c *Client) UpdateWorkflow(ctx context.Context, id string, doc json.RawMessage) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.put(ctx, "/api/v1/workflows/"+url.PathEscape(id), doc, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get(ctx, "/api/v1/workflows/"+url.PathEscape(id), &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/workflows/"+url.PathEscape(id))
}

// ValidateWorkflow проверяет граф сохранённого workflow.
func (c *Client) ValidateWorkflow(ctx context.Context, id string) (*ValidationResponse, error) {
	var v ValidationResponse
	err := c.post(ctx, "/api/v1/workflows/"+url.PathEscape(id)+"/validate", nil, &v)
	return &v, err
}

// --- Executions ---

// StartExecution ставит execution в очередь и сразу возвращает его ID.
func (c *Client) StartExecution(ctx context.Context, workflowID string, req StartExecutionRequest) (*ExecutionResponse, error) {
	var exec ExecutionResponse
	err := c.post(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/executions", req, &exec)
	return &exec, err
}

// GetExecution возвращает execution вместе с шагами.
func (c *Client) GetExecution(ctx context.Context, id string) (*ExecutionDetail, error) {
	var detail ExecutionDetail
	err := c.get(ctx, "/api/v1/executions/"+url.PathEscape(id), &detail)
	return &detail, err
}

// LatestExecution возвращает последний execution workflow или nil, если запусков не было.
func (c *Client) LatestExecution(ctx context.Context, workflowID string) (*ExecutionResponse, error) {
	var exec *ExecutionResponse
	err := c.get(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/executions?latest=true", &exec)
	return exec, err
}

// ListExecutions возвращает executions workflow, новые первыми.
func (c *Client) ListExecutions(ctx context.Context, workflowID string, opts ListExecutionsOpts) ([]ExecutionResponse, int, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var execs []ExecutionResponse
	total, err := c.list(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/executions", params, &execs)
	return execs, total, err
}

// WaitExecution опрашивает execution каждые interval, пока он не завершится или не истечёт ctx.
func (c *Client) WaitExecution(ctx context.Context, id string, interval time.Duration) (*ExecutionDetail, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *ExecutionDetail
	for {
		detail, err := c.GetExecution(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return last, fmt.Errorf("wait execution %s: %w", id, context.Cause(ctx))
			}
			return nil, err
		}
		if detail.Execution.Terminal() {
			return detail, nil
		}
		last = detail

		select {
		case <-ctx.Done():
			return last, fmt.Errorf("wait execution %s: %w", id, context.Cause(ctx))
		case <-ticker.C:
		}
	}
}

// --- Integrations ---

// ListIntegrations возвращает зарегистрированные типы узлов.
func (c *Client) ListIntegrations(ctx context.Context) ([]IntegrationResponse, error) {
	var integrations []IntegrationResponse
	_, err := c.list(ctx, "/api/v1/integrations", nil, &integrations)
	return integrations, err
}

// ValidateIntegrationConfig проверяет конфигурацию узла заданного типа.
func (c *Client) ValidateIntegrationConfig(ctx context.Context, typ string, config map[string]any) (*ConfigValidation, error) {
	var v ConfigValidation
	body := map[string]any{"config": config}
	err := c.post(ctx, "/api/v1/integrations/"+url.PathEscape(typ)+"/validate", body, &v)
	return &v, err
}

// --- Schedules ---

// ListSchedules возвращает schedules, опционально по workflow.
func (c *Client) ListSchedules(ctx context.Context, workflowID string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if workflowID != "" {
		params.Set("workflow_id", workflowID)
	}

	var schedules []ScheduleResponse
	_, err := c.list(ctx, "/api/v1/schedules", params, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule для workflow.
func (c *Client) CreateSchedule(ctx context.Context, workflowID string, req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post(ctx, "/api/v1/workflows/"+url.PathEscape(workflowID)+"/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(ctx context.Context, id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get(ctx, "/api/v1/schedules/"+url.PathEscape(id), &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/schedules/"+url.PathEscape(id))
}

// SetScheduleEnabled включает или выключает schedule.
func (c *Client) SetScheduleEnabled(ctx context.Context, id string, enabled bool) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": enabled}
	err := c.put(ctx, "/api/v1/schedules/"+url.PathEscape(id)+"/enabled", body, &schedule)
	return &schedule, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPut, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkError(resp)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) (int, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	return lr.Total, json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if result != nil && len(dr.Data) > 0 {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
		apiErr.Details = er.Error.Details
	}
	return apiErr
}

func readDocument(path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s: invalid JSON", path)
	}
	return data, nil
}
