package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Nodeflow/internal/domain"
)

const (
	// SubtypeHTTP: subtype HTTP запроса.
	SubtypeHTTP = "http_request"

	// Значения по умолчанию.
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи конфигурации HTTP шага.
const (
	configMethod          = "method"
	configURL             = "url"
	configHeaders         = "headers"
	configBody            = "body"
	configFollowRedirects = "follow_redirects"
	configTimeoutSec      = "timeout_sec"
)

// HTTPStep: шаг HTTP запроса.
//
// Конфигурация:
//
//	{
//	    "method": "POST",
//	    "url": "https://api.example.com/users/{{$vars.user_id}}",
//	    "headers": {"Authorization": "Bearer {{$vars.token}}"},
//	    "body": {"name": "{{$node.fetch.data.body.name}}"},
//	    "follow_redirects": true,
//	    "timeout_sec": 30
//	}
//
// Outputs:
//
//	{
//	    "status_code": 200,
//	    "headers": {"Content-Type": "application/json", ...},
//	    "body": {...}  // parsed JSON or string
//	}
//
// Статус >= 400 и сетевые ошибки: ожидаемые неуспехи (success=false).
type HTTPStep struct {
	transport http.RoundTripper
	maxBody   int64
}

// NewHTTPStep создаёт новый HTTPStep.
func NewHTTPStep() *HTTPStep {
	return &HTTPStep{transport: http.DefaultTransport, maxBody: maxResponseBody}
}

// Type возвращает subtype.
func (s *HTTPStep) Type() string {
	return SubtypeHTTP
}

// Validate проверяет url и метод.
func (s *HTTPStep) Validate(config map[string]any) ValidationResult {
	return validateSchema(objectSchema(
		[]string{configURL},
		map[string]any{
			configURL: map[string]any{"type": "string", "minLength": 1},
			configMethod: map[string]any{
				"type": "string",
				"enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "get", "post", "put", "patch", "delete", "head"},
			},
			configHeaders:         map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
			configFollowRedirects: stringOrBool,
			configTimeoutSec:      stringOrNumber,
		},
	), config)
}

// Execute выполняет HTTP запрос.
func (s *HTTPStep) Execute(ctx context.Context, req *Request) (*domain.ExecutionResult, error) {
	cfg, err := s.parseConfig(req.Config)
	if err != nil {
		return domain.Failed(err.Error()), nil
	}

	httpReq, err := s.buildRequest(ctx, cfg)
	if err != nil {
		return domain.Failed(fmt.Sprintf("build request: %v", err)), nil
	}

	resp, err := s.buildClient(cfg).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Failed(fmt.Sprintf("%v: %v", ErrStepCancelled, ctx.Err())), nil
		}
		return domain.Failed(fmt.Sprintf("http request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	data, err := s.parseResponse(resp)
	if err != nil {
		return domain.Failed(err.Error()), nil
	}

	if resp.StatusCode >= 400 {
		result := domain.Failed(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		result.Data = data
		return result, nil
	}

	return domain.Succeeded(data), nil
}

// httpConfig: распарсенная конфигурация HTTP шага.
type httpConfig struct {
	Method          string
	URL             string
	Headers         map[string]string
	Body            any
	FollowRedirects bool
	Timeout         time.Duration
}

// parseConfig парсит конфигурацию HTTP шага.
func (s *HTTPStep) parseConfig(config map[string]any) (*httpConfig, error) {
	cfg := &httpConfig{
		Method:          strings.ToUpper(GetConfigString(config, configMethod)),
		URL:             GetConfigString(config, configURL),
		Headers:         GetConfigMapString(config, configHeaders),
		Body:            config[configBody],
		FollowRedirects: GetConfigBool(config, configFollowRedirects, true),
		Timeout:         defaultHTTPTimeout,
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, SubtypeHTTP)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	if sec := GetConfigInt(config, configTimeoutSec); sec > 0 {
		cfg.Timeout = time.Duration(sec) * time.Second
	}

	return cfg, nil
}

// buildClient создаёт HTTP клиент с нужными настройками.
func (s *HTTPStep) buildClient(cfg *httpConfig) *http.Client {
	var checkRedirect func(*http.Request, []*http.Request) error
	if !cfg.FollowRedirects {
		checkRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: checkRedirect,
		Transport:     s.transport,
	}
}

// buildRequest создаёт HTTP запрос.
func (s *HTTPStep) buildRequest(ctx context.Context, cfg *httpConfig) (*http.Request, error) {
	var bodyReader io.Reader

	if cfg.Body != nil {
		bodyBytes, err := serializeBody(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)

		if _, hasContentType := cfg.Headers["Content-Type"]; !hasContentType {
			cfg.Headers["Content-Type"] = "application/json"
		}
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// serializeBody сериализует body в bytes.
func serializeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// parseResponse превращает HTTP ответ в data результата.
// Тело длиннее maxBody обрезается и отдаётся строкой с body_truncated=true.
func (s *HTTPStep) parseResponse(resp *http.Response) (map[string]any, error) {
	limit := s.maxBody
	if limit <= 0 {
		limit = maxResponseBody
	}
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	truncated := int64(len(bodyBytes)) > limit
	if truncated {
		bodyBytes = bodyBytes[:limit]
	}

	var body any
	if !truncated && strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &body); err != nil {
			// Некорректный JSON возвращаем строкой
			body = string(bodyBytes)
		}
	} else {
		body = string(bodyBytes)
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code":    resp.StatusCode,
		"headers":        headers,
		"body":           body,
		"body_truncated": truncated,
	}, nil
}
