package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jperaza/planwave/pkg/schema"
)

// HTTPConfig configures the HTTP tools.
type HTTPConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout     = 30 * time.Second
)

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.MaxResponseBody <= 0 {
		c.MaxResponseBody = defaultMaxResponseBody
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultHTTPTimeout
	}
	return c
}

// HTTPTool performs HTTP requests against external data sources. It stands
// in for the remote-lookup side of plans: a step suspends only for the
// duration of this call.
type HTTPTool struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPTool creates an http.request tool.
func NewHTTPTool(cfg HTTPConfig) *HTTPTool {
	cfg = cfg.withDefaults()
	return &HTTPTool{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.DefaultTimeout},
	}
}

func (t *HTTPTool) Name() string { return "http.request" }

func (t *HTTPTool) Schema() ToolSchema {
	return ToolSchema{
		Description: "Perform an HTTP request and return status, headers, and decoded body",
		InputSchema: []byte(`{
  "type": "object",
  "properties": {
    "method": {"type": "string", "default": "GET"},
    "url": {"type": "string", "minLength": 1},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "body": {},
    "fail_on_error_status": {"type": "boolean", "default": false}
  },
  "required": ["url"]
}`),
	}
}

// Invoke performs the request. The response body is decoded as JSON when
// the content type allows, raw text otherwise, and is capped at the
// configured maximum size.
func (t *HTTPTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	url := stringParam(args, "url", "")
	if url == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "http.request requires non-empty 'url' string argument")
	}
	method := strings.ToUpper(stringParam(args, "method", "GET"))

	var bodyReader io.Reader
	if body, ok := args["body"]; ok && body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "http.request: encode body: %s", err.Error())
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "http.request: build request: %s", err.Error())
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http.request: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.cfg.MaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "http.request: read body: %s", err.Error()).WithCause(err)
	}

	if boolParam(args, "fail_on_error_status", false) && resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"http.request: %s returned status %d", url, resp.StatusCode)
	}

	out := map[string]any{
		"status_code": resp.StatusCode,
		"status":      resp.Status,
		"headers":     flattenHeaders(resp.Header),
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			out["body"] = decoded
			return out, nil
		}
	}
	out["body"] = string(raw)
	return out, nil
}

// flattenHeaders keeps the first value of each header, lower-noise for
// variable references like $resp.headers.Content-Type.
func flattenHeaders(h http.Header) map[string]any {
	flat := make(map[string]any, len(h))
	for k, vals := range h {
		if len(vals) > 0 {
			flat[k] = vals[0]
		}
	}
	return flat
}

var _ Tool = (*HTTPTool)(nil)
