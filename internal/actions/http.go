package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/pkg/schema"
)

// HTTPConfig configures outbound calls.
type HTTPConfig struct {
	MaxResponseBody int64
	// DefaultTimeout applies when a node sets no timeout. Zero means the
	// call is bounded only by the caller's context.
	DefaultTimeout time.Duration
	Client         *http.Client
}

const defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB

// HTTPRequestHandler performs an outbound HTTP call.
type HTTPRequestHandler struct {
	config HTTPConfig
	interp *expressions.Interpolator
}

// NewHTTPRequestHandler creates the http_request handler.
func NewHTTPRequestHandler(cfg HTTPConfig, interp *expressions.Interpolator) *HTTPRequestHandler {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &HTTPRequestHandler{config: cfg, interp: interp}
}

func (h *HTTPRequestHandler) Type() schema.NodeType { return schema.NodeTypeHTTPRequest }

func (h *HTTPRequestHandler) Describe() string {
	return "Call an external HTTP endpoint; the parsed response body becomes the result data."
}

func (h *HTTPRequestHandler) Execute(ctx context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.HTTPRequestConfig](call)
	if bad != nil {
		return bad
	}

	rawURL := h.interp.Resolve(ctx, cfg.URL, call.Ctx)
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fail(schema.ErrCodeConfig, "invalid url %q", rawURL)
	}

	body, contentType, res := h.buildBody(ctx, cfg, call)
	if res != nil {
		return res
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
		if body != nil {
			method = http.MethodPost
		}
	}

	headers := make(map[string]string, len(cfg.Headers)+1)
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	for k, v := range cfg.Headers {
		headers[k] = h.interp.Resolve(ctx, v, call.Ctx)
	}

	timeout := h.config.DefaultTimeout
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fail(schema.ErrCodeConfig, "invalid timeout %q", cfg.Timeout)
		}
		timeout = d
	}

	attempts := 1
	if cfg.Retry != nil && cfg.Retry.Max > 0 {
		attempts += cfg.Retry.Max
	}

	var result *schema.ExecutionResult
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := WaitForBackoff(ctx, ComputeBackoff(cfg.Retry, attempt-1)); err != nil {
				return schema.Failed(schema.NewError(schema.ErrCodeCancelled, "call cancelled while waiting to retry").WithCause(err))
			}
		}
		var status int
		result, status = h.do(ctx, method, rawURL, headers, body, timeout)
		if result.Success || ctx.Err() != nil {
			return result
		}
		if status != 0 && !retryableStatus(status) {
			return result
		}
	}
	if attempts > 1 {
		if d, ok := result.Details.(map[string]any); ok {
			d["attempts"] = attempts
		} else {
			result.Details = map[string]any{"attempts": attempts}
		}
	}
	return result
}

// buildBody returns the encoded request body, or nil when nothing is sent.
func (h *HTTPRequestHandler) buildBody(ctx context.Context, cfg *schema.HTTPRequestConfig, call *Call) ([]byte, string, *schema.ExecutionResult) {
	source := cfg.UseDataFrom
	if source == "" {
		source = schema.UseDataNone
		if cfg.Body != nil {
			source = schema.UseDataLiteral
		}
	}

	var payload any
	switch source {
	case schema.UseDataNone:
		return nil, "", nil
	case schema.UseDataPreviousResult:
		last := call.Ctx.LastResult
		if last == nil || last.Data == nil {
			return nil, "", fail(schema.ErrCodeDependency, "node %s sends the previous result but no previous result exists", call.Node.ID)
		}
		payload = last.Data
	case schema.UseDataLiteral:
		if cfg.Body == nil {
			return nil, "", nil
		}
		payload = h.interp.ResolveValue(ctx, cfg.Body, call.Ctx)
	default:
		return nil, "", fail(schema.ErrCodeConfig, "unknown useDataFrom %q", cfg.UseDataFrom)
	}

	if s, ok := payload.(string); ok {
		return []byte(s), "text/plain; charset=utf-8", nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", schema.Failed(schema.NewError(schema.ErrCodeConfig, "request body is not JSON-encodable").WithCause(err))
	}
	return b, "application/json", nil
}

// do performs a single attempt. The returned status is 0 when no response arrived.
func (h *HTTPRequestHandler) do(ctx context.Context, method, rawURL string, headers map[string]string, body []byte, timeout time.Duration) (*schema.ExecutionResult, int) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fail(schema.ErrCodeConfig, "cannot build request: %v", err), 0
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.config.Client.Do(req)
	if err != nil {
		code := schema.ErrCodeExternalCall
		if errors.Is(err, context.DeadlineExceeded) {
			code = schema.ErrCodeTimeout
		}
		return schema.Failed(schema.NewErrorf(code, "request failed: %v", err).WithCause(err)), 0
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, h.config.MaxResponseBody))
	if err != nil {
		return schema.Failed(schema.NewError(schema.ErrCodeExternalCall, "failed to read response body").WithCause(err)), resp.StatusCode
	}
	parsed := parseBody(resp.Header.Get("Content-Type"), raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failWith(schema.NewError(schema.ErrCodeExternalCall, statusText(resp.StatusCode)), map[string]any{
			"status": resp.StatusCode,
			"body":   parsed,
		}), resp.StatusCode
	}
	return schema.Succeeded(parsed), resp.StatusCode
}

// statusText renders a status as "<code> <reason>", e.g. "404 Not Found".
func statusText(code int) string {
	return strings.TrimSpace(fmt.Sprintf("%d %s", code, http.StatusText(code)))
}

// parseBody decodes JSON bodies, including undeclared ones, and falls back
// to text. Plain-text bodies that parse as a JSON scalar stay text.
func parseBody(contentType string, raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	declared := strings.Contains(contentType, "json")
	if declared || trimmed[0] == '{' || trimmed[0] == '[' {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(raw)
}
