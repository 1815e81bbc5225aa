package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/staffdeck/staffdeck/internal/config"
	"github.com/staffdeck/staffdeck/internal/observability"
	"github.com/staffdeck/staffdeck/model"
)

// Client executes requests against the staffing backend API. It handles
// bearer auth with a one-time 401 refresh, retry with exponential backoff
// for idempotent calls, and circuit breaker protection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	retry      config.RetryConfig
	breaker    *CircuitBreaker
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// New creates a backend client from configuration. A nil metrics disables
// recording.
func New(cfg config.BackendConfig, tokens TokenSource, metrics *observability.Metrics, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		tokens:  tokens,
		retry:   cfg.Retry,
		breaker: NewCircuitBreaker(cfg.Breaker.FailureThreshold, cfg.Breaker.SuccessThreshold, cfg.Breaker.Timeout),
		metrics: metrics,
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// List fetches a page of records for the given query parameters.
func (c *Client) List(ctx context.Context, rctx *model.RequestContext, params model.ListParams) (model.ListEnvelope, error) {
	reqURL := c.baseURL + "/" + strings.TrimLeft(params.Resource, "/")
	if encoded := params.Encode().Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	resp, body, err := c.executeWithRetry(ctx, rctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.ListEnvelope{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return model.ListEnvelope{}, c.statusError(resp.StatusCode, body)
	}

	var envelope model.ListEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return model.ListEnvelope{}, fmt.Errorf("client: parse list response: %w", err)
	}
	return envelope, nil
}

// FetchSlice fetches a reference-data endpoint and returns the decoded JSON
// body as-is; normalization happens in the common-data layer.
func (c *Client) FetchSlice(ctx context.Context, rctx *model.RequestContext, sliceURL string) (any, error) {
	reqURL := sliceURL
	if !strings.HasPrefix(sliceURL, "http://") && !strings.HasPrefix(sliceURL, "https://") {
		reqURL = c.baseURL + "/" + strings.TrimLeft(sliceURL, "/")
	}

	resp, body, err := c.executeWithRetry(ctx, rctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp.StatusCode, body)
	}

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("client: parse slice response: %w", err)
	}
	return parsed, nil
}

// Create posts a new record to the resource collection.
func (c *Client) Create(ctx context.Context, rctx *model.RequestContext, resource string, payload map[string]any) (model.MutationResult, error) {
	reqURL := c.baseURL + "/" + strings.TrimLeft(resource, "/")
	return c.mutate(ctx, rctx, reqURL, payload)
}

// Update sends a record update. The backend expects a POST carrying a
// _method=PUT override rather than a real PUT.
func (c *Client) Update(ctx context.Context, rctx *model.RequestContext, resource, id string, payload map[string]any) (model.MutationResult, error) {
	reqURL := c.baseURL + "/" + strings.TrimLeft(resource, "/") + "/" + url.PathEscape(id) + "?_method=PUT"
	return c.mutate(ctx, rctx, reqURL, payload)
}

// Delete removes a record, optionally carrying a reason in the request body.
func (c *Client) Delete(ctx context.Context, rctx *model.RequestContext, resource, id, reason string) (model.MutationResult, error) {
	reqURL := c.baseURL + "/" + strings.TrimLeft(resource, "/") + "/" + url.PathEscape(id)

	var bodyBytes []byte
	if reason != "" {
		bodyBytes, _ = json.Marshal(map[string]string{"reason": reason})
	}

	resp, body, err := c.executeWithRetry(ctx, rctx, http.MethodDelete, reqURL, bodyBytes)
	if err != nil {
		return model.MutationResult{}, err
	}
	return c.mutationResult(resp.StatusCode, body)
}

// mutate runs a POST and maps the response to a MutationResult or error.
func (c *Client) mutate(ctx context.Context, rctx *model.RequestContext, reqURL string, payload map[string]any) (model.MutationResult, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return model.MutationResult{}, fmt.Errorf("client: marshal payload: %w", err)
	}

	resp, body, err := c.executeWithRetry(ctx, rctx, http.MethodPost, reqURL, bodyBytes)
	if err != nil {
		return model.MutationResult{}, err
	}
	return c.mutationResult(resp.StatusCode, body)
}

func (c *Client) mutationResult(status int, body []byte) (model.MutationResult, error) {
	if status >= 200 && status < 300 {
		result := model.MutationResult{StatusCode: status}
		if len(body) > 0 {
			var parsed map[string]any
			if err := json.Unmarshal(body, &parsed); err == nil {
				result.Body = parsed
			}
		}
		return result, nil
	}
	return model.MutationResult{}, c.statusError(status, body)
}

// statusError maps a non-2xx backend status to a typed error. A 422 is
// decoded into a ValidationError carrying the per-field message map.
func (c *Client) statusError(status int, body []byte) error {
	switch {
	case status == http.StatusUnprocessableEntity:
		if ve := parseValidationBody(body); ve != nil {
			return ve
		}
		return model.NewBadRequestError("backend rejected the request")
	case status == http.StatusUnauthorized:
		return model.NewUnauthorizedError("backend rejected the credentials")
	case status == http.StatusForbidden:
		return model.NewForbiddenError("backend denied access")
	case status == http.StatusNotFound:
		return model.NewNotFoundError("record not found")
	case status == http.StatusConflict:
		return model.NewConflictError("record conflict")
	case status >= 500:
		return model.NewBackendUnavailableError()
	default:
		return model.NewBadRequestError(fmt.Sprintf("backend returned status %d", status))
	}
}

// parseValidationBody extracts the { field: [message, ...] } map from a 422
// response. Both a top-level map and one nested under "errors" are accepted.
func parseValidationBody(body []byte) *model.ValidationError {
	var nested struct {
		Errors map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && len(nested.Errors) > 0 {
		return &model.ValidationError{Fields: nested.Errors}
	}

	var flat map[string][]string
	if err := json.Unmarshal(body, &flat); err == nil && len(flat) > 0 {
		return &model.ValidationError{Fields: flat}
	}
	return nil
}

// executeWithRetry wraps executeOnce with retry and exponential backoff for
// idempotent methods, and a single token refresh on 401.
func (c *Client) executeWithRetry(ctx context.Context, rctx *model.RequestContext, method, reqURL string, bodyBytes []byte) (*http.Response, []byte, error) {
	maxAttempts := c.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	canRetry := isIdempotentMethod(method)
	refreshed := false

	var lastResp *http.Response
	var lastBody []byte

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.BackendRetriesTotal.Inc()
			}
			delay := calculateBackoff(c.retry, attempt)
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, body, err := c.executeOnce(ctx, rctx, method, reqURL, bodyBytes)
		if err != nil {
			if !canRetry || !isRetryableError(err) {
				return nil, nil, err
			}
			c.logger.Debug("retrying backend request after error",
				zap.Int("attempt", attempt+1),
				zap.Int("max", maxAttempts),
				zap.Error(err),
			)
			if attempt == maxAttempts-1 {
				return nil, nil, err
			}
			continue
		}

		// A 401 triggers at most one token refresh per logical request,
		// independent of the retry budget.
		if resp.StatusCode == http.StatusUnauthorized && !refreshed {
			refreshed = true
			if _, refreshErr := c.tokens.Refresh(ctx); refreshErr != nil {
				c.logger.Warn("backend token refresh failed", zap.Error(refreshErr))
				return resp, body, nil
			}
			if c.metrics != nil {
				c.metrics.BackendTokenRefreshesTotal.Inc()
			}
			c.logger.Debug("retrying backend request with refreshed token")
			attempt--
			continue
		}

		if isRetryableStatus(resp.StatusCode) && canRetry && attempt < maxAttempts-1 {
			lastResp, lastBody = resp, body
			c.logger.Debug("retrying backend request after status",
				zap.Int("attempt", attempt+1),
				zap.Int("max", maxAttempts),
				zap.Int("status", resp.StatusCode),
			)
			continue
		}

		return resp, body, nil
	}

	if lastResp != nil {
		return lastResp, lastBody, nil
	}
	return nil, nil, model.NewBackendUnavailableError()
}

// executeOnce performs a single HTTP request wrapped in a span, recording
// request metrics and the breaker gauge afterwards.
func (c *Client) executeOnce(ctx context.Context, rctx *model.RequestContext, method, reqURL string, bodyBytes []byte) (*http.Response, []byte, error) {
	ctx, span := observability.StartSpan(ctx, "backend.request")
	start := time.Now()

	resp, body, err := c.doOnce(ctx, rctx, method, reqURL, bodyBytes)

	observability.EndSpanWithError(span, err)
	if c.metrics != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.metrics.RecordBackendRequest(method, status, time.Since(start))
		c.metrics.SetCircuitBreakerState(breakerGauge(c.breaker.State()))
	}
	return resp, body, err
}

// breakerGauge maps breaker states to the gauge convention
// 0=closed, 1=half-open, 2=open.
func breakerGauge(state BreakerState) float64 {
	switch state {
	case BreakerOpen:
		return 2
	case BreakerHalfOpen:
		return 1
	default:
		return 0
	}
}

// doOnce performs a single HTTP request with circuit breaker protection
// and returns the response with its fully-read body.
func (c *Client) doOnce(ctx context.Context, rctx *model.RequestContext, method, reqURL string, bodyBytes []byte) (*http.Response, []byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, nil, model.NewBackendUnavailableError()
	}

	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, nil, fmt.Errorf("client: build request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("client: obtain token: %w", err)
	}
	c.setHeaders(req, rctx, token, bodyBytes != nil)
	observability.InjectTraceHeaders(ctx, req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		if ctx.Err() != nil {
			return nil, nil, model.NewBackendTimeoutError()
		}
		if isConnectionError(err) {
			return nil, nil, model.NewBackendUnavailableError()
		}
		return nil, nil, fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		c.breaker.RecordFailure()
		return nil, nil, fmt.Errorf("client: read response: %w", err)
	}

	if isServerError(resp.StatusCode) {
		c.breaker.RecordFailure()
	} else if !isClientError(resp.StatusCode) {
		// Only 2xx/3xx count as success; 4xx are not infrastructure failures.
		c.breaker.RecordSuccess()
	}

	return resp, respBody, nil
}

func (c *Client) setHeaders(req *http.Request, rctx *model.RequestContext, token string, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+sanitizeHeader(token))
	}
	if rctx != nil {
		req.Header.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		req.Header.Set("X-Request-Subject", sanitizeHeader(rctx.SubjectID))
		if rctx.Locale != "" {
			req.Header.Set("Accept-Language", sanitizeHeader(rctx.Locale))
		}
	}
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

// --- classification helpers ---

func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete,
		http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func isServerError(code int) bool {
	return code >= 500
}

func isClientError(code int) bool {
	return code >= 400 && code < 500
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Breaker-open and timeout envelopes are not retryable.
	var envelope *model.ErrorEnvelope
	return !errors.As(err, &envelope)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func calculateBackoff(cfg config.RetryConfig, attempt int) time.Duration {
	initial := cfg.BackoffInitial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	multiplier := cfg.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	maxDelay := cfg.BackoffMax
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * multiplier)
		if delay > maxDelay {
			return maxDelay
		}
	}
	return delay
}
