package api

import (
	"bytes"
	"cmp"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/socialinbox/inbox-cli/internal/debug"
	"github.com/socialinbox/inbox-cli/internal/validation"
)

const DefaultTimeout = 30 * time.Second

// Client is the social inbox REST client.
//
// Every request carries the session token as a bearer credential attached
// by an oauth2 transport.
//
// The client includes a circuit breaker that tracks server failures across
// requests. Use ResetCircuitBreaker() when reusing a client after recovering
// from a known transient failure.
type Client struct {
	BaseURL   string
	Token     string
	CompanyID string
	HTTP      *http.Client
	UserAgent string

	// IdempotencyKeyFunc, when set, supplies an Idempotency-Key for each
	// write request. Writes carrying a key become safe to retry.
	IdempotencyKeyFunc func() string

	// OnUnauthorized runs once per client the first time the server answers
	// 401. Session-level logout lives with the caller.
	OnUnauthorized func()

	RetryConfig RetryConfig

	skipURLValidation bool
	circuitBreaker    *circuitBreaker
	validatedBaseURL  bool
	validateMu        sync.Mutex
	unauthorizedOnce  sync.Once
	rateLimitMu       sync.Mutex
	lastRateLimit     *RateLimitInfo
}

var _ Requester = (*Client)(nil)

var validateServerURL = validation.ValidateServerURL

// New creates a new API client for the given server and session token.
func New(baseURL, token string) *Client {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	transport := baseTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12

	// Allow localhost URLs when INBOX_TESTING=1 is set (for integration tests)
	skipValidation := os.Getenv("INBOX_TESTING") == "1"

	retryCfg := DefaultRetryConfig()
	return &Client{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Token:             token,
		RetryConfig:       retryCfg,
		skipURLValidation: skipValidation,
		HTTP: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: bearerTransport(token, transport),
		},
		circuitBreaker: &circuitBreaker{
			threshold: retryCfg.CircuitBreakerThreshold,
			resetTime: retryCfg.CircuitBreakerResetTime,
		},
	}
}

// newTestClient creates a client with URL validation disabled for testing
func newTestClient(baseURL, token string) *Client {
	c := New(baseURL, token)
	c.skipURLValidation = true
	c.RetryConfig.RateLimitBaseDelay = time.Millisecond
	c.RetryConfig.ServerErrorRetryDelay = time.Millisecond
	return c
}

// bearerTransport wraps base so every request carries "Authorization: Bearer <token>".
// An empty token leaves requests unauthenticated (health checks, OAuth URL discovery
// before login).
func bearerTransport(token string, base http.RoundTripper) http.RoundTripper {
	if token == "" {
		return base
	}
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}),
		Base: base,
	}
}

// ResetCircuitBreaker clears the circuit breaker state.
func (c *Client) ResetCircuitBreaker() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.reset()
	}
}

// SetRetryConfig updates the retry configuration and aligns circuit breaker settings.
func (c *Client) SetRetryConfig(cfg RetryConfig) {
	c.RetryConfig = cfg
	if c.circuitBreaker != nil {
		c.circuitBreaker.configure(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerResetTime)
	}
}

func (c *Client) ensureBaseURLValidated() error {
	if c.skipURLValidation {
		return nil
	}

	c.validateMu.Lock()
	defer c.validateMu.Unlock()

	if c.validatedBaseURL {
		return nil
	}

	if err := validateServerURL(c.BaseURL); err != nil {
		return fmt.Errorf("URL validation failed: %w", err)
	}

	c.validatedBaseURL = true
	return nil
}

// apiPath returns the absolute URL for a REST resource under /api.
func (c *Client) apiPath(path string) string {
	if path != "" && path[0] != '/' {
		path = "/" + path
	}
	return c.BaseURL + "/api" + path
}

// do performs an HTTP request and decodes the response
func (c *Client) do(ctx context.Context, method, url string, body any, result any) error {
	respBody, _, err := c.executeRequest(ctx, method, url, body)
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unexpected API response format (JSON decode failed): %w", err)
		}
	}
	return nil
}

// attempts tracks the retry budget of one logical request.
type attempts struct {
	idempotent   bool
	rateLimited  int
	serverErrors int
}

func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// executeRequest sends the request, retrying 429 and 5xx answers within
// RetryConfig when the request is safe to repeat. The body is marshalled
// once and replayed on each attempt.
func (c *Client) executeRequest(ctx context.Context, method, url string, body any) ([]byte, int, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	if c.circuitBreaker != nil && c.circuitBreaker.isOpen() {
		return nil, 0, &CircuitBreakerError{}
	}
	// Checked at request time, not construction, so a rebinding DNS answer
	// is caught before the first byte is sent.
	if err := c.ensureBaseURLValidated(); err != nil {
		return nil, 0, err
	}

	var key string
	if !isReadMethod(method) && c.IdempotencyKeyFunc != nil {
		key = c.IdempotencyKeyFunc()
	}
	budget := attempts{idempotent: isReadMethod(method) || key != ""}
	log := debug.Component("api")

	for attempt := 1; ; attempt++ {
		req, err := c.newRequest(ctx, method, url, payload, key)
		if err != nil {
			return nil, 0, err
		}

		start := time.Now()
		resp, err := c.HTTP.Do(req)
		if err != nil {
			if debug.IsEnabled(ctx) {
				log.Debug("request failed", "method", method, "url", url, "attempt", attempt, "error", err)
			}
			return nil, 0, fmt.Errorf("request failed: %w", err)
		}
		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read response: %w", err)
		}
		c.recordRateLimit(resp.Header)
		if debug.IsEnabled(ctx) {
			log.Debug("request complete", "method", method, "url", url, "status", resp.StatusCode, "attempt", attempt, "duration", time.Since(start))
		}

		delay, retry, err := c.retryPlan(resp, &budget)
		if err != nil {
			return nil, resp.StatusCode, err
		}
		if retry {
			log.Info("retrying request", "status", resp.StatusCode, "delay", delay, "attempt", attempt)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, 0, err
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			c.unauthorized()
		case resp.StatusCode < 400:
			if c.circuitBreaker != nil {
				c.circuitBreaker.recordSuccess()
			}
			return respBody, resp.StatusCode, nil
		}
		return respBody, resp.StatusCode, &APIError{
			StatusCode: resp.StatusCode,
			Body:       sanitizeErrorBody(string(respBody)),
			RequestID:  requestIDFromHeader(resp.Header),
		}
	}
}

// retryPlan reports whether resp should be retried and after what delay.
// A 429 that cannot be retried becomes a RateLimitError. Every 5xx counts
// against the circuit breaker, retried or not.
func (c *Client) retryPlan(resp *http.Response, b *attempts) (time.Duration, bool, error) {
	cfg := c.RetryConfig
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait, hinted := retryAfterDuration(resp.Header)
		if !b.idempotent || b.rateLimited >= cfg.MaxRateLimitRetries {
			if !hinted {
				wait = cfg.RateLimitBaseDelay
			}
			return 0, false, &RateLimitError{RetryAfter: wait}
		}
		if !hinted {
			wait = cfg.RateLimitBaseDelay << b.rateLimited
		}
		b.rateLimited++
		return wait, true, nil

	case resp.StatusCode >= 500:
		if c.circuitBreaker != nil {
			c.circuitBreaker.recordFailure()
		}
		if b.idempotent && b.serverErrors < cfg.Max5xxRetries {
			b.serverErrors++
			return cfg.ServerErrorRetryDelay, true, nil
		}
	}
	return 0, false, nil
}

func (c *Client) newRequest(ctx context.Context, method, url string, payload []byte, idempotencyKey string) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	h := req.Header
	h.Set("Accept", "application/json")
	if payload != nil {
		h.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		h.Set("User-Agent", c.UserAgent)
	}
	if c.CompanyID != "" {
		h.Set("X-Company-Id", c.CompanyID)
	}
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return req, nil
}

func (c *Client) unauthorized() {
	if c.OnUnauthorized == nil {
		return
	}
	c.unauthorizedOnce.Do(c.OnUnauthorized)
}

func requestIDFromHeader(header http.Header) string {
	if header == nil {
		return ""
	}
	return header.Get("X-Request-Id")
}

const redactedBody = "API request failed (response body redacted for security)"

// sanitizeErrorBody keeps only the error text and field validation
// messages of an error payload. Anything else in the body may echo tokens
// or customer data and is dropped.
func sanitizeErrorBody(body string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Errors  any    `json:"errors"`
	}
	if json.Unmarshal([]byte(body), &payload) != nil {
		return redactedBody
	}

	var parts []string
	if text := cmp.Or(payload.Error, payload.Message); text != "" {
		parts = append(parts, text)
	}
	if fields := formatValidationErrors(payload.Errors); fields != "" {
		parts = append(parts, "Validation errors:\n"+fields)
	}
	if len(parts) == 0 {
		return redactedBody
	}
	return strings.Join(parts, "\n")
}

// formatValidationErrors accepts {"field": "msg"} and {"field": ["msg", ...]}
// and returns sorted "  field: msg" lines.
func formatValidationErrors(raw any) string {
	fields, _ := raw.(map[string]any)
	var lines []string
	for field, value := range fields {
		var msgs []any
		switch v := value.(type) {
		case string:
			msgs = []any{v}
		case []any:
			msgs = v
		}
		for _, m := range msgs {
			if text, ok := m.(string); ok {
				lines = append(lines, "  "+field+": "+text)
			}
		}
	}
	slices.Sort(lines)
	return strings.Join(lines, "\n")
}

// HealthCheck reports whether the server answers GET /health with 200.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}
