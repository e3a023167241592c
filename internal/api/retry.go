package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxRateLimitRetries     = 3
	DefaultMax5xxRetries           = 1
	DefaultRateLimitBaseDelay      = 1 * time.Second
	DefaultServerErrorRetryDelay   = 1 * time.Second
	DefaultCircuitBreakerThreshold = 5
	DefaultCircuitBreakerResetTime = 30 * time.Second
)

// RetryConfig controls request retries and the circuit breaker. Only
// idempotent requests (GET, PUT, DELETE, and POSTs carrying an
// Idempotency-Key) are retried.
type RetryConfig struct {
	MaxRateLimitRetries     int
	Max5xxRetries           int
	RateLimitBaseDelay      time.Duration
	ServerErrorRetryDelay   time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerResetTime time.Duration
}

// DefaultRetryConfig reads INBOX_MAX_RATE_LIMIT_RETRIES, INBOX_MAX_5XX_RETRIES,
// INBOX_RATE_LIMIT_DELAY, INBOX_SERVER_ERROR_DELAY,
// INBOX_CIRCUIT_BREAKER_THRESHOLD and INBOX_CIRCUIT_BREAKER_RESET_TIME.
// Unset or unparsable values fall back to the defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRateLimitRetries:     envOr("INBOX_MAX_RATE_LIMIT_RETRIES", DefaultMaxRateLimitRetries, strconv.Atoi),
		Max5xxRetries:           envOr("INBOX_MAX_5XX_RETRIES", DefaultMax5xxRetries, strconv.Atoi),
		RateLimitBaseDelay:      envOr("INBOX_RATE_LIMIT_DELAY", DefaultRateLimitBaseDelay, time.ParseDuration),
		ServerErrorRetryDelay:   envOr("INBOX_SERVER_ERROR_DELAY", DefaultServerErrorRetryDelay, time.ParseDuration),
		CircuitBreakerThreshold: envOr("INBOX_CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold, strconv.Atoi),
		CircuitBreakerResetTime: envOr("INBOX_CIRCUIT_BREAKER_RESET_TIME", DefaultCircuitBreakerResetTime, time.ParseDuration),
	}
}

func envOr[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := parse(raw)
	if err != nil {
		return fallback
	}
	return v
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerProbing
)

// circuitBreaker rejects requests after threshold consecutive server
// failures. After resetTime it lets probes through; the first probe result
// closes or re-opens it.
type circuitBreaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
	threshold   int
	resetTime   time.Duration
}

func (cb *circuitBreaker) configure(threshold int, reset time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.threshold, cb.resetTime = threshold, reset
}

func (cb *circuitBreaker) limits() (int, time.Duration) {
	threshold, reset := cb.threshold, cb.resetTime
	if threshold <= 0 {
		threshold = DefaultCircuitBreakerThreshold
	}
	if reset <= 0 {
		reset = DefaultCircuitBreakerResetTime
	}
	return threshold, reset
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = breakerClosed
}

// recordFailure reports whether this failure opened the circuit.
func (cb *circuitBreaker) recordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	threshold, _ := cb.limits()
	switch {
	case cb.state == breakerProbing:
		cb.state = breakerOpen
		return true
	case cb.state == breakerClosed && cb.failures >= threshold:
		cb.state = breakerOpen
		return true
	}
	return false
}

// isOpen reports whether a request must be rejected without being sent.
func (cb *circuitBreaker) isOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != breakerOpen {
		return false
	}
	if _, reset := cb.limits(); time.Since(cb.lastFailure) >= reset {
		cb.state = breakerProbing
		return false
	}
	return true
}

func (cb *circuitBreaker) reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = breakerClosed
	cb.failures = 0
	cb.lastFailure = time.Time{}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryAfterDuration reads Retry-After as seconds or an HTTP date. Values
// in the past clamp to zero.
func retryAfterDuration(h http.Header) (time.Duration, bool) {
	value := strings.TrimSpace(h.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(value); err == nil {
		d = time.Until(t)
	} else {
		return 0, false
	}
	return max(d, 0), true
}
