package api

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRateLimitRetries != DefaultMaxRateLimitRetries {
		t.Errorf("MaxRateLimitRetries = %d, want %d", cfg.MaxRateLimitRetries, DefaultMaxRateLimitRetries)
	}
	if cfg.Max5xxRetries != DefaultMax5xxRetries {
		t.Errorf("Max5xxRetries = %d, want %d", cfg.Max5xxRetries, DefaultMax5xxRetries)
	}
	if cfg.CircuitBreakerResetTime != DefaultCircuitBreakerResetTime {
		t.Errorf("CircuitBreakerResetTime = %v, want %v", cfg.CircuitBreakerResetTime, DefaultCircuitBreakerResetTime)
	}
}

func TestDefaultRetryConfig_WithEnvVars(t *testing.T) {
	t.Setenv("INBOX_MAX_RATE_LIMIT_RETRIES", "10")
	t.Setenv("INBOX_MAX_5XX_RETRIES", "5")
	t.Setenv("INBOX_RATE_LIMIT_DELAY", "2s")
	t.Setenv("INBOX_SERVER_ERROR_DELAY", "500ms")
	t.Setenv("INBOX_CIRCUIT_BREAKER_THRESHOLD", "3")
	t.Setenv("INBOX_CIRCUIT_BREAKER_RESET_TIME", "1m")

	cfg := DefaultRetryConfig()

	if cfg.MaxRateLimitRetries != 10 || cfg.Max5xxRetries != 5 {
		t.Errorf("retries = %d/%d, want 10/5", cfg.MaxRateLimitRetries, cfg.Max5xxRetries)
	}
	if cfg.RateLimitBaseDelay != 2*time.Second || cfg.ServerErrorRetryDelay != 500*time.Millisecond {
		t.Errorf("delays = %v/%v", cfg.RateLimitBaseDelay, cfg.ServerErrorRetryDelay)
	}
	if cfg.CircuitBreakerThreshold != 3 || cfg.CircuitBreakerResetTime != time.Minute {
		t.Errorf("breaker = %d/%v", cfg.CircuitBreakerThreshold, cfg.CircuitBreakerResetTime)
	}
}

func TestDefaultRetryConfig_InvalidEnvVars(t *testing.T) {
	t.Setenv("INBOX_MAX_RATE_LIMIT_RETRIES", "lots")
	t.Setenv("INBOX_RATE_LIMIT_DELAY", "soon")

	cfg := DefaultRetryConfig()
	if cfg.MaxRateLimitRetries != DefaultMaxRateLimitRetries {
		t.Errorf("MaxRateLimitRetries = %d, want fallback %d", cfg.MaxRateLimitRetries, DefaultMaxRateLimitRetries)
	}
	if cfg.RateLimitBaseDelay != DefaultRateLimitBaseDelay {
		t.Errorf("RateLimitBaseDelay = %v, want fallback %v", cfg.RateLimitBaseDelay, DefaultRateLimitBaseDelay)
	}
}

func TestCircuitBreaker_Cycle(t *testing.T) {
	cb := &circuitBreaker{threshold: 2, resetTime: 20 * time.Millisecond}

	if cb.recordFailure() {
		t.Fatal("first failure should not open the circuit")
	}
	if !cb.recordFailure() {
		t.Fatal("second failure should open the circuit")
	}
	if !cb.isOpen() {
		t.Fatal("circuit should be open")
	}

	time.Sleep(30 * time.Millisecond)
	if cb.isOpen() {
		t.Fatal("circuit should be half-open after reset time")
	}
	// A failed probe re-opens for another period.
	if !cb.recordFailure() {
		t.Fatal("failed probe should re-open the circuit")
	}
	if !cb.isOpen() {
		t.Fatal("circuit should be open again")
	}

	time.Sleep(30 * time.Millisecond)
	if cb.isOpen() {
		t.Fatal("circuit should be half-open again")
	}
	cb.recordSuccess()
	if cb.isOpen() || cb.failures != 0 {
		t.Fatalf("successful probe should close the circuit, failures=%d", cb.failures)
	}
}

func TestCircuitBreaker_DefaultsWhenZero(t *testing.T) {
	cb := &circuitBreaker{}
	for i := 0; i < DefaultCircuitBreakerThreshold-1; i++ {
		cb.recordFailure()
	}
	if cb.isOpen() {
		t.Fatal("circuit opened before default threshold")
	}
	cb.recordFailure()
	if !cb.isOpen() {
		t.Fatal("circuit should open at default threshold")
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := &circuitBreaker{threshold: 1000, resetTime: time.Second}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				cb.recordFailure()
			} else {
				cb.recordSuccess()
			}
			_ = cb.isOpen()
		}(i)
	}
	wg.Wait()
}

func TestClient_ResetCircuitBreaker(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, "token")
	cfg := client.RetryConfig
	cfg.Max5xxRetries = 0
	cfg.CircuitBreakerThreshold = 1
	cfg.CircuitBreakerResetTime = time.Hour
	client.SetRetryConfig(cfg)

	_, _ = client.Users().Me(t.Context())
	_, err := client.Users().Me(t.Context())
	if _, ok := err.(*CircuitBreakerError); !ok {
		t.Fatalf("expected CircuitBreakerError, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("open circuit should short-circuit, server saw %d calls", got)
	}

	client.ResetCircuitBreaker()
	_, _ = client.Users().Me(t.Context())
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("reset circuit should allow requests, server saw %d calls", got)
	}
}

func TestRetryAfterDuration(t *testing.T) {
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)

	tests := []struct {
		name   string
		value  string
		wantOK bool
		min    time.Duration
		max    time.Duration
	}{
		{"seconds", "3", true, 3 * time.Second, 3 * time.Second},
		{"negative clamps", "-5", true, 0, 0},
		{"http date", future, true, 80 * time.Second, 90 * time.Second},
		{"past date clamps", past, true, 0, 0},
		{"garbage", "whenever", false, 0, 0},
		{"missing", "", false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			d, ok := retryAfterDuration(h)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if d < tt.min || d > tt.max {
				t.Errorf("duration = %v, want within [%v, %v]", d, tt.min, tt.max)
			}
		})
	}
}
