package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(retries int) *Config {
	return &Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 0 {
		t.Errorf("expected MaxRetries=0, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 2*time.Second {
		t.Errorf("expected InitialDelay=2s, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("expected MaxDelay=30s, got %v", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected Multiplier=2.0, got %f", cfg.Multiplier)
	}
}

func TestConfig_WithRetries(t *testing.T) {
	base := DefaultConfig()
	cfg := base.WithRetries(4)
	if cfg.MaxRetries != 4 {
		t.Errorf("expected MaxRetries=4, got %d", cfg.MaxRetries)
	}
	if base.MaxRetries != 0 {
		t.Errorf("WithRetries must not modify the receiver, got %d", base.MaxRetries)
	}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	calls := 0
	want := errors.New("persistent error")
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", calls)
	}
}

func TestDo_ZeroRetriesCallsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(0), func() error {
		calls++
		return errors.New("boom")
	})
	if err == nil {
		t.Error("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, cfg, func() error {
		calls++
		return errors.New("error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("cancellation did not interrupt the wait")
	}
}

func TestDo_OnRetryReportsGrowingDelays(t *testing.T) {
	cfg := &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     3 * time.Millisecond,
		Multiplier:   2.0,
	}
	var attempts []int
	var delays []time.Duration
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}

	_ = Do(context.Background(), cfg, func() error { return errors.New("x") })

	wantAttempts := []int{1, 2, 3}
	wantDelays := []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}
	if fmt.Sprint(attempts) != fmt.Sprint(wantAttempts) {
		t.Errorf("attempts = %v, want %v", attempts, wantAttempts)
	}
	if fmt.Sprint(delays) != fmt.Sprint(wantDelays) {
		t.Errorf("delays = %v, want %v", delays, wantDelays)
	}
}

func TestDoWithResult_KeepsLastResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), fastConfig(1), func() (string, error) {
		calls++
		return fmt.Sprintf("attempt-%d", calls), errors.New("failed")
	})
	if err == nil {
		t.Error("expected error")
	}
	if result != "attempt-2" {
		t.Errorf("expected last result attempt-2, got %q", result)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"429", errors.New("HTTP 429"), true},
		{"503", errors.New("status 503"), true},
		{"overloaded", errors.New("Overloaded"), true},
		{"auth", errors.New("invalid api key"), false},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"declares retryable", declared{retryable: true}, true},
		{"declares permanent despite 503 text", declared{retryable: false, msg: "HTTP 503"}, false},
		{"wrapped declaration", fmt.Errorf("generate: %w", declared{retryable: true}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoIfRetryable_NonRetryableError(t *testing.T) {
	calls := 0
	want := errors.New("invalid api key")
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		return want
	})
	if err != want {
		t.Errorf("expected %v, got %v", want, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoIfRetryable_RetryableError(t *testing.T) {
	calls := 0
	err := DoIfRetryable(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 2 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDoIfRetryable_EscalatesRepeatedErrorType(t *testing.T) {
	cfg := fastConfig(10)
	cfg.MaxSameErrorType = 3

	calls := 0
	base := declared{retryable: true, typ: "rate_limited", msg: "slow down"}
	err := DoIfRetryable(context.Background(), cfg, func() error {
		calls++
		return base
	})
	if calls != 3 {
		t.Errorf("expected 3 calls before escalation, got %d", calls)
	}
	if err == nil || !errors.Is(err, base) {
		t.Fatalf("expected wrapped %v, got %v", base, err)
	}
	if want := "repeated error (3 times, type=rate_limited)"; err.Error()[:len(want)] != want {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestDoWithResultIfRetryable(t *testing.T) {
	calls := 0
	got, err := DoWithResultIfRetryable(context.Background(), fastConfig(2), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("connection reset by peer")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestClassifyErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "nil"},
		{declared{typ: "unavailable"}, "unavailable"},
		{errors.New("HTTP 503"), "503"},
		{errors.New("connection refused"), "connection"},
		{errors.New("request timed out"), "timeout"},
		{errors.New("rate limit exceeded"), "rate_limit"},
		{errors.New("something odd"), "unknown"},
	}
	for _, tt := range tests {
		if got := classifyErrorType(tt.err); got != tt.want {
			t.Errorf("classifyErrorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// declared is an error that states its own retryability and class.
type declared struct {
	retryable bool
	typ       string
	msg       string
}

func (d declared) Error() string {
	if d.msg == "" {
		return "declared error"
	}
	return d.msg
}

func (d declared) IsRetryable() bool { return d.retryable }

func (d declared) ErrorTypeName() string {
	if d.typ == "" {
		return "declared"
	}
	return d.typ
}
