// Package retry re-runs a generation call after transient failures. The LLM
// clients never retry on their own; callers opt in here.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff.
type Config struct {
	MaxRetries   int // additional attempts after the first; 0 disables retry
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- share of the delay

	// MaxSameErrorType stops early after N consecutive failures of the same
	// class. Zero disables the check.
	MaxSameErrorType int

	// OnRetry, when set, is called before each wait with the attempt number
	// (1-based) that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the backoff used for generation calls: 2s doubling
// to 30s with 10% jitter. MaxRetries is left at zero so callers decide.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       0,
		InitialDelay:     2 * time.Second,
		MaxDelay:         30 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 3,
	}
}

// WithRetries returns a copy of cfg with MaxRetries set to n.
func (c Config) WithRetries(n int) *Config {
	c.MaxRetries = n
	return &c
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// backoff tracks the delay between attempts.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func newBackoff(cfg *Config) *backoff {
	return &backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// wait sleeps for the current delay and grows it. It returns the context
// error when ctx ends first.
func (b *backoff) wait(ctx context.Context, attempt int, err error) error {
	d := applyJitter(b.delay, b.cfg.JitterFactor)
	if b.cfg.OnRetry != nil {
		b.cfg.OnRetry(attempt, d, err)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
	if b.cfg.MaxDelay > 0 && b.delay > b.cfg.MaxDelay {
		b.delay = b.cfg.MaxDelay
	}
	return nil
}

// Do executes fn with exponential backoff, retrying every error.
// Returns nil on success, or the last error after all retries are exhausted.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, fn, func(error) bool { return true })
}

// DoIfRetryable only retries errors IsRetryable accepts. Permanent errors
// (bad credential, unknown model) return immediately.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResultIfRetryable(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResultIfRetryable is DoIfRetryable for functions that return a value.
func DoWithResultIfRetryable[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, fn, IsRetryable)
}

func run[T any](ctx context.Context, cfg *Config, fn func() (T, error), shouldRetry func(error) bool) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	var lastType string
	sameCount := 0
	b := newBackoff(cfg)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if !shouldRetry(err) {
			return result, err
		}

		errType := classifyErrorType(err)
		if errType == lastType {
			sameCount++
			if cfg.MaxSameErrorType > 0 && sameCount >= cfg.MaxSameErrorType {
				return result, fmt.Errorf("repeated error (%d times, type=%s): %w", sameCount, errType, err)
			}
		} else {
			sameCount = 1
			lastType = errType
		}

		if attempt < cfg.MaxRetries {
			if werr := b.wait(ctx, attempt+1, err); werr != nil {
				return result, werr
			}
		}
	}
	return result, lastErr
}

// RetryableError is implemented by errors that declare their retryability,
// such as *llm.Error.
type RetryableError interface {
	error
	IsRetryable() bool
}

// retryablePatterns are matched against errors that do not implement
// RetryableError.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"network is unreachable",
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"service unavailable",
	"too many requests",
	"overloaded",
}

// IsRetryable reports whether err is transient. Errors anywhere in the chain
// that implement RetryableError decide for themselves; context cancellation is
// never retried; anything else is matched against known transient messages.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets an error so repeated failures of the same kind
// can be detected.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	type typed interface{ ErrorTypeName() string }
	var t typed
	if errors.As(err, &t) {
		return t.ErrorTypeName()
	}

	errStr := strings.ToLower(err.Error())
	for _, code := range []string{"503", "502", "504", "500", "429"} {
		if strings.Contains(errStr, code) {
			return code
		}
	}
	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return "rate_limit"
	}
	return "unknown"
}
