package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:     retries,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		attempts++
		if attempts < 3 {
			return NewRetryableError(errors.New("temporary error"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_MaxRetriesExceededKeepsCause(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(2), func() error {
		attempts++
		return NewRetryableError(ErrDuplicateKey)
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts (initial + 2 retries), got %d", attempts)
	}
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("expected wrapped ErrDuplicateKey, got %v", err)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(3), func() error {
		attempts++
		return errors.New("non-retryable error")
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Retry(ctx, policy, func() error {
		return NewRetryableError(errors.New("retryable error"))
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"regular error", errors.New("regular"), false},
		{"retryable error", NewRetryableError(errors.New("retry")), true},
		{"retryable with delay", NewRetryableErrorWithDelay(errors.New("retry"), time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	policy := RetryPolicy{
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{9, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := calculateBackoff(policy, tt.attempt); got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}

	policy.Jitter = true
	for i := 0; i < 20; i++ {
		got := calculateBackoff(policy, 1)
		if got < 1800*time.Millisecond || got > 2200*time.Millisecond {
			t.Fatalf("jittered backoff %v outside ±10%%", got)
		}
	}
}

func TestConflictRetryPolicyIsShort(t *testing.T) {
	p := ConflictRetryPolicy()
	if p.MaxRetries < 1 {
		t.Fatal("conflict policy must allow at least one re-read")
	}
	if p.MaxBackoff > time.Second {
		t.Errorf("conflict backoff too long: %v", p.MaxBackoff)
	}
}
