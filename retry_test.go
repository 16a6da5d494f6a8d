package tracklog

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryerSucceedsAfterFailures(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond})

	calls := 0
	result := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if result.LastErr != nil {
		t.Fatalf("expected success: %v", result.LastErr)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestRetryerExhausted(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond})

	result := r.Do(context.Background(), func() error {
		return errors.New("always fails")
	})
	if result.LastErr == nil {
		t.Fatal("expected final error")
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
}

func TestRetryerRespectsRetryIf(t *testing.T) {
	permanent := errors.New("permanent")
	r := NewRetryer(RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		RetryIf:        func(err error) bool { return !errors.Is(err, permanent) },
	})

	calls := 0
	result := r.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
	if !errors.Is(result.LastErr, permanent) {
		t.Errorf("expected permanent error, got %v", result.LastErr)
	}
}

func TestRetryerContextCancel(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 10, InitialBackoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	result := r.Do(ctx, func() error { return errors.New("fail") })
	if !errors.Is(result.LastErr, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", result.LastErr)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("request Timeout while waiting"), true},
		{errors.New("503 Service Unavailable"), true},
		{errors.New("invalid argument"), false},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
