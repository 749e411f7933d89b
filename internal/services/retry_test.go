package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/config"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ErrNotFound, false},
		{"wrapped not found", fmt.Errorf("failed: %w", ErrNotFound), false},
		{"429", &HTTPStatusError{Provider: "p", StatusCode: http.StatusTooManyRequests}, true},
		{"wrapped 429", fmt.Errorf("failed: %w", &HTTPStatusError{StatusCode: 429}), true},
		{"500", &HTTPStatusError{StatusCode: http.StatusInternalServerError}, false},
		{"transport", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection refused")}, true},
		{"decode", errors.New("failed to decode"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryPolicyStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxAttempts:     10,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Notify:          func(error, time.Duration) {},
	}

	attempts := 0
	err := policy.Do(ctx, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return &HTTPStatusError{StatusCode: 429}
	})
	if err == nil {
		t.Fatal("expected error after cancel")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	p := RetryPolicyFromConfig(config.RetryConfig{MaxAttempts: 5, InitialInterval: 2 * time.Second, MaxInterval: time.Minute})
	if p.MaxAttempts != 5 || p.InitialInterval != 2*time.Second || p.MaxInterval != time.Minute {
		t.Errorf("RetryPolicyFromConfig() = %+v", p)
	}
	if d := DefaultRetryPolicy(); d.MaxAttempts != 3 {
		t.Errorf("DefaultRetryPolicy().MaxAttempts = %d, want 3", d.MaxAttempts)
	}
}
