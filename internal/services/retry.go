package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/config"
)

var (
	// ErrNotFound is returned by provider requests answered with 404.
	// Callers treat it as "no data" and skip the record.
	ErrNotFound = errors.New("not found")

	// ErrCompletedWithErrors marks a run that finished but skipped records
	// because of per-record errors.
	ErrCompletedWithErrors = errors.New("completed with errors")

	// ErrPipelineLocked is returned when another run of the same pipeline
	// is still in progress.
	ErrPipelineLocked = errors.New("pipeline already running")
)

// HTTPStatusError is a non-2xx provider response.
type HTTPStatusError struct {
	Provider   string
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d", e.Provider, e.StatusCode)
}

// Retryable reports whether the status is worth another attempt. Only rate
// limiting qualifies; other statuses are answered the same way on retry.
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// RetryPolicy is the single retry policy used for provider requests:
// exponential backoff with jitter, a maximum number of attempts, bounded by
// the context.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Notify is called before each wait; nil logs the retry.
	Notify func(err error, wait time.Duration)
}

// DefaultRetryPolicy returns three attempts starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// RetryPolicyFromConfig builds a policy from the pipeline retry settings.
func RetryPolicyFromConfig(c config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	var bo backoff.BackOff = b
	if p.MaxAttempts > 0 {
		bo = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	bo = backoff.WithContext(bo, ctx)

	notify := p.Notify
	if notify == nil {
		notify = func(err error, wait time.Duration) {
			log.Printf("Retry: %v, retrying in %v", err, wait.Round(time.Millisecond))
		}
	}

	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, notify)
}

// IsRetryable reports whether err is a 429 or a transport failure.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
