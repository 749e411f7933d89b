package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/metrics"
)

const defaultHTTPTimeout = 30 * time.Second

// providerClient is the HTTP plumbing shared by the provider services: one
// rate limiter per provider, a request timeout, the retry policy and
// request metrics.
type providerClient struct {
	provider string
	client   *http.Client
	limiter  *rate.Limiter
	retry    RetryPolicy
	header   http.Header
}

// ClientOptions tune a provider client. Zero values fall back to defaults.
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             RetryPolicy
	HTTPClient        *http.Client
}

func newProviderClient(provider string, opts ClientOptions) *providerClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &providerClient{
		provider: provider,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		retry:    retry,
		header:   make(http.Header),
	}
}

// getJSON fetches url and decodes the body into out. A 404 returns
// ErrNotFound; other non-200 statuses return *HTTPStatusError.
func (c *providerClient) getJSON(ctx context.Context, url string, out any) error {
	return c.get(ctx, url, func(body io.Reader) error {
		if err := json.NewDecoder(body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", c.provider, err)
		}
		return nil
	})
}

// getBytes fetches url and returns the raw body.
func (c *providerClient) getBytes(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := c.get(ctx, url, func(body io.Reader) error {
		var err error
		data, err = io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("failed to read %s response: %w", c.provider, err)
		}
		return nil
	})
	return data, err
}

func (c *providerClient) get(ctx context.Context, url string, read func(io.Reader) error) error {
	attempt := 0
	return c.retry.Do(ctx, func() error {
		attempt++
		if attempt > 1 {
			metrics.ProviderRetriesTotal.WithLabelValues(c.provider).Inc()
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range c.header {
			req.Header[k] = v
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.client.Do(req)
		metrics.ProviderRequestDuration.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ProviderRequestsTotal.WithLabelValues(c.provider, "error").Inc()
			return fmt.Errorf("failed to fetch from %s: %w", c.provider, err)
		}
		defer resp.Body.Close()

		metrics.ProviderRequestsTotal.WithLabelValues(c.provider, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return &HTTPStatusError{Provider: c.provider, StatusCode: resp.StatusCode, URL: url}
		}

		return read(resp.Body)
	})
}
