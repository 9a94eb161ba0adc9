// Package httpretry wraps outbound HTTP calls in a failsafe retry policy and
// an optional client-side rate limit.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"
)

// Config controls retries.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// ShouldRetry decides whether a response or error triggers another attempt.
	ShouldRetry func(resp *http.Response, err error) bool
}

// DefaultConfig retries three times with 200ms..5s backoff.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		ShouldRetry: ShouldRetry,
	}
}

// ShouldRetry retries network errors, 5xx and 429 responses.
func ShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func (c Config) normalize() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = ShouldRetry
	}
	return c
}

// NewExecutor builds a failsafe executor from cfg.
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewExecutor(cfg Config) failsafe.Executor[*http.Response] {
	cfg = cfg.normalize()
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(cfg.ShouldRetry).
		ReturnLastFailure().
		Build()
	return failsafe.With(retry)
}

// Client issues requests through a retry executor and limiter.
type Client struct {
	http    *http.Client
	exec    failsafe.Executor[*http.Response]
	limiter *rate.Limiter
}

// New wraps httpClient. A nil limiter means no client-side rate limit.
func New(httpClient *http.Client, cfg Config, limiter *rate.Limiter) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient, exec: NewExecutor(cfg), limiter: limiter}
}

// Do builds a fresh request per attempt so bodies can be replayed. Once
// retries are exhausted the last response is returned as is, so callers still
// see the final status code. Bodies of superseded responses are closed; the
// caller closes the returned one.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var last *http.Response
	resp, err := c.exec.WithContext(ctx).Get(func() (*http.Response, error) {
		if last != nil {
			last.Body.Close()
			last = nil
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		r, err := c.http.Do(req)
		last = r
		return r, err
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return resp, nil
}
