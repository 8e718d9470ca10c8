package httpretry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Config configures retry behavior for idempotent upstream calls.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultConfig retries three times between 500ms and 8s.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
	}
}

// ErrBuildRequest marks failures to construct a request; they are never retried.
var ErrBuildRequest = errors.New("build request")

// ShouldRetry retries on network errors, 5xx and 429.
func ShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, ErrBuildRequest)
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

// Executor runs HTTP attempts through a failsafe retry policy.
type Executor struct {
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

// New builds an executor around client.
//
//nolint:bodyclose // *http.Response is a type parameter here
func New(client *http.Client, cfg Config) *Executor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}

	policy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(ShouldRetry).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithJitterFactor(0.1).
		WithMaxRetries(cfg.MaxRetries).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			if resp := e.LastResult(); resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}).
		Build()

	return &Executor{client: client, executor: failsafe.With(policy)}
}

// Do builds a fresh request per attempt and returns the final response.
// On error any response body is already closed.
func (e *Executor) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	resp, err := e.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBuildRequest, err)
		}
		return e.client.Do(req)
	})
	if err != nil && resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return resp, err
}
