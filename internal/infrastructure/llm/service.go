package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ImpactWatcher/internal/config"
	"ImpactWatcher/internal/infrastructure/httpretry"
	"ImpactWatcher/internal/ports"
)

const maxServiceBody = 64 << 10

// ServiceClient talks to an external classification service over plain HTTP.
type ServiceClient struct {
	endpoint string
	apiKey   string
	http     *httpretry.Executor
}

var _ ports.ClassifierBackend = (*ServiceClient)(nil)

// NewServiceClient creates a reusable HTTP client.
func NewServiceClient(cfg config.ServiceConfig, retry httpretry.Config) *ServiceClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ServiceClient{
		endpoint: cfg.URL,
		apiKey:   cfg.APIKey,
		http:     httpretry.New(&http.Client{Timeout: timeout}, retry),
	}
}

// Complete posts the instruction and text to /classify and returns the raw response body.
func (c *ServiceClient) Complete(ctx context.Context, instruction, text string) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("classification service url is empty")
	}

	body, err := json.Marshal(map[string]string{
		"instruction": instruction,
		"text":        text,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/classify", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxServiceBody))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(raw), nil
}
