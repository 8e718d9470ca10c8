package ntfy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ImpactWatcher/internal/config"
	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/ports"
)

// Notifier publishes alerts to an ntfy topic. Delivery is attempted once.
type Notifier struct {
	server string
	topic  string
	token  string
	client *http.Client
}

var _ ports.AlertSender = (*Notifier)(nil)

// NewNotifier registers server and topic.
func NewNotifier(cfg config.NtfyConfig) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		server: strings.TrimRight(cfg.Server, "/"),
		topic:  cfg.Topic,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}
}

// Destination renders server/topic for the startup banner.
func (n *Notifier) Destination() string {
	return n.server + "/" + n.topic
}

// Send posts the alert body; title and tags travel as query parameters.
func (n *Notifier) Send(ctx context.Context, alert domain.Alert) error {
	if n.server == "" || n.topic == "" {
		return fmt.Errorf("ntfy notifier misconfigured")
	}

	endpoint, err := url.Parse(n.server + "/" + url.PathEscape(n.topic))
	if err != nil {
		return fmt.Errorf("ntfy url: %w", err)
	}
	query := endpoint.Query()
	if alert.Title != "" {
		query.Set("title", alert.Title)
	}
	if len(alert.Tags) > 0 {
		query.Set("tags", strings.Join(alert.Tags, ","))
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(alert.Body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if alert.Priority != "" {
		req.Header.Set("Priority", alert.Priority)
	}
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return nil
}
