package logsink

import (
	"context"
	"log/slog"
	"strings"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/ports"
)

// Sender writes alerts to the process log instead of an external channel.
type Sender struct {
	logger *slog.Logger
}

var _ ports.AlertSender = (*Sender)(nil)

// NewSender wraps logger.
func NewSender(logger *slog.Logger) *Sender {
	return &Sender{logger: logger}
}

// Destination names the channel for the startup banner.
func (s *Sender) Destination() string {
	return "process log"
}

// Send never fails.
func (s *Sender) Send(_ context.Context, alert domain.Alert) error {
	s.logger.Warn(alert.Title,
		"post_id", alert.PostID,
		"priority", alert.Priority,
		"tags", strings.Join(alert.Tags, ","),
		"body", alert.Body,
	)
	return nil
}
