package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/ports"
)

const minWait = time.Second

// WindowScheduler gates passes to [start, end) local hours and paces them by a fixed interval.
type WindowScheduler struct {
	window domain.PollingWindow
	start  cron.Schedule
}

var _ ports.Scheduler = (*WindowScheduler)(nil)

// NewWindowScheduler builds a scheduler for a validated window.
func NewWindowScheduler(window domain.PollingWindow) (*WindowScheduler, error) {
	if err := window.ValidateBounds(); err != nil {
		return nil, fmt.Errorf("polling window: %w", err)
	}
	if window.Interval <= 0 {
		return nil, fmt.Errorf("polling window: interval must be positive, got %s", window.Interval)
	}

	parsed, err := cron.ParseStandard(fmt.Sprintf("0 %d * * *", window.StartHour))
	if err != nil {
		return nil, fmt.Errorf("window start schedule: %w", err)
	}
	spec, ok := parsed.(*cron.SpecSchedule)
	if !ok {
		return nil, fmt.Errorf("window start schedule: unexpected type %T", parsed)
	}
	spec.Location = window.Loc()

	return &WindowScheduler{window: window, start: spec}, nil
}

// Window exposes the configured window.
func (w *WindowScheduler) Window() domain.PollingWindow {
	return w.window
}

// IsActive compares the local hour of now against the window bounds.
func (w *WindowScheduler) IsActive(now time.Time) bool {
	hour := now.In(w.window.Loc()).Hour()
	return w.window.StartHour <= hour && hour < w.window.EndHour
}

// NextWait returns the interval inside the window, otherwise the time left until the next window start.
func (w *WindowScheduler) NextWait(now time.Time) time.Duration {
	if w.IsActive(now) {
		return w.window.Interval
	}
	wait := w.NextStart(now).Sub(now)
	if wait < minWait {
		return minWait
	}
	return wait
}

// NextStart is the first start_hour:00:00 strictly after now, in the window location.
func (w *WindowScheduler) NextStart(now time.Time) time.Time {
	return w.start.Next(now).In(w.window.Loc())
}
