package domain

import (
	"fmt"
	"time"
)

const (
	DefaultStartHour = 7
	DefaultEndHour   = 23
	DefaultInterval  = 300 * time.Second
)

// PollingWindow is the daily local-time range in which passes may run.
type PollingWindow struct {
	StartHour int
	EndHour   int
	Interval  time.Duration
	Location  *time.Location
}

// ValidateBounds checks 0 <= start < end <= 24.
func (w PollingWindow) ValidateBounds() error {
	if w.StartHour < 0 || w.StartHour > 23 {
		return fmt.Errorf("start hour %d outside [0,23]", w.StartHour)
	}
	if w.EndHour < 1 || w.EndHour > 24 {
		return fmt.Errorf("end hour %d outside [1,24]", w.EndHour)
	}
	if w.StartHour >= w.EndHour {
		return fmt.Errorf("start hour %d must be before end hour %d", w.StartHour, w.EndHour)
	}
	return nil
}

// Loc returns the configured location, UTC when unset.
func (w PollingWindow) Loc() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// String renders the window as "07:00-23:00 America/New_York".
func (w PollingWindow) String() string {
	return fmt.Sprintf("%02d:00-%02d:00 %s", w.StartHour, w.EndHour, w.Loc())
}
