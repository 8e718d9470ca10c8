package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/logging"
	"ImpactWatcher/internal/monitoring"
	"ImpactWatcher/internal/ports"
)

const flushTimeout = 10 * time.Second

// PassRunner runs a single polling pass.
type PassRunner interface {
	RunPass(ctx context.Context, cursor domain.Cursor) domain.Cursor
}

// RunLoopDeps wires the scheduler driver with the pipeline use case.
type RunLoopDeps struct {
	Scheduler ports.Scheduler
	Pipeline  PassRunner
	Store     ports.CursorStore
	Metrics   *monitoring.Collector
	Logger    *slog.Logger
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// RunLoop alternates between window checks, passes and waits until shutdown.
type RunLoop struct {
	scheduler ports.Scheduler
	pipeline  PassRunner
	store     ports.CursorStore
	metrics   *monitoring.Collector
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRunLoop validates dependencies.
func NewRunLoop(deps RunLoopDeps) (*RunLoop, error) {
	if deps.Scheduler == nil || deps.Pipeline == nil || deps.Store == nil {
		return nil, errors.New("run loop: scheduler, pipeline and store are required")
	}
	r := &RunLoop{
		scheduler: deps.Scheduler,
		pipeline:  deps.Pipeline,
		store:     deps.Store,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		sleep:     deps.Sleep,
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.sleep == nil {
		r.sleep = Sleep
	}
	return r, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run loops until ctx is cancelled (nil error) or a pass panics (non-nil error).
// The current cursor is flushed to the store on every exit path.
func (r *RunLoop) Run(ctx context.Context, start domain.Cursor) error {
	cursor := start
	defer func() {
		r.flush(cursor)
	}()

	for {
		if ctx.Err() != nil {
			r.logger.Info("shutdown requested", "cursor", cursor.String())
			return nil
		}

		if r.scheduler.IsActive(r.now()) {
			next, passErr := r.runPass(ctx, cursor)
			if passErr != nil {
				logging.Critical(r.logger, "unrecoverable error, stopping", "error", passErr, "cursor", cursor.String())
				return passErr
			}
			cursor = cursor.Advance(string(next))
		}

		now := r.now()
		wait := r.scheduler.NextWait(now)
		if !r.scheduler.IsActive(now) {
			r.logger.Info("outside polling window", "resume_at", now.Add(wait).Format(time.RFC3339), "wait", wait)
		} else {
			r.logger.Debug("waiting for next pass", "wait", wait)
		}

		if err := r.sleep(ctx, wait); err != nil {
			r.logger.Info("shutdown requested", "cursor", cursor.String())
			return nil
		}
	}
}

// runPass shields the pipeline from interrupt cancellation and converts panics into errors.
func (r *RunLoop) runPass(ctx context.Context, cursor domain.Cursor) (next domain.Cursor, err error) {
	started := r.now()
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.PassFinished(monitoring.PassPanic, started, r.now())
			r.logger.Error("pass panicked", "panic", rec, "stack", string(debug.Stack()))
			next, err = cursor, fmt.Errorf("pass panicked: %v", rec)
		}
	}()
	return r.pipeline.RunPass(context.WithoutCancel(ctx), cursor), nil
}

func (r *RunLoop) flush(cursor domain.Cursor) {
	if cursor.IsZero() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	err := r.store.Save(ctx, cursor)
	r.metrics.CursorWrite(err)
	if err != nil {
		r.logger.Error("flush cursor failed", "cursor", cursor.String(), "error", err)
		return
	}
	r.logger.Info("cursor flushed", "cursor", cursor.String())
}
