package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/infrastructure/memory"
	"ImpactWatcher/internal/logging"
)

type fakeScheduler struct {
	active bool
	wait   time.Duration
}

func (s fakeScheduler) IsActive(time.Time) bool { return s.active }
func (s fakeScheduler) NextWait(time.Time) time.Duration { return s.wait }

type passFunc func(ctx context.Context, cursor domain.Cursor) domain.Cursor

func (f passFunc) RunPass(ctx context.Context, cursor domain.Cursor) domain.Cursor {
	return f(ctx, cursor)
}

// stopAfter returns a sleep func that records waits and cancels ctx on the n-th call.
func stopAfter(n int, cancel context.CancelFunc) (func(context.Context, time.Duration) error, *[]time.Duration) {
	var (
		mu    sync.Mutex
		waits []time.Duration
	)
	return func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		waits = append(waits, d)
		count := len(waits)
		mu.Unlock()
		if count >= n {
			cancel()
			return ctx.Err()
		}
		return nil
	}, &waits
}

func TestRunLoopActiveRunsPassesAndFlushes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleep, waits := stopAfter(3, cancel)
	store := memory.NewCursorStore("")
	var seen []domain.Cursor
	ids := []string{"100", "100", "105"}

	loop, err := NewRunLoop(RunLoopDeps{
		Scheduler: fakeScheduler{active: true, wait: 5 * time.Minute},
		Pipeline: passFunc(func(_ context.Context, cursor domain.Cursor) domain.Cursor {
			seen = append(seen, cursor)
			return cursor.Advance(ids[len(seen)-1])
		}),
		Store:  store,
		Logger: logging.Discard(),
		Sleep:  sleep,
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run(ctx, ""))
	require.Equal(t, []domain.Cursor{"", "100", "100"}, seen)
	require.Equal(t, []time.Duration{5 * time.Minute, 5 * time.Minute, 5 * time.Minute}, *waits)
	require.Equal(t, domain.Cursor("105"), store.Value())
}

func TestRunLoopInactiveNeverRunsPipeline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleep, waits := stopAfter(2, cancel)
	store := memory.NewCursorStore("")
	loop, err := NewRunLoop(RunLoopDeps{
		Scheduler: fakeScheduler{active: false, wait: 7 * time.Hour},
		Pipeline: passFunc(func(context.Context, domain.Cursor) domain.Cursor {
			t.Fatalf("pipeline must not run outside the window")
			return ""
		}),
		Store:  store,
		Logger: logging.Discard(),
		Sleep:  sleep,
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run(ctx, "42"))
	require.Equal(t, []time.Duration{7 * time.Hour, 7 * time.Hour}, *waits)
	// the starting cursor is flushed on shutdown
	require.Equal(t, []domain.Cursor{"42"}, store.Saves())
}

func TestRunLoopPassIsNotCancelledByShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var passErr error
	store := memory.NewCursorStore("")
	loop, err := NewRunLoop(RunLoopDeps{
		Scheduler: fakeScheduler{active: true, wait: time.Minute},
		Pipeline: passFunc(func(passCtx context.Context, cursor domain.Cursor) domain.Cursor {
			cancel()
			passErr = passCtx.Err()
			return cursor.Advance("900")
		}),
		Store:  store,
		Logger: logging.Discard(),
		Sleep:  Sleep,
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run(ctx, "800"))
	require.NoError(t, passErr)
	require.Equal(t, domain.Cursor("900"), store.Value())
}

func TestRunLoopPanicStopsWithError(t *testing.T) {
	t.Parallel()

	store := memory.NewCursorStore("")
	calls := 0
	loop, err := NewRunLoop(RunLoopDeps{
		Scheduler: fakeScheduler{active: true, wait: time.Millisecond},
		Pipeline: passFunc(func(_ context.Context, cursor domain.Cursor) domain.Cursor {
			calls++
			if calls == 2 {
				panic("nil map write")
			}
			return cursor.Advance("300")
		}),
		Store:  store,
		Logger: logging.Discard(),
		Sleep:  func(context.Context, time.Duration) error { return nil },
	})
	require.NoError(t, err)

	err = loop.Run(context.Background(), "200")
	require.ErrorContains(t, err, "nil map write")
	require.Equal(t, 2, calls)
	require.Equal(t, domain.Cursor("300"), store.Value())
}

func TestRunLoopNeverRegressesCursor(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleep, _ := stopAfter(1, cancel)
	store := memory.NewCursorStore("")
	loop, err := NewRunLoop(RunLoopDeps{
		Scheduler: fakeScheduler{active: true, wait: time.Second},
		Pipeline: passFunc(func(context.Context, domain.Cursor) domain.Cursor {
			return "100"
		}),
		Store:  store,
		Logger: logging.Discard(),
		Sleep:  sleep,
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run(ctx, "500"))
	require.Equal(t, domain.Cursor("500"), store.Value())
}

func TestRunLoopEmptyCursorIsNotFlushed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := memory.NewCursorStore("")
	loop, err := NewRunLoop(RunLoopDeps{
		Scheduler: fakeScheduler{active: true, wait: time.Second},
		Pipeline:  passFunc(func(_ context.Context, c domain.Cursor) domain.Cursor { return c }),
		Store:     store,
	})
	require.NoError(t, err)

	require.NoError(t, loop.Run(ctx, ""))
	require.Empty(t, store.Saves())
}

func TestSleepHonoursContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestNewRunLoopRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewRunLoop(RunLoopDeps{})
	require.Error(t, err)
}
