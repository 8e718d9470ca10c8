package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ImpactWatcher/internal/config"
	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/infrastructure/httpretry"
	"ImpactWatcher/internal/infrastructure/llm"
	"ImpactWatcher/internal/infrastructure/logsink"
	"ImpactWatcher/internal/infrastructure/ntfy"
	"ImpactWatcher/internal/infrastructure/scheduler"
	"ImpactWatcher/internal/infrastructure/storage"
	"ImpactWatcher/internal/infrastructure/telegram"
	"ImpactWatcher/internal/infrastructure/truthsocial"
	"ImpactWatcher/internal/logging"
	"ImpactWatcher/internal/monitoring"
	"ImpactWatcher/internal/ports"
	"ImpactWatcher/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	store       ports.CursorStore
	loop        *usecase.RunLoop
	metrics     *monitoring.Collector
	server      *monitoring.Server
	destination string
	closers     []io.Closer
}

type destinationer interface {
	Destination() string
}

// New builds every adapter selected by cfg.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	for _, msg := range cfg.Fallbacks {
		baseLogger.Error("configuration fallback", "detail", msg)
	}

	a := &Application{cfg: cfg, logger: baseLogger.With("component", "app")}
	retry := httpretry.DefaultConfig()
	window := cfg.Schedule.Window()

	if cfg.Metrics.Addr != "" {
		a.metrics = monitoring.NewCollector()
		a.server = monitoring.NewServer(cfg.Metrics.Addr, a.metrics, baseLogger.With("component", "monitoring"))
	}

	store, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	backend, err := buildBackend(cfg.Classifier, retry)
	if err != nil {
		a.Close()
		return nil, err
	}
	classifier := llm.NewClassifier(backend, baseLogger.With("component", "classifier"), a.metrics)

	sender, err := buildSender(cfg.Alerts, baseLogger.With("component", "alerts"))
	if err != nil {
		a.Close()
		return nil, err
	}
	if d, ok := sender.(destinationer); ok {
		a.destination = d.Destination()
	}

	source := truthsocial.NewClient(cfg.TruthSocial, retry, baseLogger.With("component", "truthsocial"))

	pipeline, err := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Classifier: classifier,
		Sender:     sender,
		Store:      store,
		Location:   window.Loc(),
		Metrics:    a.metrics,
		Logger:     baseLogger.With("component", "pipeline"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	sched, err := scheduler.NewWindowScheduler(window)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.loop, err = usecase.NewRunLoop(usecase.RunLoopDeps{
		Scheduler: sched,
		Pipeline:  pipeline,
		Store:     store,
		Metrics:   a.metrics,
		Logger:    baseLogger.With("component", "runloop"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) buildStore(ctx context.Context) (ports.CursorStore, error) {
	switch a.cfg.Storage.Driver {
	case config.StorageFile:
		return storage.NewFileCursorStore(a.cfg.Storage.File), nil
	case config.StorageSQLite, config.StoragePG:
		store, err := storage.OpenSQLCursorStore(ctx, a.cfg.Storage.Driver, a.cfg.Storage.DSN, a.cfg.Storage.Key)
		if err != nil {
			return nil, fmt.Errorf("cursor store: %w", err)
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", a.cfg.Storage.Driver)
	}
}

func buildBackend(cfg config.ClassifierConfig, retry httpretry.Config) (ports.ClassifierBackend, error) {
	switch cfg.Backend {
	case config.BackendOpenAI:
		return llm.NewChatGPTClient(cfg.OpenAI, retry), nil
	case config.BackendHTTP:
		return llm.NewServiceClient(cfg.Service, retry), nil
	default:
		return nil, fmt.Errorf("unsupported classifier backend %q", cfg.Backend)
	}
}

func buildSender(cfg config.AlertConfig, logger *slog.Logger) (ports.AlertSender, error) {
	switch cfg.Driver {
	case config.DriverNtfy:
		return ntfy.NewNotifier(cfg.Ntfy), nil
	case config.DriverTelegram:
		return telegram.NewNotifier(cfg.Telegram)
	case config.DriverLog:
		return logsink.NewSender(logger), nil
	default:
		return nil, fmt.Errorf("unsupported alert driver %q", cfg.Driver)
	}
}

// Run loads the cursor, prints the banner and runs the loop (plus the monitoring
// listener when enabled) until ctx is cancelled or the loop fails.
func (a *Application) Run(ctx context.Context) error {
	defer a.Close()

	start, err := a.store.Load(ctx)
	if err != nil {
		a.logger.Error("load cursor failed, starting from scratch", "error", err)
		start = ""
	}
	a.banner(start)

	if a.server == nil {
		return a.loop.Run(ctx, start)
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		if err := a.server.Serve(serverCtx); err != nil {
			a.logger.Error("monitoring listener failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		defer stopServer()
		return a.loop.Run(ctx, start)
	})
	return g.Wait()
}

func (a *Application) banner(start domain.Cursor) {
	window := a.cfg.Schedule.Window()
	a.logger.Info("impact watcher starting",
		"handle", "@"+a.cfg.TruthSocial.Handle,
		"window", window.String(),
		"interval", window.Interval,
		"cursor", start.String(),
		"classifier", a.cfg.Classifier.Backend,
		"alerts", a.cfg.Alerts.Driver,
		"destination", a.destination,
		"storage", a.cfg.Storage.Driver,
		"metrics", a.cfg.Metrics.Addr,
	)
}

// Close releases database handles.
func (a *Application) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
