// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/api"
	rediscache "github.com/JakeFAU/leadwatch/internal/cache/redis"
	"github.com/JakeFAU/leadwatch/internal/clock/system"
	"github.com/JakeFAU/leadwatch/internal/config"
	"github.com/JakeFAU/leadwatch/internal/dispatcher"
	headlessfetcher "github.com/JakeFAU/leadwatch/internal/fetcher/headless"
	"github.com/JakeFAU/leadwatch/internal/id/uuid"
	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/logging"
	"github.com/JakeFAU/leadwatch/internal/monitor"
	"github.com/JakeFAU/leadwatch/internal/progress"
	gcppublisher "github.com/JakeFAU/leadwatch/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/leadwatch/internal/queue/memory"
	"github.com/JakeFAU/leadwatch/internal/schedule"
	"github.com/JakeFAU/leadwatch/internal/scheduler"
	"github.com/JakeFAU/leadwatch/internal/seed"
	memoryStorage "github.com/JakeFAU/leadwatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/leadwatch/internal/storage/postgres"
	"github.com/JakeFAU/leadwatch/internal/store"
	"github.com/JakeFAU/leadwatch/internal/strategy"
	"github.com/JakeFAU/leadwatch/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  lead.Clock
	ids    lead.IDGenerator

	pg           *pgstore.Store
	companies    lead.CompanyStore
	strategyRepo lead.StrategyRepository
	leads        lead.LeadStore
	runs         lead.RunStore
	progressRepo store.ProgressRepository
	strategies   *strategy.Store
	ready        map[string]api.Pinger

	redis         *rediscache.Cache
	storage       *storage.Client
	pubsubClient  *pubsub.Client
	publisher     *gcppublisher.Publisher
	headless      *headlessfetcher.Fetcher
	progressHub   *progress.Hub
	queue         *queueMemory.Queue
	dispatch      *dispatcher.Dispatcher
	tracker       *monitor.Tracker
	cycle         *monitor.Cycle
	scheduler     *scheduler.Scheduler
	apiServer     *api.Server
	telemetryInit bool
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	type sanitizedConfig struct {
		ServerPort int    `json:"server_port"`
		Backend    string `json:"backend"`
		Blob       string `json:"blob"`
		Workers    int    `json:"workers"`
		Cron       string `json:"cron"`
	}
	logger.Info("creating application", zap.Any("config", sanitizedConfig{
		ServerPort: cfg.Server.Port,
		Backend:    cfg.Storage.Backend,
		Blob:       cfg.Storage.Blob,
		Workers:    cfg.Monitor.Workers,
		Cron:       cfg.Monitor.Cron,
	}))
	return &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
		ready:  make(map[string]api.Pinger),
	}, nil
}

// NewLogger builds the process logger from cfg and installs it globally.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		Service:     cfg.Application.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// BuildStores creates an App with only the repositories and the strategy
// store. It backs the seed and due commands.
func BuildStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := setupRepositories(ctx, app); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	return app, nil
}

// Build creates every dependency needed to serve the API and run scans.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := BuildStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := app.buildMonitor(ctx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		app.closeInfrastructure(closeCtx)
		return nil, err
	}
	return app, nil
}

func (a *App) buildMonitor(ctx context.Context) error {
	if _, _, err := telemetry.InitTelemetry(ctx, telemetry.Settings{
		ServiceName:   a.cfg.Application.Name,
		Version:       a.cfg.Application.Version,
		ProjectID:     a.cfg.Application.ProjectID,
		ProjectNumber: a.cfg.Application.ProjectNumber,
		Region:        a.cfg.Application.Region,
		SampleRatio:   a.cfg.Application.TraceSample,
	}); err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	a.telemetryInit = true

	a.logger.Info("building application dependencies")
	if err := a.strategies.Refresh(ctx); err != nil {
		return fmt.Errorf("initial strategy load failed: %w", err)
	}

	cache, err := setupCache(ctx, a)
	if err != nil {
		return err
	}
	blobs, err := setupBlobStore(ctx, a)
	if err != nil {
		return err
	}
	publisher, err := setupPublisher(ctx, a)
	if err != nil {
		return err
	}
	emitter, err := setupProgress(ctx, a)
	if err != nil {
		return err
	}
	pipeline, err := setupPipeline(ctx, a, cache, blobs, publisher, emitter)
	if err != nil {
		return err
	}

	a.queue = queueMemory.NewQueue(a.cfg.Monitor.QueueDepth)
	a.tracker = monitor.NewTracker(a.runs, emitter, a.clock, a.logger)
	a.dispatch = setupDispatcher(a, pipeline)
	a.cycle, err = monitor.NewCycle(monitor.CycleDeps{
		Strategies: a.strategies,
		Companies:  a.companies,
		Queue:      a.dispatch,
		Tracker:    a.tracker,
		IDs:        a.ids,
		Clock:      a.clock,
		Logger:     a.logger,
	})
	if err != nil {
		return fmt.Errorf("cycle init failed: %w", err)
	}
	a.scheduler, err = scheduler.New(a.cycle, a.tracker, scheduler.Config{
		Spec:     a.cfg.Monitor.Cron,
		MaxTasks: a.cfg.Monitor.MaxTasks,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}

	a.apiServer, err = api.NewServer(api.Deps{
		Scanner:    a.cycle,
		Runs:       a.runs,
		Progress:   a.progressRepo,
		Leads:      a.leads,
		Companies:  a.companies,
		Strategies: a.strategies,
		Clock:      a.clock,
		Ready:      a.ready,
		Logger:     a.logger,
	}, *a.cfg)
	if err != nil {
		return fmt.Errorf("api init failed: %w", err)
	}
	return nil
}

// Run serves the API, runs the workers and the cron scheduler, and blocks
// until the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := a.startDispatcher(ctx)
	a.strategies.StartAutoRefresh(ctx, a.cfg.Strategy.RefreshInterval)
	if a.cfg.Monitor.SchedulerEnabled {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		a.logger.Info("scheduler started",
			zap.String("cron", a.cfg.Monitor.Cron),
			zap.Time("next", a.scheduler.Next(a.clock.Now())),
		)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if a.cfg.Monitor.SchedulerEnabled {
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			a.logger.Warn("scheduler stop failed", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not stop before the shutdown deadline")
	}
	return a.Close(shutdownCtx)
}

// ScanOnce runs one synchronous cycle with its own worker pool and returns the
// finished run.
func (a *App) ScanOnce(ctx context.Context, opts schedule.Options) (lead.ScanRun, error) {
	workerCtx, cancel := context.WithCancel(ctx)
	done := a.startDispatcher(workerCtx)
	defer func() {
		cancel()
		<-done
	}()
	run, err := a.cycle.RunSync(ctx, monitor.StartOptions{Trigger: monitor.TriggerCLI, Options: opts})
	if err != nil {
		return run, fmt.Errorf("scan cycle: %w", err)
	}
	return run, nil
}

// Seed validates and writes a seed document.
func (a *App) Seed(ctx context.Context, doc seed.Document) (seed.Result, error) {
	res, err := seed.Apply(ctx, doc, seed.Targets{Strategies: a.strategyRepo, Companies: a.companies}, a.logger)
	if err != nil {
		return res, fmt.Errorf("apply seed: %w", err)
	}
	return res, nil
}

// Due computes the scan queue as of at without scanning.
func (a *App) Due(ctx context.Context, at time.Time, opts schedule.Options) ([]lead.ScanTask, error) {
	return monitor.Due(ctx, a.strategies, a.companies, at, opts, a.logger)
}

// Strategies exposes the merged strategy store.
func (a *App) Strategies() *strategy.Store {
	return a.strategies
}

// Handler returns the API handler. It is nil for store-only apps.
func (a *App) Handler() http.Handler {
	if a.apiServer == nil {
		return nil
	}
	return a.apiServer.Handler()
}

func (a *App) startDispatcher(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(ctx)
	}()
	return done
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		if dropped := a.progressHub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped", zap.Int64("count", dropped))
		}
		a.progressHub = nil
	}
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	if a.publisher != nil {
		a.publisher.Close()
		a.publisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
		a.redis = nil
	}
	if a.pg != nil {
		a.pg.Close()
		a.pg = nil
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.telemetryInit {
		if err := telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}

func setupRepositories(ctx context.Context, app *App) error {
	switch app.cfg.Storage.Backend {
	case config.BackendPostgres:
		t := app.cfg.Database.Tables
		pg, err := pgstore.Open(ctx, pgstore.Config{
			DSN:             app.cfg.Database.DSN,
			MaxConns:        app.cfg.Database.MaxConns,
			MinConns:        app.cfg.Database.MinConns,
			MaxConnLifetime: app.cfg.Database.MaxConnLifetime,
			Tables: pgstore.Tables{
				Companies:   t.Companies,
				Strategies:  t.Strategies,
				Leads:       t.Leads,
				Runs:        t.Runs,
				ClientStats: t.ClientStats,
			},
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		app.pg = pg
		if app.cfg.Database.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
			app.logger.Info("postgres schema migrated")
		}
		app.companies, app.strategyRepo, app.leads, app.runs, app.progressRepo = pg, pg, pg, pg, pg
		app.ready["postgres"] = pg
		app.logger.Info("using postgres repositories")
	default:
		mem := memoryStorage.NewStore()
		app.companies, app.strategyRepo, app.leads, app.runs, app.progressRepo = mem, mem, mem, mem, mem
		app.logger.Info("using in-memory repositories")
	}
	app.strategies = strategy.NewStore(app.strategyRepo, app.cfg.Strategy.Defaults, app.logger)
	return nil
}
