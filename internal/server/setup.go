package server

import (
	"context"
	"fmt"
	"net/http"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadwatch/internal/budget"
	memorycache "github.com/JakeFAU/leadwatch/internal/cache/memory"
	rediscache "github.com/JakeFAU/leadwatch/internal/cache/redis"
	"github.com/JakeFAU/leadwatch/internal/classify"
	"github.com/JakeFAU/leadwatch/internal/config"
	"github.com/JakeFAU/leadwatch/internal/dispatcher"
	"github.com/JakeFAU/leadwatch/internal/draft"
	"github.com/JakeFAU/leadwatch/internal/enrich"
	"github.com/JakeFAU/leadwatch/internal/fetcher"
	collyfetcher "github.com/JakeFAU/leadwatch/internal/fetcher/colly"
	"github.com/JakeFAU/leadwatch/internal/fetcher/detector"
	headlessfetcher "github.com/JakeFAU/leadwatch/internal/fetcher/headless"
	"github.com/JakeFAU/leadwatch/internal/hash/sha256"
	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/llm"
	"github.com/JakeFAU/leadwatch/internal/monitor"
	"github.com/JakeFAU/leadwatch/internal/policy/ratelimit"
	"github.com/JakeFAU/leadwatch/internal/progress"
	progresssinks "github.com/JakeFAU/leadwatch/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/leadwatch/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/leadwatch/internal/publisher/pubsub"
	"github.com/JakeFAU/leadwatch/internal/resilience"
	"github.com/JakeFAU/leadwatch/internal/scout"
	"github.com/JakeFAU/leadwatch/internal/search"
	gcsstorage "github.com/JakeFAU/leadwatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/leadwatch/internal/storage/local"
	memoryStorage "github.com/JakeFAU/leadwatch/internal/storage/memory"
	"github.com/JakeFAU/leadwatch/internal/worker"
)

// seenQuota backs both signal dedupe and the daily budgets.
type seenQuota interface {
	lead.SeenCache
	lead.QuotaCounter
}

func setupCache(ctx context.Context, app *App) (seenQuota, error) {
	if !app.cfg.Redis.Enabled {
		app.logger.Info("using in-memory seen cache and budget counters")
		return memorycache.New(app.clock), nil
	}
	cache, err := rediscache.New(ctx, rediscache.Options{
		Addr:      app.cfg.Redis.Addr,
		Username:  app.cfg.Redis.Username,
		Password:  app.cfg.Redis.Password,
		DB:        app.cfg.Redis.DB,
		KeyPrefix: app.cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache init failed: %w", err)
	}
	app.redis = cache
	app.ready["redis"] = cache
	app.logger.Info("using redis seen cache and budget counters", zap.String("addr", app.cfg.Redis.Addr))
	return cache, nil
}

func setupBlobStore(ctx context.Context, app *App) (lead.BlobStore, error) {
	switch app.cfg.Storage.Blob {
	case config.BlobGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: app.cfg.Storage.GCSBucket,
			Prefix: app.cfg.Storage.GCSPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.ready["gcs"] = blobs
		app.logger.Info("using GCS snapshot store", zap.String("bucket", app.cfg.Storage.GCSBucket))
		return blobs, nil
	case config.BlobLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local snapshot store", zap.String("path", app.cfg.Storage.LocalDir))
		return blobs, nil
	case config.BlobNone:
		app.logger.Info("evidence snapshots disabled")
		return nil, nil
	default:
		app.logger.Info("using in-memory snapshot store")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (lead.Publisher, error) {
	if !app.cfg.PubSub.Enabled {
		app.logger.Warn("Pub/Sub disabled, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	pub, err := gcppublisher.New(client, gcppublisher.Config{
		ProjectID:    app.cfg.PubSub.ProjectID,
		DefaultTopic: app.cfg.PubSub.TopicName,
		Topics:       app.cfg.PubSub.Topics,
	}, app.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.publisher = pub
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return pub, nil
}

func setupProgress(ctx context.Context, app *App) (progress.Emitter, error) {
	pc := app.cfg.Progress
	var sinkList []progress.Sink
	if pc.StoreSink && app.progressRepo != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(app.progressRepo, app.logger.Named("progress_store")))
		app.logger.Debug("added progress store sink")
	}
	if pc.LogSink {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("added progress log sink")
	}
	if pc.MetricsSink {
		sink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, fmt.Errorf("progress metrics sink init failed: %w", err)
		}
		sinkList = append(sinkList, sink)
		app.logger.Debug("added progress metrics sink")
	}
	if len(sinkList) == 0 {
		app.logger.Info("progress tracking disabled, no sinks configured")
		return nil, nil
	}
	hubCfg := progress.Config{
		BufferSize:     pc.BufferSize,
		MaxBatchEvents: pc.MaxBatchEvents,
		MaxBatchWait:   pc.MaxBatchWait,
		SinkTimeout:    pc.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.progressHub, nil
}

func setupPipeline(
	ctx context.Context,
	app *App,
	cache seenQuota,
	blobs lead.BlobStore,
	publisher lead.Publisher,
	emitter progress.Emitter,
) (*monitor.Pipeline, error) {
	cfg := app.cfg
	logger := app.logger
	hasher := sha256.New()

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.DefaultRPS,
		DefaultBurst: cfg.RateLimit.DefaultBurst,
		PerHostRPS:   cfg.RateLimit.PerHostRPS,
		Overrides:    cfg.RateLimit.Overrides,
	})
	guards := resilience.NewRegistry(resilience.Config{
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
		},
		Retry: resilience.RetryConfig{
			MaxRetries:      cfg.Retry.MaxRetries,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			Multiplier:      cfg.Retry.Multiplier,
		},
	}, nil, logger)
	caller := resilience.NewCaller(guards, limiter)
	budgets := budget.New(cache, app.clock, logger)

	transport := otelhttp.NewTransport(http.DefaultTransport)
	searchHTTP := &http.Client{Timeout: cfg.Search.Timeout, Transport: transport}
	enrichHTTP := &http.Client{Timeout: cfg.Enrichment.Timeout, Transport: transport}

	static := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.HTTP.Timeout,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
	}, limiter)
	logger.Info("using colly page fetcher", zap.String("user_agent", cfg.HTTP.UserAgent))
	var (
		rendered lead.PageFetcher
		promoter fetcher.Promoter
	)
	if cfg.Headless.Enabled {
		h, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.Headless.NavTimeout,
			ScrollPasses:      cfg.Headless.ScrollPasses,
			SettleDelay:       cfg.Headless.SettleDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		app.headless = h
		rendered = h
		promoter = detector.NewHeuristic(cfg.Headless.PromoteBelow)
		logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}
	pages := fetcher.NewRouter(static, rendered, promoter)

	searchClient := search.New(search.Config{
		Endpoint: cfg.Search.Endpoint,
		APIKey:   cfg.Search.APIKey,
		Country:  cfg.Search.Country,
		Language: cfg.Search.Language,
		Timeout:  cfg.Search.Timeout,
	}, searchHTTP)
	scouts := scout.NewRegistry(scout.Config{
		MaxResults:   cfg.Search.MaxResults,
		ResultsPerQ:  cfg.Search.ResultsPerQuery,
		Recency:      cfg.Search.Recency,
		FetchContent: cfg.Search.FetchContent,
		Headless:     cfg.Headless.Enabled,
		ContentRunes: cfg.Search.ContentRunes,
	}, scout.Deps{
		Search:  searchClient,
		Fetcher: pages,
		Caller:  caller,
		Budget:  budgets,
		Hasher:  hasher,
		IDs:     app.ids,
		Clock:   app.clock,
		Logger:  logger,
	})
	logger.Info("scouts registered", zap.Strings("scouts", scouts.Names()))

	gen, err := llm.NewGemini(ctx, llm.Config{APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model})
	if err != nil {
		return nil, fmt.Errorf("llm init failed: %w", err)
	}
	deps := monitor.Deps{
		Strategies: app.strategies,
		Scouts:     scouts,
		Screener:   classify.NewPrefilter(app.clock),
		Classifier: classify.NewLLMClassifier(gen, caller, budgets, classify.Config{
			Temperature: cfg.LLM.ClassifyTemperature,
			MaxRunes:    cfg.LLM.MaxRunes,
		}, logger),
		Leads:     app.leads,
		Companies: app.companies,
		Seen:      cache,
		Blobs:     blobs,
		Publisher: publisher,
		Hasher:    hasher,
		IDs:       app.ids,
		Clock:     app.clock,
		Progress:  emitter,
		Logger:    logger,
	}
	if cfg.Monitor.Draft {
		deps.Drafter = draft.New(gen, caller, budgets, draft.Config{
			Temperature: cfg.LLM.DraftTemperature,
			MaxWords:    cfg.LLM.MaxWords,
		}, logger)
	}
	if cfg.Monitor.Enrich {
		if contacts := setupEnrichment(cfg, enrichHTTP, caller, budgets, logger); contacts != nil {
			deps.Contacts = contacts
		}
	}

	pipeline, err := monitor.NewPipeline(deps, monitor.Config{
		ScoutConcurrency: cfg.Monitor.ScoutConcurrency,
		SeenTTL:          cfg.Monitor.SeenTTL,
		HalfLife:         cfg.Scoring.HalfLife,
		MaxAge:           cfg.Scoring.MaxAge,
		Snapshots:        cfg.Monitor.Snapshots && blobs != nil,
		Enrich:           deps.Contacts != nil,
		Draft:            deps.Drafter != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	return pipeline, nil
}

// setupEnrichment returns nil when no people-search provider is configured.
func setupEnrichment(
	cfg *config.Config,
	httpClient *http.Client,
	caller *resilience.Caller,
	budgets *budget.Budget,
	logger *zap.Logger,
) *enrich.Waterfall {
	apollo := cfg.Enrichment.Apollo
	if apollo.APIKey == "" {
		logger.Warn("enrichment enabled but no apollo api key configured")
		return nil
	}
	people := enrich.NewApollo(enrich.ApolloConfig{
		Endpoint: apollo.Endpoint,
		APIKey:   apollo.APIKey,
		Timeout:  cfg.Enrichment.Timeout,
	}, httpClient)
	var emails enrich.EmailFinder
	if amf := cfg.Enrichment.Anymailfinder; amf.APIKey != "" {
		emails = enrich.NewAnymailfinder(enrich.AnymailfinderConfig{
			Endpoint: amf.Endpoint,
			APIKey:   amf.APIKey,
			Timeout:  cfg.Enrichment.Timeout,
		}, httpClient)
	}
	return enrich.NewWaterfall(people, emails, caller, budgets, enrich.Config{
		MaxContacts:  cfg.Strategy.Defaults.MaxContacts,
		TargetTitles: cfg.Strategy.Defaults.TargetTitles,
	}, logger)
}

func setupDispatcher(app *App, pipeline *monitor.Pipeline) *dispatcher.Dispatcher {
	workerCfg := worker.Config{
		TaskTimeout: app.cfg.Monitor.TaskTimeout,
		MaxAttempts: app.cfg.Monitor.MaxAttempts,
	}
	app.logger.Info("worker config",
		zap.Int("workers", app.cfg.Monitor.Workers),
		zap.Int("queue_depth", app.cfg.Monitor.QueueDepth),
		zap.Duration("task_timeout", workerCfg.TaskTimeout),
		zap.Int("max_attempts", workerCfg.MaxAttempts),
	)
	return dispatcher.NewPool(
		app.cfg.Monitor.Workers,
		app.queue,
		pipeline,
		app.tracker,
		workerCfg,
		app.logger,
	)
}
