// Package app builds the long-lived services of the digest service from
// configuration and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/medium-digest/internal/alert"
	"github.com/JakeFAU/medium-digest/internal/api"
	"github.com/JakeFAU/medium-digest/internal/article"
	"github.com/JakeFAU/medium-digest/internal/auth"
	"github.com/JakeFAU/medium-digest/internal/clock/system"
	"github.com/JakeFAU/medium-digest/internal/config"
	"github.com/JakeFAU/medium-digest/internal/delivery"
	"github.com/JakeFAU/medium-digest/internal/digest"
	"github.com/JakeFAU/medium-digest/internal/dispatcher"
	"github.com/JakeFAU/medium-digest/internal/extractor"
	collyfetcher "github.com/JakeFAU/medium-digest/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/medium-digest/internal/fetcher/headless"
	"github.com/JakeFAU/medium-digest/internal/hash/sha256"
	"github.com/JakeFAU/medium-digest/internal/headless/detector"
	"github.com/JakeFAU/medium-digest/internal/id/uuid"
	"github.com/JakeFAU/medium-digest/internal/pipeline"
	"github.com/JakeFAU/medium-digest/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/medium-digest/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/medium-digest/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/medium-digest/internal/queue/memory"
	"github.com/JakeFAU/medium-digest/internal/resilience"
	gcsstorage "github.com/JakeFAU/medium-digest/internal/storage/gcs"
	localstorage "github.com/JakeFAU/medium-digest/internal/storage/local"
	memoryStorage "github.com/JakeFAU/medium-digest/internal/storage/memory"
	pgstore "github.com/JakeFAU/medium-digest/internal/storage/postgres"
	"github.com/JakeFAU/medium-digest/internal/summarize"
	"github.com/JakeFAU/medium-digest/internal/telemetry"
	"github.com/JakeFAU/medium-digest/internal/urlnorm"
	"github.com/JakeFAU/medium-digest/internal/worker"
)

// Version is stamped at build time.
var Version = "dev"

// blobBackend both archives reports and reads submitted payloads back.
type blobBackend interface {
	digest.BlobStore
	digest.PayloadSource
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  digest.Clock

	pipeline  *pipeline.Pipeline
	runs      *memoryStorage.RunStore
	queue     *queueMemory.Queue
	dispatch  *dispatcher.Dispatcher
	apiServer *api.Server

	headless        *headlessfetcher.Fetcher
	pgStore         *pgstore.Store
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
	tracerShutdown  func(context.Context) error
}

// Build creates the application's dependencies. Partially built
// infrastructure is released when a later step fails.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger, clock: system.New()}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.InitTracerProvider(ctx, "medium-digest", Version, nil)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	app.logger.Info("building application dependencies",
		zap.String("version", Version),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
	)
	app.runs = memoryStorage.NewRunStore(app.clock)

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	ledger, outcomes, err := setupDatabase(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	app.pipeline, err = setupPipeline(ctx, app, ledger, outcomes, publisher)
	if err != nil {
		return nil, err
	}

	app.queue = queueMemory.NewQueue(cfg.Server.QueueDepth)
	app.dispatch = setupDispatcher(app, blobStore, publisher)

	checks := map[string]api.ReadyCheck{}
	if app.pgStore != nil {
		checks["postgres"] = app.pgStore.Ping
	}
	app.apiServer = api.NewServer(app.runs, app.dispatch, uuid.New(), app.clock, cfg, checks, logger.Named("api"))
	return app, nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunOnce processes a single payload synchronously, bypassing the queue.
func (a *App) RunOnce(ctx context.Context, payload digest.RawPayload) (digest.RunReport, error) {
	report, err := a.pipeline.Run(ctx, payload)
	if err != nil {
		return report, fmt.Errorf("run digest: %w", err)
	}
	return report, nil
}

// Run serves the API and drains the run queue until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Server.Workers))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	<-dispatchDone

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure(_ context.Context) {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func setupStorage(ctx context.Context, app *App) (blobBackend, error) {
	cfg := app.cfg.Storage
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS storage backend", zap.String("bucket", cfg.GCSBucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local storage backend", zap.String("path", cfg.LocalDir))
		return store, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

// setupDatabase returns the delivery ledger and outcome store. Without a DSN
// both stay in memory; a disabled ledger is returned as nil.
func setupDatabase(ctx context.Context, app *App) (digest.DeliveryLedger, digest.OutcomeStore, error) {
	cfg := app.cfg.DB
	if cfg.DSN == "" {
		app.logger.Warn("no database DSN configured, ledger and outcomes are kept in memory")
		var ledger digest.DeliveryLedger
		if app.cfg.Pipeline.Ledger {
			ledger = memoryStorage.NewLedger()
		}
		return ledger, app.runs, nil
	}

	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:             cfg.DSN,
		LedgerTable:     cfg.LedgerTable,
		OutcomeTable:    cfg.OutcomeTable,
		MaxConns:        cfg.MaxConns,
		MinConns:        cfg.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres store init failed: %w", err)
	}
	app.pgStore = store
	if cfg.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
		app.logger.Info("postgres schema ensured")
	}
	var ledger digest.DeliveryLedger
	if app.cfg.Pipeline.Ledger {
		ledger = store
	}
	return ledger, store, nil
}

func setupPublisher(ctx context.Context, app *App) (digest.Publisher, error) {
	if app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.pubsubPublisher = gcppublisher.New(client)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("outcome_topic", app.cfg.Pipeline.OutcomeTopic),
		zap.String("run_topic", app.cfg.Pipeline.RunTopic),
	)
	return app.pubsubPublisher, nil
}

func setupPipeline(
	ctx context.Context,
	app *App,
	ledger digest.DeliveryLedger,
	outcomes digest.OutcomeStore,
	publisher digest.Publisher,
) (*pipeline.Pipeline, error) {
	cfg := app.cfg
	logger := app.logger

	webhookURL, err := auth.WebhookURL(ctx, auth.SourceFor(cfg.Secrets.WebhookFile, cfg.Secrets.WebhookEnv, cfg.Secrets.Webhook))
	if err != nil {
		return nil, fmt.Errorf("delivery webhook: %w", err)
	}
	sink, err := delivery.NewSlackWebhook(webhookURL,
		delivery.WithPayloadKey(cfg.Slack.PayloadKey),
		delivery.WithHTTPClient(&http.Client{Timeout: cfg.Slack.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("delivery sink: %w", err)
	}

	fetcher, err := setupArticleFetcher(app)
	if err != nil {
		return nil, err
	}
	summarizer, err := setupSummarizer(ctx, app)
	if err != nil {
		return nil, err
	}

	sections := make([]extractor.Section, 0, len(cfg.Extractor.SectionPatterns))
	for _, sp := range cfg.Extractor.SectionPatterns {
		sections = append(sections, extractor.Section{
			Hint:    digest.SectionHint(sp.Hint),
			Pattern: regexp.MustCompile(sp.Pattern),
		})
	}

	p, err := pipeline.New(pipeline.Config{
		Workers:      cfg.Pipeline.Workers,
		RunTimeout:   cfg.Pipeline.RunTimeout,
		OutcomeTopic: cfg.Pipeline.OutcomeTopic,
	}, pipeline.Deps{
		Extractor:  extractor.New(logger.Named("extractor"), sections...),
		Fetcher:    fetcher,
		Summarizer: summarizer,
		Sink:       sink,
		Delivery: resilience.New("deliver", cfg.Retry.Policy(cfg.Retry.Delivery),
			resilience.WithLogger(logger.Named("retry"))),
		Ledger:    ledger,
		Outcomes:  outcomes,
		Publisher: publisher,
		Alerts:    setupAlerts(ctx, app),
		Clock:     app.clock,
		IDs:       uuid.New(),
		Logger:    logger.Named("pipeline"),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}
	return p, nil
}

func setupArticleFetcher(app *App) (*article.Fetcher, error) {
	cfg := app.cfg
	logger := app.logger
	transport := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout,
	})
	cookies := auth.NewCookieProvider(
		auth.SourceFor(cfg.Secrets.CookiesFile, cfg.Secrets.CookiesEnv, cfg.Secrets.Cookies),
		cfg.Secrets.CookieTTL,
		app.clock,
		logger.Named("auth"),
	)
	executor := resilience.New("fetch", cfg.Retry.Policy(cfg.Retry.Fetch), resilience.WithLogger(logger.Named("retry")))

	var opts []article.Option
	if len(cfg.HTTP.AllowedHosts) > 0 {
		opts = append(opts, article.WithHosts(urlnorm.NewHostMatcher(cfg.HTTP.AllowedHosts)))
	}
	if cfg.RateLimit.Enabled {
		opts = append(opts, article.WithRateLimiter(ratelimit.New(ratelimit.Config{
			PerHostRPS: cfg.RateLimit.PerHostRPS,
			Burst:      cfg.RateLimit.Burst,
		})))
		logger.Info("rate limiter enabled",
			zap.Float64("per_host_rps", cfg.RateLimit.PerHostRPS),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
	}
	if cfg.Headless.Enabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.Headless.NavigationTimeout,
			WaitSelector:      cfg.Headless.WaitSelector,
			Settle:            cfg.Headless.Settle,
		}, logger.Named("headless"))
		if err != nil {
			logger.Warn("headless fetcher init failed, continuing with static fetches", zap.Error(err))
		} else {
			app.headless = headless
			opts = append(opts, article.WithHeadless(headless, detector.NewHeuristic(cfg.Headless.MinParagraphText)))
			logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}
	return article.NewFetcher(transport, cookies, executor, app.clock, logger.Named("article"), opts...), nil
}

func setupSummarizer(ctx context.Context, app *App) (digest.Summarizer, error) {
	cfg := app.cfg.Summarizer
	logger := app.logger.Named("summarize")
	if cfg.Provider == "static" {
		logger.Info("using static summarizer", zap.Int("sentences", cfg.StaticSentences))
		return summarize.WithFallback(summarize.Static{Sentences: cfg.StaticSentences}, logger), nil
	}
	apiKey, err := auth.SourceFor("", cfg.APIKeyEnv, cfg.APIKey).Secret(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarizer api key: %w", err)
	}
	executor := resilience.New("summarize", app.cfg.Retry.Policy(app.cfg.Retry.Summarize),
		resilience.WithLogger(app.logger.Named("retry")))
	anthropic, err := summarize.NewAnthropic(summarize.AnthropicConfig{
		Endpoint:   cfg.Endpoint,
		APIKey:     apiKey,
		Model:      cfg.Model,
		APIVersion: cfg.APIVersion,
		MaxTokens:  cfg.MaxTokens,
		Timeout:    cfg.Timeout,
	}, executor, logger)
	if err != nil {
		return nil, fmt.Errorf("summarizer init failed: %w", err)
	}
	logger.Info("using anthropic summarizer", zap.String("model", cfg.Model))
	return summarize.WithFallback(anthropic, logger), nil
}

// setupAlerts returns nil when no admin webhook is configured so alerts are
// only logged.
func setupAlerts(ctx context.Context, app *App) alert.Notifier {
	cfg := app.cfg.Alert
	if cfg.WebhookFile == "" && cfg.WebhookEnv == "" && cfg.Webhook == "" {
		return nil
	}
	url, err := auth.WebhookURL(ctx, auth.SourceFor(cfg.WebhookFile, cfg.WebhookEnv, cfg.Webhook))
	if err != nil {
		app.logger.Warn("admin alert webhook unavailable, alerts are logged only", zap.Error(err))
		return nil
	}
	notifier, err := alert.NewSlackNotifier(url, nil, app.clock)
	if err != nil {
		app.logger.Warn("admin alert webhook rejected, alerts are logged only", zap.Error(err))
		return nil
	}
	return notifier
}

func setupDispatcher(app *App, blobStore blobBackend, publisher digest.Publisher) *dispatcher.Dispatcher {
	workerCfg := worker.Config{
		ReportPrefix: app.cfg.Pipeline.ReportPrefix,
		RunTopic:     app.cfg.Pipeline.RunTopic,
	}
	hasher := sha256.New()
	workers := make([]dispatcher.Runner, 0, app.cfg.Server.Workers)
	for i := 0; i < app.cfg.Server.Workers; i++ {
		workers = append(workers, worker.New(
			app.queue,
			app.runs,
			app.pipeline,
			blobStore,
			blobStore,
			hasher,
			publisher,
			app.clock,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(app.queue, workers, app.logger.Named("dispatcher"))
}
