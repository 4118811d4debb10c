package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	sharedports "reportfetcher/shared/application/ports"
	"reportfetcher/shared/infrastructure/config"
	"reportfetcher/shared/infrastructure/database"
	"reportfetcher/shared/infrastructure/observability"
	"reportfetcher/shared/infrastructure/queue"
	"reportfetcher/shared/infrastructure/repository"
	"reportfetcher/shared/infrastructure/storage"
	"reportfetcher/workers/downloader/internal/application/ports"
	"reportfetcher/workers/downloader/internal/domain/service"
	httpadapter "reportfetcher/workers/downloader/internal/infrastructure/adapters/http"
	"reportfetcher/workers/downloader/internal/infrastructure/adapters/proxy"
	"reportfetcher/workers/downloader/internal/infrastructure/adapters/resolver"
	"reportfetcher/workers/downloader/internal/usecase"
)

// Dependencies holds all initialized infrastructure components
type Dependencies struct {
	cfg          *config.Config
	runID        string
	obs          ports.Observability
	db           sharedports.Database
	repositories ports.Repositories
	storage      ports.Storage
	queue        ports.Queue
	pool         *proxy.Pool
	proxyURL     string
	metricsSrv   *http.Server
	logger       ports.Logger
	metrics      ports.Metrics
}

// Application holds the stages assembled for one command
type Application struct {
	deps       *Dependencies
	downloader *usecase.Downloader
	primary    *usecase.Orchestrator
	links      *usecase.LinkStage
	statistics *usecase.Statistics
}

// loadConfiguration loads and validates the application configuration
func loadConfiguration() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// initializeDependencies sets up all infrastructure dependencies. Proxies
// are only probed when the command talks to the site.
func initializeDependencies(ctx context.Context, cfg *config.Config, withProxy bool) (*Dependencies, error) {
	obs, err := observability.CreateObservability(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	runID := uuid.NewString()
	logger, metrics, err := obs.ComponentsScoped("app")
	if err != nil {
		return nil, err
	}
	logger = logger.WithFields(map[string]interface{}{"run_id": runID})

	deps := &Dependencies{
		cfg:     cfg,
		runID:   runID,
		obs:     obs,
		logger:  logger,
		metrics: metrics,
	}
	logStartup(deps)
	deps.metricsSrv = startMetricsServer(cfg, logger)

	if deps.db, err = database.NewDatabase(cfg, obs); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if deps.repositories, err = repository.NewRepositories(deps.db, obs); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create repositories: %w", err)
	}
	if deps.storage, err = storage.NewStorage(cfg, obs); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if deps.queue, err = queue.CreateQueue(cfg, obs); err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	if withProxy {
		if err := deps.initializeProxy(ctx); err != nil {
			deps.Close()
			return nil, err
		}
	}

	metrics.IncrementCounter("application.starts", nil)
	return deps, nil
}

// logStartup logs application startup information
func logStartup(deps *Dependencies) {
	deps.logger.Info("Starting application",
		"service", deps.cfg.ServiceName,
		"version", deps.cfg.Version,
		"environment", deps.cfg.Environment,
		"database", deps.cfg.Adapters.Database,
		"download_dir", deps.cfg.Download.Dir)
}

// initializeProxy loads and probes the node list, then selects the fastest
// node. Without a usable node the run continues on a direct connection
// unless proxies are required.
func (d *Dependencies) initializeProxy(ctx context.Context) error {
	if !d.cfg.Proxy.Enabled {
		d.logger.Info("proxy disabled, using direct connection")
		return nil
	}

	logger, metrics, err := d.obs.ComponentsScoped("proxy")
	if err != nil {
		return err
	}

	pool := proxy.NewPool(d.cfg.Proxy, logger, metrics)
	if err := pool.Load(); err != nil {
		if d.cfg.Proxy.Required {
			return fmt.Errorf("failed to load proxy nodes: %w", err)
		}
		logger.Warn("proxy nodes unavailable, using direct connection", "error", err)
		return nil
	}

	pool.TestAll(ctx, d.cfg.Proxy.ProbeWorkers, d.cfg.Proxy.ProbeTimeout)

	node, err := pool.SelectFastest(ctx, d.cfg.Proxy.Region)
	if err != nil {
		if d.cfg.Proxy.Required {
			return fmt.Errorf("no usable proxy node: %w", err)
		}
		logger.Warn("no healthy proxy node, using direct connection", "error", err)
		metrics.IncrementCounter("proxy.exhausted", nil)
		return nil
	}

	logger.Info("proxy node selected",
		"node", node.Name,
		"latency_ms", node.Latency.Milliseconds(),
		"endpoint", pool.Endpoint())

	d.pool = pool
	d.proxyURL = pool.Endpoint()
	return nil
}

// startMetricsServer exposes the Prometheus registry when requested
func startMetricsServer(cfg *config.Config, logger ports.Logger) *http.Server {
	if cfg.Observability.MetricsAddr == "" || cfg.Adapters.Metrics != "prometheus" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.Observability.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", "error", err)
		}
	}()
	return srv
}

// newSession creates an isolated session routed through the proxy endpoint
func (d *Dependencies) newSession() (ports.SessionClient, error) {
	logger, metrics, err := d.obs.ComponentsScoped("session")
	if err != nil {
		return nil, err
	}
	return httpadapter.NewClient(d.cfg.HTTP, d.cfg.Retry, d.proxyURL, logger.WithFields(map[string]interface{}{"run_id": d.runID}), metrics)
}

func (d *Dependencies) rotation() ports.RotateFunc {
	logger, metrics, _ := d.obs.ComponentsScoped("proxy")
	if d.pool == nil {
		return usecase.NewSessionReset(logger, metrics)
	}
	return usecase.NewProxyRotation(d.pool, d.cfg.Proxy.MaxLatency, logger, metrics)
}

// buildApplication assembles the application layers
func buildApplication(deps *Dependencies) (*Application, error) {
	cfg := deps.cfg

	sanitizer := service.NewFilenameSanitizer(cfg.Archive.MaxFilenameLength)
	paths := service.NewStoragePathService(cfg.Download.Dir, sanitizer)

	archiveLogger, archiveMetrics, err := deps.obs.ComponentsScoped("archive")
	if err != nil {
		return nil, err
	}
	publisherLogger, publisherMetrics, err := deps.obs.ComponentsScoped("publisher")
	if err != nil {
		return nil, err
	}
	usecaseLogger, usecaseMetrics, err := deps.obs.ComponentsScoped("usecase.download")
	if err != nil {
		return nil, err
	}
	usecaseLogger = usecaseLogger.WithFields(map[string]interface{}{"run_id": deps.runID})

	orchestratorDeps := usecase.Dependencies{
		Repositories: deps.repositories,
		Archive:      service.NewArchiveProcessor(sanitizer, archiveLogger, archiveMetrics),
		Paths:        paths,
		Rotate:       deps.rotation(),
		Publisher: usecase.NewPublisher(deps.storage, deps.queue, cfg.Queue.Topics, paths,
			deps.runID, publisherLogger, publisherMetrics),
		Logger:  usecaseLogger,
		Metrics: usecaseMetrics,
	}

	newWorker := func() (*usecase.Orchestrator, error) {
		session, err := deps.newSession()
		if err != nil {
			return nil, err
		}
		return usecase.NewOrchestrator(session, orchestratorDeps, cfg), nil
	}

	primary, err := newWorker()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Application{
		deps:       deps,
		primary:    primary,
		downloader: usecase.NewDownloader(deps.repositories, primary, newWorker, cfg.Download, usecaseLogger, usecaseMetrics),
		links: usecase.NewLinkStage(primary.Session(), resolver.NewZipLinkResolver(), deps.repositories, cfg,
			usecaseLogger.WithFields(map[string]interface{}{"stage": "resolve"}), usecaseMetrics),
		statistics: usecase.NewStatistics(deps.repositories, cfg.Download.Dir, usecaseMetrics),
	}, nil
}

// Close releases every component that holds a connection
func (d *Dependencies) Close() {
	if d.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.metricsSrv.Shutdown(ctx)
	}
	if d.queue != nil {
		if err := d.queue.Close(); err != nil {
			d.logger.Warn("Failed to close queue", "error", err)
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.logger.Warn("Failed to close database", "error", err)
		}
	}
	if err := d.obs.Close(); err != nil {
		d.logger.Warn("Failed to flush observability", "error", err)
	}
}
