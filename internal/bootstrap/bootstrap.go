package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpadapter "github.com/medscanlab/neuroscan/internal/adapters/http"
	"github.com/medscanlab/neuroscan/internal/config"
	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
	"github.com/medscanlab/neuroscan/internal/core/usecase"
	natsbus "github.com/medscanlab/neuroscan/internal/infrastructure/bus/nats"
	"github.com/medscanlab/neuroscan/internal/infrastructure/inference"
	"github.com/medscanlab/neuroscan/internal/infrastructure/repository/postgres"
	"github.com/medscanlab/neuroscan/internal/infrastructure/resilience"
	"github.com/medscanlab/neuroscan/internal/infrastructure/storage/gcs"
	"github.com/medscanlab/neuroscan/internal/infrastructure/storage/localfs"
	"github.com/medscanlab/neuroscan/internal/observability/metrics"
)

// App is one wired service instance: its HTTP surface, its metrics surface
// and the teardown of everything underneath.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Handler http.Handler
	Metrics http.Handler

	bus     *natsbus.Bus
	closeFn func()
}

func (a *App) Close() {
	if a.bus != nil {
		if err := a.bus.Drain(); err != nil {
			a.Logger.Warn("bus_drain_failed", "error", err)
		}
	}
	if a.closeFn != nil {
		a.closeFn()
	}
}

type deps struct {
	store    *postgres.Store
	bus      *natsbus.Bus
	executor *resilience.Executor
	sync     *metrics.SyncMetrics
	closeFn  func()
}

func buildDeps(ctx context.Context, cfg config.Config, logger *slog.Logger, service string) (*deps, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    cfg.MaxRetries,
		RetryInitialBackoff: time.Duration(cfg.RetryBackoffMillis) * time.Millisecond,
		BreakerEnabled:      true,
		BreakerMinRequests:  uint32(cfg.BreakerMinRequests),
		BreakerFailureRatio: cfg.BreakerRatio(),
		BreakerOpenTimeout:  time.Duration(cfg.BreakerOpenSeconds) * time.Second,
	})

	syncMetrics := metrics.NewSyncMetrics(service)

	options := natsbus.Options{
		ErrorPolicy:        natsbus.PolicyLogAndContinue,
		ResilienceExecutor: executor,
		OnHandlerResult: func(topic string, duration time.Duration, err error) {
			syncMetrics.RecordHandled(service, topic, duration, err)
		},
		OnDuplicate: func(topic string) {
			syncMetrics.RecordDuplicate(service, topic)
		},
	}
	if cfg.EventErrorPolicy == "unsubscribe" {
		options.ErrorPolicy = natsbus.PolicyUnsubscribe
	}
	if cfg.EventDedupEnabled {
		options.Deduplicator = natsbus.NewDeduplicator(time.Duration(cfg.EventDedupWindowSecs) * time.Second)
	}

	bus, err := natsbus.New(cfg.NATSURL, "neuroscan-"+service, logger, options)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	return &deps{
		store:    store,
		bus:      bus,
		executor: executor,
		sync:     syncMetrics,
		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func buildStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, func(), error) {
	if cfg.StorageBackend == "gcs" {
		storage, err := gcs.New(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return storage, func() { _ = storage.Close() }, nil
	}
	storage, err := localfs.New(cfg.StoragePath, cfg.PublicBaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("init local storage: %w", err)
	}
	return storage, func() {}, nil
}

func metricsHandler(handlers map[string]http.Handler) http.Handler {
	mux := http.NewServeMux()
	for path, handler := range handlers {
		mux.Handle(path, handler)
	}
	return mux
}

func trafficConfig(cfg config.Config) httpadapter.TrafficConfig {
	return httpadapter.TrafficConfig{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxInFlight:    cfg.MaxInFlightRequests,
	}
}

// NewPredictions wires the prediction service: submission orchestrator,
// submission management and the consumers that mirror patient and staff
// lifecycle into the prediction records.
func NewPredictions(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	const service = "predictions"

	d, err := buildDeps(ctx, cfg, logger, service)
	if err != nil {
		return nil, err
	}
	storage, closeStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		d.closeFn()
		return nil, err
	}

	inferenceClient := inference.NewWithTimeout(
		cfg.InferenceURL,
		time.Duration(cfg.InferenceRequestSeconds)*time.Second,
		d.executor,
	)

	publisher := instrumentedBus{bus: d.bus, sync: d.sync, service: service}

	submitUC := usecase.NewSubmitPredictionUseCase(
		d.store,
		storage,
		inferenceClient,
		d.bus,
		publisher,
		logger,
		time.Duration(cfg.InferenceWaitSeconds)*time.Second,
		cfg.CleanupOrphanedBlobs,
	)
	manageUC := usecase.NewManagePredictionsUseCase(d.store, storage, publisher, logger)
	syncUC := usecase.NewPredictionSyncUseCase(d.store, storage, logger)

	subscriptions := map[string]ports.EventHandler{
		domain.TopicPatientCreated: syncUC.HandlePatientCreated,
		domain.TopicPatientUpdated: syncUC.HandlePatientUpdated,
		domain.TopicPatientDeleted: syncUC.HandlePatientDeleted,
		domain.TopicStaffEdited:    syncUC.HandleStaffEdited,
	}
	if err := subscribeAll(ctx, d.bus, service, subscriptions); err != nil {
		closeStorage()
		d.closeFn()
		return nil, err
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	router := httpadapter.NewPredictionsRouter(
		submitUC,
		manageUC,
		httpadapter.NewTokenVerifier(cfg.JWTSecret),
		httpMetrics,
		cfg.MaxUploadImages,
		cfg.MaxUploadBytesPerFile,
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Handler: httpadapter.Wrap(router.Handler(), httpMetrics, service, trafficConfig(cfg)),
		Metrics: metricsHandler(map[string]http.Handler{
			"/metrics":      httpMetrics.Handler(),
			"/metrics/sync": d.sync.Handler(),
		}),
		bus: d.bus,
		closeFn: func() {
			closeStorage()
			d.closeFn()
		},
	}, nil
}

// NewPatients wires the patient service: the patient directory plus the
// consumers that mirror prediction thumbnails into patient documents.
func NewPatients(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	const service = "patients"

	d, err := buildDeps(ctx, cfg, logger, service)
	if err != nil {
		return nil, err
	}

	publisher := instrumentedBus{bus: d.bus, sync: d.sync, service: service}
	directoryUC := usecase.NewPatientDirectoryUseCase(d.store, publisher, logger)
	syncUC := usecase.NewPatientSyncUseCase(d.store, logger)

	subscriptions := map[string]ports.EventHandler{
		domain.TopicPredictionCreated: syncUC.HandlePredictionCreated,
		domain.TopicPredictionUpdated: syncUC.HandlePredictionUpdated,
		domain.TopicPredictionDeleted: syncUC.HandlePredictionDeleted,
		domain.TopicStaffEdited:       syncUC.HandleStaffEdited,
	}
	if err := subscribeAll(ctx, d.bus, service, subscriptions); err != nil {
		d.closeFn()
		return nil, err
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	router := httpadapter.NewPatientsRouter(directoryUC)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Handler: httpadapter.Wrap(router.Handler(), httpMetrics, service, trafficConfig(cfg)),
		Metrics: metricsHandler(map[string]http.Handler{
			"/metrics":      httpMetrics.Handler(),
			"/metrics/sync": d.sync.Handler(),
		}),
		bus:     d.bus,
		closeFn: d.closeFn,
	}, nil
}

// NewStaff wires the staff service: the staff directory plus the consumers
// that mirror prediction thumbnails into staff documents.
func NewStaff(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	const service = "staff"

	d, err := buildDeps(ctx, cfg, logger, service)
	if err != nil {
		return nil, err
	}

	publisher := instrumentedBus{bus: d.bus, sync: d.sync, service: service}
	directoryUC := usecase.NewStaffDirectoryUseCase(d.store, publisher, logger)
	syncUC := usecase.NewStaffSyncUseCase(d.store, logger)

	subscriptions := map[string]ports.EventHandler{
		domain.TopicPredictionCreated: syncUC.HandlePredictionCreated,
		domain.TopicPredictionUpdated: syncUC.HandlePredictionUpdated,
		domain.TopicPredictionDeleted: syncUC.HandlePredictionDeleted,
		domain.TopicPatientDeleted:    syncUC.HandlePatientDeleted,
	}
	if err := subscribeAll(ctx, d.bus, service, subscriptions); err != nil {
		d.closeFn()
		return nil, err
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	router := httpadapter.NewStaffRouter(directoryUC)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Handler: httpadapter.Wrap(router.Handler(), httpMetrics, service, trafficConfig(cfg)),
		Metrics: metricsHandler(map[string]http.Handler{
			"/metrics":      httpMetrics.Handler(),
			"/metrics/sync": d.sync.Handler(),
		}),
		bus:     d.bus,
		closeFn: d.closeFn,
	}, nil
}

func subscribeAll(ctx context.Context, bus *natsbus.Bus, queue string, handlers map[string]ports.EventHandler) error {
	for topic, handler := range handlers {
		if err := bus.Subscribe(ctx, topic, queue, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// instrumentedBus counts publishes per topic on top of the raw bus.
type instrumentedBus struct {
	bus     *natsbus.Bus
	sync    *metrics.SyncMetrics
	service string
}

func (b instrumentedBus) Publish(ctx context.Context, topic string, payload any) error {
	err := b.bus.Publish(ctx, topic, payload)
	b.sync.RecordPublish(b.service, topic, err)
	return err
}

func (b instrumentedBus) Subscribe(ctx context.Context, topic, queue string, handler ports.EventHandler) error {
	return b.bus.Subscribe(ctx, topic, queue, handler)
}
