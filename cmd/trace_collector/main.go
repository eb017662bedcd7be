package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Avi18971911/TraceView/internal/config"
	"github.com/Avi18971911/TraceView/internal/db/cache"
	"github.com/Avi18971911/TraceView/internal/db/trace_store"
	"github.com/Avi18971911/TraceView/internal/logging"
	"github.com/Avi18971911/TraceView/internal/metrics"
	"github.com/Avi18971911/TraceView/internal/otel_server/collector"
	"github.com/Avi18971911/TraceView/internal/otel_server/trace/model"
	"github.com/Avi18971911/TraceView/internal/pipeline/event_bus"
	"github.com/Avi18971911/TraceView/internal/pipeline/tree/service"
	"github.com/Avi18971911/TraceView/internal/query_server/router"
	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Default()
	}
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logger = zap.NewExample()
		logger.Error("Failed to build logger, falling back to example logger", zap.Error(err))
	}
	defer logger.Sync()
	if cfgErr != nil {
		logger.Warn("Failed to load config, using defaults", zap.Error(cfgErr))
	}

	ristrettoCache, err := cache.NewRistrettoCache(cfg.Cache.MaxCost)
	if err != nil {
		logger.Fatal("Failed to create trace lookup cache", zap.Error(err))
	}
	defer ristrettoCache.Close()

	bus := EventBus.New()
	m := metrics.NewMetrics()
	metricsSubscriber := event_bus.NewTraceEventBus[event_bus.TracesRebuilt, any](bus, logger)
	err = metricsSubscriber.Subscribe(event_bus.TracesRebuiltTopic, m.ObserveRebuild, true)
	if err != nil {
		logger.Fatal("Failed to subscribe metrics to rebuild events", zap.Error(err))
	}

	treeConstructor := service.NewTreeConstructorService(logger)
	store := trace_store.NewTraceStoreImpl(
		treeConstructor,
		cache.NewLookupCacheImpl[model.Trace](ristrettoCache),
		event_bus.NewTraceEventBus[any, event_bus.TracesRebuilt](bus, logger),
		m,
		logger,
	)

	c := collector.NewCollector(
		store,
		treeConstructor,
		m,
		collector.Options{
			GRPCPort:        cfg.Collector.GRPCPort,
			MaxRequestBytes: cfg.Collector.MaxRequestBytes,
		},
		logger,
	)
	for _, path := range cfg.LoadFiles {
		if err := c.LoadFile(path); err != nil {
			logger.Error("Failed to load span file", zap.String("path", path), zap.Error(err))
		}
	}

	err = c.Start(cfg.Collector.Host, cfg.Collector.Port)
	if err != nil {
		logger.Fatal("Failed to start collector", zap.Error(err))
	}

	queryServer := &http.Server{
		Addr:    cfg.Query.Addr,
		Handler: router.CreateRouter(store, m, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Query server started", zap.String("addr", cfg.Query.Addr))
		if err := queryServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down")
		if err := c.Stop(); err != nil {
			logger.Error("Failed to stop collector", zap.Error(err))
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return queryServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Trace collector exited with error", zap.Error(err))
	}
	bus.WaitAsync()
}
