// Copyright (C) 2025 Vibes Labs (oss@vibeslabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vibes wires the experiment materialization service together:
// the SQLite table catalog, the Badger run catalog and artifact store,
// the compute cache, and the HTTP API on top of them.
//
// # Usage
//
//	cfg := vibes.Config{Port: 12310, CatalogPath: "vibes.db", BadgerPath: "vibes-badger"}
//	svc, err := vibes.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package vibes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vibesml/vibes/services/vibes/artifacts"
	"github.com/vibesml/vibes/services/vibes/catalog"
	"github.com/vibesml/vibes/services/vibes/experiments"
	"github.com/vibesml/vibes/services/vibes/fitcache"
	"github.com/vibesml/vibes/services/vibes/handlers"
	"github.com/vibesml/vibes/services/vibes/observability"
	"github.com/vibesml/vibes/services/vibes/routes"
	"github.com/vibesml/vibes/services/vibes/runcatalog"
	vbadger "github.com/vibesml/vibes/services/vibes/storage/badger"
)

// Service defines the contract for the vibes HTTP service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases storage and tracing resources. Called automatically
	// when Run() returns; call it directly when using Router() without Run().
	Close()
}

// Config holds vibes service configuration options. All fields have
// defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// CatalogPath is the SQLite database file for the table catalog.
	// ":memory:" keeps it in process memory. Default: "vibes.db"
	CatalogPath string

	// BadgerPath is the directory for the Badger store backing the run
	// catalog and (absent GCS) artifacts. Default: "vibes-badger"
	BadgerPath string

	// InMemory switches both stores to in-memory backends, for tests and
	// throwaway environments.
	InMemory bool

	// GCSBucket enables Google Cloud Storage for artifacts when set.
	// Run metadata stays in Badger either way.
	GCSBucket string

	// GCSCredentialsFile is the service account key for GCSBucket.
	// Empty uses application default credentials.
	GCSCredentialsFile string

	// OTelEndpoint is the OpenTelemetry collector endpoint. Tracing is
	// disabled when empty.
	OTelEndpoint string

	// EnableMetrics serves Prometheus metrics on /metrics. Default: true.
	EnableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Empty leaves the GIN_MODE env var in charge.
	GinMode string

	// OpTimeout bounds each storage call made by the stores.
	// Default: 10s.
	OpTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type service struct {
	config        Config
	logger        *slog.Logger
	router        *gin.Engine
	tableCatalog  *catalog.Catalog
	badgerDB      *badger.DB
	gcRunner      *vbadger.GCRunner
	gcsStore      *artifacts.GCSStore
	store         *experiments.Store
	cache         *fitcache.Cache
	registry      *prometheus.Registry
	tracerCleanup func(context.Context)
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "vibes.db"
	}
	if cfg.BadgerPath == "" {
		cfg.BadgerPath = "vibes-badger"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = experiments.DefaultOpTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// New creates a vibes Service: opens both stores, ensures the metadata
// schema, and registers all routes. The returned service is ready to Run.
func New(cfg Config) (Service, error) {
	cfg = applyConfigDefaults(cfg)
	s := &service{config: cfg, logger: cfg.Logger}

	if cfg.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if err := s.initStorage(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.initStores(); err != nil {
		s.Close()
		return nil, err
	}
	s.initRouter()

	return s, nil
}

func (s *service) Run() error {
	defer s.Close()

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting vibes server", "port", s.config.Port)

	return s.router.Run(addr)
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) initStorage() error {
	catalogPath := s.config.CatalogPath
	if s.config.InMemory {
		catalogPath = ":memory:"
	}
	tableCatalog, err := catalog.Open(catalogPath, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open table catalog: %w", err)
	}
	s.tableCatalog = tableCatalog

	ctx, cancel := context.WithTimeout(context.Background(), s.config.OpTimeout)
	defer cancel()
	if err := tableCatalog.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	badgerCfg := vbadger.DefaultConfig()
	badgerCfg.Path = s.config.BadgerPath
	badgerCfg.Logger = s.logger
	if s.config.InMemory {
		badgerCfg = vbadger.InMemoryConfig()
		badgerCfg.Logger = s.logger
	}
	db, err := vbadger.Open(badgerCfg)
	if err != nil {
		return fmt.Errorf("failed to open badger store: %w", err)
	}
	s.badgerDB = db

	if !s.config.InMemory {
		runner, err := vbadger.NewGCRunner(db, badgerCfg, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create badger GC runner: %w", err)
		}
		runner.Start()
		s.gcRunner = runner
	}
	return nil
}

func (s *service) initStores() error {
	var metrics *observability.Metrics
	if s.config.EnableMetrics {
		s.registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(s.registry)
	}

	runs, err := runcatalog.NewBadgerCatalog(s.badgerDB, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create run catalog: %w", err)
	}

	var artifactStore artifacts.Store
	if s.config.GCSBucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.OpTimeout)
		gcsStore, err := artifacts.NewGCSStore(ctx, s.config.GCSBucket, s.config.GCSCredentialsFile)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to create GCS artifact store: %w", err)
		}
		s.gcsStore = gcsStore
		artifactStore = gcsStore
		s.logger.Info("using GCS artifact store", "bucket", s.config.GCSBucket)
	} else {
		badgerStore, err := artifacts.NewBadgerStore(s.badgerDB)
		if err != nil {
			return fmt.Errorf("failed to create badger artifact store: %w", err)
		}
		artifactStore = badgerStore
	}

	s.cache, err = fitcache.New(runs, artifactStore, fitcache.Options{
		OpTimeout: s.config.OpTimeout,
		Metrics:   metrics,
		Logger:    s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create compute cache: %w", err)
	}

	s.store, err = experiments.NewStore(s.tableCatalog, experiments.Options{
		OpTimeout: s.config.OpTimeout,
		Metrics:   metrics,
		Logger:    s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create experiment store: %w", err)
	}
	return nil
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	if s.tracerCleanup != nil {
		s.router.Use(otelgin.Middleware("vibes-service"))
	}

	routes.SetupRoutes(s.router, s.store, s.cache, handlers.NewEventBroadcaster(), s.registry)
}

func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("vibes-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// Close releases storage and tracing resources. Safe to call more than
// once and on a partially initialized service.
func (s *service) Close() {
	if s.gcRunner != nil {
		s.gcRunner.Stop()
		s.gcRunner = nil
	}
	if s.gcsStore != nil {
		if err := s.gcsStore.Close(); err != nil {
			s.logger.Warn("GCS store close error", "error", err)
		}
		s.gcsStore = nil
	}
	if s.badgerDB != nil {
		if err := s.badgerDB.Close(); err != nil {
			s.logger.Warn("badger close error", "error", err)
		}
		s.badgerDB = nil
	}
	if s.tableCatalog != nil {
		if err := s.tableCatalog.Close(); err != nil {
			s.logger.Warn("catalog close error", "error", err)
		}
		s.tableCatalog = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

var _ Service = (*service)(nil)
