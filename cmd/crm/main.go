package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/isey69/sale-forces-crm-sub000/internal/config"
	"github.com/isey69/sale-forces-crm-sub000/internal/docstore"
	"github.com/isey69/sale-forces-crm-sub000/internal/infra/database"
	"github.com/isey69/sale-forces-crm-sub000/internal/infra/gateway"
	"github.com/isey69/sale-forces-crm-sub000/internal/infra/repository"
	"github.com/isey69/sale-forces-crm-sub000/internal/infra/telemetry"
	"github.com/isey69/sale-forces-crm-sub000/internal/present/rest"
	"github.com/isey69/sale-forces-crm-sub000/internal/present/rest/middleware"
	"github.com/isey69/sale-forces-crm-sub000/internal/service"
	"github.com/isey69/sale-forces-crm-sub000/internal/usecase"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("CRM_CONFIG"), "path to the yaml config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := newLogger(conf.Log)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := echo.New()
	e.HideBanner = true

	if conf.Server.EnableTrace {
		shutdown, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
			Endpoint:    conf.Server.TraceEndpoint,
			Insecure:    true,
			SampleRate:  conf.Server.TraceSampleRate,
			ServiceName: "crm",
			Version:     version,
		})
		if err != nil {
			logger.Fatal("failed to setup tracing", zap.Error(err))
		}
		defer shutdown(context.Background())
		e.Use(otelecho.Middleware("crm"))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	base, closeStore, err := openStore(conf.Server, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", conf.Server.StorageDriver), zap.Error(err))
	}
	defer closeStore()
	store := telemetry.NewInstrumentedStore(base, telemetry.NewStoreMetrics(registry))

	var publisher usecase.EventPublisher = usecase.NopPublisher{}
	var realtime rest.RealtimeSource
	if conf.Server.RedisAddr != "" {
		rdb, err := database.NewRedis(ctx, conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		signalService := service.NewSignalService(rdb, logger)
		publisher = signalService
		realtime = signalService
	}

	retryConfig := conf.Retry.Config()
	relationshipUsecase := usecase.NewRelationshipUsecase(store, publisher, retryConfig, logger)
	customerUsecase := usecase.NewCustomerUsecase(store, publisher, relationshipUsecase, retryConfig, logger)
	callUsecase := usecase.NewCallUsecase(store, publisher, retryConfig, logger)

	var mutations []echo.MiddlewareFunc
	if !conf.Idempotency.Disabled {
		idemStore, err := newIdempotencyStore(conf)
		if err != nil {
			logger.Fatal("failed to setup idempotency store", zap.Error(err))
		}
		mutations = append(mutations, middleware.NewIdempotencyMiddleware(idemStore, conf.Idempotency.TTL, logger).Handle)
	}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))

	handler := rest.NewHandler(customerUsecase, relationshipUsecase, callUsecase, realtime, registry, logger)
	handler.RegisterRoutes(e, mutations...)

	go func() {
		logger.Info("listening", zap.String("addr", conf.Server.Listen), zap.String("storage", conf.Server.StorageDriver))
		if err := e.Start(conf.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(conf config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(conf.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if conf.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// openStore returns the configured document store and a function releasing it.
func openStore(conf config.Server, logger *zap.Logger) (docstore.Store, func(), error) {
	switch conf.StorageDriver {
	case config.DriverPostgres:
		db, err := database.NewPostgres(conf.PostgresDsn, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.MigratePostgres(db); err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return repository.NewDocumentRepository(db), closeFn, nil
	case config.DriverBadger:
		db, err := database.NewBadger(conf.BadgerPath, false)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close badger", zap.Error(err))
			}
		}
		return repository.NewBadgerDocumentRepository(db), closeFn, nil
	default:
		return docstore.NewMemoryStore(), func() {}, nil
	}
}

func newIdempotencyStore(conf config.Config) (middleware.IdempotencyStore, error) {
	if conf.Server.MemcachedAddr == "" {
		return gateway.NewCacheIdempotencyStore(conf.Idempotency.TTL), nil
	}
	mc, err := database.NewMemcached(conf.Server.MemcachedAddr)
	if err != nil {
		return nil, err
	}
	return gateway.NewMemcachedIdempotencyStore(mc), nil
}
