package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	financeapp "github.com/fleetbill/backend/internal/application/finance"
	"github.com/fleetbill/backend/internal/domain/shared/valueobject"
	"github.com/fleetbill/backend/internal/infrastructure/cache"
	"github.com/fleetbill/backend/internal/infrastructure/config"
	"github.com/fleetbill/backend/internal/infrastructure/event"
	"github.com/fleetbill/backend/internal/infrastructure/logger"
	"github.com/fleetbill/backend/internal/infrastructure/migration"
	"github.com/fleetbill/backend/internal/infrastructure/persistence"
	"github.com/fleetbill/backend/internal/infrastructure/telemetry"
	"github.com/fleetbill/backend/internal/interfaces/http/handler"
	"github.com/fleetbill/backend/internal/interfaces/http/middleware"
	"github.com/fleetbill/backend/internal/interfaces/http/router"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	providers, err := telemetry.Setup(ctx, cfg.Telemetry, version, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	// Rebuild the logger so entries are also exported through the OTLP log pipeline
	log, err := logger.New(logCfg, providers.LogCore(cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := run(ctx, cfg, providers, log); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, providers *telemetry.Providers, log *zap.Logger) error {
	log.Info("Starting lettrage",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	currency, err := valueobject.ParseCurrency(cfg.Payment.Currency)
	if err != nil {
		return err
	}

	sentryEnabled := cfg.Sentry.DSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
			Environment:      cfg.App.Env,
			Release:          version,
		}); err != nil {
			log.Error("Sentry initialization failed", zap.Error(err))
			sentryEnabled = false
		} else {
			log.Info("Sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(ctx, &cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	sqlDB := db.SQL()
	meter := providers.Meter.Meter(cfg.Telemetry.ServiceName)
	if cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.RegisterDBTracing(db.DB, cfg.Telemetry.DBSlowQueryThresh, log); err != nil {
			return err
		}
	}
	if err := telemetry.RegisterDBPoolMetrics(meter, sqlDB); err != nil {
		return err
	}

	migrator, err := migration.NewEmbedded(sqlDB, log)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		return err
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Repositories
	contactRepo := persistence.NewGormContactRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	serializer := event.NewFinanceEventSerializer()
	ledger := persistence.NewGormPaymentLedger(db.DB, event.NewOutboxWriter(serializer))

	// Ledger events feed the payment metrics, deduplicated across redeliveries
	paymentMetrics, err := telemetry.NewPaymentMetrics(meter, string(currency), log)
	if err != nil {
		return err
	}
	claims := cache.NewProcessedEvents(redisClient, log)
	defer func() { _ = claims.Close() }()

	dedupTTL := event.DefaultDedupTTL
	if cfg.Outbox.IdempotencyTTL > 0 {
		dedupTTL = cfg.Outbox.IdempotencyTTL
	}
	metricsHandler := event.NewDedupHandler(paymentMetrics, claims, dedupTTL, log)
	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(metricsHandler, metricsHandler.EventTypes()...)

	var relay *event.Relay
	if cfg.Outbox.ProcessorEnabled {
		relayCfg := event.DefaultRelayConfig()
		relayCfg.BatchSize = cfg.Outbox.BatchSize
		relayCfg.PollInterval = cfg.Outbox.PollInterval
		relayCfg.RetainDelivery = cfg.Outbox.CleanupRetention
		relay = event.NewRelay(outboxRepo, bus, serializer, relayCfg, log)
		relay.Start(ctx)
	}

	// Application services
	balanceSvc := financeapp.NewBalanceService(contactRepo, invoiceRepo)
	reporter := financeapp.NewReconciliationReporter(balanceSvc, currency)
	applier := financeapp.NewPaymentApplier(invoiceRepo, paymentRepo, ledger)
	paymentSvc := financeapp.NewPaymentService(balanceSvc, paymentRepo, applier, reporter, cfg.Payment.ConflictRetries)
	paymentSvc.SetRecorder(paymentMetrics)
	invoiceSvc := financeapp.NewInvoiceService(contactRepo, invoiceRepo)

	// HTTP
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	var limiter middleware.Limiter
	if cfg.HTTP.RateLimitEnabled {
		if redisClient != nil {
			limiter = cache.NewRedisRateLimiter(redisClient, cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		} else {
			memLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
			defer memLimiter.Close()
			limiter = memLimiter
		}
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		Logger:           log,
		Meter:            meter,
		Limiter:          limiter,
		CORSAllowOrigins: cfg.HTTP.CORSAllowOrigins,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
		MaxBodySize:      cfg.HTTP.MaxBodySize,
		Tracing:          cfg.Telemetry.Enabled,
		Sentry:           sentryEnabled,
		Profiling:        cfg.Telemetry.ProfilingEnabled,
	})
	if err != nil {
		return err
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, db)
	systemHandler.RegisterProbes(engine)

	router.NewRouter(engine).
		Register(systemHandler).
		Register(handler.NewBalanceHandler(balanceSvc, currency)).
		Register(handler.NewPaymentHandler(paymentSvc)).
		Register(handler.NewInvoiceHandler(invoiceSvc)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if relay != nil {
		if err := relay.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping outbox relay", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
	return nil
}
