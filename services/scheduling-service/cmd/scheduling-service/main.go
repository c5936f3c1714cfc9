package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/elizahq/eliza/libs/db"
	"github.com/elizahq/eliza/libs/grpcx"
	"github.com/elizahq/eliza/libs/httpx"
	"github.com/elizahq/eliza/libs/kafkax"
	otelx "github.com/elizahq/eliza/libs/otel"
	"github.com/elizahq/eliza/libs/runtime"
	"github.com/elizahq/eliza/services/scheduling-service/internal/availability"
	"github.com/elizahq/eliza/services/scheduling-service/internal/config"
	"github.com/elizahq/eliza/services/scheduling-service/internal/handlers"
	"github.com/elizahq/eliza/services/scheduling-service/internal/memstore"
	"github.com/elizahq/eliza/services/scheduling-service/internal/metrics"
	"github.com/elizahq/eliza/services/scheduling-service/internal/notify"
	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
	"github.com/elizahq/eliza/services/scheduling-service/internal/scheduling"
	"github.com/elizahq/eliza/services/scheduling-service/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "time/tzdata"
)

// dataStore is what both the Postgres and the in-memory backends provide.
type dataStore interface {
	scheduling.Store
	availability.PatternReader
	availability.SettingsReader
	handlers.AppointmentReader
	handlers.PatternStore
	notify.ContactDirectory
}

type backend struct {
	store    dataStore
	source   outbox.Source
	notifLog notify.LogWriter
	checks   []runtime.ReadyCheck
	close    func()
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("scheduling-service", "8080")
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer be.close()

	m := metrics.New(prometheus.DefaultRegisterer)
	engine := availability.NewEngine(be.store, be.store, be.store, logger, availability.WithMetrics(m))
	svc := scheduling.NewService(be.store, be.store, be.store, logger, scheduling.WithMetrics(m))

	sink, closeSink := newSink(cfg, be, logger, m)
	defer closeSink()
	publisher := outbox.NewPublisher(be.source, sink, logger, outbox.PublisherConfig{
		PollEvery: cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
		Metrics:   m,
	})
	go publisher.Run(ctx)

	limiter, limiterCheck, closeLimiter := newLimiter(cfg)
	defer closeLimiter()
	checks := be.checks
	if limiterCheck.Check != nil {
		checks = append(checks, limiterCheck)
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(cfg.KafkaBrokers))})
	}

	r := chi.NewRouter()
	r.Use(
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, "/healthz", "/readyz", "/metrics"),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", handlers.OrganizationHeader, handlers.RoleHeader, httpx.RequestIDHeader},
			ExposedHeaders: []string{httpx.RequestIDHeader},
			MaxAge:         300,
		}),
		httpx.WithBodyLimit(cfg.MaxBodyBytes),
	)
	r.Get("/healthz", runtime.HealthHandler)
	r.Get("/readyz", runtime.ReadyHandler(checks...))
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(httpx.WithTimeout(cfg.RequestTimeout))
		handlers.NewHandler(engine, svc, be.store, be.store, logger).Routes(r,
			httpx.RateLimit(limiter, httpx.ClientKeyFunc(cfg.TrustedProxyHops), logger, cfg.RateLimitFailOpen),
		)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(r, "scheduling"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer(logger)
	health := grpcx.RegisterHealth(grpcSrv, cfg.ServiceName, logger, checks...)
	go health.Run(ctx)
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "memory_store", cfg.UseMemoryStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("http server stopped")
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, error) {
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory store; data is lost on restart")
		store := memstore.New(memstore.WithOutboxPolicy(cfg.OutboxMaxAttempts, cfg.OutboxBackoff))
		return backend{store: store, source: store, close: func() {}}, nil
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		return backend{}, err
	}
	outboxRepo := outbox.NewRepository(pool, outbox.RepositoryConfig{
		MaxAttempts: cfg.OutboxMaxAttempts,
		Backoff:     cfg.OutboxBackoff,
	})
	return backend{
		store:    storage.NewStore(pool, outboxRepo),
		source:   outboxRepo,
		notifLog: notify.NewRepository(pool),
		checks:   []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}},
		close:    pool.Close,
	}, nil
}

// newSink publishes to Kafka when brokers are configured; otherwise the relay dispatches
// notifications itself.
func newSink(cfg config.Config, be backend, logger *slog.Logger, m *metrics.Metrics) (outbox.Sink, func()) {
	if brokers := kafkax.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		sink := outbox.NewKafkaSink(brokers)
		return sink, func() { _ = sink.Close() }
	}

	var sender notify.Sender = notify.NewNoopSender()
	if cfg.NotificationsEnabled() {
		sender = notify.NewEvolutionSender(cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance)
	} else {
		logger.Warn("no kafka brokers or evolution api configured; notifications are dropped")
	}
	opts := []notify.Option{notify.WithMetrics(m)}
	if be.notifLog != nil {
		opts = append(opts, notify.WithLog(be.notifLog))
	}
	dispatcher := notify.NewDispatcher(be.store, be.store, sender, logger, opts...)
	return outbox.HandlerSink(dispatcher.HandleRecord), func() {}
}

func newLimiter(cfg config.Config) (httpx.Limiter, runtime.ReadyCheck, func()) {
	if cfg.RedisAddr == "" {
		return httpx.NewMemoryLimiter(cfg.PublicRateLimit, cfg.PublicRateWindow), runtime.ReadyCheck{}, func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	limiter := httpx.NewRedisLimiter(rdb, cfg.PublicRateLimit, cfg.PublicRateWindow, "eliza:public")
	return limiter, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)}, func() { _ = rdb.Close() }
}
