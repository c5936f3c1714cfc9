package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/elizahq/eliza/libs/db"
	"github.com/elizahq/eliza/libs/httpx"
	"github.com/elizahq/eliza/libs/kafkax"
	otelx "github.com/elizahq/eliza/libs/otel"
	"github.com/elizahq/eliza/libs/runtime"
	"github.com/elizahq/eliza/services/scheduling-service/internal/config"
	"github.com/elizahq/eliza/services/scheduling-service/internal/consumer"
	"github.com/elizahq/eliza/services/scheduling-service/internal/inbox"
	"github.com/elizahq/eliza/services/scheduling-service/internal/metrics"
	"github.com/elizahq/eliza/services/scheduling-service/internal/notify"
	"github.com/elizahq/eliza/services/scheduling-service/internal/outbox"
	"github.com/elizahq/eliza/services/scheduling-service/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "time/tzdata"
)

// The worker consumes appointment events from Kafka and sends the customer notifications.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("notification-worker", "8086")
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if cfg.KafkaBrokers == "" || cfg.DatabaseURL == "" {
		logger.Error("notification worker needs KAFKA_BROKERS and DATABASE_URL")
		os.Exit(1)
	}

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

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	var sender notify.Sender = notify.NewNoopSender()
	if cfg.NotificationsEnabled() {
		sender = notify.NewEvolutionSender(cfg.EvolutionAPIURL, cfg.EvolutionAPIKey, cfg.EvolutionInstance)
	} else {
		logger.Warn("evolution api not configured; notifications are dropped")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	store := storage.NewStore(pool, nil)
	dispatcher := notify.NewDispatcher(store, store, sender, logger,
		notify.WithLog(notify.NewRepository(pool)),
		notify.WithMetrics(m),
	)

	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupID,
		Topics:  outbox.AppointmentEventTypes,
	}, func(ctx context.Context, meta kafkax.EventMeta, msg kafka.Message) error {
		return dispatcher.HandleEvent(httpx.ContextWithRequestID(ctx, meta.EventID), meta.EventID, meta.EventType, msg.Value)
	})
	go eventConsumer.Run(ctx)

	r := chi.NewRouter()
	r.Use(httpx.WithRequestID, httpx.WithAccessLog(logger, "/healthz", "/readyz", "/metrics"))
	r.Get("/healthz", runtime.HealthHandler)
	r.Get("/readyz", runtime.ReadyHandler(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(cfg.KafkaBrokers))},
	))
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(r, "notification-worker"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
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
	logger.Info("http server stopped")
}
