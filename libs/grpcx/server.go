package grpcx

import (
	"context"
	"log/slog"
	"time"

	"github.com/elizahq/eliza/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	opts = append(opts, extra...)
	return grpc.NewServer(opts...)
}

// HealthReporter mirrors the /readyz checks into the standard gRPC health service so mesh
// probes see the same answer as HTTP ones.
type HealthReporter struct {
	server   *health.Server
	service  string
	checks   []runtime.ReadyCheck
	interval time.Duration
	logger   *slog.Logger
}

func RegisterHealth(srv *grpc.Server, service string, logger *slog.Logger, checks ...runtime.ReadyCheck) *HealthReporter {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthReporter{
		server:   hs,
		service:  service,
		checks:   checks,
		interval: 10 * time.Second,
		logger:   logger,
	}
}

// Refresh runs the checks once and publishes the result for both "" and the service name.
func (h *HealthReporter) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if failures := runtime.RunChecks(ctx, h.checks...); len(failures) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("grpc health not serving", "failures", failures)
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(h.service, status)
	return status
}

func (h *HealthReporter) Run(ctx context.Context) {
	h.Refresh(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}
