package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall status.
const ServiceName = "filedrop"

const pingTimeout = 2 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

// HealthChecker reports SERVING while the database answers pings.
type HealthChecker struct {
	health   *health.Server
	db       pinger
	interval time.Duration
}

func NewHealthChecker(db pinger, interval time.Duration) *HealthChecker {
	h := &HealthChecker{
		health:   health.NewServer(),
		db:       db,
		interval: interval,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Check pings the database once and publishes the result.
func (h *HealthChecker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.db.PingContext(pingCtx); err != nil {
		logrus.WithError(err).Warn("Database ping failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.set(status)
	return status
}

// Run re-checks on every interval until ctx is cancelled, then marks the
// service as shutting down.
func (h *HealthChecker) Run(ctx context.Context) {
	h.Check(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func (h *HealthChecker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// NewServer builds the gRPC server exposing the health service.
func NewServer(checker *HealthChecker) *gogrpc.Server {
	server := gogrpc.NewServer(
		gogrpc.ChainUnaryInterceptor(LoggingUnaryInterceptor()),
	)
	healthpb.RegisterHealthServer(server, checker.health)
	return server
}
