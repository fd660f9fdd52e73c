// Package grpc exposes the operational gRPC surface: standard health checks
// backed by a database watcher, plus server reflection.
package grpc

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health check name reported alongside the overall "" entry.
const ServiceName = "referral.v1.ReferralService"

type pinger interface {
	PingContext(ctx context.Context) error
}

type HealthServer struct {
	*health.Server
	db       pinger
	interval time.Duration
}

func NewHealthServer(db pinger, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	hs := &HealthServer{Server: health.NewServer(), db: db, interval: interval}
	hs.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// CheckOnce pings the database and publishes the result.
func (h *HealthServer) CheckOnce(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.db.PingContext(pingCtx); err != nil {
		logrus.WithError(err).Warn("Database ping failed (grpc health)")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.setStatus(status)
	return status
}

// Watch re-checks the database until ctx is done, then marks every service
// as not serving.
func (h *HealthServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.CheckOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-ticker.C:
			h.CheckOnce(ctx)
		}
	}
}

func (h *HealthServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus("", status)
	h.SetServingStatus(ServiceName, status)
}

func NewServer(hs *HealthServer) *gogrpc.Server {
	srv := gogrpc.NewServer(
		gogrpc.ChainUnaryInterceptor(RecoveryUnaryInterceptor(), LoggingUnaryInterceptor()),
		gogrpc.ChainStreamInterceptor(LoggingStreamInterceptor()),
	)
	healthpb.RegisterHealthServer(srv, hs.Server)
	reflection.Register(srv)
	return srv
}
