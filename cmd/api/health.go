package main

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// healthService is the service name reported alongside the server-wide "".
const healthService = "wessley.trips"

type pinger interface {
	Ping(ctx context.Context) error
}

func registerHealth(s *grpc.Server, hs *health.Server) {
	healthpb.RegisterHealthServer(s, hs)
}

// watchHealth pings the store every interval and mirrors the result into hs
// until ctx is done.
func watchHealth(ctx context.Context, hs *health.Server, p pinger, interval time.Duration, logger *slog.Logger) {
	prev := updateHealth(ctx, hs, p, healthpb.HealthCheckResponse_UNKNOWN, logger)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			prev = updateHealth(ctx, hs, p, prev, logger)
		}
	}
}

func updateHealth(ctx context.Context, hs *health.Server, p pinger, prev healthpb.HealthCheckResponse_ServingStatus, logger *slog.Logger) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := p.Ping(pingCtx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		if prev != status {
			logger.Warn("store unreachable", "err", err)
		}
	} else if prev == healthpb.HealthCheckResponse_NOT_SERVING {
		logger.Info("store reachable again")
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(healthService, status)
	return status
}
