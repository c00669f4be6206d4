package grpc

import (
	"context"
	"time"

	"github.com/msto63/hive/pkg/core/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServicePrefix namespaces per-check services in grpc.health.v1
const ServicePrefix = "hive."

// ServingStatus maps a health status onto grpc.health.v1. Degraded
// components still serve.
func ServingStatus(s health.Status) healthpb.HealthCheckResponse_ServingStatus {
	switch s {
	case health.StatusHealthy, health.StatusDegraded:
		return healthpb.HealthCheckResponse_SERVING
	case health.StatusUnhealthy:
		return healthpb.HealthCheckResponse_NOT_SERVING
	default:
		return healthpb.HealthCheckResponse_UNKNOWN
	}
}

// ApplyReport publishes a health report: the overall status under "" and
// each check under ServicePrefix+name.
func (s *Server) ApplyReport(report *health.Report) {
	s.health.SetServingStatus("", ServingStatus(report.Status))
	for _, c := range report.Checks {
		s.health.SetServingStatus(ServicePrefix+c.Name, ServingStatus(c.Status))
	}
}

// SyncHealth runs the registry every interval and publishes the result
// until ctx is cancelled.
func (s *Server) SyncHealth(ctx context.Context, registry *health.Registry, interval time.Duration) error {
	sync := func() {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		s.ApplyReport(registry.Check(checkCtx))
	}

	sync()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sync()
		}
	}
}
