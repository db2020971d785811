// Package health reports store reachability over the standard gRPC health service.
package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service entry for the workspace server.
const ServiceName = "lastminute.Workspace"

// DefaultInterval is how often the store is pinged.
const DefaultInterval = 15 * time.Second

// Pinger is implemented by store.Repository.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker mirrors Pinger results into a grpc health server.
type Checker struct {
	server   *health.Server
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
}

// NewChecker creates a checker. Status starts as NOT_SERVING until the first ping.
func NewChecker(p Pinger, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Checker{
		server:   srv,
		pinger:   p,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Register attaches the health service to s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.server)
}

// Server returns the underlying health server.
func (c *Checker) Server() *health.Server {
	return c.server
}

// Check pings once and updates the serving status.
func (c *Checker) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := c.pinger.Ping(pctx); err != nil {
		slog.Warn("Store health check failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
	return status == healthpb.HealthCheckResponse_SERVING
}

// Run pings the store until ctx is done, then marks every service NOT_SERVING.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}
