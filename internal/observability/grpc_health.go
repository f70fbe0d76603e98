package observability

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// GRPCHealthServer serves grpc.health.v1 for supervisors that probe over gRPC.
// The serving status mirrors the readiness checks.
type GRPCHealthServer struct {
	server   *grpc.Server
	health   *health.Server
	checks   []NamedCheck
	interval time.Duration
}

// NewGRPCHealthServer creates a health server that re-runs checks every interval
func NewGRPCHealthServer(interval time.Duration, checks ...NamedCheck) *GRPCHealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	return &GRPCHealthServer{
		server:   server,
		health:   hs,
		checks:   checks,
		interval: interval,
	}
}

// Serve accepts connections on lis until ctx is done or Stop is called
func (s *GRPCHealthServer) Serve(ctx context.Context, lis net.Listener) error {
	s.Refresh(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.Stop()
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()

	return s.server.Serve(lis)
}

// Refresh runs the checks once and publishes the result
func (s *GRPCHealthServer) Refresh(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if _, healthy := RunChecks(checkCtx, s.checks); !healthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Stop marks every service as not serving and stops the server
func (s *GRPCHealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
