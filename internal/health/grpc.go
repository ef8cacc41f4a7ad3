package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer exposes the standard gRPC health service so orchestrators
// can probe the dispatcher without parsing the HTTP report.
type GRPCServer struct {
	monitor *Monitor
	server  *grpc.Server
	health  *grpchealth.Server
	port    int
}

// NewGRPCServer creates the gRPC health server.
func NewGRPCServer(monitor *Monitor, port int) *GRPCServer {
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)

	return &GRPCServer{
		monitor: monitor,
		server:  srv,
		health:  hs,
		port:    port,
	}
}

// Start serves gRPC health checks until ctx is cancelled, refreshing the
// serving status from the health monitor every 10 seconds.
func (g *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.server.GracefulStop()
				return
			case <-ticker.C:
				g.refresh(ctx)
			}
		}
	}()

	g.refresh(ctx)
	return g.server.Serve(lis)
}

func (g *GRPCServer) refresh(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if g.monitor.CheckHealth(ctx).Status == StatusCritical {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
}
