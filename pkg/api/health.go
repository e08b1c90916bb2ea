package api

import (
	"fmt"
	"net"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SchedulerService is the health service name that reports whether pods can
// currently be placed
const SchedulerService = "burrow.scheduler"

// HealthServer serves the standard gRPC health protocol.
// The overall status is SERVING while the server runs. SchedulerService is
// SERVING iff at least one node is healthy.
type HealthServer struct {
	health   *health.Server
	grpc     *grpc.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewHealthServer creates a new gRPC health server
func NewHealthServer() *HealthServer {
	hs := &HealthServer{
		health: health.NewServer(),
		grpc:   grpc.NewServer(grpc.UnaryInterceptor(MetricsInterceptor())),
		logger: log.WithComponent("grpc-health"),
	}
	healthpb.RegisterHealthServer(hs.grpc, hs.health)
	hs.health.SetServingStatus(SchedulerService, healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Observe updates the scheduler status from a node snapshot.
// It has the signature of a metrics collector observer.
func (hs *HealthServer) Observe(nodes []*types.Node) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	for _, node := range nodes {
		if node.Status == types.NodeStatusHealthy {
			status = healthpb.HealthCheckResponse_SERVING
			break
		}
	}
	hs.health.SetServingStatus(SchedulerService, status)
}

// Start listens on addr and serves in the background
func (hs *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	hs.listener = lis

	go func() {
		hs.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health listening")
		if err := hs.grpc.Serve(lis); err != nil {
			hs.logger.Error().Err(err).Msg("gRPC health server failed")
		}
	}()
	return nil
}

// Addr returns the address the server is bound to, or "" before Start
func (hs *HealthServer) Addr() string {
	if hs.listener == nil {
		return ""
	}
	return hs.listener.Addr().String()
}

// Stop marks every service NOT_SERVING and gracefully stops the server
func (hs *HealthServer) Stop() {
	hs.health.Shutdown()
	hs.grpc.GracefulStop()
}
