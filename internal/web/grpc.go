package web

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/elys-network/yieldhook/internal/logger"
	"github.com/elys-network/yieldhook/internal/state"
)

// HealthServiceName is the service reported by the gRPC health endpoint.
const HealthServiceName = "yieldhook.Router"

// HealthServer serves the standard gRPC health protocol for the router process.
type HealthServer struct {
	server      *grpc.Server
	health      *health.Server
	persistence bool
	logger      zerolog.Logger
}

// NewHealthServer registers a health service that starts out SERVING.
func NewHealthServer(persistence bool) *HealthServer {
	hs := &HealthServer{
		server:      grpc.NewServer(),
		health:      health.NewServer(),
		persistence: persistence,
		logger:      logger.GetForComponent("grpc_health"),
	}
	healthpb.RegisterHealthServer(hs.server, hs.health)
	hs.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.health.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

// Refresh re-evaluates the database dependency and updates the reported status.
func (hs *HealthServer) Refresh() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if hs.persistence {
		if err := state.TestDBConnection(); err != nil {
			hs.logger.Warn().Err(err).Msg("Database unhealthy, reporting NOT_SERVING")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	hs.health.SetServingStatus(HealthServiceName, status)
	return status
}

// Serve blocks serving on port until Stop is called.
func (hs *HealthServer) Serve(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", port, err)
	}
	hs.logger.Info().Str("port", port).Msg("Starting gRPC health server")
	return hs.ServeListener(lis)
}

// ServeListener serves on an existing listener.
func (hs *HealthServer) ServeListener(lis net.Listener) error {
	return hs.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains connections.
func (hs *HealthServer) Stop() {
	hs.health.Shutdown()
	hs.server.GracefulStop()
}
