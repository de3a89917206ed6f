package web

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/elys-network/clvault/internal/types"
)

// KeeperService is the health service name tracking the keeper loop.
const KeeperService = "clvault.Keeper"

// HealthServer exposes grpc.health.v1 for the keeper. The overall status is SERVING while the
// process is up; KeeperService follows the outcome of the last cycle.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

func NewHealthServer() *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(KeeperService, healthpb.HealthCheckResponse_UNKNOWN)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthServer{server: srv, health: hs}
}

// ObserveCycle is meant to be installed as the keeper's after-cycle hook.
func (h *HealthServer) ObserveCycle(snapshot types.CycleSnapshot) {
	status := healthpb.HealthCheckResponse_SERVING
	if !snapshot.Success {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(KeeperService, status)
}

// Serve blocks on lis until ctx is cancelled.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.server.Serve(lis) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		h.health.Shutdown()
		h.server.GracefulStop()
		return nil
	}
}

// Start listens on port and serves until ctx is cancelled.
func (h *HealthServer) Start(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("listen on grpc port %s: %w", port, err)
	}
	webLogger.Info().Str("port", port).Msg("Starting gRPC health server")
	return h.Serve(ctx, lis)
}
