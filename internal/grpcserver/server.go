// Package grpcserver serves the standard gRPC health service for the points daemon.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceName reports whether the daemon accepts events.
	ServiceName = "points.v1.Events"
	// HostServiceName reports whether the streaming host's WebSocket is connected.
	HostServiceName = "points.v1.Host"
)

// Server owns a grpc.Server with the health service registered.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *zap.Logger
}

// New returns a Server whose overall and event statuses start SERVING and whose host status
// starts NOT_SERVING until the host connects.
func New(logger *zap.Logger, options ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HostServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	grpcServer := grpc.NewServer(options...)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	return &Server{grpcServer: grpcServer, health: healthServer, logger: logger}
}

// SetHostConnected flips the host service status.
func (server *Server) SetHostConnected(connected bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	server.health.SetServingStatus(HostServiceName, status)
}

// Serve runs on lis until ctx is cancelled. Every status turns NOT_SERVING before the graceful stop.
func (server *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("gRPC server starting", zap.String("listen_addr", lis.Addr().String()))
		errCh <- server.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		server.logger.Info("gRPC shutdown requested")
		server.health.Shutdown()
		server.grpcServer.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}

// ListenAndServe listens on addr and calls Serve.
func (server *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return server.Serve(ctx, lis)
}
