package worker

import (
	"fmt"
	"net"

	"github.com/aescanero/dago-task-gateway/internal/workerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server exposes a GeneratorServer and the gRPC health service.
type Server struct {
	id     string
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer creates a server that requires secret on every call.
func NewServer(id string, svc workerrpc.GeneratorServer, secret string, logger *zap.Logger) *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(workerrpc.AuthUnaryInterceptor(secret)),
		grpc.ChainStreamInterceptor(workerrpc.AuthStreamInterceptor(secret)),
	)
	hs := health.NewServer()

	workerrpc.RegisterGeneratorServer(gs, svc)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		id:     id,
		grpc:   gs,
		health: hs,
		logger: logger,
	}
}

// Start marks the worker serving and accepts calls on lis in the background.
func (s *Server) Start(lis net.Listener) error {
	if lis == nil {
		return fmt.Errorf("listener is required")
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(workerrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	s.logger.Info("starting model worker",
		zap.String("worker_id", s.id),
		zap.String("addr", lis.Addr().String()),
	)

	go func() {
		if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			s.logger.Error("worker server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop reports NOT_SERVING, then drains in-flight calls.
func (s *Server) Stop() {
	s.logger.Info("stopping model worker", zap.String("worker_id", s.id))
	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.logger.Info("model worker stopped", zap.String("worker_id", s.id))
}
