package grpc

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fullmeo/aimastery-billing/internal/config"
	"github.com/fullmeo/aimastery-billing/pkg/logger"
)

// ServiceName is the health-checked service name.
const ServiceName = "billing.v1.Billing"

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
}

func NewServer(cfg *config.Config, log *zap.Logger) *Server {
	s := &Server{
		config: cfg,
		logger: log,
		health: health.NewServer(),
	}

	s.server = grpc.NewServer(
		grpc.UnaryInterceptor(logger.NewGrpcUnaryServerInterceptor(log)),
		grpc.StreamInterceptor(logger.NewGrpcStreamServerInterceptor(log)),
	)
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	return s
}

// Listen binds the configured address. Start calls it when no listener is set.
func (s *Server) Listen() error {
	addr := s.config.Server.GRPC.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	return nil
}

// Addr is the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	s.logger.Info("Starting gRPC server", zap.String("address", s.listener.Addr().String()))

	return s.server.Serve(s.listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
	return nil
}
