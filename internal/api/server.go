package api

import (
	"context"
	"fmt"
	"net"

	"salonbook/internal/auth"
	"salonbook/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

type GRPCServer struct {
	server   *grpc.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg config.APIConfig, svc AvailabilityServer, sessions *auth.Manager, logger *zerolog.Logger) (*GRPCServer, error) {
	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	serverLogger := logger.With().Str("component", "grpc").Logger()
	authInterceptor := NewAuthInterceptor(cfg, sessions)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoveryUnaryInterceptor(&serverLogger),
		LoggingUnaryInterceptor(logger),
		authInterceptor.Unary(),
	))
	grpcServer.RegisterService(&availabilityServiceDesc, svc)

	if cfg.GRPC.Reflection {
		reflection.Register(grpcServer)
	}

	return &GRPCServer{
		server:   grpcServer,
		listener: lis,
		log:      serverLogger,
	}, nil
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC API listening")
	return s.server.Serve(s.listener)
}

// Shutdown drains in-flight bookings and force-stops when ctx expires.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.server.GracefulStop()
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.log.Warn().Err(ctx.Err()).Msg("gRPC drain interrupted, stopping")
		s.server.Stop()
		<-stopped
	}
}
