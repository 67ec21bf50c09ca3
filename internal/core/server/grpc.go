// Package server runs the sensor API over gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/api"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/auth"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/config"
)

// drainTimeout caps how long Shutdown waits for open streams.
const drainTimeout = 30 * time.Second

// GRPCServer serves the sensor service and the standard health service.
type GRPCServer struct {
	grpc   *grpc.Server
	health *health.Server
	addr   string
	lis    net.Listener
	bound  chan struct{}
}

// NewGRPCServer registers service on a new gRPC server. With a nil
// authenticator every call is accepted.
func NewGRPCServer(cfg config.APIConfig, service api.SensorServiceServer, authenticator *auth.Authenticator) (*GRPCServer, error) {
	if service == nil {
		return nil, errors.New("sensor service is required")
	}

	unary := []grpc.UnaryServerInterceptor{deadline(cfg.RequestTimeout)}
	var stream []grpc.StreamServerInterceptor
	if authenticator != nil {
		unary = append(unary, authenticator.UnaryInterceptor())
		stream = append(stream, authenticator.StreamInterceptor())
	}
	g := grpc.NewServer(grpc.ChainUnaryInterceptor(unary...), grpc.ChainStreamInterceptor(stream...))

	api.RegisterSensorServiceServer(g, service)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(g, hs)
	for _, name := range []string{"", api.ServiceName} {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}

	return &GRPCServer{
		grpc:   g,
		health: hs,
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		bound:  make(chan struct{}),
	}, nil
}

// deadline bounds unary calls. WatchEvents is a stream and is not affected.
func deadline(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx, req)
	}
}

// Start listens on the configured host and port and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis. It must be called at most once.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.lis = lis
	close(s.bound)
	return s.grpc.Serve(lis)
}

// Addr blocks until the server is listening and returns its address.
func (s *GRPCServer) Addr() net.Addr {
	<-s.bound
	return s.lis.Addr()
}

// Shutdown marks the service NOT_SERVING and drains open calls. Calls still
// running when ctx ends, or after drainTimeout, are cut off.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		return fmt.Errorf("forced stop after drain: %w", ctx.Err())
	}
}
