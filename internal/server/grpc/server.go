// Package grpc serves the standard gRPC health service so orchestrators can
// check on the sync server.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/server/healthcheck"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var netListen = net.Listen

// Watcher feeds health reports to fn until ctx is done.
// *healthcheck.Checker satisfies it.
type Watcher interface {
	Watch(ctx context.Context, interval time.Duration, fn func(healthcheck.Report))
}

type GRPCServer struct {
	address  string
	logger   logging.Logger
	health   *health.Server
	watcher  Watcher
	interval time.Duration
}

func NewGRPCServer(address string, l logging.Logger) *GRPCServer {
	return &GRPCServer{
		address: address,
		logger:  l.With("module", "grpc_server"),
		health:  health.NewServer(),
	}
}

// WithHealthWatcher makes the served status follow w's reports instead of
// staying SERVING.
func (s *GRPCServer) WithHealthWatcher(w Watcher, interval time.Duration) *GRPCServer {
	s.watcher = w
	s.interval = interval
	return s
}

func (s *GRPCServer) setStatus(r healthcheck.Report) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if r.OK() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Run serves until ctx is cancelled. The health status tracks the watcher,
// if any, and flips to NOT_SERVING before the server drains.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := netListen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if s.watcher != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		go s.watcher.Watch(watchCtx, s.interval, s.setStatus)
	} else {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		stopWatch()
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
