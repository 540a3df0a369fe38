package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewServer builds a gRPC server with tracing, request ids and logging.
func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	srv := grpc.NewServer(append(opts, extra...)...)
	reflection.Register(srv)
	return srv
}

// HealthReporter keeps a grpc health server in sync with a readiness probe.
type HealthReporter struct {
	Server   *health.Server
	Service  string
	Probe    func(ctx context.Context) bool
	Interval time.Duration
	Logger   *slog.Logger
}

func RegisterHealth(srv *grpc.Server, service string, probe func(context.Context) bool, interval time.Duration, logger *slog.Logger) *HealthReporter {
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthReporter{Server: hs, Service: service, Probe: probe, Interval: interval, Logger: logger}
}

// Run updates the serving status until ctx is cancelled, then marks the
// service NOT_SERVING so load balancers drain it.
func (h *HealthReporter) Run(ctx context.Context) {
	h.report(ctx)
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Server.Shutdown()
			return
		case <-ticker.C:
			h.report(ctx)
		}
	}
}

func (h *HealthReporter) report(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.Probe != nil && !h.Probe(ctx) {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.Server.SetServingStatus(h.Service, status)
	h.Server.SetServingStatus("", status)
}

// Serve listens on addr and stops the server gracefully when ctx ends.
func Serve(ctx context.Context, srv *grpc.Server, addr string, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			srv.Stop()
		}
	}()
	logger.Info("grpc listening", "addr", addr)
	return srv.Serve(lis)
}
