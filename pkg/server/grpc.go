package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"conduit/pkg/rpclog"
)

// GRPCAdapterOptions configures GRPCAdapter, the alternate server-side
// transport that speaks HTTP/2 gRPC directly through *grpc.Server rather
// than the native pingpong/multiplex framing (spec §4.L).
type GRPCAdapterOptions struct {
	ServiceName string
	Port        int

	KeepAlive         keepalive.ServerParameters
	EnforcementPolicy keepalive.EnforcementPolicy
	MaxRecvMsgSize    int
	MaxSendMsgSize    int
	EnableReflection  bool

	UnaryInterceptors  []grpc.UnaryServerInterceptor
	StreamInterceptors []grpc.StreamServerInterceptor
}

func (o *GRPCAdapterOptions) setDefaults() {
	if o.KeepAlive.Time == 0 {
		o.KeepAlive.Time = 2 * time.Hour
	}
	if o.EnforcementPolicy.MinTime == 0 {
		o.EnforcementPolicy = keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}
	}
	if o.MaxRecvMsgSize == 0 {
		o.MaxRecvMsgSize = 4 << 20
	}
	if o.MaxSendMsgSize == 0 {
		o.MaxSendMsgSize = 4 << 20
	}
}

// GRPCAdapter wraps a *grpc.Server with health and reflection wired in,
// so callees that only speak gRPC share the same startup/shutdown shape
// as the native Server (spec §4.L).
type GRPCAdapter struct {
	server      *grpc.Server
	health      *health.Server
	serviceName string
	port        int
}

// NewGRPCAdapter builds a *grpc.Server with health checking always
// registered and reflection wired in when requested.
func NewGRPCAdapter(opts GRPCAdapterOptions) *GRPCAdapter {
	opts.setDefaults()

	serverOpts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(opts.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(opts.MaxSendMsgSize),
		grpc.KeepaliveParams(opts.KeepAlive),
		grpc.KeepaliveEnforcementPolicy(opts.EnforcementPolicy),
	}
	if len(opts.UnaryInterceptors) > 0 {
		serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(opts.UnaryInterceptors...))
	}
	if len(opts.StreamInterceptors) > 0 {
		serverOpts = append(serverOpts, grpc.ChainStreamInterceptor(opts.StreamInterceptors...))
	}

	s := grpc.NewServer(serverOpts...)

	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, h)

	if opts.EnableReflection {
		reflection.Register(s)
	}

	return &GRPCAdapter{server: s, health: h, serviceName: opts.ServiceName, port: opts.Port}
}

// Server returns the underlying *grpc.Server so callers can register
// their own generated service implementations on it.
func (a *GRPCAdapter) Server() *grpc.Server { return a.server }

// Serve listens on the configured port and blocks serving, marking the
// service SERVING just before accepting.
func (a *GRPCAdapter) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("grpc adapter: listen: %w", err)
	}

	a.health.SetServingStatus(a.serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
	rpclog.Log.Info("grpc adapter listening", "service", a.serviceName, "port", a.port)
	return a.server.Serve(lis)
}

// GracefulStop marks the service NOT_SERVING and drains in-flight RPCs.
func (a *GRPCAdapter) GracefulStop() {
	a.health.SetServingStatus(a.serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	a.server.GracefulStop()
}

// Stop stops the server immediately, without waiting for in-flight RPCs.
func (a *GRPCAdapter) Stop() {
	a.health.SetServingStatus(a.serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	a.server.Stop()
}
