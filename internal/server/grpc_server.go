package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/rpc"
)

// Health probes and reflection skip authentication.
var publicMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/Watch",
	"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo",
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo",
}

// NewGRPCServer builds a server with the interceptor chain
// auth -> rate limit -> logging/metrics and registers all services.
func NewGRPCServer(appCtx *app.AppContext, verifier auth.Verifier, limiter *RateLimiter, registrars ...Registrar) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			auth.UnaryInterceptor(verifier, publicMethods...),
			limiter.UnaryInterceptor(),
			ObserveUnary(appCtx.Logger, appCtx.Metrics),
		),
		grpc.ChainStreamInterceptor(
			auth.StreamInterceptor(verifier, publicMethods...),
			limiter.StreamInterceptor(),
			ObserveStream(appCtx.Logger, appCtx.Metrics),
		),
	)

	// register all services
	for _, r := range registrars {
		r.Register(grpcServer)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)

	// enable reflection for easier debugging with grpcurl
	reflection.Register(grpcServer)

	appCtx.Logger.Debug("grpc server built", "codec", rpc.CodecName, "services", len(registrars))
	return grpcServer
}

// StartGRPCServer listens on the configured address and serves until ctx ends.
// It then drains in-flight calls and returns once the server has stopped.
func StartGRPCServer(ctx context.Context, appCtx *app.AppContext, grpcServer *grpc.Server) error {
	addr := fmt.Sprintf("%s:%s", appCtx.Config.GRPC.Host, appCtx.Config.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(lis)
	}()
	appCtx.Logger.Info("grpc server listening", "addr", addr)

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	if !StopGRPCServer(grpcServer, appCtx.Config.GRPC.ShutdownTimeout) {
		appCtx.Logger.Warn("grpc drain timed out, open streams were closed", "timeout", appCtx.Config.GRPC.ShutdownTimeout)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	appCtx.Logger.Info("grpc server stopped")
	return nil
}

// StopGRPCServer waits up to timeout for in-flight calls to finish, then
// force-closes whatever is left. Watch streams only end on the force close.
// It reports whether the drain finished in time.
func StopGRPCServer(grpcServer *grpc.Server, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		grpcServer.Stop()
		<-done
		return false
	}
}
