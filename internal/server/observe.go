package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/logger"
	"github.com/oggyb/buildermatch/internal/metrics"
)

// requestLogger scopes base to the call and stores it in ctx for the services.
func requestLogger(ctx context.Context, base *slog.Logger, method string) (context.Context, *slog.Logger) {
	l := base.With("method", method)
	if sess, err := auth.FromContext(ctx); err == nil {
		l = l.With("user_id", sess.UserID)
	}
	return logger.WithContext(ctx, l), l
}

func logResult(l *slog.Logger, err error, d time.Duration) codes.Code {
	code := status.Code(err)
	switch code {
	case codes.OK:
		l.Debug("rpc finished", "duration", d)
	case codes.Internal, codes.Unavailable, codes.Unknown:
		l.Error("rpc failed", "code", code.String(), "err", err, "duration", d)
	default:
		l.Info("rpc rejected", "code", code.String(), "err", err, "duration", d)
	}
	return code
}

// ObserveUnary logs and times every unary call.
func ObserveUnary(base *slog.Logger, rec metrics.Recorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx, l := requestLogger(ctx, base, info.FullMethod)

		resp, err := handler(ctx, req)

		d := time.Since(start)
		code := logResult(l, err, d)
		rec.RecordRPC(info.FullMethod, code.String(), d)
		return resp, err
	}
}

type loggedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *loggedStream) Context() context.Context { return s.ctx }

// ObserveStream logs and times every streaming call.
func ObserveStream(base *slog.Logger, rec metrics.Recorder) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx, l := requestLogger(ss.Context(), base, info.FullMethod)
		l.Debug("stream opened")

		err := handler(srv, &loggedStream{ServerStream: ss, ctx: ctx})

		d := time.Since(start)
		code := logResult(l, err, d)
		rec.RecordRPC(info.FullMethod, code.String(), d)
		return err
	}
}
