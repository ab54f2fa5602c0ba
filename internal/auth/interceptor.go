package auth

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	svcErr "github.com/oggyb/buildermatch/internal/errors"
)

// Verifier resolves a bearer token into a Session.
type Verifier interface {
	Verify(token string) (Session, error)
}

// UnaryInterceptor rejects calls without a valid bearer token and attaches the Session.
func UnaryInterceptor(v Verifier, public ...string) grpc.UnaryServerInterceptor {
	skip := toSet(public)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if skip[info.FullMethod] {
			return handler(ctx, req)
		}
		ctx, err := authenticate(ctx, v)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor is the streaming counterpart of UnaryInterceptor.
func StreamInterceptor(v Verifier, public ...string) grpc.StreamServerInterceptor {
	skip := toSet(public)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if skip[info.FullMethod] {
			return handler(srv, ss)
		}
		ctx, err := authenticate(ss.Context(), v)
		if err != nil {
			return svcErr.Map(err)
		}
		return handler(srv, &sessionStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, v Verifier) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	var header string
	if vals := md.Get("authorization"); len(vals) > 0 {
		header = vals[0]
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return nil, svcErr.ErrUnauthenticated
	}

	s, err := v.Verify(token)
	if err != nil {
		return nil, err
	}
	return WithSession(ctx, s), nil
}

type sessionStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *sessionStream) Context() context.Context { return s.ctx }

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
