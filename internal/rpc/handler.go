package rpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"

	"github.com/oggyb/buildermatch/internal/auth"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
	"github.com/oggyb/buildermatch/internal/notify"
)

// Empty is the request or response of methods without fields.
type Empty struct{}

// Unary adapts fn, a service method bound to the authenticated session, into
// a grpc.MethodHandler. Domain errors are mapped to status errors before
// interceptors see them.
func Unary[S, Req, Resp any](
	fullMethod string,
	fn func(s S, ctx context.Context, sess auth.Session, req *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, svcErr.InvalidArgument("malformed request: " + err.Error())
		}

		handler := func(ctx context.Context, req any) (any, error) {
			sess, err := auth.FromContext(ctx)
			if err != nil {
				return nil, svcErr.Map(err)
			}
			resp, err := fn(srv.(S), ctx, sess, req.(*Req))
			if err != nil {
				return nil, svcErr.Map(err)
			}
			return resp, nil
		}

		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

// streamBuffer is how many events may wait for a slow client before new ones are dropped.
const streamBuffer = 64

// Watch adapts fn, which starts a realtime subscription for the session user,
// into a server-streaming handler that sends every event until the client goes away.
func Watch[S, Req any](
	log *slog.Logger,
	fn func(s S, ctx context.Context, sess auth.Session, req *Req, onEvent func(notify.Event)) (*notify.Subscription, error),
) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		ctx := stream.Context()
		sess, err := auth.FromContext(ctx)
		if err != nil {
			return svcErr.Map(err)
		}

		in := new(Req)
		if err := stream.RecvMsg(in); err != nil {
			return svcErr.InvalidArgument("malformed request: " + err.Error())
		}

		events := make(chan notify.Event, streamBuffer)
		sub, err := fn(srv.(S), ctx, sess, in, func(ev notify.Event) {
			select {
			case events <- ev:
			default:
				log.Warn("stream buffer full, dropping event", "user", sess.UserID, "kind", ev.Kind)
			}
		})
		if err != nil {
			return svcErr.Map(err)
		}
		defer sub.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sub.Done():
				return nil
			case ev := <-events:
				if err := stream.SendMsg(&ev); err != nil {
					return err
				}
			}
		}
	}
}
