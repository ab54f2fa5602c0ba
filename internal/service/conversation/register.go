package conversation

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	"github.com/oggyb/buildermatch/internal/notify"
	"github.com/oggyb/buildermatch/internal/rpc"
)

const ServiceName = "buildermatch.v1.ConversationService"

type MatchRequest struct {
	MatchID string `json:"match_id"`
}

type ListMessagesResponse struct {
	Messages []db.Message `json:"messages"`
}

type SendMessageRequest struct {
	MatchID string `json:"match_id"`
	Content string `json:"content"`
}

type MarkReadRequest struct {
	MessageID uint64 `json:"message_id"`
}

type MarkReadResponse struct {
	Changed bool `json:"changed"`
}

type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}

// Registrar ties the Conversation service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Conversation service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	desc := serviceDesc(r.appCtx)
	s.RegisterService(&desc, NewService(r.appCtx))
}

func serviceDesc(appCtx *app.AppContext) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ListMessages",
				Handler: rpc.Unary("/"+ServiceName+"/ListMessages",
					func(s *Service, ctx context.Context, sess auth.Session, req *MatchRequest) (*ListMessagesResponse, error) {
						msgs, err := s.ListMessages(ctx, sess, req.MatchID)
						if err != nil {
							return nil, err
						}
						return &ListMessagesResponse{Messages: msgs}, nil
					}),
			},
			{
				MethodName: "SendMessage",
				Handler: rpc.Unary("/"+ServiceName+"/SendMessage",
					func(s *Service, ctx context.Context, sess auth.Session, req *SendMessageRequest) (*db.Message, error) {
						return s.SendMessage(ctx, sess, req.MatchID, req.Content)
					}),
			},
			{
				MethodName: "MarkRead",
				Handler: rpc.Unary("/"+ServiceName+"/MarkRead",
					func(s *Service, ctx context.Context, sess auth.Session, req *MarkReadRequest) (*MarkReadResponse, error) {
						changed, err := s.MarkRead(ctx, sess, req.MessageID)
						if err != nil {
							return nil, err
						}
						return &MarkReadResponse{Changed: changed}, nil
					}),
			},
			{
				MethodName: "UnreadCount",
				Handler: rpc.Unary("/"+ServiceName+"/UnreadCount",
					func(s *Service, ctx context.Context, sess auth.Session, req *MatchRequest) (*UnreadCountResponse, error) {
						n, err := s.UnreadCount(ctx, sess, req.MatchID)
						if err != nil {
							return nil, err
						}
						return &UnreadCountResponse{Unread: n}, nil
					}),
			},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "WatchMessages",
				ServerStreams: true,
				Handler: rpc.Watch(appCtx.Logger,
					func(s *Service, ctx context.Context, sess auth.Session, req *MatchRequest, onEvent func(notify.Event)) (*notify.Subscription, error) {
						return s.Watch(ctx, sess, req.MatchID, onEvent)
					}),
			},
		},
	}
}
