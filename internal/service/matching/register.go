package matching

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	"github.com/oggyb/buildermatch/internal/notify"
	"github.com/oggyb/buildermatch/internal/rpc"
)

const ServiceName = "buildermatch.v1.MatchingService"

type SwipeRequest struct {
	TargetID string         `json:"target_id"`
	Action   db.SwipeAction `json:"action"`
}

type ReconcileRequest struct {
	TargetID string `json:"target_id"`
}

type NextCandidatesRequest struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type ListMatchesResponse struct {
	Matches []MatchSummary `json:"matches"`
}

type SuperConnectsResponse struct {
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

// Registrar ties the Matching service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
	unread UnreadCounter
}

// NewRegistrar creates a new Registrar for the Matching service
func NewRegistrar(appCtx *app.AppContext, unread UnreadCounter) *Registrar {
	return &Registrar{appCtx: appCtx, unread: unread}
}

// Register attaches the Matching service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	desc := serviceDesc(r.appCtx)
	s.RegisterService(&desc, NewService(r.appCtx, r.unread))
}

func serviceDesc(appCtx *app.AppContext) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Swipe",
				Handler: rpc.Unary("/"+ServiceName+"/Swipe",
					func(s *Service, ctx context.Context, sess auth.Session, req *SwipeRequest) (*SwipeResult, error) {
						res, err := s.Swipe(ctx, sess, req.TargetID, req.Action)
						if err != nil {
							return nil, err
						}
						return &res, nil
					}),
			},
			{
				MethodName: "Reconcile",
				Handler: rpc.Unary("/"+ServiceName+"/Reconcile",
					func(s *Service, ctx context.Context, sess auth.Session, req *ReconcileRequest) (*ReconcileResult, error) {
						res, err := s.ReconcileSwipe(ctx, sess, req.TargetID)
						if err != nil {
							return nil, err
						}
						return &res, nil
					}),
			},
			{
				MethodName: "NextCandidates",
				Handler: rpc.Unary("/"+ServiceName+"/NextCandidates",
					func(s *Service, ctx context.Context, sess auth.Session, req *NextCandidatesRequest) (*CandidatePage, error) {
						page, err := s.NextCandidates(ctx, sess, req.Cursor, req.Limit)
						if err != nil {
							return nil, err
						}
						return &page, nil
					}),
			},
			{
				MethodName: "ListMatches",
				Handler: rpc.Unary("/"+ServiceName+"/ListMatches",
					func(s *Service, ctx context.Context, sess auth.Session, _ *rpc.Empty) (*ListMatchesResponse, error) {
						matches, err := s.ListMatches(ctx, sess)
						if err != nil {
							return nil, err
						}
						return &ListMatchesResponse{Matches: matches}, nil
					}),
			},
			{
				MethodName: "SuperConnectsRemaining",
				Handler: rpc.Unary("/"+ServiceName+"/SuperConnectsRemaining",
					func(s *Service, ctx context.Context, sess auth.Session, _ *rpc.Empty) (*SuperConnectsResponse, error) {
						left, err := s.SuperConnectsRemaining(ctx, sess)
						if err != nil {
							return nil, err
						}
						return &SuperConnectsResponse{Remaining: left, Limit: appCtx.Config.Matching.SuperConnectsPerDay}, nil
					}),
			},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "WatchMatches",
				ServerStreams: true,
				Handler: rpc.Watch(appCtx.Logger,
					func(s *Service, ctx context.Context, sess auth.Session, _ *rpc.Empty, onEvent func(notify.Event)) (*notify.Subscription, error) {
						return s.WatchInbox(ctx, sess, onEvent)
					}),
			},
		},
	}
}
