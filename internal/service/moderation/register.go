package moderation

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	"github.com/oggyb/buildermatch/internal/rpc"
)

const ServiceName = "buildermatch.v1.ModerationService"

type BlockRequest struct {
	BlockedID string `json:"blocked_id"`
	Reason    string `json:"reason,omitempty"`
}

type UnblockResponse struct {
	Removed bool `json:"removed"`
}

type ListBlockedResponse struct {
	Blocks []db.Block `json:"blocks"`
}

type ReportRequest struct {
	ReportedID string          `json:"reported_id"`
	Reason     db.ReportReason `json:"reason"`
	Details    string          `json:"details,omitempty"`
}

type ReportAndBlockResponse struct {
	Report      *db.Report `json:"report,omitempty"`
	Block       *db.Block  `json:"block,omitempty"`
	ReportError string     `json:"report_error,omitempty"`
	BlockError  string     `json:"block_error,omitempty"`
}

// Registrar ties the Moderation service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Moderation service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&serviceDesc, NewService(r.appCtx))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Block",
			Handler: rpc.Unary("/"+ServiceName+"/Block",
				func(s *Service, ctx context.Context, sess auth.Session, req *BlockRequest) (*db.Block, error) {
					return s.Block(ctx, sess, req.BlockedID, req.Reason)
				}),
		},
		{
			MethodName: "Unblock",
			Handler: rpc.Unary("/"+ServiceName+"/Unblock",
				func(s *Service, ctx context.Context, sess auth.Session, req *BlockRequest) (*UnblockResponse, error) {
					removed, err := s.Unblock(ctx, sess, req.BlockedID)
					if err != nil {
						return nil, err
					}
					return &UnblockResponse{Removed: removed}, nil
				}),
		},
		{
			MethodName: "ListBlocked",
			Handler: rpc.Unary("/"+ServiceName+"/ListBlocked",
				func(s *Service, ctx context.Context, sess auth.Session, _ *rpc.Empty) (*ListBlockedResponse, error) {
					blocks, err := s.ListBlocked(ctx, sess)
					if err != nil {
						return nil, err
					}
					return &ListBlockedResponse{Blocks: blocks}, nil
				}),
		},
		{
			MethodName: "Report",
			Handler: rpc.Unary("/"+ServiceName+"/Report",
				func(s *Service, ctx context.Context, sess auth.Session, req *ReportRequest) (*db.Report, error) {
					return s.Report(ctx, sess, req.ReportedID, req.Reason, req.Details)
				}),
		},
		{
			// Partial success is a normal response so the client can show which write went through.
			MethodName: "ReportAndBlock",
			Handler: rpc.Unary("/"+ServiceName+"/ReportAndBlock",
				func(s *Service, ctx context.Context, sess auth.Session, req *ReportRequest) (*ReportAndBlockResponse, error) {
					res, err := s.ReportAndBlock(ctx, sess, req.ReportedID, req.Reason, req.Details)
					if res.Report == nil && res.Block == nil {
						return nil, err
					}
					return &ReportAndBlockResponse{
						Report:      res.Report,
						Block:       res.Block,
						ReportError: errString(res.ReportError),
						BlockError:  errString(res.BlockError),
					}, nil
				}),
		},
	},
}
