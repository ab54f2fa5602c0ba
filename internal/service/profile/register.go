package profile

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	"github.com/oggyb/buildermatch/internal/rpc"
)

const ServiceName = "buildermatch.v1.ProfileService"

type GetProfileRequest struct {
	// ID empty means the caller's own profile.
	ID string `json:"id,omitempty"`
}

// Registrar ties the Profile service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Profile service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&serviceDesc, NewService(r.appCtx))
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "UpsertProfile",
			Handler: rpc.Unary("/"+ServiceName+"/UpsertProfile",
				func(s *Service, ctx context.Context, sess auth.Session, req *Input) (*db.Profile, error) {
					return s.Upsert(ctx, sess, *req)
				}),
		},
		{
			MethodName: "GetProfile",
			Handler: rpc.Unary("/"+ServiceName+"/GetProfile",
				func(s *Service, ctx context.Context, sess auth.Session, req *GetProfileRequest) (*db.Profile, error) {
					return s.Get(ctx, sess, req.ID)
				}),
		},
	},
}
