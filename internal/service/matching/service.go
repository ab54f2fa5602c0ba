package matching

import (
	"context"
	"log/slog"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/logger"
	"github.com/oggyb/buildermatch/internal/repository"
)

// UnreadCounter returns viewer's unread badge for a match.
// The conversation service provides the cache-backed implementation.
type UnreadCounter interface {
	CountUnread(ctx context.Context, matchID, viewerID string) (int64, error)
}

// Service owns the interaction ledger, the match reconciler and the candidate feed.
type Service struct {
	appCtx   *app.AppContext
	profiles *repository.ProfileRepository
	swipes   *repository.SwipeRepository
	matches  *repository.MatchRepository
	messages *repository.MessageRepository
	blocks   *repository.BlockRepository
	unread   UnreadCounter
}

// NewService creates the matching service with dependencies from AppContext.
func NewService(appCtx *app.AppContext, unread UnreadCounter) *Service {
	return &Service{
		appCtx:   appCtx,
		profiles: repository.NewProfileRepository(appCtx.DB),
		swipes:   repository.NewSwipeRepository(appCtx.DB),
		matches:  repository.NewMatchRepository(appCtx.DB),
		messages: repository.NewMessageRepository(appCtx.DB),
		blocks:   repository.NewBlockRepository(appCtx.DB),
		unread:   unread,
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.appCtx.Logger)
}
