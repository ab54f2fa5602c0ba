package matching

import (
	"context"

	"github.com/oggyb/buildermatch/internal/auth"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
	"github.com/oggyb/buildermatch/internal/notify"
)

// WatchInbox delivers the session user's inbox events (new matches and
// new-message badges) to onEvent until ctx ends or the subscription is stopped.
func (s *Service) WatchInbox(ctx context.Context, sess auth.Session, onEvent func(notify.Event)) (*notify.Subscription, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}
	sub, err := notify.Start(ctx, s.appCtx.Broker, notify.UserTopic(sess.UserID), onEvent)
	if err != nil {
		return nil, svcErr.Unavailable(err)
	}
	s.log(ctx).Debug("inbox subscription started", "user", sess.UserID)
	return sub, nil
}
