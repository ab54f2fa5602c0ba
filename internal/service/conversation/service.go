package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/oggyb/buildermatch/internal/app"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
	"github.com/oggyb/buildermatch/internal/logger"
	"github.com/oggyb/buildermatch/internal/notify"
	"github.com/oggyb/buildermatch/internal/repository"
)

// MaxContentLength is the longest message body accepted, in characters.
const MaxContentLength = 4000

// Service implements messaging inside a match.
// Every call is gated on the session user being a participant of an
// unblocked match.
type Service struct {
	appCtx   *app.AppContext
	matches  *repository.MatchRepository
	messages *repository.MessageRepository
	blocks   *repository.BlockRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		matches:  repository.NewMatchRepository(appCtx.DB),
		messages: repository.NewMessageRepository(appCtx.DB),
		blocks:   repository.NewBlockRepository(appCtx.DB),
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.appCtx.Logger)
}

// authorize loads the match and checks that userID may use it.
// Order: unknown match, not a participant, blocked pair.
func (s *Service) authorize(ctx context.Context, sess auth.Session, matchID string) (*db.Match, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}
	if matchID == "" {
		return nil, svcErr.Invalid("match_id", "required")
	}

	m, err := s.matches.Get(ctx, matchID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.NotFound("match " + matchID)
	}
	if err != nil {
		return nil, svcErr.Unavailable(err)
	}
	if !m.HasParticipant(sess.UserID) {
		return nil, svcErr.Forbidden("not a participant of this match")
	}

	blocked, err := s.blocks.ExistsBetween(ctx, m.ParticipantA, m.ParticipantB)
	if err != nil {
		return nil, svcErr.Unavailable(err)
	}
	if blocked {
		return nil, svcErr.Forbidden("conversation is blocked")
	}
	return m, nil
}

// ListMessages returns the whole conversation oldest first and marks every
// message addressed to the session user as read.
//
// Behavior:
//   - Mark and read happen in one transaction; returned rows carry read_at.
//   - A forbidden caller changes nothing.
//   - The caller's cached unread badge is dropped, never overwritten with 0,
//     so a message landing after the transaction still counts.
func (s *Service) ListMessages(ctx context.Context, sess auth.Session, matchID string) ([]db.Message, error) {
	if _, err := s.authorize(ctx, sess, matchID); err != nil {
		return nil, err
	}

	msgs, marked, err := s.messages.ListMarkingRead(ctx, matchID, sess.UserID, s.appCtx.Now())
	if err != nil {
		s.log(ctx).Error("ListMarkingRead failed", "match", matchID, "err", err)
		return nil, svcErr.Unavailable(err)
	}

	if err := s.appCtx.RedisCache.InvalidateUnread(ctx, matchID, sess.UserID); err != nil {
		s.log(ctx).Warn("failed to invalidate unread cache", "match", matchID, "err", err)
	}

	s.log(ctx).Debug("ListMessages result", "match", matchID, "count", len(msgs), "marked", marked)
	return msgs, nil
}

// SendMessage stores content from the session user in the match.
//
// Behavior:
//   - Content is trimmed; empty after trimming is ErrEmptyContent.
//   - The row is written even if ctx is cancelled after validation.
//   - After commit the recipient's badge cache is dropped and the message is
//     published to the match topic and the recipient's inbox. Publish errors
//     are logged, counted and not returned.
func (s *Service) SendMessage(ctx context.Context, sess auth.Session, matchID, content string) (*db.Message, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, svcErr.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, svcErr.Invalid("content", "longer than 4000 characters")
	}

	m, err := s.authorize(ctx, sess, matchID)
	if err != nil {
		return nil, err
	}

	writeCtx := context.WithoutCancel(ctx)
	msg := &db.Message{
		MatchID:   matchID,
		SenderID:  sess.UserID,
		Content:   content,
		CreatedAt: s.appCtx.Now(),
	}
	if err := s.messages.Create(writeCtx, msg); err != nil {
		s.log(ctx).Error("message insert failed", "match", matchID, "err", err)
		return nil, svcErr.Unavailable(err)
	}
	s.appCtx.Metrics.RecordMessageSent()

	recipient := m.Other(sess.UserID)
	if err := s.appCtx.RedisCache.InvalidateUnread(writeCtx, matchID, recipient); err != nil {
		s.log(ctx).Warn("failed to invalidate unread cache", "match", matchID, "err", err)
	}

	s.publish(writeCtx, notify.MatchTopic(matchID), notify.Event{
		Kind:    notify.EventMessage,
		Message: msg,
		At:      msg.CreatedAt,
	})

	unread, err := s.CountUnread(writeCtx, matchID, recipient)
	if err != nil {
		s.log(ctx).Warn("failed to count unread for inbox event", "err", err)
	}
	s.publish(writeCtx, notify.UserTopic(recipient), notify.Event{
		Kind:    notify.EventMessage,
		Match:   m,
		Message: msg,
		Unread:  unread,
		At:      msg.CreatedAt,
	})

	return msg, nil
}

func (s *Service) publish(ctx context.Context, topic string, ev notify.Event) {
	if err := s.appCtx.Broker.Publish(ctx, topic, ev); err != nil {
		s.appCtx.Metrics.RecordPublishFailure()
		s.log(ctx).Warn("publish failed", "topic", topic, "err", err)
	}
}

// MarkRead marks one message as read by the session user.
// Returns false if it was already read. Marking your own message is forbidden.
func (s *Service) MarkRead(ctx context.Context, sess auth.Session, messageID uint64) (bool, error) {
	if err := sess.Require(); err != nil {
		return false, err
	}

	msg, err := s.messages.Get(ctx, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, svcErr.NotFound("message")
	}
	if err != nil {
		return false, svcErr.Unavailable(err)
	}
	if _, err := s.authorize(ctx, sess, msg.MatchID); err != nil {
		return false, err
	}
	if msg.SenderID == sess.UserID {
		return false, svcErr.Forbidden("cannot mark your own message as read")
	}

	n, err := s.messages.MarkRead(ctx, messageID, sess.UserID, s.appCtx.Now())
	if err != nil {
		return false, svcErr.Unavailable(err)
	}
	if n > 0 {
		if err := s.appCtx.RedisCache.InvalidateUnread(ctx, msg.MatchID, sess.UserID); err != nil {
			s.log(ctx).Warn("failed to invalidate unread cache", "match", msg.MatchID, "err", err)
		}
	}
	return n > 0, nil
}

// UnreadCount returns the session user's unread badge for matchID.
func (s *Service) UnreadCount(ctx context.Context, sess auth.Session, matchID string) (int64, error) {
	if _, err := s.authorize(ctx, sess, matchID); err != nil {
		return 0, err
	}
	return s.CountUnread(ctx, matchID, sess.UserID)
}

// CountUnread counts messages in matchID not sent by viewerID and not yet read.
// Cache-first strategy:
//  1. Attempts to read from Redis (unread:matchID:viewerID).
//  2. On miss or cache error, counts in the DB.
//  3. On DB fetch, fills Redis unless an invalidation ran since the count started.
//
// No participant check; callers that face users go through UnreadCount.
func (s *Service) CountUnread(ctx context.Context, matchID, viewerID string) (int64, error) {
	if n, found, err := s.appCtx.RedisCache.GetUnread(ctx, matchID, viewerID); err == nil && found {
		return n, nil
	} else if err != nil {
		s.log(ctx).Warn("unread cache read failed", "match", matchID, "err", err)
	}

	gen, genErr := s.appCtx.RedisCache.UnreadGeneration(ctx, matchID, viewerID)
	n, err := s.messages.CountUnread(ctx, matchID, viewerID)
	if err != nil {
		return 0, svcErr.Unavailable(err)
	}
	if genErr != nil {
		return n, nil
	}
	if _, err := s.appCtx.RedisCache.FillUnread(ctx, matchID, viewerID, gen, n); err != nil {
		s.log(ctx).Warn("unread cache write failed", "match", matchID, "err", err)
	}
	return n, nil
}

// Watch delivers new messages of matchID to onEvent until ctx ends or the
// subscription is stopped.
func (s *Service) Watch(ctx context.Context, sess auth.Session, matchID string, onEvent func(notify.Event)) (*notify.Subscription, error) {
	if _, err := s.authorize(ctx, sess, matchID); err != nil {
		return nil, err
	}
	sub, err := notify.Start(ctx, s.appCtx.Broker, notify.MatchTopic(matchID), onEvent)
	if err != nil {
		return nil, svcErr.Unavailable(err)
	}
	return sub, nil
}
