package matching

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/cache"
	"github.com/oggyb/buildermatch/internal/db"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
)

// RecordSwipe appends the session user's decision on target to the ledger.
//
// Behavior:
//   - Fails with ErrDuplicateSwipe if the pair was already swiped; the ledger keeps one row.
//   - super_connect takes one unit of the daily quota first; past the limit it fails
//     with ErrRateLimited and nothing is written.
//   - Swiping a vanished profile is ErrNotFound; swiping across a block is ErrForbidden.
func (s *Service) RecordSwipe(ctx context.Context, sess auth.Session, targetID string, action db.SwipeAction) (*db.Swipe, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}
	actorID := sess.UserID
	log := s.log(ctx)
	log.Debug("RecordSwipe called", "actor", actorID, "target", targetID, "action", action)

	switch {
	case targetID == "":
		return nil, svcErr.Invalid("target_id", "required")
	case targetID == actorID:
		return nil, svcErr.Invalid("target_id", "cannot swipe on yourself")
	case !action.Valid():
		return nil, svcErr.Invalid("action", "must be pass, connect or super_connect")
	}

	if _, err := s.profiles.Get(ctx, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr.NotFound("profile " + targetID)
		}
		return nil, svcErr.Unavailable(err)
	}
	blocked, err := s.blocks.ExistsBetween(ctx, actorID, targetID)
	if err != nil {
		return nil, svcErr.Unavailable(err)
	}
	if blocked {
		return nil, svcErr.Forbidden("profile is blocked")
	}

	now := s.appCtx.Now()
	release := func(context.Context) {}
	if action == db.ActionSuperConnect {
		limit := s.appCtx.Config.Matching.SuperConnectsPerDay
		_, rel, err := s.appCtx.RedisCache.ReserveSuperConnect(ctx, actorID, now, limit, func(ctx context.Context) (int64, error) {
			return s.swipes.CountSince(ctx, actorID, db.ActionSuperConnect, cache.StartOfDay(now))
		})
		if errors.Is(err, cache.ErrQuotaExceeded) {
			s.appCtx.Metrics.RecordRateLimited()
			return nil, fmt.Errorf("%w: %d super connects per day", svcErr.ErrRateLimited, limit)
		}
		if err != nil {
			log.Error("super-connect quota check failed", "actor", actorID, "err", err)
			return nil, svcErr.Unavailable(err)
		}
		release = rel
	}

	swipe := &db.Swipe{ActorID: actorID, TargetID: targetID, Action: action, CreatedAt: now}
	if err := s.swipes.Create(ctx, swipe); err != nil {
		release(context.WithoutCancel(ctx))
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, svcErr.ErrDuplicateSwipe
		}
		log.Error("swipe insert failed", "actor", actorID, "target", targetID, "err", err)
		return nil, svcErr.Unavailable(err)
	}

	s.appCtx.Metrics.RecordSwipe(string(action))
	return swipe, nil
}

// SuperConnectsRemaining returns how many super_connect swipes the session
// user has left in the current UTC day.
//
// Cache-first: the quota counter in Redis, falling back to the ledger count.
func (s *Service) SuperConnectsRemaining(ctx context.Context, sess auth.Session) (int, error) {
	if err := sess.Require(); err != nil {
		return 0, err
	}
	now := s.appCtx.Now()
	limit := s.appCtx.Config.Matching.SuperConnectsPerDay

	used, found, err := s.appCtx.RedisCache.SuperConnectsUsed(ctx, sess.UserID, now)
	if err != nil {
		s.log(ctx).Warn("super-connect counter read failed, using ledger", "err", err)
	}
	if !found || err != nil {
		used, err = s.swipes.CountSince(ctx, sess.UserID, db.ActionSuperConnect, cache.StartOfDay(now))
		if err != nil {
			return 0, svcErr.Unavailable(err)
		}
	}
	return max(0, limit-int(used)), nil
}
