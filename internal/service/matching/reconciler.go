package matching

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
	"github.com/oggyb/buildermatch/internal/notify"
)

// ReconcileResult says whether a swipe completed a mutual pair.
// Matched with !IsNewMatch means another reconciliation created the row first.
type ReconcileResult struct {
	Matched    bool      `json:"matched"`
	IsNewMatch bool      `json:"is_new_match"`
	Match      *db.Match `json:"match,omitempty"`
}

// SwipeResult is the outcome of Swipe: the ledger row plus reconciliation.
type SwipeResult struct {
	Swipe *db.Swipe `json:"swipe"`
	ReconcileResult
}

// SwipeRecorded is the ErrorInfo reason for a Swipe whose ledger row landed
// but whose reconciliation failed.
const SwipeRecorded = "SWIPE_RECORDED"

// CanonicalPair orders two user ids so the same unordered pair always maps
// to one (participant_a, participant_b).
func CanonicalPair(x, y string) (a, b string) {
	if x < y {
		return x, y
	}
	return y, x
}

// Swipe records the decision and, for connect/super_connect, reconciles it.
//
// A reconciliation failure is returned with the recorded swipe as a
// RetryError with reason SwipeRecorded naming the Reconcile RPC. Retrying
// Swipe would only hit the duplicate swipe check.
func (s *Service) Swipe(ctx context.Context, sess auth.Session, targetID string, action db.SwipeAction) (SwipeResult, error) {
	swipe, err := s.RecordSwipe(ctx, sess, targetID, action)
	if err != nil {
		return SwipeResult{}, err
	}
	res := SwipeResult{Swipe: swipe}
	if !action.Compatible() {
		return res, nil
	}

	rec, err := s.Reconcile(ctx, sess.UserID, targetID, action)
	if err != nil {
		return res, svcErr.RetryWith(SwipeRecorded, "/"+ServiceName+"/Reconcile", err)
	}
	res.ReconcileResult = rec
	return res, nil
}

// ReconcileSwipe re-runs reconciliation for a swipe the session user already recorded.
func (s *Service) ReconcileSwipe(ctx context.Context, sess auth.Session, targetID string) (ReconcileResult, error) {
	if err := sess.Require(); err != nil {
		return ReconcileResult{}, err
	}
	swipe, err := s.swipes.Find(ctx, sess.UserID, targetID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ReconcileResult{}, svcErr.NotFound("swipe on " + targetID)
	}
	if err != nil {
		return ReconcileResult{}, svcErr.Unavailable(err)
	}
	return s.Reconcile(ctx, swipe.ActorID, swipe.TargetID, swipe.Action)
}

// Reconcile checks whether target already swiped actor compatibly and, if so,
// creates the canonical match.
//
// Behavior:
//   - pass never reconciles.
//   - The match insert relies on the unique (participant_a, participant_b) index.
//     Losing a concurrent race surfaces as a duplicate key, which is read back
//     and reported as Matched with IsNewMatch=false. No lock is taken because
//     clients cannot coordinate with each other.
//   - A new match is pushed to both participants' inbox topics.
func (s *Service) Reconcile(ctx context.Context, actorID, targetID string, action db.SwipeAction) (ReconcileResult, error) {
	if !action.Compatible() {
		return ReconcileResult{}, nil
	}
	log := s.log(ctx)

	mirrored, err := s.swipes.HasConnected(ctx, targetID, actorID)
	if err != nil {
		return ReconcileResult{}, svcErr.Unavailable(err)
	}
	if !mirrored {
		return ReconcileResult{}, nil
	}

	a, b := CanonicalPair(actorID, targetID)
	match := &db.Match{
		ID:           uuid.NewString(),
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    s.appCtx.Now(),
	}

	err = s.matches.Create(ctx, match)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, findErr := s.matches.FindByPair(ctx, a, b)
		if findErr != nil {
			return ReconcileResult{}, svcErr.Unavailable(findErr)
		}
		s.appCtx.Metrics.RecordMatchConflict()
		log.Debug("match already exists", "match", existing.ID)
		return ReconcileResult{Matched: true, Match: existing}, nil
	}
	if err != nil {
		log.Error("match insert failed", "a", a, "b", b, "err", err)
		return ReconcileResult{}, svcErr.Unavailable(err)
	}

	s.appCtx.Metrics.RecordMatchCreated()
	log.Info("match created", "match", match.ID, "a", a, "b", b)

	ev := notify.Event{Kind: notify.EventMatchCreated, Match: match, At: match.CreatedAt}
	for _, uid := range []string{a, b} {
		if err := s.appCtx.Broker.Publish(context.WithoutCancel(ctx), notify.UserTopic(uid), ev); err != nil {
			s.appCtx.Metrics.RecordPublishFailure()
			log.Warn("match event publish failed", "user", uid, "err", err)
		}
	}

	return ReconcileResult{Matched: true, IsNewMatch: true, Match: match}, nil
}
