package matching_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oggyb/buildermatch/internal/app/apptest"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
	"github.com/oggyb/buildermatch/internal/notify"
	"github.com/oggyb/buildermatch/internal/service/matching"
)

func as(id string) auth.Session { return auth.Session{UserID: id} }

type fixedUnread map[string]int64

func (f fixedUnread) CountUnread(_ context.Context, matchID, viewerID string) (int64, error) {
	return f[matchID+"/"+viewerID], nil
}

func setup(t *testing.T, profiles ...string) (*apptest.Env, *matching.Service) {
	t.Helper()
	env := apptest.New(t)
	env.Profiles(t, profiles...)
	return env, matching.NewService(env.App, nil)
}

func countMatches(t *testing.T, env *apptest.Env) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.DB.Model(&db.Match{}).Count(&n).Error)
	return n
}

func TestRecordSwipe_Validation(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t, "alice", "bob")

	_, err := svc.RecordSwipe(ctx, auth.Session{}, "bob", db.ActionConnect)
	assert.ErrorIs(t, err, svcErr.ErrUnauthenticated)

	_, err = svc.RecordSwipe(ctx, as("alice"), "alice", db.ActionConnect)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = svc.RecordSwipe(ctx, as("alice"), "", db.ActionConnect)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = svc.RecordSwipe(ctx, as("alice"), "bob", db.SwipeAction("like"))
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)

	_, err = svc.RecordSwipe(ctx, as("alice"), "ghost", db.ActionConnect)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestRecordSwipe_DuplicateKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "bob")

	_, err := svc.RecordSwipe(ctx, as("alice"), "bob", db.ActionPass)
	require.NoError(t, err)

	_, err = svc.RecordSwipe(ctx, as("alice"), "bob", db.ActionConnect)
	assert.ErrorIs(t, err, svcErr.ErrDuplicateSwipe)

	var swipes []db.Swipe
	require.NoError(t, env.DB.Find(&swipes).Error)
	require.Len(t, swipes, 1)
	assert.Equal(t, db.ActionPass, swipes[0].Action)
}

func TestRecordSwipe_BlockedTarget(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "bob")
	require.NoError(t, env.DB.Create(&db.Block{BlockerID: "bob", BlockedID: "alice"}).Error)

	_, err := svc.RecordSwipe(ctx, as("alice"), "bob", db.ActionConnect)
	assert.ErrorIs(t, err, svcErr.ErrForbidden)
}

func TestRecordSwipe_SuperConnectQuota(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "t1", "t2", "t3", "t4")

	for _, target := range []string{"t1", "t2", "t3"} {
		_, err := svc.RecordSwipe(ctx, as("alice"), target, db.ActionSuperConnect)
		require.NoError(t, err, target)
	}

	_, err := svc.RecordSwipe(ctx, as("alice"), "t4", db.ActionSuperConnect)
	assert.ErrorIs(t, err, svcErr.ErrRateLimited)

	var n int64
	env.DB.Model(&db.Swipe{}).Where("actor_id = ? AND action = ?", "alice", db.ActionSuperConnect).Count(&n)
	assert.Equal(t, int64(3), n, "rejected swipe must not be written")
	assert.Equal(t, 1.0, env.Counter(t, "buildermatch_superconnect_rate_limited_total"))

	left, err := svc.SuperConnectsRemaining(ctx, as("alice"))
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	// Plain connects are not limited.
	_, err = svc.RecordSwipe(ctx, as("alice"), "t4", db.ActionConnect)
	assert.NoError(t, err)
}

func TestRecordSwipe_QuotaResetsNextDay(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "t1", "t2", "t3", "t4")

	for _, target := range []string{"t1", "t2", "t3"} {
		_, err := svc.RecordSwipe(ctx, as("alice"), target, db.ActionSuperConnect)
		require.NoError(t, err)
	}

	env.Advance(24 * time.Hour)

	left, err := svc.SuperConnectsRemaining(ctx, as("alice"))
	require.NoError(t, err)
	assert.Equal(t, 3, left)

	_, err = svc.RecordSwipe(ctx, as("alice"), "t4", db.ActionSuperConnect)
	assert.NoError(t, err)
}

func TestRecordSwipe_QuotaSurvivesCacheFlush(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "t1", "t2", "t3", "t4")

	for _, target := range []string{"t1", "t2", "t3"} {
		_, err := svc.RecordSwipe(ctx, as("alice"), target, db.ActionSuperConnect)
		require.NoError(t, err)
	}
	env.Redis.FlushAll()

	_, err := svc.RecordSwipe(ctx, as("alice"), "t4", db.ActionSuperConnect)
	assert.ErrorIs(t, err, svcErr.ErrRateLimited)
}

func TestRecordSwipe_RedisDown(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "bob")
	env.Redis.SetError("connection lost")

	_, err := svc.RecordSwipe(ctx, as("alice"), "bob", db.ActionSuperConnect)
	assert.ErrorIs(t, err, svcErr.ErrUnavailable)

	var n int64
	env.DB.Model(&db.Swipe{}).Count(&n)
	assert.Zero(t, n)
}

func TestSwipe_MutualConnectCreatesOneMatch(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "bob")

	sub, err := svc.WatchInbox(ctx, as("bob"), func(notify.Event) {})
	require.NoError(t, err)
	defer sub.Stop()

	var got []notify.Event
	var mu sync.Mutex
	_, err = notify.Start(ctx, env.Broker, notify.UserTopic("alice"), func(ev notify.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	require.NoError(t, err)

	first, err := svc.Swipe(ctx, as("bob"), "alice", db.ActionConnect)
	require.NoError(t, err)
	assert.False(t, first.Matched)

	second, err := svc.Swipe(ctx, as("alice"), "bob", db.ActionSuperConnect)
	require.NoError(t, err)
	require.True(t, second.Matched)
	assert.True(t, second.IsNewMatch)
	assert.Equal(t, "alice", second.Match.ParticipantA)
	assert.Equal(t, "bob", second.Match.ParticipantB)

	assert.Equal(t, int64(1), countMatches(t, env))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, notify.EventMatchCreated, got[0].Kind)
	assert.Equal(t, second.Match.ID, got[0].Match.ID)
}

func TestSwipe_PassNeverMatches(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "bob")

	_, err := svc.Swipe(ctx, as("alice"), "bob", db.ActionConnect)
	require.NoError(t, err)

	res, err := svc.Swipe(ctx, as("bob"), "alice", db.ActionPass)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Zero(t, countMatches(t, env))
}

func TestReconcile_ConcurrentPairYieldsOneRow(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "bob")

	// Both swipes land before either side reconciles.
	_, err := svc.RecordSwipe(ctx, as("alice"), "bob", db.ActionConnect)
	require.NoError(t, err)
	_, err = svc.RecordSwipe(ctx, as("bob"), "alice", db.ActionConnect)
	require.NoError(t, err)

	r1, err := svc.Reconcile(ctx, "alice", "bob", db.ActionConnect)
	require.NoError(t, err)
	r2, err := svc.Reconcile(ctx, "bob", "alice", db.ActionConnect)
	require.NoError(t, err)

	assert.True(t, r1.Matched)
	assert.True(t, r1.IsNewMatch)
	assert.True(t, r2.Matched)
	assert.False(t, r2.IsNewMatch, "second reconciliation must see the existing row")
	assert.Equal(t, r1.Match.ID, r2.Match.ID)
	assert.Equal(t, int64(1), countMatches(t, env))
	assert.Equal(t, 1.0, env.Counter(t, "buildermatch_match_conflicts_total"))
}

func TestReconcileSwipe_Retry(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "bob")

	_, err := svc.ReconcileSwipe(ctx, as("alice"), "bob")
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	require.NoError(t, env.DB.Create(&db.Swipe{ActorID: "alice", TargetID: "bob", Action: db.ActionConnect}).Error)
	require.NoError(t, env.DB.Create(&db.Swipe{ActorID: "bob", TargetID: "alice", Action: db.ActionConnect}).Error)

	res, err := svc.ReconcileSwipe(ctx, as("alice"), "bob")
	require.NoError(t, err)
	assert.True(t, res.IsNewMatch)
}

func TestSwipe_ReconcileFailureNamesRetry(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "alice", "bob")
	require.NoError(t, env.DB.Create(&db.Swipe{ActorID: "bob", TargetID: "alice", Action: db.ActionConnect}).Error)

	var failMatches atomic.Bool
	failMatches.Store(true)
	require.NoError(t, env.DB.Callback().Create().Before("gorm:create").Register("test:fail_matches", func(tx *gorm.DB) {
		if failMatches.Load() && tx.Statement.Table == "matches" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	res, err := svc.Swipe(ctx, as("alice"), "bob", db.ActionConnect)
	require.Error(t, err)
	require.NotNil(t, res.Swipe, "ledger row is reported")
	assert.ErrorIs(t, err, svcErr.ErrUnavailable)

	var retry *svcErr.RetryError
	require.True(t, svcErr.As(err, &retry))
	assert.Equal(t, matching.SwipeRecorded, retry.Reason)
	assert.Equal(t, "/"+matching.ServiceName+"/Reconcile", retry.Method)

	_, err = svc.Swipe(ctx, as("alice"), "bob", db.ActionConnect)
	assert.ErrorIs(t, err, svcErr.ErrDuplicateSwipe)

	failMatches.Store(false)
	rec, err := svc.ReconcileSwipe(ctx, as("alice"), "bob")
	require.NoError(t, err)
	assert.True(t, rec.IsNewMatch)
	assert.Equal(t, int64(1), countMatches(t, env))
}

func TestNextCandidates_Exclusions(t *testing.T) {
	ctx := context.Background()
	env, svc := setup(t, "me", "passed", "liked", "blocker", "blocked", "fresh1", "fresh2")

	_, err := svc.RecordSwipe(ctx, as("me"), "passed", db.ActionPass)
	require.NoError(t, err)
	_, err = svc.RecordSwipe(ctx, as("me"), "liked", db.ActionConnect)
	require.NoError(t, err)
	require.NoError(t, env.DB.Create(&db.Block{BlockerID: "blocker", BlockedID: "me"}).Error)
	require.NoError(t, env.DB.Create(&db.Block{BlockerID: "me", BlockedID: "blocked"}).Error)

	page, err := svc.NextCandidates(ctx, as("me"), "", 0)
	require.NoError(t, err)

	var ids []string
	for _, p := range page.Profiles {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"fresh2", "fresh1"}, ids)
	assert.False(t, page.HasMore)
}

func TestNextCandidates_PagesDoNotRepeat(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t, "me", "c1", "c2", "c3", "c4", "c5")

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := svc.NextCandidates(ctx, as("me"), cursor, 2)
		require.NoError(t, err)
		pages++
		for _, p := range page.Profiles {
			assert.False(t, seen[p.ID], "repeated %s", p.ID)
			seen[p.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)

	_, err := svc.NextCandidates(ctx, as("me"), "%%%", 2)
	assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
}

func TestCandidates_Iterator(t *testing.T) {
	ctx := context.Background()
	_, svc := setup(t, "me", "c1", "c2", "c3")

	var ids []string
	for p, err := range svc.Candidates(ctx, as("me"), 1) {
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c3", "c2", "c1"}, ids)
}

func TestListMatches(t *testing.T) {
	ctx := context.Background()
	env := apptest.New(t)
	env.Profiles(t, "alice", "bob", "carol")

	older := db.Match{ID: "m1", ParticipantA: "alice", ParticipantB: "bob", CreatedAt: apptest.Start}
	newer := db.Match{ID: "m2", ParticipantA: "alice", ParticipantB: "carol", CreatedAt: apptest.Start.Add(time.Hour)}
	require.NoError(t, env.DB.Create(&older).Error)
	require.NoError(t, env.DB.Create(&newer).Error)
	require.NoError(t, env.DB.Create(&db.Message{MatchID: "m1", SenderID: "bob", Content: "hey", CreatedAt: apptest.Start}).Error)

	svc := matching.NewService(env.App, fixedUnread{"m1/alice": 1})

	list, err := svc.ListMatches(ctx, as("alice"))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m2", list[0].Match.ID)
	assert.Equal(t, "carol", list[0].Other.ID)
	assert.Nil(t, list[0].LastMessage)

	assert.Equal(t, "m1", list[1].Match.ID)
	require.NotNil(t, list[1].LastMessage)
	assert.Equal(t, "hey", list[1].LastMessage.Content)
	assert.Equal(t, int64(1), list[1].Unread)

	require.NoError(t, env.DB.Create(&db.Block{BlockerID: "carol", BlockedID: "alice"}).Error)
	list, err = svc.ListMatches(ctx, as("alice"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "m1", list[0].Match.ID)
}

func TestCanonicalPair(t *testing.T) {
	a, b := matching.CanonicalPair("zed", "amy")
	assert.Equal(t, "amy", a)
	assert.Equal(t, "zed", b)

	a, b = matching.CanonicalPair("amy", "zed")
	assert.Equal(t, "amy", a)
	assert.Equal(t, "zed", b)
}
