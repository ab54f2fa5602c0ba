package server_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oggyb/buildermatch/internal/app/apptest"
	"github.com/oggyb/buildermatch/internal/auth"
	"github.com/oggyb/buildermatch/internal/db"
	"github.com/oggyb/buildermatch/internal/notify"
	"github.com/oggyb/buildermatch/internal/rpc"
	"github.com/oggyb/buildermatch/internal/server"
	"github.com/oggyb/buildermatch/internal/service/conversation"
	"github.com/oggyb/buildermatch/internal/service/matching"
	"github.com/oggyb/buildermatch/internal/service/moderation"
	"github.com/oggyb/buildermatch/internal/service/profile"
)

const secret = "test-secret"

type harness struct {
	env      *apptest.Env
	srv      *grpc.Server
	conn     *grpc.ClientConn
	verifier *auth.JWTVerifier
}

func start(t *testing.T, limiter *server.RateLimiter) *harness {
	t.Helper()
	env := apptest.New(t)
	verifier := auth.NewJWTVerifier(secret, "")
	if limiter == nil {
		limiter = server.NewRateLimiter(1000, 1000)
	}
	t.Cleanup(limiter.Stop)

	srv := server.NewGRPCServer(env.App, verifier, limiter,
		profile.NewRegistrar(env.App),
		matching.NewRegistrar(env.App, conversation.NewService(env.App)),
		conversation.NewRegistrar(env.App),
		moderation.NewRegistrar(env.App),
	)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{env: env, srv: srv, conn: conn, verifier: verifier}
}

func (h *harness) ctx(t *testing.T, userID string) context.Context {
	t.Helper()
	token, err := h.verifier.Issue(userID, time.Hour, map[string]string{"full_name": "Builder " + userID})
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func (h *harness) call(ctx context.Context, method string, req, resp any) error {
	return h.conn.Invoke(ctx, method, req, resp)
}

func onboard(t *testing.T, h *harness, ids ...string) {
	t.Helper()
	for _, id := range ids {
		var p db.Profile
		err := h.call(h.ctx(t, id), "/buildermatch.v1.ProfileService/UpsertProfile",
			&profile.Input{OneLiner: "building in public"}, &p)
		require.NoError(t, err)
		require.Equal(t, "Builder "+id, p.DisplayName)
	}
}

func TestUnauthenticated(t *testing.T) {
	h := start(t, nil)

	var out matching.CandidatePage
	err := h.call(context.Background(), "/buildermatch.v1.MatchingService/NextCandidates", &matching.NextCandidatesRequest{}, &out)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer nope")
	err = h.call(bad, "/buildermatch.v1.MatchingService/NextCandidates", &matching.NextCandidatesRequest{}, &out)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestMatchAndChatFlow(t *testing.T) {
	h := start(t, nil)
	onboard(t, h, "alice", "bob")
	alice, bob := h.ctx(t, "alice"), h.ctx(t, "bob")

	var page matching.CandidatePage
	require.NoError(t, h.call(alice, "/buildermatch.v1.MatchingService/NextCandidates", &matching.NextCandidatesRequest{}, &page))
	require.Len(t, page.Profiles, 1)
	assert.Equal(t, "bob", page.Profiles[0].ID)

	var res matching.SwipeResult
	require.NoError(t, h.call(bob, "/buildermatch.v1.MatchingService/Swipe",
		&matching.SwipeRequest{TargetID: "alice", Action: db.ActionConnect}, &res))
	assert.False(t, res.Matched)

	require.NoError(t, h.call(alice, "/buildermatch.v1.MatchingService/Swipe",
		&matching.SwipeRequest{TargetID: "bob", Action: db.ActionSuperConnect}, &res))
	require.True(t, res.Matched)
	require.True(t, res.IsNewMatch)
	matchID := res.Match.ID

	err := h.call(alice, "/buildermatch.v1.MatchingService/Swipe",
		&matching.SwipeRequest{TargetID: "bob", Action: db.ActionConnect}, &res)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	var left matching.SuperConnectsResponse
	require.NoError(t, h.call(alice, "/buildermatch.v1.MatchingService/SuperConnectsRemaining", &rpc.Empty{}, &left))
	assert.Equal(t, 2, left.Remaining)
	assert.Equal(t, 3, left.Limit)

	var msg db.Message
	require.NoError(t, h.call(alice, "/buildermatch.v1.ConversationService/SendMessage",
		&conversation.SendMessageRequest{MatchID: matchID, Content: " hi bob "}, &msg))
	assert.Equal(t, "hi bob", msg.Content)

	err = h.call(alice, "/buildermatch.v1.ConversationService/SendMessage",
		&conversation.SendMessageRequest{MatchID: matchID, Content: "   "}, &msg)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	var unread conversation.UnreadCountResponse
	require.NoError(t, h.call(bob, "/buildermatch.v1.ConversationService/UnreadCount", &conversation.MatchRequest{MatchID: matchID}, &unread))
	assert.Equal(t, int64(1), unread.Unread)

	var matches matching.ListMatchesResponse
	require.NoError(t, h.call(bob, "/buildermatch.v1.MatchingService/ListMatches", &rpc.Empty{}, &matches))
	require.Len(t, matches.Matches, 1)
	assert.Equal(t, "alice", matches.Matches[0].Other.ID)
	assert.Equal(t, int64(1), matches.Matches[0].Unread)

	var list conversation.ListMessagesResponse
	require.NoError(t, h.call(bob, "/buildermatch.v1.ConversationService/ListMessages", &conversation.MatchRequest{MatchID: matchID}, &list))
	require.Len(t, list.Messages, 1)
	assert.NotNil(t, list.Messages[0].ReadAt)

	require.NoError(t, h.call(bob, "/buildermatch.v1.ConversationService/UnreadCount", &conversation.MatchRequest{MatchID: matchID}, &unread))
	assert.Zero(t, unread.Unread)

	var rb moderation.ReportAndBlockResponse
	require.NoError(t, h.call(bob, "/buildermatch.v1.ModerationService/ReportAndBlock",
		&moderation.ReportRequest{ReportedID: "alice", Reason: db.ReasonSpam}, &rb))
	assert.NotNil(t, rb.Report)
	assert.NotNil(t, rb.Block)
	assert.Empty(t, rb.ReportError)

	err = h.call(alice, "/buildermatch.v1.ConversationService/SendMessage",
		&conversation.SendMessageRequest{MatchID: matchID, Content: "still there?"}, &msg)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	require.NoError(t, h.call(bob, "/buildermatch.v1.MatchingService/ListMatches", &rpc.Empty{}, &matches))
	assert.Empty(t, matches.Matches)
}

func TestSuperConnectQuotaDetails(t *testing.T) {
	h := start(t, nil)
	onboard(t, h, "alice", "t1", "t2", "t3", "t4")
	alice := h.ctx(t, "alice")

	var res matching.SwipeResult
	for _, target := range []string{"t1", "t2", "t3"} {
		require.NoError(t, h.call(alice, "/buildermatch.v1.MatchingService/Swipe",
			&matching.SwipeRequest{TargetID: target, Action: db.ActionSuperConnect}, &res))
	}

	err := h.call(alice, "/buildermatch.v1.MatchingService/Swipe",
		&matching.SwipeRequest{TargetID: "t4", Action: db.ActionSuperConnect}, &res)
	st := status.Convert(err)
	require.Equal(t, codes.ResourceExhausted, st.Code())

	var found bool
	for _, d := range st.Details() {
		if q, ok := d.(*errdetails.QuotaFailure); ok {
			found = true
			assert.Equal(t, "super_connect", q.GetViolations()[0].GetSubject())
		}
	}
	assert.True(t, found, "expected QuotaFailure detail")
}

func TestWatchMessagesStream(t *testing.T) {
	h := start(t, nil)
	onboard(t, h, "alice", "bob")
	require.NoError(t, h.env.DB.Create(&db.Match{ID: "m1", ParticipantA: "alice", ParticipantB: "bob"}).Error)

	ctx, cancel := context.WithCancel(h.ctx(t, "bob"))
	defer cancel()

	stream, err := h.conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, "/buildermatch.v1.ConversationService/WatchMessages")
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&conversation.MatchRequest{MatchID: "m1"}))
	require.NoError(t, stream.CloseSend())

	topic := notify.MatchTopic("m1")
	require.Eventually(t, func() bool { return h.env.Broker.Subscribers(topic) == 1 }, 2*time.Second, 10*time.Millisecond)

	var msg db.Message
	require.NoError(t, h.call(h.ctx(t, "alice"), "/buildermatch.v1.ConversationService/SendMessage",
		&conversation.SendMessageRequest{MatchID: "m1", Content: "live"}, &msg))

	var ev notify.Event
	require.NoError(t, stream.RecvMsg(&ev))
	assert.Equal(t, notify.EventMessage, ev.Kind)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "live", ev.Message.Content)

	cancel()
	require.Eventually(t, func() bool { return h.env.Broker.Subscribers(topic) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopGRPCServer_DrainsIdleServer(t *testing.T) {
	h := start(t, nil)
	onboard(t, h, "alice")

	assert.True(t, server.StopGRPCServer(h.srv, time.Second))
}

func TestStopGRPCServer_ForceClosesOpenStreams(t *testing.T) {
	h := start(t, nil)
	onboard(t, h, "alice", "bob")
	require.NoError(t, h.env.DB.Create(&db.Match{ID: "m1", ParticipantA: "alice", ParticipantB: "bob"}).Error)

	stream, err := h.conn.NewStream(h.ctx(t, "bob"), &grpc.StreamDesc{ServerStreams: true}, "/buildermatch.v1.ConversationService/WatchMessages")
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&conversation.MatchRequest{MatchID: "m1"}))
	require.NoError(t, stream.CloseSend())

	topic := notify.MatchTopic("m1")
	require.Eventually(t, func() bool { return h.env.Broker.Subscribers(topic) == 1 }, 2*time.Second, 10*time.Millisecond)

	done := make(chan bool, 1)
	go func() { done <- server.StopGRPCServer(h.srv, 100*time.Millisecond) }()

	select {
	case drained := <-done:
		assert.False(t, drained, "an open watch stream keeps the drain from finishing")
	case <-time.After(5 * time.Second):
		t.Fatal("stop hung on an open stream")
	}

	var ev notify.Event
	assert.Error(t, stream.RecvMsg(&ev))
	require.Eventually(t, func() bool { return h.env.Broker.Subscribers(topic) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRateLimitInterceptor(t *testing.T) {
	h := start(t, server.NewRateLimiter(0.001, 2))
	onboard(t, h, "alice")

	var p db.Profile
	err := h.call(h.ctx(t, "alice"), "/buildermatch.v1.ProfileService/GetProfile", &profile.GetProfileRequest{}, &p)
	require.NoError(t, err)

	err = h.call(h.ctx(t, "alice"), "/buildermatch.v1.ProfileService/GetProfile", &profile.GetProfileRequest{}, &p)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// Buckets are per user.
	err = h.call(h.ctx(t, "bob"), "/buildermatch.v1.ProfileService/GetProfile", &profile.GetProfileRequest{}, &p)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestOpsRouter(t *testing.T) {
	env := apptest.New(t)
	env.App.Metrics.RecordMessageSent()
	h := server.NewOpsRouter(env.App, env.Registry)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "buildermatch_messages_sent_total 1"))

	env.Redis.SetError("down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
