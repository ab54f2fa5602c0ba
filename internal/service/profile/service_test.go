package profile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/buildermatch/internal/app/apptest"
	"github.com/oggyb/buildermatch/internal/auth"
	svcErr "github.com/oggyb/buildermatch/internal/errors"
	"github.com/oggyb/buildermatch/internal/service/profile"
)

func TestUpsert_CreateThenEdit(t *testing.T) {
	ctx := context.Background()
	env := apptest.New(t)
	svc := profile.NewService(env.App)
	sess := auth.Session{UserID: "u1", DisplayName: "Ada L", AvatarURL: "https://img/ada.png"}

	p, err := svc.Upsert(ctx, sess, profile.Input{
		OneLiner:     "building a compiler",
		TechStack:    []string{"Go", " go ", "Rust", ""},
		LookingFor:   []string{"cofounder", "feedback"},
		BuildingPace: "weekends",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada L", p.DisplayName)
	assert.Equal(t, "https://img/ada.png", p.AvatarURL)
	assert.Equal(t, []string{"Go", "Rust"}, []string(p.TechStack))
	assert.True(t, p.CreatedAt.Equal(apptest.Start))

	env.Advance(time.Minute)

	p, err = svc.Upsert(ctx, sess, profile.Input{DisplayName: "Ada", OneLiner: "shipping v2"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.Equal(t, "shipping v2", p.OneLiner)
	assert.True(t, p.CreatedAt.Equal(apptest.Start), "created_at must not move")

	got, err := svc.Get(ctx, auth.Session{UserID: "u2"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, "shipping v2", got.OneLiner)
}

func TestUpsert_Validation(t *testing.T) {
	ctx := context.Background()
	svc := profile.NewService(apptest.New(t).App)
	sess := auth.Session{UserID: "u1"}

	cases := map[string]profile.Input{
		"missing display name": {OneLiner: "x"},
		"missing one liner":    {DisplayName: "Ada"},
		"bad looking for":      {DisplayName: "Ada", OneLiner: "x", LookingFor: []string{"romance"}},
		"bad pace":             {DisplayName: "Ada", OneLiner: "x", BuildingPace: "hourly"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Upsert(ctx, sess, in)
			assert.ErrorIs(t, err, svcErr.ErrInvalidArgument)
		})
	}

	_, err := svc.Upsert(ctx, auth.Session{}, profile.Input{DisplayName: "Ada", OneLiner: "x"})
	assert.ErrorIs(t, err, svcErr.ErrUnauthenticated)
}

func TestGet_NotFound(t *testing.T) {
	svc := profile.NewService(apptest.New(t).App)
	_, err := svc.Get(context.Background(), auth.Session{UserID: "u1"}, "ghost")
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}
