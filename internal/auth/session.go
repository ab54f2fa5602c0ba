// Package auth turns identity-provider tokens into an explicit Session value.
// Every domain operation receives the Session as a parameter.
package auth

import (
	"context"

	svcErr "github.com/oggyb/buildermatch/internal/errors"
)

// Session is the authenticated caller.
type Session struct {
	UserID      string
	DisplayName string
	AvatarURL   string
}

// Valid reports whether the session names a user.
func (s Session) Valid() bool { return s.UserID != "" }

// Require returns ErrUnauthenticated for an empty session.
func (s Session) Require() error {
	if !s.Valid() {
		return svcErr.ErrUnauthenticated
	}
	return nil
}

type sessionKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached by the auth interceptor.
func FromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	if !ok || !s.Valid() {
		return Session{}, svcErr.ErrUnauthenticated
	}
	return s, nil
}
