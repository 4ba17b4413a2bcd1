package auth

import (
	"context"
)

// Session is the authenticated identity passed explicitly into every chat
// operation. The zero value is an unauthenticated session.
type Session struct {
	UserID string
}

// Authenticated reports whether the session carries a user identity.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

type sessionKey struct{}

// WithSession returns a context carrying the session.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// FromContext returns the session stored by WithSession, or the zero session.
func FromContext(ctx context.Context) Session {
	session, _ := ctx.Value(sessionKey{}).(Session)
	return session
}
