// Package identity resolves the authenticated actor behind a request or a
// real-time handshake. Every downstream component receives an Actor; none
// of them ever looks at a credential.
package identity

import (
	"context"

	"github.com/nhle/taskflow/internal/model"
)

// Actor is the authenticated principal of a request.
type Actor struct {
	ID   string
	Role model.Role
}

// IsAdmin reports whether the actor holds the Admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

// ActorOf returns the actor for a stored user. The role always comes from
// the stored record, never from the credential.
func ActorOf(u model.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

type actorKey struct{}

type tokenKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor carried by ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// WithToken returns a context carrying the verified token the actor
// presented. Logout uses it to revoke exactly that token.
func WithToken(ctx context.Context, token *Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the verified token carried by ctx, if any.
func TokenFrom(ctx context.Context) (*Token, bool) {
	token, ok := ctx.Value(tokenKey{}).(*Token)
	return token, ok && token != nil
}
