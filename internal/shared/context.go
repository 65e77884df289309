package shared

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Actor identifies the tenant, store location and user acting on a request.
// Identity is resolved upstream; the core never reads tenant or location
// from request bodies.
type Actor struct {
	TenantID   uuid.UUID
	LocationID uuid.UUID
	UserID     uuid.UUID
}

// Valid reports whether the actor carries the minimum identification.
func (a Actor) Valid() bool {
	return a.TenantID != uuid.Nil && a.LocationID != uuid.Nil && a.UserID != uuid.Nil
}

// ErrNoActor indicates the request context carries no resolved actor.
var ErrNoActor = errors.New("no actor in context")

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, error) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || !actor.Valid() {
		return Actor{}, ErrNoActor
	}
	return actor, nil
}
