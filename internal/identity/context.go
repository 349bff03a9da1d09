package identity

import "context"

// Actor is the authenticated caller of a guarded operation.
type Actor struct {
	ID       string
	Username string
	Roles    []string
}

// HasRole reports whether the actor holds the named role.
func (a Actor) HasRole(name string) bool {
	for _, role := range a.Roles {
		if role == name {
			return true
		}
	}

	return false
}

type actorKey struct{}

// WithActor attaches the authenticated actor to the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)

	return actor, ok
}
