// Package tenant threads the acting tenant through request contexts.
// Every tenant-owned query and mutation resolves the tenant from the
// context explicitly; there is no ambient or global tenant state.
package tenant

import (
	"context"
	"errors"
)

// ctxKey is the private context key type for the tenant id.
type ctxKey struct{}

// ErrNoTenant is returned when an operation requires a tenant id but the
// context does not carry one.
var ErrNoTenant = errors.New("no tenant in context")

// WithID returns a copy of ctx carrying the given tenant id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the tenant id from ctx.
// It fails with ErrNoTenant if the context carries no tenant or an empty id.
func FromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ctxKey{}).(string)
	if !ok || id == "" {
		return "", ErrNoTenant
	}

	return id, nil
}

// IDOr returns the tenant id from ctx, or fallback if the context carries none.
func IDOr(ctx context.Context, fallback string) string {
	id, err := FromContext(ctx)
	if err != nil {
		return fallback
	}

	return id
}
