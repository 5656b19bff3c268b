// Package tenant carries the account-scoping identifier through context.
// Every persistence and broker call is scoped by it; during re-authentication
// it may be momentarily absent, which callers must treat as a retryable
// condition rather than a failure.
package tenant

import (
	"context"
	"errors"
)

type ctxKey struct{}

// ErrMissing signals that no tenant is attached to the context. The caller
// should defer the operation and retry on the next tick.
var ErrMissing = errors.New("tenant: context missing")

// ID identifies one trading account.
type ID string

func (id ID) String() string { return string(id) }

// With returns a child context carrying the tenant.
func With(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// From extracts the tenant from ctx.
func From(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(ctxKey{}).(ID)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Require extracts the tenant or returns ErrMissing.
func Require(ctx context.Context) (ID, error) {
	id, ok := From(ctx)
	if !ok {
		return "", ErrMissing
	}
	return id, nil
}
