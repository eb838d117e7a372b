package authz

import "context"

// RunAs executes fn with identity installed as the principal of a context
// derived from ctx, and hands identity back to fn.
//
// The principal lives only in the derived context, so it is gone once fn
// returns, errors or panics. The caller's ctx never observes it.
//
// Example usage:
//
//	task, err := authz.RunAs(ctx, alex, func(ctx context.Context, u *data.User) (*data.Task, error) {
//	    return tasks.Create(ctx, req)
//	})
func RunAs[U Identity, T any](ctx context.Context, identity U, fn func(ctx context.Context, identity U) (T, error)) (T, error) {
	return fn(WithUser(ctx, identity), identity)
}

// RunAnonymous executes fn as the anonymous principal.
func RunAnonymous[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	return fn(WithAnonymous(ctx))
}
