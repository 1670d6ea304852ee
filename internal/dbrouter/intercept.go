package dbrouter

import (
	"context"
	"net/http"
)

// Run executes op with the routing context declared by sel.
//
// When sel is non-nil its target is bound before op starts and released
// when op returns, fails or panics. When sel is nil op runs with ctx as
// is. Errors from op are returned unchanged.
func Run(ctx context.Context, sel *Selector, op func(context.Context) error) error {
	if sel == nil {
		return op(ctx)
	}

	ctx, scope := Bind(ctx, sel.target())
	defer scope.Release()

	return op(ctx)
}

// Call is Run for operations that produce a value.
func Call[T any](ctx context.Context, sel *Selector, op func(context.Context) (T, error)) (T, error) {
	if sel == nil {
		return op(ctx)
	}

	ctx, scope := Bind(ctx, sel.target())
	defer scope.Release()

	return op(ctx)
}

// Wrap returns op decorated with sel, for attaching a selector where the
// operation is defined rather than where it is called.
func Wrap(sel *Selector, op func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Run(ctx, sel, op)
	}
}

// Middleware binds sel for the duration of each request handled by next.
// A nil selector passes requests through untouched.
func Middleware(sel *Selector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if sel == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, scope := Bind(r.Context(), sel.target())
			defer scope.Release()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
