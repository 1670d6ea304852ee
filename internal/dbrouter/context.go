package dbrouter

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type bindingKey struct{}

// binding is one link in the chain of targets bound to a context.
// parent is the binding that was visible when this one was made.
type binding struct {
	id       string
	target   Target
	parent   *binding
	released atomic.Bool
}

// Scope is the release handle for a binding made by Bind.
type Scope struct {
	b *binding
}

// Bind returns a context that routes to target, overwriting whatever the
// parent context had bound. The binding stays visible until the returned
// Scope is released. After release, lookups through the returned context
// (or any context derived from it) see the binding that was in effect
// before Bind, or nothing.
func Bind(ctx context.Context, target Target) (context.Context, *Scope) {
	b := &binding{
		id:     uuid.NewString(),
		target: target,
		parent: bindingFrom(ctx),
	}

	log.Trace().
		Str("scope", b.id).
		Str("target", target.String()).
		Msg("Routing scope bound")

	return context.WithValue(ctx, bindingKey{}, b), &Scope{b: b}
}

// Release clears the binding. It is safe to call more than once and on a
// nil Scope.
func (s *Scope) Release() {
	if s == nil || s.b == nil {
		return
	}
	if s.b.released.CompareAndSwap(false, true) {
		log.Trace().
			Str("scope", s.b.id).
			Str("target", s.b.target.String()).
			Msg("Routing scope released")
	}
}

// Target returns the target this scope bound
func (s *Scope) Target() Target {
	if s == nil || s.b == nil {
		return ""
	}
	return s.b.target
}

// TargetFrom returns the target currently bound to ctx. The second result
// is false when nothing is bound.
func TargetFrom(ctx context.Context) (Target, bool) {
	for b := bindingFrom(ctx); b != nil; b = b.parent {
		if !b.released.Load() {
			return b.target, true
		}
	}
	return "", false
}

func bindingFrom(ctx context.Context) *binding {
	if ctx == nil {
		return nil
	}
	b, _ := ctx.Value(bindingKey{}).(*binding)
	return b
}
