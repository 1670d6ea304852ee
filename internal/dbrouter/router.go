package dbrouter

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Observer is notified of every acquisition made through a Router.
type Observer interface {
	// Acquired is called after target was resolved. bound is false when
	// the registry default was used because nothing was bound.
	Acquired(target Target, bound bool)
	// AcquireFailed is called when target could not be resolved.
	AcquireFailed(target Target, err error)
}

// RouterOption configures a Router
type RouterOption func(*routerOptions)

type routerOptions struct {
	observer Observer
}

// WithObserver installs an acquisition observer
func WithObserver(o Observer) RouterOption {
	return func(opts *routerOptions) {
		opts.observer = o
	}
}

// Router stands in for a single pool while delegating every acquisition to
// the registry pool selected by the routing context.
type Router[P any] struct {
	registry *Registry[P]
	observer Observer
}

// NewRouter creates a router over registry
func NewRouter[P any](registry *Registry[P], opts ...RouterOption) *Router[P] {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Router[P]{
		registry: registry,
		observer: o.observer,
	}
}

// Registry returns the registry the router resolves against
func (r *Router[P]) Registry() *Registry[P] {
	return r.registry
}

// Resolve returns the target and pool that an acquisition through ctx
// would use. The context is read on every call.
func (r *Router[P]) Resolve(ctx context.Context) (Target, P, error) {
	target, bound := TargetFrom(ctx)
	if !bound {
		def, p := r.registry.Default()
		r.acquired(def, false)
		return def, p, nil
	}

	p, err := r.registry.Lookup(target)
	if err != nil {
		if r.observer != nil {
			r.observer.AcquireFailed(target, err)
		}
		log.Error().Err(err).Str("target", target.String()).Msg("Routing target not registered")
		var zero P
		return target, zero, err
	}

	r.acquired(target, true)
	return target, p, nil
}

// Acquire returns the pool selected by ctx
func (r *Router[P]) Acquire(ctx context.Context) (P, error) {
	_, p, err := r.Resolve(ctx)
	return p, err
}

func (r *Router[P]) acquired(target Target, bound bool) {
	if r.observer != nil {
		r.observer.Acquired(target, bound)
	}
	log.Trace().
		Str("target", target.String()).
		Bool("bound", bound).
		Msg("Routed pool acquisition")
}
