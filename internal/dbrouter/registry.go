package dbrouter

import (
	"fmt"
	"io"
	"slices"

	"github.com/hashicorp/go-multierror"
)

// Registry maps targets to concrete pools and names one of them as the
// default. It is immutable after NewRegistry and safe for concurrent use.
type Registry[P any] struct {
	pools map[Target]P
	def   Target
}

// NewRegistry builds a registry from pools. The map is copied, so later
// changes by the caller are not observed. def must be one of the keys.
func NewRegistry[P any](pools map[Target]P, def Target) (*Registry[P], error) {
	if len(pools) == 0 {
		return nil, &ConfigurationError{Reason: "no pools registered"}
	}
	if def == "" {
		return nil, &ConfigurationError{Reason: "no default target configured"}
	}
	if _, ok := pools[def]; !ok {
		return nil, &ConfigurationError{Target: def, Reason: "default target has no registered pool"}
	}

	copied := make(map[Target]P, len(pools))
	for t, p := range pools {
		if t == "" {
			return nil, &ConfigurationError{Reason: "pool registered under an empty target"}
		}
		copied[t] = p
	}

	return &Registry[P]{pools: copied, def: def}, nil
}

// Lookup returns the pool registered for target
func (r *Registry[P]) Lookup(target Target) (P, error) {
	p, ok := r.pools[target]
	if !ok {
		var zero P
		return zero, &ConfigurationError{Target: target, Reason: "no pool registered"}
	}
	return p, nil
}

// Default returns the default target and its pool
func (r *Registry[P]) Default() (Target, P) {
	return r.def, r.pools[r.def]
}

// Targets returns the registered targets in sorted order
func (r *Registry[P]) Targets() []Target {
	targets := make([]Target, 0, len(r.pools))
	for t := range r.pools {
		targets = append(targets, t)
	}
	slices.Sort(targets)
	return targets
}

// Each calls fn for every registered pool in target order
func (r *Registry[P]) Each(fn func(Target, P)) {
	for _, t := range r.Targets() {
		fn(t, r.pools[t])
	}
}

// Close closes every pool that implements io.Closer and returns all
// failures combined.
func (r *Registry[P]) Close() error {
	var result *multierror.Error
	r.Each(func(t Target, p P) {
		c, ok := any(p).(io.Closer)
		if !ok {
			return
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s pool: %w", t, err))
		}
	})
	return result.ErrorOrNil()
}
