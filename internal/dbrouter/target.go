// Package dbrouter routes individual database operations to one of several
// connection pools based on a per-call declaration.
//
// An operation declares its pool with a Selector. Run (or Middleware for
// HTTP handlers) binds the selected Target to the context for the dynamic
// extent of the operation and releases it on every exit path. A Router
// reads the binding on each acquisition and hands out the matching pool
// from an immutable Registry, falling back to the registry default when
// nothing is bound.
package dbrouter

import (
	"fmt"
	"strings"
)

// Target identifies a connection pool in a Registry.
type Target string

const (
	// Primary is the writable database instance.
	Primary Target = "primary"
	// Replica is a read-only database instance. It is the target of a
	// Selector that does not name one explicitly.
	Replica Target = "replica"
)

// String returns the target name
func (t Target) String() string {
	return string(t)
}

// ParseTarget normalizes a target name read from configuration or a flag.
// Names other than primary and replica are accepted so that additional
// replica tags can be registered.
func ParseTarget(s string) (Target, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return "", fmt.Errorf("empty target name")
	}
	if strings.ContainsAny(name, " \t\n") {
		return "", fmt.Errorf("invalid target name %q", s)
	}
	return Target(name), nil
}
