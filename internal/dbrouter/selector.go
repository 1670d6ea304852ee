package dbrouter

// Selector declares which pool an operation should use. It carries no
// behavior; Run, Call, Wrap and Middleware apply it.
//
// A nil *Selector means the operation is unmarked: the routing context is
// left as the caller established it. A Selector with an empty Target
// selects Replica.
type Selector struct {
	Target Target
}

// On returns a selector for target
func On(target Target) *Selector {
	return &Selector{Target: target}
}

// target returns the declared target with the Replica default applied
func (s *Selector) target() Target {
	if s.Target == "" {
		return Replica
	}
	return s.Target
}

// String returns the selected target name
func (s *Selector) String() string {
	if s == nil {
		return "unmarked"
	}
	return s.target().String()
}

// Selected is implemented by types that carry a type-level selector for
// all of their operations.
type Selected interface {
	DBSelector() *Selector
}

// Of returns the type-level selector of v, or nil when v has none.
func Of(v any) *Selector {
	if s, ok := v.(Selected); ok {
		return s.DBSelector()
	}
	return nil
}

// Pick returns the first non-nil selector. Pass the method-level selector
// before the type-level one so the method wins.
func Pick(sels ...*Selector) *Selector {
	for _, s := range sels {
		if s != nil {
			return s
		}
	}
	return nil
}
