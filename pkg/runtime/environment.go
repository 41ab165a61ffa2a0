package runtime

import (
	"sort"

	"egg/interpreter-go/pkg/langerr"
)

// Environment provides lexical scoping for Egg runtime values. Each frame
// owns its bindings; the parent link is shared by every child frame and
// every closure created in it.
type Environment struct {
	values map[string]Value
	parent *Environment
	frozen bool
}

// NewEnvironment creates a new environment, optionally nested under a parent.
func NewEnvironment(parent *Environment) *Environment {
	return &Environment{
		values: make(map[string]Value),
		parent: parent,
	}
}

// Parent exposes the lexical parent (nil for the root frame).
func (e *Environment) Parent() *Environment {
	return e.parent
}

// Freeze makes the frame reject every later Define or Assign.
func (e *Environment) Freeze() {
	e.frozen = true
}

// Frozen reports whether the frame is read-only.
func (e *Environment) Frozen() bool {
	return e.frozen
}

// Snapshot returns a copy of this frame's own bindings.
func (e *Environment) Snapshot() map[string]Value {
	out := make(map[string]Value, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Define inserts or shadows a binding in the current frame only.
func (e *Environment) Define(name string, value Value) error {
	if e.frozen {
		return langerr.Type("cannot define %q in a read-only scope", name)
	}
	e.values[name] = value
	return nil
}

// Assign updates an existing binding in the nearest frame where it appears.
func (e *Environment) Assign(name string, value Value) error {
	for scope := e; scope != nil; scope = scope.parent {
		if _, ok := scope.values[name]; !ok {
			continue
		}
		if scope.frozen {
			return langerr.Type("cannot assign to builtin %q", name)
		}
		scope.values[name] = value
		return nil
	}
	return langerr.Reference("setting undefined variable: %s", name)
}

// Lookup searches outward through the scope chain.
func (e *Environment) Lookup(name string) (Value, bool) {
	for scope := e; scope != nil; scope = scope.parent {
		if v, ok := scope.values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Get is Lookup that fails with a ReferenceError.
func (e *Environment) Get(name string) (Value, error) {
	if v, ok := e.Lookup(name); ok {
		return v, nil
	}
	return nil, langerr.Reference("undefined variable: %s", name)
}

// Keys returns this frame's binding names in sorted order.
func (e *Environment) Keys() []string {
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Extend creates a new child scope.
func (e *Environment) Extend() *Environment {
	return NewEnvironment(e)
}
