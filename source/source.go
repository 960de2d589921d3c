// Package source models dependency sources: immutable, composable
// descriptions of how to obtain one value. A source is a tree; evaluating
// it against a build session either yields the value or propagates a
// construction failure.
//
// # Usage
//
// Sources are rarely built by hand. The pipeline package derives them from
// instance templates during build-plan compilation. The snippet below wires
// a constructor source whose single argument is resolved by reference:
//
//	ctor, _ := source.NewConstructor(NewServer, "addr")
//	src := source.Call(ctor, source.Reference(reflect.TypeFor[Addr](), ""))
//	server, err := src.Build(session)
package source

import (
	"fmt"
	"reflect"
)

// Session is the capability a source needs from the enclosing build: the
// ability to resolve other values by type, optionally by name. It is
// implemented by the pipeline's build session.
type Session interface {
	// GetDefault resolves the default value for the given plugin type.
	GetDefault(t reflect.Type) (any, error)

	// GetNamed resolves the value produced by the instance registered
	// under the given name for the given plugin type.
	GetNamed(t reflect.Type, name string) (any, error)
}

// Source describes one construction step. Implementations must be
// immutable; Build may be called any number of times and concurrently
// from independent sessions.
type Source interface {
	// Build evaluates the source against the given session.
	Build(s Session) (any, error)

	// Describe returns a short human-readable description used in
	// diagnostics and error trails.
	Describe() string

	// ReturnedType reports the concrete type this source produces, or
	// nil if it cannot be determined statically.
	ReturnedType() reflect.Type
}

// Constant returns a source that always yields the given value.
func Constant(v any) Source {
	return constant{v: v}
}

type constant struct{ v any }

func (c constant) Build(Session) (any, error) { return c.v, nil }

func (c constant) Describe() string {
	return fmt.Sprintf("Value: %v", c.v)
}

func (c constant) ReturnedType() reflect.Type {
	return reflect.TypeOf(c.v)
}

// Null returns a source that yields the zero value of the given type.
// For pointer, interface, map, slice, channel, and function types this is
// a typed nil.
func Null(t reflect.Type) Source {
	return null{t: t}
}

type null struct{ t reflect.Type }

func (n null) Build(Session) (any, error) {
	if n.t == nil {
		return nil, nil
	}
	return reflect.Zero(n.t).Interface(), nil
}

func (n null) Describe() string {
	return fmt.Sprintf("Null (%s)", name(n.t))
}

func (n null) ReturnedType() reflect.Type { return n.t }

// Lambda returns a source that delegates construction to fn. The
// description identifies the delegate in diagnostics; the returned type
// is taken from the type parameter.
func Lambda[T any](description string, fn func(s Session) (T, error)) Source {
	return lambda[T]{description: description, fn: fn}
}

type lambda[T any] struct {
	description string
	fn          func(s Session) (T, error)
}

func (l lambda[T]) Build(s Session) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v = nil
			err = fmt.Errorf("panic in %s: %v", l.Describe(), rec)
		}
	}()
	return l.fn(s)
}

func (l lambda[T]) Describe() string {
	if l.description != "" {
		return l.description
	}
	return fmt.Sprintf("Lambda (%s)", name(reflect.TypeOf((*(T))(nil)).Elem()))
}

func (l lambda[T]) ReturnedType() reflect.Type { return reflect.TypeOf((*(T))(nil)).Elem() }

// Reference returns a source that resolves another instance through the
// session. An empty name refers to the default instance of the type.
func Reference(t reflect.Type, name string) Source {
	return reference{t: t, name: name}
}

type reference struct {
	t    reflect.Type
	name string
}

func (r reference) Build(s Session) (any, error) {
	if r.name == "" {
		return s.GetDefault(r.t)
	}
	return s.GetNamed(r.t, r.name)
}

func (r reference) Describe() string {
	if r.name == "" {
		return fmt.Sprintf("Default of %s", name(r.t))
	}
	return fmt.Sprintf("Instance %q of %s", r.name, name(r.t))
}

// ReturnedType is nil because the referenced instance decides the
// concrete type at resolution time.
func (r reference) ReturnedType() reflect.Type { return nil }

// name renders a type for diagnostics, preferring the qualified form.
func name(t reflect.Type) string {
	if t == nil {
		return "<unknown>"
	}
	return t.String()
}

var (
	_ Source = constant{}
	_ Source = null{}
	_ Source = lambda[any]{}
	_ Source = reference{}
)
