package pipeline

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/rguerreiro/structuremap/source"
)

// Kind discriminates the two interceptor variants. The set is closed:
// every interceptor is either an activator or a decorator.
type Kind uint8

const (
	// KindActivator marks a side-effecting interceptor that runs against
	// the freshly built object without replacing it.
	KindActivator Kind = iota

	// KindDecorator marks a transforming interceptor that replaces the
	// value flowing through the chain with a wrapped or derived one.
	KindDecorator
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDecorator:
		return "decorator"
	default:
		return "activator"
	}
}

// Interceptor is a post-construction step attached to an instance. The
// variant set is closed to this package; use Activate, ActivateWith,
// Decorate, or DecorateWith to create one.
type Interceptor interface {
	// Kind reports the interceptor variant.
	Kind() Kind

	// Accepts returns the type the interceptor can handle. Compatibility
	// against the plugin type is checked at attach and plan-construction
	// time, never at invocation time.
	Accepts() reflect.Type

	// Describe returns the human-readable description used in
	// diagnostics. It defaults to the rendered signature.
	Describe() string

	// Signature renders the interceptor's shape, such as
	// "pkg.StartServer(pkg.Server)" or "new Decorated(pkg.Widget)".
	Signature() string

	// run applies the interceptor to obj. Activators return obj
	// unchanged; decorators return the replacement value.
	run(s source.Session, obj any) (any, error)
}

// Activate creates an activator that invokes fn with the built object.
// An empty description falls back to the rendered signature.
func Activate[T any](description string, fn func(obj T) error) Interceptor {
	return activator[T]{
		description: description,
		signature:   renderActivation[T](fn, false),
		fn: func(_ source.Session, obj T) error {
			return fn(obj)
		},
	}
}

// ActivateWith is like Activate for activators that also need the build
// session, typically to resolve further collaborators.
func ActivateWith[T any](
	description string,
	fn func(s source.Session, obj T) error,
) Interceptor {
	return activator[T]{
		description: description,
		signature:   renderActivation[T](fn, true),
		fn:          fn,
	}
}

type activator[T any] struct {
	description string
	signature   string
	fn          func(s source.Session, obj T) error
}

func (a activator[T]) Kind() Kind { return KindActivator }

func (a activator[T]) Accepts() reflect.Type { return reflect.TypeOf((*(T))(nil)).Elem() }

func (a activator[T]) Describe() string {
	if a.description != "" {
		return a.description
	}
	return a.signature
}

func (a activator[T]) Signature() string { return a.signature }

func (a activator[T]) run(s source.Session, obj any) (any, error) {
	t, ok := obj.(T)
	if !ok {
		return nil, fmt.Errorf(
			"cannot apply to %T, expected %s", obj, typeName(a.Accepts()))
	}
	if err := a.fn(s, t); err != nil {
		return nil, err
	}
	return obj, nil
}

// Decorate creates a decorator that replaces a value of the accepted
// type T with the result of fn, a (possibly different) value of type D.
func Decorate[D, T any](description string, fn func(obj T) (D, error)) Interceptor {
	return decorator[D, T]{
		description: description,
		signature:   renderDecoration[D, T](false),
		fn: func(_ source.Session, obj T) (D, error) {
			return fn(obj)
		},
	}
}

// DecorateWith is like Decorate for decorators that also need the build
// session.
func DecorateWith[D, T any](
	description string,
	fn func(s source.Session, obj T) (D, error),
) Interceptor {
	return decorator[D, T]{
		description: description,
		signature:   renderDecoration[D, T](true),
		fn:          fn,
	}
}

type decorator[D, T any] struct {
	description string
	signature   string
	fn          func(s source.Session, obj T) (D, error)
}

func (d decorator[D, T]) Kind() Kind { return KindDecorator }

func (d decorator[D, T]) Accepts() reflect.Type { return reflect.TypeOf((*(T))(nil)).Elem() }

func (d decorator[D, T]) Describe() string {
	if d.description != "" {
		return d.description
	}
	return d.signature
}

func (d decorator[D, T]) Signature() string { return d.signature }

func (d decorator[D, T]) run(s source.Session, obj any) (any, error) {
	t, ok := obj.(T)
	if !ok {
		return nil, fmt.Errorf(
			"cannot decorate %T, expected %s", obj, typeName(d.Accepts()))
	}
	return d.fn(s, t)
}

// renderActivation formats an activator as "FuncName(T)", or
// "FuncName(Session, T)" when the session is passed through. The
// function name is recovered from the runtime; anonymous functions
// render as their compiler-assigned name.
func renderActivation[T any](fn any, withSession bool) string {
	target := funcName(fn)
	accepted := typeName(reflect.TypeOf((*(T))(nil)).Elem())
	if withSession {
		return fmt.Sprintf("%s(Session, %s)", target, accepted)
	}
	return fmt.Sprintf("%s(%s)", target, accepted)
}

// renderDecoration formats a decorator as "new D(T)", or
// "new D(Session, T)" when the session is passed through.
func renderDecoration[D, T any](withSession bool) string {
	decorated := typeName(reflect.TypeOf((*(D))(nil)).Elem())
	accepted := typeName(reflect.TypeOf((*(T))(nil)).Elem())
	if withSession {
		return fmt.Sprintf("new %s(Session, %s)", decorated, accepted)
	}
	return fmt.Sprintf("new %s(%s)", decorated, accepted)
}

// funcName resolves the package-qualified name of fn, trimmed to its
// last path segment.
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return fmt.Sprintf("%T", fn)
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return v.Type().String()
	}
	name := f.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// typeName renders a type for diagnostics.
func typeName(t reflect.Type) string {
	if t == nil {
		return "<unknown>"
	}
	return t.String()
}

var (
	_ Interceptor = activator[any]{}
	_ Interceptor = decorator[any, any]{}
)
