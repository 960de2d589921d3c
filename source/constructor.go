package source

import (
	"fmt"
	"reflect"
	"strings"
)

// Constructor describes a constructor-like factory for a concrete type:
// a Go function returning either T or (T, error), plus the derived
// parameter list. Descriptors are first-class values so the selection
// algorithm in the pipeline package stays independent of how they were
// obtained.
type Constructor struct {
	fn        reflect.Value
	returns   reflect.Type
	params    []Param
	preferred bool
}

// Param is one constructor parameter. The name is optional and only used
// for binding lookups and diagnostics; the type is authoritative.
type Param struct {
	Name string
	Type reflect.Type
}

// NewConstructor derives a descriptor from fn, which must be a function
// returning T or (T, error). Parameter names are optional; when given,
// they are matched positionally against the function's parameters.
func NewConstructor(fn any, names ...string) (*Constructor, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %T", fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("variadic constructor %s is not supported", t)
	}
	switch t.NumOut() {
	case 1:
	case 2:
		if t.Out(1) != reflect.TypeOf((*(error))(nil)).Elem() {
			return nil, fmt.Errorf(
				"second return value of constructor %s must be error", t)
		}
	default:
		return nil, fmt.Errorf(
			"constructor %s must return T or (T, error)", t)
	}
	if len(names) > t.NumIn() {
		return nil, fmt.Errorf(
			"constructor %s takes %d parameters, %d names given",
			t, t.NumIn(), len(names))
	}

	params := make([]Param, t.NumIn())
	for i := range params {
		params[i].Type = t.In(i)
		if i < len(names) {
			params[i].Name = names[i]
		}
	}

	return &Constructor{fn: v, returns: t.Out(0), params: params}, nil
}

// MustConstructor is like NewConstructor but panics on a malformed
// function. Intended for registration code where the function shape is a
// programming error, not a runtime condition.
func MustConstructor(fn any, names ...string) *Constructor {
	c, err := NewConstructor(fn, names...)
	if err != nil {
		panic(err)
	}
	return c
}

// Prefer marks the descriptor as the explicitly chosen constructor,
// taking precedence over heuristic selection. It returns the receiver
// for chaining during registration.
func (c *Constructor) Prefer() *Constructor {
	c.preferred = true
	return c
}

// Preferred reports whether the descriptor carries the explicit mark.
func (c *Constructor) Preferred() bool { return c.preferred }

// Params returns the derived parameter list.
func (c *Constructor) Params() []Param { return c.params }

// ReturnedType reports the concrete type the constructor produces.
func (c *Constructor) ReturnedType() reflect.Type { return c.returns }

// Signature renders the descriptor as "new T(A, B)" for diagnostics.
func (c *Constructor) Signature() string {
	args := make([]string, len(c.params))
	for i, p := range c.params {
		args[i] = name(p.Type)
	}
	return fmt.Sprintf("new %s(%s)", name(c.returns), strings.Join(args, ", "))
}

// invoke calls the constructor with already-built argument values,
// recovering panics into errors and unwrapping an (T, error) result.
func (c *Constructor) invoke(args []reflect.Value) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			v = nil
			err = fmt.Errorf("panic in %s: %v", c.Signature(), rec)
		}
	}()

	out := c.fn.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// Call returns a source that invokes the constructor, building each
// argument from the corresponding sub-source first. The number of
// sub-sources must match the parameter count; a mismatch surfaces as a
// build failure, not a panic.
func Call(ctor *Constructor, args ...Source) Source {
	return call{ctor: ctor, args: args}
}

type call struct {
	ctor *Constructor
	args []Source
}

func (c call) Build(s Session) (any, error) {
	if len(c.args) != len(c.ctor.params) {
		return nil, fmt.Errorf(
			"%s expects %d arguments, %d sources bound",
			c.ctor.Signature(), len(c.ctor.params), len(c.args))
	}

	values := make([]reflect.Value, len(c.args))
	for i, src := range c.args {
		p := c.ctor.params[i]
		arg, err := src.Build(s)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to build argument %s of %s: %w",
				describeParam(p, i), c.ctor.Signature(), err)
		}
		if arg == nil {
			values[i] = reflect.Zero(p.Type)
			continue
		}
		v := reflect.ValueOf(arg)
		if !v.Type().AssignableTo(p.Type) {
			if !v.Type().ConvertibleTo(p.Type) {
				return nil, fmt.Errorf(
					"argument %s of %s: cannot use %s as %s",
					describeParam(p, i), c.ctor.Signature(),
					v.Type(), p.Type)
			}
			v = v.Convert(p.Type)
		}
		values[i] = v
	}

	return c.ctor.invoke(values)
}

func (c call) Describe() string { return c.ctor.Signature() }

func (c call) ReturnedType() reflect.Type { return c.ctor.returns }

func describeParam(p Param, i int) string {
	if p.Name != "" {
		return fmt.Sprintf("%q (%s)", p.Name, name(p.Type))
	}
	return fmt.Sprintf("#%d (%s)", i, name(p.Type))
}

var _ Source = call{}
