package pipeline

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/rguerreiro/structuremap/source"
)

// NewConstant creates an instance that always yields the given value.
func NewConstant(v any) *Instance {
	return NewInstance(fixed{src: source.Constant(v)})
}

// NewNull creates an instance that yields the zero value of t.
func NewNull(t reflect.Type) *Instance {
	return NewInstance(fixed{src: source.Null(t)})
}

// NewReference creates a dynamic instance that resolves another instance
// of t through the session; an empty name refers to the default.
func NewReference(t reflect.Type, name string) *Instance {
	return NewInstance(fixed{src: source.Reference(t, name)})
}

// fixed is a template whose source does not depend on the requested
// type.
type fixed struct{ src source.Source }

func (f fixed) Describe() string { return f.src.Describe() }

func (f fixed) ReturnedType() reflect.Type { return f.src.ReturnedType() }

func (f fixed) Source(reflect.Type) (source.Source, error) {
	return f.src, nil
}

// NewLambda creates an instance whose value is produced by a delegate.
// The description identifies the delegate in diagnostics.
func NewLambda[T any](
	description string,
	fn func(s source.Session) (T, error),
) *Instance {
	return NewInstance(fixed{src: source.Lambda(description, fn)})
}

// Configured is the template for instances built from a concrete type
// plus named and typed dependency bindings. The constructor descriptor
// is chosen by the policy pipeline during build-plan compilation unless
// set explicitly.
type Configured struct {
	concrete reflect.Type
	ctors    []*source.Constructor

	mu      sync.Mutex
	chosen  *source.Constructor
	byName  map[string]source.Source
	byType  map[reflect.Type]source.Source
}

// NewConfigured creates an instance around a concrete type and its
// candidate constructor descriptors, declared in order.
func NewConfigured(concrete reflect.Type, ctors ...*source.Constructor) *Instance {
	return NewInstance(&Configured{
		concrete: concrete,
		ctors:    ctors,
		byName:   make(map[string]source.Source),
		byType:   make(map[reflect.Type]source.Source),
	})
}

// Describe implements Template.
func (c *Configured) Describe() string {
	return fmt.Sprintf("Configured %s", typeName(c.concrete))
}

// ReturnedType implements Template.
func (c *Configured) ReturnedType() reflect.Type { return c.concrete }

// Constructors returns the candidate descriptors in declared order.
func (c *Configured) Constructors() []*source.Constructor { return c.ctors }

// Constructor returns the currently chosen descriptor, or nil when
// selection has not happened yet.
func (c *Configured) Constructor() *source.Constructor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chosen
}

// SetConstructor fixes the descriptor to use, bypassing selection.
func (c *Configured) SetConstructor(ctor *source.Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chosen = ctor
}

// Bind attaches a dependency source to the parameter with the given
// name.
func (c *Configured) Bind(name string, src source.Source) *Configured {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[name] = src
	return c
}

// BindType attaches a dependency source to every parameter of the given
// type that has no name binding.
func (c *Configured) BindType(t reflect.Type, src source.Source) *Configured {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byType[t] = src
	return c
}

// Satisfiable reports whether a binding is known for the parameter,
// either by name or by type. Parameters without a binding are still
// buildable (they fall back to a session lookup), but only explicitly
// bound parameters count for greediest-constructor selection.
func (c *Configured) Satisfiable(p source.Param) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.Name != "" {
		if _, ok := c.byName[p.Name]; ok {
			return true
		}
	}
	_, ok := c.byType[p.Type]
	return ok
}

// Source implements Template: it derives a constructor-call source from
// the chosen descriptor, binding each parameter by name, then by type,
// then by a default session lookup of the parameter type.
func (c *Configured) Source(reflect.Type) (source.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chosen == nil {
		return nil, &ConfigurationError{
			Title: "No constructor has been selected",
			Context: fmt.Sprintf(
				"the configured instance of %s has no chosen constructor; "+
					"declare at least one descriptor", typeName(c.concrete)),
		}
	}

	params := c.chosen.Params()
	args := make([]source.Source, len(params))
	for i, p := range params {
		args[i] = c.argument(p)
	}
	return source.Call(c.chosen, args...), nil
}

// argument picks the source for one parameter. Callers hold c.mu.
func (c *Configured) argument(p source.Param) source.Source {
	if p.Name != "" {
		if src, ok := c.byName[p.Name]; ok {
			return src
		}
	}
	if src, ok := c.byType[p.Type]; ok {
		return src
	}
	return source.Reference(p.Type, "")
}

var (
	_ Template = fixed{}
	_ Template = (*Configured)(nil)
)
