package pipeline

import (
	"fmt"
	"reflect"

	"github.com/rguerreiro/structuremap/source"
)

// Error titles for the two interceptor failure modes.
const (
	titleActivationFailure = "Activation of the built object failed"
	titleDecorationFailure = "Decoration of the built object failed"
)

// Visitor receives one callback per interceptor, keyed by kind, in
// declared order. Implementations are inspection tooling only; a visit
// builds nothing and must not alter state.
type Visitor interface {
	Activator(i Interceptor)
	Decorator(i Interceptor)
}

// InterceptionPlan compiles an ordered interceptor list plus an inner
// source into a single source that also performs post-construction side
// effects and wrapping. It is itself a source.Source.
//
// Composition is independent of declaration order across kinds: all
// activators run first, in declared order, against the freshly built
// inner object; all decorators then wrap outward, in declared order.
// Activators therefore always observe the innermost concrete object,
// never an already-decorated wrapper.
type InterceptionPlan struct {
	pluginType   reflect.Type
	inner        source.Source
	interceptors []Interceptor
	activators   []Interceptor
	decorators   []Interceptor
}

// NewInterceptionPlan validates and compiles the given interceptors
// around inner. Every decorator's accepted type must be compatible with
// the plugin type; a violation fails here, before any object is built.
func NewInterceptionPlan(
	pluginType reflect.Type,
	inner source.Source,
	policies *Policies,
	interceptors []Interceptor,
) (*InterceptionPlan, error) {
	p := &InterceptionPlan{
		pluginType:   pluginType,
		inner:        inner,
		interceptors: interceptors,
	}
	for _, i := range interceptors {
		switch i.Kind() {
		case KindDecorator:
			if !compatible(pluginType, i.Accepts()) {
				return nil, &ConfigurationError{
					Title: "Decorator is incompatible with the plugin type",
					Context: fmt.Sprintf(
						"decorator %s accepts %s, which cannot hold values of plugin type %s",
						i.Signature(), typeName(i.Accepts()), typeName(pluginType)),
				}
			}
			p.decorators = append(p.decorators, i)
		default:
			p.activators = append(p.activators, i)
		}
	}
	return p, nil
}

// Build evaluates the inner source, runs every activator against the
// raw object, then applies each decorator to the output of the previous
// step. Interceptor failures are wrapped as InterceptorError with the
// failing signature embedded; the inner source's own failures propagate
// untouched.
func (p *InterceptionPlan) Build(s source.Session) (any, error) {
	obj, err := p.inner.Build(s)
	if err != nil {
		return nil, err
	}

	for _, a := range p.activators {
		if _, err := a.run(s, obj); err != nil {
			return nil, &InterceptorError{
				Title:     titleActivationFailure,
				Signature: renderFailing(a),
				Cause:     err,
			}
		}
	}

	for _, d := range p.decorators {
		next, err := d.run(s, obj)
		if err != nil {
			return nil, &InterceptorError{
				Title:     titleDecorationFailure,
				Signature: renderFailing(d),
				Cause:     err,
			}
		}
		obj = next
	}

	return obj, nil
}

// renderFailing names a failing interceptor: its rendered signature,
// prefixed with the explicit description when one was given.
func renderFailing(i Interceptor) string {
	if d := i.Describe(); d != i.Signature() {
		return fmt.Sprintf("%s (%s)", d, i.Signature())
	}
	return i.Signature()
}

// Describe implements source.Source.
func (p *InterceptionPlan) Describe() string {
	return fmt.Sprintf(
		"Interception plan with %d interceptor(s) around %s",
		len(p.interceptors), p.inner.Describe())
}

// ReturnedType reports the inner source's produced type when no
// decorator replaces the value. With decorators the final type is only
// known once the chain runs, so it is indeterminate.
func (p *InterceptionPlan) ReturnedType() reflect.Type {
	if len(p.decorators) > 0 {
		return nil
	}
	return p.inner.ReturnedType()
}

// Visit dispatches each interceptor to the visitor in declared order.
func (p *InterceptionPlan) Visit(v Visitor) {
	for _, i := range p.interceptors {
		switch i.Kind() {
		case KindDecorator:
			v.Decorator(i)
		default:
			v.Activator(i)
		}
	}
}

// compatible reports whether values of the plugin type can flow into an
// interceptor accepting the given type, in either direction: a plugin
// value may be assignable to the accepted type, or the accepted type may
// be a narrowing of the plugin type (a concrete type behind an
// interface-typed plugin).
func compatible(pluginType, accepted reflect.Type) bool {
	if pluginType == nil || accepted == nil {
		return true
	}
	return pluginType.AssignableTo(accepted) || accepted.AssignableTo(pluginType)
}

// BuildPlan is the compiled procedure for one (instance, requested type)
// pair: the policy pipeline has been applied, the instance's source
// obtained, and its interceptors wrapped. A plan is immutable once
// compiled and safe for concurrent use from independent sessions.
type BuildPlan struct {
	pluginType reflect.Type
	instance   *Instance
	src        source.Source
}

// Build invokes the compiled procedure against the given session.
func (p *BuildPlan) Build(s source.Session) (any, error) {
	return p.src.Build(s)
}

// PluginType reports the requested type the plan was compiled for.
func (p *BuildPlan) PluginType() reflect.Type { return p.pluginType }

// Instance returns the owning instance, for diagnostics.
func (p *BuildPlan) Instance() *Instance { return p.instance }

// Describe implements source.Source.
func (p *BuildPlan) Describe() string {
	return fmt.Sprintf(
		"Build plan for Instance of %s (%s)",
		typeName(p.pluginType), p.instance.Name())
}

// ReturnedType implements source.Source.
func (p *BuildPlan) ReturnedType() reflect.Type { return p.src.ReturnedType() }

var (
	_ source.Source = (*InterceptionPlan)(nil)
	_ source.Source = (*BuildPlan)(nil)
)
