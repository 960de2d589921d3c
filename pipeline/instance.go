package pipeline

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rguerreiro/structuremap/source"
)

// Template is the strategy behind an instance: it knows the concrete
// type the instance produces (when determinable) and how to derive a
// dependency source for a requested type.
type Template interface {
	// Describe returns a short human-readable description of the
	// construction strategy, used in diagnostics and error trails.
	Describe() string

	// ReturnedType reports the concrete type produced, or nil when the
	// instance is dynamic and the type cannot be determined.
	ReturnedType() reflect.Type

	// Source derives the dependency source for the requested type.
	Source(t reflect.Type) (source.Source, error)
}

// Instance represents one way to produce a value of some plugin type.
// Identity is assigned at creation and immutable; equality is based on
// the original identity, not the current name. All configuration happens
// through explicit setters and the policy pipeline during build-plan
// compilation.
type Instance struct {
	id       uuid.UUID
	identity string
	template Template

	// mu guards the mutable configuration; policy rules may take it
	// while the compile-once region below is held, so the two locks
	// must stay separate.
	mu           sync.Mutex
	name         string
	lifecycle    Lifecycle
	interceptors []Interceptor
	keys         map[reflect.Type]uint64

	// planMu serializes the lazy-compile-once region, covering both
	// policy application and plan caching.
	planMu   sync.Mutex
	plan     *BuildPlan
	planType reflect.Type
}

// NewInstance creates an instance around the given template. The name
// defaults to the string form of the generated identity.
func NewInstance(template Template) *Instance {
	id := uuid.New()
	return &Instance{
		id:       id,
		identity: id.String(),
		name:     id.String(),
		template: template,
		keys:     make(map[reflect.Type]uint64),
	}
}

// ID returns the process-unique identity assigned at creation.
func (i *Instance) ID() uuid.UUID { return i.id }

// Name returns the current name, which defaults to the identity string.
func (i *Instance) Name() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.name
}

// SetName renames the instance. Renaming never affects identity or
// equality.
func (i *Instance) SetName(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if name != "" {
		i.name = name
	}
}

// Named is SetName returning the receiver, for registration chaining.
func (i *Instance) Named(name string) *Instance {
	i.SetName(name)
	return i
}

// HasExplicitName reports whether the instance was given a name that
// differs from the identity's default string form.
func (i *Instance) HasExplicitName() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.name != i.identity
}

// DeclaredLifecycle returns the lifecycle set on the instance itself,
// or nil when none was declared.
func (i *Instance) DeclaredLifecycle() Lifecycle {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lifecycle
}

// SetLifecycle declares the instance's lifecycle.
func (i *Instance) SetLifecycle(l Lifecycle) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lifecycle = l
}

// Scoped is SetLifecycle returning the receiver, for registration
// chaining.
func (i *Instance) Scoped(l Lifecycle) *Instance {
	i.SetLifecycle(l)
	return i
}

// DetermineLifecycle resolves the effective lifecycle: the instance's
// own declaration wins, then the enclosing scope's, then Transient.
func (i *Instance) DetermineLifecycle(parent Lifecycle) Lifecycle {
	if l := i.DeclaredLifecycle(); l != nil {
		return l
	}
	if parent != nil {
		return parent
	}
	return Transient()
}

// ReturnedType reports the concrete type produced by the template, or
// nil for dynamic instances.
func (i *Instance) ReturnedType() reflect.Type {
	return i.template.ReturnedType()
}

// Describe returns the template's description.
func (i *Instance) Describe() string { return i.template.Describe() }

// Template returns the construction strategy, allowing callers (and the
// policy pipeline) to refine template-specific configuration.
func (i *Instance) Template() Template { return i.template }

// Configured returns the configured-construction template when the
// instance was built from a concrete type plus dependency bindings.
func (i *Instance) Configured() (*Configured, bool) {
	c, ok := i.template.(*Configured)
	return c, ok
}

// AddInterceptor appends an interceptor to the instance. When the
// returned type is known, it must be compatible with the interceptor's
// accepted type; an incompatible attach fails immediately.
func (i *Instance) AddInterceptor(in Interceptor) error {
	if rt := i.ReturnedType(); rt != nil && !compatible(rt, in.Accepts()) {
		return &ConfigurationError{
			Title: "Interceptor is incompatible with the instance",
			Context: fmt.Sprintf(
				"interceptor %s accepts %s, but the instance returns %s",
				in.Describe(), typeName(in.Accepts()), typeName(rt)),
		}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interceptors = append(i.interceptors, in)
	return nil
}

// Intercepted is AddInterceptor returning the receiver, panicking on an
// incompatible attach. Intended for registration code where the
// mismatch is a programming error.
func (i *Instance) Intercepted(ins ...Interceptor) *Instance {
	for _, in := range ins {
		if err := i.AddInterceptor(in); err != nil {
			panic(err)
		}
	}
	return i
}

// Interceptors returns a copy of the attached interceptors in declared
// order.
func (i *Instance) Interceptors() []Interceptor {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Interceptor, len(i.interceptors))
	copy(out, i.interceptors)
	return out
}

// KeyFor returns a stable hash combining the instance's identity with
// the requested type's qualified name. Keys are memoized per requested
// type and used for structural caching elsewhere in the pipeline.
func (i *Instance) KeyFor(t reflect.Type) uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	if key, ok := i.keys[t]; ok {
		return key
	}
	h := xxhash.New()
	_, _ = h.WriteString(i.identity)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(qualifiedName(t))
	key := h.Sum64()
	i.keys[t] = key
	return key
}

// Equals reports whether both instances share the same original
// identity. Renaming an instance never changes equality.
func (i *Instance) Equals(other *Instance) bool {
	return other != nil && i.identity == other.identity
}

// ResolveBuildPlan returns the compiled build plan for the requested
// type, compiling it at most once regardless of concurrent callers.
// Racing callers block until the single compilation completes and then
// observe the same plan. The policy pipeline runs inside the same
// critical section, so a plan is never observed half-finalized.
func (i *Instance) ResolveBuildPlan(
	t reflect.Type,
	policies *Policies,
) (*BuildPlan, error) {
	i.planMu.Lock()
	defer i.planMu.Unlock()

	if i.plan != nil && i.planType == t {
		return i.plan, nil
	}

	plan, err := i.compile(t, policies)
	if err != nil {
		return nil, pushFrame(err, fmt.Sprintf(
			"Attempting to create a build plan for Instance of %s (%s) -- %s",
			typeName(t), i.Name(), i.template.Describe()))
	}

	i.plan = plan
	i.planType = t
	return plan, nil
}

// compile runs the policy pipeline, derives the template's source, and
// wraps it with the interception plan. Callers hold i.planMu.
func (i *Instance) compile(t reflect.Type, policies *Policies) (*BuildPlan, error) {
	if policies != nil {
		if err := policies.Apply(t, i); err != nil {
			return nil, err
		}
	}

	src, err := i.template.Source(t)
	if err != nil {
		return nil, err
	}

	if interceptors := i.Interceptors(); len(interceptors) > 0 {
		plan, err := NewInterceptionPlan(t, src, policies, interceptors)
		if err != nil {
			return nil, err
		}
		src = plan
	}

	return &BuildPlan{pluginType: t, instance: i, src: src}, nil
}

// HasBuildPlan reports whether a compiled plan is cached, without
// forcing compilation.
func (i *Instance) HasBuildPlan() bool {
	i.planMu.Lock()
	defer i.planMu.Unlock()
	return i.plan != nil
}

// ClearBuildPlan discards the cached plan, forcing recompilation on the
// next use. Intended for configuration-reload scenarios.
func (i *Instance) ClearBuildPlan() {
	i.planMu.Lock()
	defer i.planMu.Unlock()
	i.plan = nil
	i.planType = nil
}

// qualifiedName renders the fully qualified name of a type, falling
// back to the syntactic form for unnamed types.
func qualifiedName(t reflect.Type) string {
	if t == nil {
		return "<unknown>"
	}
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
