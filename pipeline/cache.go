package pipeline

import (
	"fmt"
	"reflect"
)

// Resolver is the session capability the cache delegates to on a miss.
// It may raise construction errors, which the cache propagates without
// memoizing the failed attempt.
type Resolver interface {
	// ResolveFromLifecycle produces the object through the instance's
	// effective lifecycle, which may consult the process-wide singleton
	// cache.
	ResolveFromLifecycle(t reflect.Type, inst *Instance) (any, error)

	// BuildUnique produces a fresh object, bypassing every cache.
	BuildUnique(t reflect.Type, inst *Instance) (any, error)
}

// SessionCache memoizes object resolution for one logical build or
// request scope. It holds the (type, instance) memo map, the per-type
// default map, and the immutable explicit-argument overrides supplied at
// session creation. A SessionCache is not safe for concurrent use; one
// session must not be shared across concurrently executing goroutines.
type SessionCache struct {
	resolver Resolver
	parent   Lifecycle
	objects  map[uint64]any
	defaults map[reflect.Type]any
	args     map[reflect.Type]any
}

// NewSessionCache creates a cache delegating misses to the resolver.
// The explicit arguments take precedence over any configured default and
// are immutable for the cache's lifetime; parent is the enclosing
// scope's lifecycle, used when an instance declares none.
func NewSessionCache(
	resolver Resolver,
	parent Lifecycle,
	args map[reflect.Type]any,
) *SessionCache {
	copied := make(map[reflect.Type]any, len(args))
	for t, v := range args {
		copied[t] = v
	}
	return &SessionCache{
		resolver: resolver,
		parent:   parent,
		objects:  make(map[uint64]any),
		defaults: make(map[reflect.Type]any),
		args:     copied,
	}
}

// GetObject resolves the object for the (type, instance) pair under the
// given lifecycle. The never-cache lifecycle bypasses the memo map and
// builds fresh on every call; memoizing lifecycles invoke the resolver
// at most once per pair per session. A failed resolution is not
// memoized.
func (c *SessionCache) GetObject(
	t reflect.Type,
	inst *Instance,
	lifecycle Lifecycle,
) (any, error) {
	if isUnique(lifecycle) {
		return c.resolver.BuildUnique(t, inst)
	}

	key := inst.KeyFor(t)
	if v, ok := c.objects[key]; ok {
		return v, nil
	}

	v, err := c.resolver.ResolveFromLifecycle(t, inst)
	if err != nil {
		return nil, err
	}
	c.objects[key] = v
	return v, nil
}

// GetDefault resolves the default object for the plugin type. An
// explicit argument supplied at session creation wins unconditionally
// and is cached in the default map so repeated calls skip the check.
// Without one, the graph's default instance is resolved under its own
// lifecycle; a type with no default fails with a configuration error
// naming the type.
func (c *SessionCache) GetDefault(t reflect.Type, g Graph) (any, error) {
	if v, ok := c.args[t]; ok {
		c.defaults[t] = v
		return v, nil
	}
	if v, ok := c.defaults[t]; ok {
		return v, nil
	}

	inst := g.GetDefault(t)
	if inst == nil {
		return nil, &ConfigurationError{
			Title: "No default instance could be determined",
			Context: fmt.Sprintf(
				"no default instance is registered for plugin type %s",
				typeName(t)),
		}
	}

	v, err := c.GetObject(t, inst, inst.DetermineLifecycle(c.parent))
	if err != nil {
		return nil, err
	}
	c.defaults[t] = v
	return v, nil
}

// TryGetDefault is GetDefault returning absence instead of a
// configuration error when no default exists. Construction failures
// still propagate.
func (c *SessionCache) TryGetDefault(t reflect.Type, g Graph) (any, bool, error) {
	if v, ok := c.args[t]; ok {
		c.defaults[t] = v
		return v, true, nil
	}
	if v, ok := c.defaults[t]; ok {
		return v, true, nil
	}

	inst := g.GetDefault(t)
	if inst == nil {
		return nil, false, nil
	}

	v, err := c.GetObject(t, inst, inst.DetermineLifecycle(c.parent))
	if err != nil {
		return nil, false, err
	}
	c.defaults[t] = v
	return v, true, nil
}
