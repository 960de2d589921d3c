package pipeline

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/rguerreiro/structuremap/source"
)

// config holds the configuration options for a Session.
type config struct {
	parent Lifecycle
	args   map[reflect.Type]any
	log    *slog.Logger
}

// Option configures a Session.
type Option func(*config)

// WithArg supplies an explicit argument for the given plugin type. It
// takes precedence over any configured default and is immutable for the
// session's lifetime.
func WithArg(t reflect.Type, v any) Option {
	return func(c *config) {
		if t != nil {
			c.args[t] = v
		}
	}
}

// Arg is the typed form of WithArg.
func Arg[T any](v T) Option {
	return WithArg(reflect.TypeOf((*(T))(nil)).Elem(), v)
}

// WithLifecycle sets the enclosing scope's lifecycle, inherited by
// instances that declare none. A nil value is ignored and the default
// of Transient applies.
func WithLifecycle(l Lifecycle) Option {
	return func(c *config) {
		if l != nil {
			c.parent = l
		}
	}
}

// WithLogger provides a custom logger for the session. If not set, the
// session defaults to slog.Default(). A nil value is ignored.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// Session is one logical build scope: it owns a SessionCache, reads the
// instance graph, and drives build-plan compilation through the policy
// pipeline. A Session is not safe for concurrent use; independent
// goroutines must each create their own.
type Session struct {
	graph    Graph
	policies *Policies
	parent   Lifecycle
	cache    *SessionCache
	log      *slog.Logger

	// building tracks the (type, instance) pairs currently under
	// construction on this session's call stack, to detect cycles.
	building map[uint64]bool
	path     []string
}

// NewSession creates a session over the given graph and policy set.
func NewSession(g Graph, policies *Policies, opts ...Option) *Session {
	c := config{
		args: make(map[reflect.Type]any),
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&c)
	}

	s := &Session{
		graph:    g,
		policies: policies,
		parent:   c.parent,
		log:      c.log,
		building: make(map[uint64]bool),
	}
	s.cache = NewSessionCache(s, c.parent, c.args)
	return s
}

// Cache exposes the session's memoization layer.
func (s *Session) Cache() *SessionCache { return s.cache }

// GetDefault resolves the default object for the plugin type. It
// implements source.Session, so reference sources inside build plans
// resolve through the same cache as top-level callers.
func (s *Session) GetDefault(t reflect.Type) (any, error) {
	return s.cache.GetDefault(t, s.graph)
}

// TryGetDefault is GetDefault returning absence instead of a
// configuration error when no default is configured.
func (s *Session) TryGetDefault(t reflect.Type) (any, bool, error) {
	return s.cache.TryGetDefault(t, s.graph)
}

// GetNamed resolves the object produced by the instance registered
// under the given name for the plugin type.
func (s *Session) GetNamed(t reflect.Type, name string) (any, error) {
	inst := s.graph.FindInstance(t, name)
	if inst == nil {
		return nil, &ConfigurationError{
			Title: "No instance could be found",
			Context: fmt.Sprintf(
				"no instance named %q is registered for plugin type %s",
				name, typeName(t)),
		}
	}
	return s.GetObject(t, inst)
}

// GetObject resolves the object for the (type, instance) pair through
// the session cache under the instance's effective lifecycle.
func (s *Session) GetObject(t reflect.Type, inst *Instance) (any, error) {
	return s.cache.GetObject(t, inst, inst.DetermineLifecycle(s.parent))
}

// ResolveFromLifecycle implements Resolver: it routes construction
// through the instance's effective lifecycle, which may consult the
// process-wide singleton cache.
func (s *Session) ResolveFromLifecycle(t reflect.Type, inst *Instance) (any, error) {
	if err := s.enter(t, inst); err != nil {
		return nil, err
	}
	defer s.exit(t, inst)
	return inst.DetermineLifecycle(s.parent).Resolve(s, t, inst)
}

// BuildUnique implements Resolver: it builds a fresh object, bypassing
// every cache.
func (s *Session) BuildUnique(t reflect.Type, inst *Instance) (any, error) {
	if err := s.enter(t, inst); err != nil {
		return nil, err
	}
	defer s.exit(t, inst)
	return s.BuildNew(t, inst)
}

// enter marks the (type, instance) pair as under construction on this
// session's call stack. A pair that reenters its own construction is a
// configuration mistake; it must fail here, before the lifecycle is
// consulted, because a reentrant singleflight call on the same
// singleton key would block forever instead of returning.
func (s *Session) enter(t reflect.Type, inst *Instance) error {
	step := fmt.Sprintf("%s (%s)", typeName(t), inst.Name())
	key := inst.KeyFor(t)
	if s.building[key] {
		return &ConfigurationError{
			Title:   "Circular dependency detected",
			Context: strings.Join(append(s.path, step), " -> "),
		}
	}
	s.building[key] = true
	s.path = append(s.path, step)
	return nil
}

// exit unmarks the pair once its construction unwinds.
func (s *Session) exit(t reflect.Type, inst *Instance) {
	delete(s.building, inst.KeyFor(t))
	s.path = s.path[:len(s.path)-1]
}

// BuildNew implements Builder: it compiles the instance's build plan if
// necessary and invokes it against this session.
func (s *Session) BuildNew(t reflect.Type, inst *Instance) (any, error) {
	if !inst.HasBuildPlan() {
		s.log.Debug(
			"Compiling build plan",
			"pluginType", typeName(t),
			"instance", inst.Name(),
		)
	}
	plan, err := inst.ResolveBuildPlan(t, s.policies)
	if err != nil {
		return nil, err
	}
	return plan.Build(s)
}

var (
	_ source.Session = (*Session)(nil)
	_ Resolver       = (*Session)(nil)
	_ Builder        = (*Session)(nil)
)
