// Package container ties the instance graph, the policy pipeline, and
// build sessions together behind a small façade with generic accessors.
//
// # Usage
//
// Register instances against plugin types, then resolve; every
// resolution runs in a fresh session, so transient memoization never
// leaks between calls:
//
//	c := container.New(container.WithVersion("1.4.0"))
//	container.Value(c, &Config{Addr: ":8080"})
//	container.Provide(c, func(s source.Session) (*Server, error) {
//		cfg, err := s.GetDefault(reflect.TypeFor[*Config]())
//		if err != nil {
//			return nil, err
//		}
//		return NewServer(cfg.(*Config)), nil
//	}).Scoped(c.Singletons())
//
//	server, err := container.Resolve[*Server](c)
package container

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/rguerreiro/structuremap/graph"
	"github.com/rguerreiro/structuremap/pipeline"
	"github.com/rguerreiro/structuremap/source"
)

const (
	DefaultVersion = "development"
)

// config holds configuration options for a Container.
type config struct {
	version  string
	policies *pipeline.Policies
	log      *slog.Logger
}

// Option configures a Container.
type Option func(*config)

// WithVersion sets the application version reported by the container.
func WithVersion(version string) Option {
	return func(c *config) {
		if version = strings.TrimSpace(version); version != "" {
			c.version = version
		}
	}
}

// WithPolicies replaces the container's policy set. A nil value is
// ignored.
func WithPolicies(p *pipeline.Policies) Option {
	return func(c *config) {
		if p != nil {
			c.policies = p
		}
	}
}

// WithLogger provides a custom logger passed down to every session. If
// not set, the container defaults to slog.Default(). A nil value is
// ignored.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// Container owns one instance graph, one policy set, and one
// process-wide singleton cache. It is safe for concurrent use; each
// resolution runs in its own session.
type Container struct {
	version    string
	graph      *graph.Graph
	policies   *pipeline.Policies
	singletons *pipeline.Singleton
	log        *slog.Logger
}

// New creates an empty container with the given options.
func New(opts ...Option) *Container {
	c := config{
		version:  DefaultVersion,
		policies: pipeline.NewPolicies(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&c)
	}

	return &Container{
		version:    c.version,
		graph:      graph.New(),
		policies:   c.policies,
		singletons: pipeline.NewSingleton(),
		log:        c.log,
	}
}

// Version returns the application version.
func (c *Container) Version() string { return c.version }

// Graph exposes the underlying instance registry.
func (c *Container) Graph() *graph.Graph { return c.graph }

// Policies exposes the policy set applied during plan compilation.
func (c *Container) Policies() *pipeline.Policies { return c.policies }

// Singletons returns the container-wide singleton lifecycle. Instances
// scoped to it are built at most once for the container's lifetime.
func (c *Container) Singletons() *pipeline.Singleton { return c.singletons }

// Session spawns a fresh build session over the container's graph and
// policies. Explicit arguments and other options apply to that session
// only.
func (c *Container) Session(opts ...pipeline.Option) *pipeline.Session {
	opts = append([]pipeline.Option{pipeline.WithLogger(c.log)}, opts...)
	return pipeline.NewSession(c.graph, c.policies, opts...)
}

// Register adds an instance for the plugin type and returns it for
// further configuration.
func (c *Container) Register(t reflect.Type, inst *pipeline.Instance) *pipeline.Instance {
	c.graph.AddInstance(t, inst)
	return inst
}

// GetInstance resolves the default object for the plugin type in a
// fresh session.
func (c *Container) GetInstance(t reflect.Type) (any, error) {
	return c.Session().GetDefault(t)
}

// GetNamed resolves the object of the instance registered under the
// given name in a fresh session.
func (c *Container) GetNamed(t reflect.Type, name string) (any, error) {
	return c.Session().GetNamed(t, name)
}

// Value registers a constant instance for the plugin type T.
func Value[T any](c *Container, v T) *pipeline.Instance {
	return c.Register(reflect.TypeOf((*(T))(nil)).Elem(), pipeline.NewConstant(v))
}

// Provide registers a delegate-backed instance for the plugin type T.
func Provide[T any](c *Container, fn func(s source.Session) (T, error)) *pipeline.Instance {
	return c.Register(reflect.TypeOf((*(T))(nil)).Elem(), pipeline.NewLambda("", fn))
}

// Construct registers a configured instance of the plugin type T built
// from the given constructor descriptors. Constructor selection happens
// through the policy pipeline on first resolution.
func Construct[T any](c *Container, ctors ...*source.Constructor) *pipeline.Instance {
	return c.Register(
		reflect.TypeOf((*(T))(nil)).Elem(),
		pipeline.NewConfigured(reflect.TypeOf((*(T))(nil)).Elem(), ctors...),
	)
}

// Resolve resolves the default object for the plugin type T in a fresh
// session.
func Resolve[T any](c *Container, opts ...pipeline.Option) (T, error) {
	v, err := c.Session(opts...).GetDefault(reflect.TypeOf((*(T))(nil)).Elem())
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

// ResolveNamed resolves the object of the named instance of the plugin
// type T in a fresh session.
func ResolveNamed[T any](c *Container, name string, opts ...pipeline.Option) (T, error) {
	v, err := c.Session(opts...).GetNamed(reflect.TypeOf((*(T))(nil)).Elem(), name)
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

// Try resolves the default object for the plugin type T, reporting
// absence instead of an error when no default is configured.
func Try[T any](c *Container, opts ...pipeline.Option) (T, bool, error) {
	v, ok, err := c.Session(opts...).TryGetDefault(reflect.TypeOf((*(T))(nil)).Elem())
	if err != nil || !ok {
		var zero T
		return zero, ok, err
	}
	t, err := cast[T](v)
	return t, err == nil, err
}

// Must resolves the default object for the plugin type T and panics on
// failure. Intended for wiring code where a missing dependency is a
// programming error.
func Must[T any](c *Container, opts ...pipeline.Option) T {
	v, err := Resolve[T](c, opts...)
	if err != nil {
		panic(err)
	}
	return v
}

// cast narrows a resolved value to T, tolerating nil for nilable types.
func cast[T any](v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf(
			"resolved %T where %T was requested", v, zero)
	}
	return t, nil
}
