package container_test

import (
	"reflect"
	"testing"

	"github.com/rguerreiro/structuremap/container"
	"github.com/rguerreiro/structuremap/pipeline"
	"github.com/rguerreiro/structuremap/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Config struct{ Addr string }

type Server struct {
	Config  *Config
	started bool
}

func NewServer(cfg *Config) *Server { return &Server{Config: cfg} }

type Auditor interface{ Layers() int }

type baseAuditor struct{}

func (baseAuditor) Layers() int { return 0 }

type loggingAuditor struct{ inner Auditor }

func (a loggingAuditor) Layers() int { return a.inner.Layers() + 1 }

func TestVersion(t *testing.T) {
	assert.Equal(t, container.DefaultVersion, container.New().Version())
	assert.Equal(
		t, "1.4.0", container.New(container.WithVersion("1.4.0")).Version())
	assert.Equal(
		t, container.DefaultVersion,
		container.New(container.WithVersion("  ")).Version())
}

func TestResolveValue(t *testing.T) {
	c := container.New()
	cfg := &Config{Addr: ":8080"}
	container.Value(c, cfg)

	got, err := container.Resolve[*Config](c)
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}

func TestResolveMissingDefault(t *testing.T) {
	c := container.New()

	_, err := container.Resolve[*Config](c)
	require.Error(t, err)

	var cfgErr *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Context, "*container_test.Config")
}

func TestTry(t *testing.T) {
	c := container.New()

	_, ok, err := container.Try[*Config](c)
	require.NoError(t, err)
	assert.False(t, ok)

	container.Value(c, &Config{})
	v, ok, err := container.Try[*Config](c)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestMustPanicsOnMissingDefault(t *testing.T) {
	c := container.New()
	assert.Panics(t, func() { container.Must[*Config](c) })
}

func TestProvideResolvesDependenciesThroughSession(t *testing.T) {
	c := container.New()
	container.Value(c, &Config{Addr: ":9090"})
	container.Provide(c, func(s source.Session) (*Server, error) {
		cfg, err := s.GetDefault(reflect.TypeOf((*(*Config))(nil)).Elem())
		if err != nil {
			return nil, err
		}
		return NewServer(cfg.(*Config)), nil
	})

	srv, err := container.Resolve[*Server](c)
	require.NoError(t, err)
	require.NotNil(t, srv.Config)
	assert.Equal(t, ":9090", srv.Config.Addr)
}

func TestConstructAutoWires(t *testing.T) {
	c := container.New()
	container.Value(c, &Config{Addr: ":7070"})
	container.Construct[*Server](
		c, source.MustConstructor(NewServer, "config"))

	srv, err := container.Resolve[*Server](c)
	require.NoError(t, err)
	require.NotNil(t, srv.Config)
	assert.Equal(t, ":7070", srv.Config.Addr)
}

func TestResolveNamed(t *testing.T) {
	c := container.New()
	container.Value(c, &Config{Addr: ":1"}).Named("internal")
	container.Value(c, &Config{Addr: ":2"}).Named("public")

	got, err := container.ResolveNamed[*Config](c, "public")
	require.NoError(t, err)
	assert.Equal(t, ":2", got.Addr)

	// The first registration stays the default.
	def, err := container.Resolve[*Config](c)
	require.NoError(t, err)
	assert.Equal(t, ":1", def.Addr)
}

func TestSingletonScopeSpansSessions(t *testing.T) {
	c := container.New()
	container.Provide(c, func(source.Session) (*Server, error) {
		return &Server{}, nil
	}).Scoped(c.Singletons())

	first := container.Must[*Server](c)
	second := container.Must[*Server](c)
	assert.Same(t, first, second)
}

func TestTransientScopeIsPerResolution(t *testing.T) {
	c := container.New()
	container.Provide(c, func(source.Session) (*Server, error) {
		return &Server{}, nil
	})

	first := container.Must[*Server](c)
	second := container.Must[*Server](c)
	assert.NotSame(t, first, second)
}

func TestExplicitArgumentOverridesDefault(t *testing.T) {
	c := container.New()
	container.Value(c, &Config{Addr: ":real"})

	override := &Config{Addr: ":test"}
	got, err := container.Resolve[*Config](c, pipeline.Arg(override))
	require.NoError(t, err)
	assert.Same(t, override, got)
}

func TestDecoratedResolution(t *testing.T) {
	c := container.New()
	container.Provide(c, func(source.Session) (Auditor, error) {
		return baseAuditor{}, nil
	}).Intercepted(
		pipeline.Decorate("", func(a Auditor) (Auditor, error) {
			return loggingAuditor{inner: a}, nil
		}),
		pipeline.Decorate("", func(a Auditor) (Auditor, error) {
			return loggingAuditor{inner: a}, nil
		}),
	)

	a, err := container.Resolve[Auditor](c)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Layers())
}

func TestActivatedResolution(t *testing.T) {
	c := container.New()
	container.Provide(c, func(source.Session) (*Server, error) {
		return &Server{}, nil
	}).Intercepted(pipeline.Activate("start", func(s *Server) error {
		s.started = true
		return nil
	}))

	srv := container.Must[*Server](c)
	assert.True(t, srv.started)
}

// An instance producing a value the requested type cannot hold fails
// with a descriptive error instead of panicking.
func TestResolveRejectsWrongType(t *testing.T) {
	c := container.New()
	c.Register(reflect.TypeOf((*(*Server))(nil)).Elem(), pipeline.NewConstant("oops"))

	_, err := container.Resolve[*Server](c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "string")
}
