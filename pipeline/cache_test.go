package pipeline_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/rguerreiro/structuremap/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingResolver is a fake session resolver that counts calls per
// operation and always returns fresh objects.
type countingResolver struct {
	lifecycleCalls int
	uniqueCalls    int
	err            error
}

func (r *countingResolver) ResolveFromLifecycle(
	t reflect.Type,
	inst *pipeline.Instance,
) (any, error) {
	r.lifecycleCalls++
	if r.err != nil {
		return nil, r.err
	}
	return &Widget{}, nil
}

func (r *countingResolver) BuildUnique(
	t reflect.Type,
	inst *pipeline.Instance,
) (any, error) {
	r.uniqueCalls++
	if r.err != nil {
		return nil, r.err
	}
	return &Widget{}, nil
}

// fakeGraph serves default and named instances from fixed maps.
type fakeGraph struct {
	defaults map[reflect.Type]*pipeline.Instance
	named    map[string]*pipeline.Instance
}

func (g *fakeGraph) GetDefault(t reflect.Type) *pipeline.Instance {
	return g.defaults[t]
}

func (g *fakeGraph) HasDefaultForPluginType(t reflect.Type) bool {
	return g.defaults[t] != nil
}

func (g *fakeGraph) FindInstance(_ reflect.Type, name string) *pipeline.Instance {
	return g.named[name]
}

func (g *fakeGraph) GetAllInstances(...reflect.Type) []*pipeline.Instance {
	return nil
}

func (g *fakeGraph) EachInstance(func(reflect.Type, *pipeline.Instance)) {}

var _ pipeline.Graph = (*fakeGraph)(nil)

func TestGetObjectMemoizesPerSession(t *testing.T) {
	r := &countingResolver{}
	c := pipeline.NewSessionCache(r, nil, nil)
	inst := widgetInstance()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()

	first, err := c.GetObject(wt, inst, pipeline.Transient())
	require.NoError(t, err)
	second, err := c.GetObject(wt, inst, pipeline.Transient())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.lifecycleCalls)
	assert.Equal(t, 0, r.uniqueCalls)
}

func TestGetObjectSeparatesInstances(t *testing.T) {
	r := &countingResolver{}
	c := pipeline.NewSessionCache(r, nil, nil)
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()

	first, err := c.GetObject(wt, widgetInstance(), pipeline.Transient())
	require.NoError(t, err)
	second, err := c.GetObject(wt, widgetInstance(), pipeline.Transient())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, r.lifecycleCalls)
}

func TestGetObjectUniqueBypassesMemo(t *testing.T) {
	r := &countingResolver{}
	c := pipeline.NewSessionCache(r, nil, nil)
	inst := widgetInstance()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()

	first, err := c.GetObject(wt, inst, pipeline.UniquePerRequest())
	require.NoError(t, err)
	second, err := c.GetObject(wt, inst, pipeline.UniquePerRequest())
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 0, r.lifecycleCalls)
	assert.Equal(t, 2, r.uniqueCalls)
}

func TestGetObjectDoesNotMemoizeFailures(t *testing.T) {
	r := &countingResolver{err: errors.New("boom")}
	c := pipeline.NewSessionCache(r, nil, nil)
	inst := widgetInstance()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()

	_, err := c.GetObject(wt, inst, pipeline.Transient())
	require.Error(t, err)

	r.err = nil
	v, err := c.GetObject(wt, inst, pipeline.Transient())
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, 2, r.lifecycleCalls)
}

func TestGetDefaultIsIdempotentPerSession(t *testing.T) {
	r := &countingResolver{}
	c := pipeline.NewSessionCache(r, nil, nil)
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()
	g := &fakeGraph{defaults: map[reflect.Type]*pipeline.Instance{
		wt: widgetInstance(),
	}}

	first, err := c.GetDefault(wt, g)
	require.NoError(t, err)
	second, err := c.GetDefault(wt, g)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, r.lifecycleCalls)
}

func TestGetDefaultFailsWithoutDefault(t *testing.T) {
	r := &countingResolver{}
	c := pipeline.NewSessionCache(r, nil, nil)
	g := &fakeGraph{}

	_, err := c.GetDefault(reflect.TypeOf((*(*Widget))(nil)).Elem(), g)
	require.Error(t, err)

	var cfg *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Contains(t, cfg.Title, "No default instance")
	assert.Contains(t, cfg.Context, "*pipeline_test.Widget")
}

func TestExplicitArgumentWins(t *testing.T) {
	r := &countingResolver{}
	override := &Widget{Size: 99}
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()
	c := pipeline.NewSessionCache(r, nil, map[reflect.Type]any{wt: override})

	// A default exists and would resolve, but the explicit argument
	// must win unconditionally.
	g := &fakeGraph{defaults: map[reflect.Type]*pipeline.Instance{
		wt: widgetInstance(),
	}}

	first, err := c.GetDefault(wt, g)
	require.NoError(t, err)
	second, err := c.GetDefault(wt, g)
	require.NoError(t, err)

	assert.Same(t, override, first)
	assert.Same(t, override, second)
	assert.Equal(t, 0, r.lifecycleCalls)
}

func TestTryGetDefault(t *testing.T) {
	r := &countingResolver{}
	c := pipeline.NewSessionCache(r, nil, nil)
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()

	v, ok, err := c.TryGetDefault(wt, &fakeGraph{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)

	g := &fakeGraph{defaults: map[reflect.Type]*pipeline.Instance{
		wt: widgetInstance(),
	}}
	v, ok, err = c.TryGetDefault(wt, g)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, v)
	assert.Equal(t, 1, r.lifecycleCalls)
}

func TestTryGetDefaultPropagatesConstructionFailures(t *testing.T) {
	r := &countingResolver{err: errors.New("boom")}
	c := pipeline.NewSessionCache(r, nil, nil)
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()
	g := &fakeGraph{defaults: map[reflect.Type]*pipeline.Instance{
		wt: widgetInstance(),
	}}

	_, ok, err := c.TryGetDefault(wt, g)
	assert.Error(t, err)
	assert.False(t, ok)
}
