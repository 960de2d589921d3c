package pipeline_test

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rguerreiro/structuremap/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBuilder counts constructions and can be told to fail.
type countingBuilder struct {
	builds atomic.Int32
	fail   atomic.Bool
}

func (b *countingBuilder) BuildNew(
	t reflect.Type,
	inst *pipeline.Instance,
) (any, error) {
	b.builds.Add(1)
	if b.fail.Load() {
		return nil, errors.New("construction failed")
	}
	return &Widget{}, nil
}

func TestTransientBuildsPerResolve(t *testing.T) {
	b := &countingBuilder{}
	inst := widgetInstance()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()
	lc := pipeline.Transient()

	first, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)
	second, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), b.builds.Load())
}

func TestSingletonBuildsOnce(t *testing.T) {
	b := &countingBuilder{}
	inst := widgetInstance()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()
	lc := pipeline.NewSingleton()

	first, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)
	second, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), b.builds.Load())
}

func TestSingletonCachesPerInstanceAndType(t *testing.T) {
	b := &countingBuilder{}
	lc := pipeline.NewSingleton()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()

	a, err := lc.Resolve(b, wt, widgetInstance())
	require.NoError(t, err)
	c, err := lc.Resolve(b, wt, widgetInstance())
	require.NoError(t, err)

	assert.NotSame(t, a, c)
	assert.Equal(t, int32(2), b.builds.Load())
}

func TestSingletonComputeOnceUnderRace(t *testing.T) {
	b := &countingBuilder{}
	inst := widgetInstance()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()
	lc := pipeline.NewSingleton()

	const callers = 32
	objects := make([]any, callers)

	var wg sync.WaitGroup
	for n := 0; n < callers; n++ {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := lc.Resolve(b, wt, inst)
			assert.NoError(t, err)
			objects[n] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.builds.Load())
	for _, v := range objects {
		assert.Same(t, objects[0], v)
	}
}

func TestSingletonDoesNotCacheFailures(t *testing.T) {
	b := &countingBuilder{}
	b.fail.Store(true)
	inst := widgetInstance()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()
	lc := pipeline.NewSingleton()

	_, err := lc.Resolve(b, wt, inst)
	require.Error(t, err)

	b.fail.Store(false)
	v, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, int32(2), b.builds.Load())
}

func TestSingletonEjectAndClear(t *testing.T) {
	b := &countingBuilder{}
	inst := widgetInstance()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()
	lc := pipeline.NewSingleton()

	first, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)

	lc.Eject(wt, inst)
	second, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	lc.Clear()
	third, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)
	assert.NotSame(t, second, third)
	assert.Equal(t, int32(3), b.builds.Load())
}

func TestUniquePerRequestAlwaysBuilds(t *testing.T) {
	b := &countingBuilder{}
	inst := widgetInstance()
	wt := reflect.TypeOf((*(*Widget))(nil)).Elem()
	lc := pipeline.UniquePerRequest()

	first, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)
	second, err := lc.Resolve(b, wt, inst)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), b.builds.Load())
}
