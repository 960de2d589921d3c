// Package graph provides the instance registry the pipeline reads from:
// plugin families keyed by type, each holding an ordered set of
// instances and an optional default. The pipeline only ever reads the
// graph; registration happens up front through application wiring.
package graph

import (
	"reflect"
	"sync"

	"github.com/rguerreiro/structuremap/pipeline"
)

// family holds the instances registered for one plugin type. The first
// registered instance becomes the default unless one is set explicitly.
type family struct {
	def *pipeline.Instance
	all []*pipeline.Instance
}

// Graph is a registry of plugin families. It is safe for concurrent
// reads and writes, though typical use registers everything before the
// first resolution.
type Graph struct {
	mu       sync.RWMutex
	families map[reflect.Type]*family
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{families: make(map[reflect.Type]*family)}
}

// AddInstance registers an instance for the plugin type. The first
// instance of a family becomes its default.
func (g *Graph) AddInstance(t reflect.Type, inst *pipeline.Instance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f := g.family(t)
	f.all = append(f.all, inst)
	if f.def == nil {
		f.def = inst
	}
}

// SetDefault registers the instance (if not already present) and marks
// it as the family's default.
func (g *Graph) SetDefault(t reflect.Type, inst *pipeline.Instance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f := g.family(t)
	if !f.contains(inst) {
		f.all = append(f.all, inst)
	}
	f.def = inst
}

// family returns the family for t, creating it on demand. Callers hold
// g.mu.
func (g *Graph) family(t reflect.Type) *family {
	f, ok := g.families[t]
	if !ok {
		f = &family{}
		g.families[t] = f
	}
	return f
}

func (f *family) contains(inst *pipeline.Instance) bool {
	for _, i := range f.all {
		if i.Equals(inst) {
			return true
		}
	}
	return false
}

// GetDefault implements pipeline.Graph.
func (g *Graph) GetDefault(t reflect.Type) *pipeline.Instance {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if f, ok := g.families[t]; ok {
		return f.def
	}
	return nil
}

// HasDefaultForPluginType implements pipeline.Graph.
func (g *Graph) HasDefaultForPluginType(t reflect.Type) bool {
	return g.GetDefault(t) != nil
}

// FindInstance implements pipeline.Graph.
func (g *Graph) FindInstance(t reflect.Type, name string) *pipeline.Instance {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.families[t]
	if !ok {
		return nil
	}
	for _, inst := range f.all {
		if inst.Name() == name {
			return inst
		}
	}
	return nil
}

// GetAllInstances implements pipeline.Graph.
func (g *Graph) GetAllInstances(types ...reflect.Type) []*pipeline.Instance {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*pipeline.Instance
	if len(types) == 0 {
		for _, f := range g.families {
			out = append(out, f.all...)
		}
		return out
	}
	for _, t := range types {
		if f, ok := g.families[t]; ok {
			out = append(out, f.all...)
		}
	}
	return out
}

// EachInstance implements pipeline.Graph.
func (g *Graph) EachInstance(fn func(t reflect.Type, inst *pipeline.Instance)) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for t, f := range g.families {
		for _, inst := range f.all {
			fn(t, inst)
		}
	}
}

var _ pipeline.Graph = (*Graph)(nil)
