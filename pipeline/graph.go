package pipeline

import "reflect"

// Graph is the instance-registry collaborator the pipeline reads from.
// The pipeline never mutates it. An implementation lives in the graph
// package; tests may supply fakes.
type Graph interface {
	// GetDefault returns the default instance for the plugin type, or
	// nil when none is configured.
	GetDefault(t reflect.Type) *Instance

	// HasDefaultForPluginType reports whether a default instance is
	// configured for the plugin type.
	HasDefaultForPluginType(t reflect.Type) bool

	// FindInstance returns the instance registered under the given name
	// for the plugin type, or nil when there is none.
	FindInstance(t reflect.Type, name string) *Instance

	// GetAllInstances returns every instance of the given plugin types,
	// or of all plugin types when none are given.
	GetAllInstances(types ...reflect.Type) []*Instance

	// EachInstance invokes fn once per registered instance.
	EachInstance(fn func(t reflect.Type, inst *Instance))
}
