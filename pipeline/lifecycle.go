package pipeline

import (
	"reflect"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Builder is the raw construction capability a lifecycle needs from the
// session: compile the instance's build plan if necessary and invoke it.
type Builder interface {
	BuildNew(t reflect.Type, inst *Instance) (any, error)
}

// Lifecycle is the scoping policy controlling whether and where a built
// object is cached. Given a session's builder, a requested type, and an
// instance, it yields the object either by building it fresh or by
// consulting its own cache.
type Lifecycle interface {
	// Description names the lifecycle in diagnostics.
	Description() string

	// Resolve yields the object for the (type, instance) pair.
	Resolve(b Builder, t reflect.Type, inst *Instance) (any, error)
}

// Transient returns the lifecycle that builds once per logical resolve
// call. The session cache still memoizes repeated calls within one
// session for the same (type, instance) pair.
func Transient() Lifecycle { return transient{} }

type transient struct{}

func (transient) Description() string { return "transient" }

func (transient) Resolve(b Builder, t reflect.Type, inst *Instance) (any, error) {
	return b.BuildNew(t, inst)
}

// UniquePerRequest returns the lifecycle that is never memoized: every
// call, even within one session, produces a fresh object.
func UniquePerRequest() Lifecycle { return unique{} }

type unique struct{}

func (unique) Description() string { return "unique-per-request" }

func (unique) Resolve(b Builder, t reflect.Type, inst *Instance) (any, error) {
	return b.BuildNew(t, inst)
}

// isUnique reports whether the lifecycle is the never-cache variant the
// session cache must bypass.
func isUnique(l Lifecycle) bool {
	_, ok := l.(unique)
	return ok
}

// Singleton is the lifecycle that builds at most once per (instance,
// requested type) for the life of the owning graph, shared across all
// sessions. Concurrent first access performs exactly one construction,
// with every racing caller receiving the same object; a failed build is
// not cached, so the next call attempts construction again.
type Singleton struct {
	group   singleflight.Group
	mu      sync.Mutex
	objects map[uint64]any
}

// NewSingleton creates an empty process-wide singleton cache. One value
// is typically owned per graph.
func NewSingleton() *Singleton {
	return &Singleton{objects: make(map[uint64]any)}
}

// Description implements Lifecycle.
func (s *Singleton) Description() string { return "singleton" }

// Resolve implements Lifecycle.
func (s *Singleton) Resolve(b Builder, t reflect.Type, inst *Instance) (any, error) {
	key := inst.KeyFor(t)
	v, err, _ := s.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		s.mu.Lock()
		if obj, ok := s.objects[key]; ok {
			s.mu.Unlock()
			return obj, nil
		}
		s.mu.Unlock()

		obj, err := b.BuildNew(t, inst)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.objects[key] = obj
		s.mu.Unlock()
		return obj, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Eject discards the cached object for the (type, instance) pair, if
// any, so the next resolve rebuilds it.
func (s *Singleton) Eject(t reflect.Type, inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, inst.KeyFor(t))
}

// Clear discards every cached object.
func (s *Singleton) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.objects)
}

var (
	_ Lifecycle = transient{}
	_ Lifecycle = unique{}
	_ Lifecycle = (*Singleton)(nil)
)
