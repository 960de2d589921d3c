// Package pipeline implements the build-plan resolution and
// interception engine: instances, the policy pipeline that finalizes an
// instance's configuration, the compilation of construction, activation,
// and decoration into one callable plan, lifecycle-driven scoping, and
// the per-session object cache.
//
// # Usage
//
// An instance describes how to produce one value; resolving it through a
// session compiles its build plan on first use and caches objects
// according to its lifecycle:
//
//	inst := pipeline.NewLambda("NewServer", func(s source.Session) (*Server, error) {
//		return &Server{}, nil
//	}).Scoped(pipeline.NewSingleton())
//
//	session := pipeline.NewSession(graph, pipeline.NewPolicies())
//	server, err := session.GetObject(reflect.TypeFor[*Server](), inst)
//
// # Concurrency
//
// Compiled build plans and the singleton cache are shared, process-wide
// state and safe for concurrent access; compilation and singleton
// construction happen at most once per key even under races. A Session
// and its cache belong to one logical build scope and must not be
// shared across concurrently executing goroutines.
package pipeline
