package pipeline

import (
	"fmt"
	"reflect"

	"github.com/rguerreiro/structuremap/source"
)

// Policy is one finalization rule applied to an instance before its
// build plan is compiled. A rule may mutate the instance's configuration
// but never replaces the instance itself. Idempotence is guaranteed by
// the caller: rules only run inside the compute-once compilation region.
type Policy interface {
	Apply(t reflect.Type, inst *Instance) error
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(t reflect.Type, inst *Instance) error

// Apply implements Policy.
func (f PolicyFunc) Apply(t reflect.Type, inst *Instance) error {
	return f(t, inst)
}

// Selector is a constructor-selection strategy. It returns the chosen
// descriptor or nil to pass the decision to the next strategy.
type Selector func(c *Configured) *source.Constructor

// Policies holds the ordered rule list applied exactly once per
// (instance, requested type) pair, plus the registered constructor
// selector strategies. The built-in constructor-selection rule always
// runs last.
type Policies struct {
	rules     []Policy
	selectors []Selector
}

// NewPolicies creates a policy set with the given options.
func NewPolicies(opts ...PoliciesOption) *Policies {
	p := &Policies{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PoliciesOption configures a Policies value.
type PoliciesOption func(*Policies)

// WithRule appends a rule to the pipeline. Rules run in registration
// order.
func WithRule(rule Policy) PoliciesOption {
	return func(p *Policies) {
		if rule != nil {
			p.rules = append(p.rules, rule)
		}
	}
}

// WithSelector appends a constructor-selection strategy. Strategies are
// evaluated in registration order, before the built-in defaults.
func WithSelector(s Selector) PoliciesOption {
	return func(p *Policies) {
		if s != nil {
			p.selectors = append(p.selectors, s)
		}
	}
}

// Add appends a rule after construction, preserving order.
func (p *Policies) Add(rule Policy) {
	if rule != nil {
		p.rules = append(p.rules, rule)
	}
}

// Apply runs every rule against the instance, then selects a
// constructor for configured instances that lack one.
func (p *Policies) Apply(t reflect.Type, inst *Instance) error {
	for _, rule := range p.rules {
		if err := rule.Apply(t, inst); err != nil {
			return err
		}
	}
	return p.selectConstructor(inst)
}

// selectConstructor implements the chain of responsibility for
// configured instances: registered selectors in order, then the
// descriptor explicitly marked as preferred, then the greediest
// constructor whose parameters are all satisfiable by the known
// bindings, then the first declared descriptor. The fallback never
// fails, so the chain has a total result whenever any descriptor was
// declared at all.
func (p *Policies) selectConstructor(inst *Instance) error {
	c, ok := inst.Configured()
	if !ok || c.Constructor() != nil {
		return nil
	}

	for _, s := range p.selectors {
		if ctor := s(c); ctor != nil {
			c.SetConstructor(ctor)
			return nil
		}
	}

	ctors := c.Constructors()
	if len(ctors) == 0 {
		return &ConfigurationError{
			Title: "No constructor could be selected",
			Context: fmt.Sprintf(
				"no constructor descriptors are declared for %s",
				typeName(c.ReturnedType())),
		}
	}

	for _, ctor := range ctors {
		if ctor.Preferred() {
			c.SetConstructor(ctor)
			return nil
		}
	}

	if ctor := greediest(c, ctors); ctor != nil {
		c.SetConstructor(ctor)
		return nil
	}

	c.SetConstructor(ctors[0])
	return nil
}

// greediest returns the descriptor with the most parameters whose every
// parameter is satisfiable by the currently known bindings, or nil when
// no descriptor qualifies.
func greediest(c *Configured, ctors []*source.Constructor) *source.Constructor {
	var best *source.Constructor
	for _, ctor := range ctors {
		satisfied := true
		for _, p := range ctor.Params() {
			if !c.Satisfiable(p) {
				satisfied = false
				break
			}
		}
		if !satisfied {
			continue
		}
		if best == nil || len(ctor.Params()) > len(best.Params()) {
			best = ctor
		}
	}
	return best
}
