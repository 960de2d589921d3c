package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports a programming or wiring mistake: an
// incompatible decorator, a missing default instance, an unselectable
// constructor. It is detected eagerly and never retried. Title is the
// short summary; Context explains what was missing or incompatible.
type ConfigurationError struct {
	Title   string
	Context string
	Trail   []string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Title)
	if e.Context != "" {
		b.WriteString(": ")
		b.WriteString(e.Context)
	}
	writeTrail(&b, e.Trail)
	return b.String()
}

// BuildPlanError reports that compiling a build plan failed for a reason
// other than a known configuration mistake. It wraps the originating
// error and accumulates a trail of "attempting to build" frames as the
// failure unwinds through nested instance compilations.
type BuildPlanError struct {
	Trail []string
	Cause error
}

func (e *BuildPlanError) Error() string {
	var b strings.Builder
	b.WriteString("failed to construct a build plan")
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	writeTrail(&b, e.Trail)
	return b.String()
}

func (e *BuildPlanError) Unwrap() error { return e.Cause }

// InterceptorError reports that an activator or decorator itself failed
// during invocation. Title distinguishes activation from decoration
// failures; Signature is the failing interceptor's rendered signature.
type InterceptorError struct {
	Title     string
	Signature string
	Cause     error
}

func (e *InterceptorError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Title, e.Signature, e.Cause)
}

func (e *InterceptorError) Unwrap() error { return e.Cause }

// pushFrame annotates err with one trail frame. Known configuration and
// build-plan errors carry the frame themselves; anything else is wrapped
// as a BuildPlanError with err as cause. The result is a readable causal
// stack of "what was being built when it failed" regardless of the
// originating error's type.
func pushFrame(err error, frame string) error {
	var cfg *ConfigurationError
	if errors.As(err, &cfg) {
		cfg.Trail = append(cfg.Trail, frame)
		return err
	}
	var plan *BuildPlanError
	if errors.As(err, &plan) {
		plan.Trail = append(plan.Trail, frame)
		return err
	}
	return &BuildPlanError{Trail: []string{frame}, Cause: err}
}

func writeTrail(b *strings.Builder, trail []string) {
	for _, frame := range trail {
		b.WriteString("\n")
		b.WriteString(frame)
	}
}
