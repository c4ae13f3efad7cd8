package anubis

import "code.cloudfoundry.org/anubis/jobsystem"

// RuleParseFunc constructs a Rule from its target and the already-resolved
// ConfigValue naming it (spec §3.3).
type RuleParseFunc func(target Target, cfg ConfigValue) (Rule, error)

// RuleTypeInfo maps a grammar-level rule typename to its parse function.
// The registry holding these is populated once at Orchestrator
// construction and is read-only thereafter.
type RuleTypeInfo struct {
	Typename string
	Parse    RuleParseFunc
}

// Rule is the polymorphic object the Orchestrator's rule cache holds.
// Concrete rule bodies (cc_compile, archive, command, ...) live in the
// rules package; the core only depends on this contract (spec §4.5).
type Rule interface {
	Name() string
	Target() Target
	Build(ctx *JobContext) *jobsystem.Job
}

// JobContext is threaded through a rule's Build call and into every job
// function it schedules: the anubis orchestrator, the job scheduler, and
// (once resolved) the mode and toolchain in effect. Mode and Toolchain are
// nil when no mode or toolchain was selected (a build run without --mode,
// or a test context that sets only Anubis and Jobs).
type JobContext struct {
	Anubis    *Orchestrator
	Jobs      *jobsystem.JobSystem
	Mode      *Mode
	Toolchain *Toolchain
}

// NewJob is a convenience constructor mirroring the original's
// JobContext::new_job: most rule bodies build jobs bound to this
// context's own JobSystem rather than reaching for jobsystem.NewJob
// directly.
func (c *JobContext) NewJob(desc string, display jobsystem.DisplayInfo, fn jobsystem.JobFunc) *jobsystem.Job {
	return jobsystem.NewJob(c.Jobs, desc, display, fn)
}

// WithMode returns a shallow copy of c with Mode/Toolchain replaced,
// leaving the caller's context untouched.
func (c *JobContext) WithMode(mode *Mode, toolchain *Toolchain) *JobContext {
	cp := *c
	cp.Mode = mode
	cp.Toolchain = toolchain
	return &cp
}
