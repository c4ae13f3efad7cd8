// Package jobsystem implements the parallel work-stealing-style scheduler
// described in spec §4.4: dynamic job creation, multi-level deferred
// continuations, typed artifact retrieval, and cooperative abort.
package jobsystem

import (
	"fmt"

	"github.com/google/uuid"
)

// JobId is a scheduler-scoped, monotonically assigned identifier.
type JobId int64

func (id JobId) String() string { return fmt.Sprintf("job#%d", int64(id)) }

// Artifact is the opaque typed value a successful job produces. Concrete
// artifact types are plain Go structs; retrieval uses a generic type
// assertion (GetResult/ExpectResult) rather than a manual type-tag
// registry, since Go's interface system already gives every concrete type
// a runtime-checkable identity — see DESIGN.md "polymorphic artifacts".
type Artifact = any

// DisplayInfo is the structured display record (verb, short name, detail)
// a progress collaborator uses to render a job, spec §3.5.
type DisplayInfo struct {
	Verb   string
	Short  string
	Detail string
}

// DisplayFromDesc derives a minimal display record purely from a
// description string, for jobs that don't warrant the full structure
// (tests, trivial jobs). Ported from the original's JobDisplayInfo::from_desc.
func DisplayFromDesc(desc string) DisplayInfo {
	return DisplayInfo{Short: desc}
}

func (d DisplayInfo) String() string {
	if d.Verb == "" && d.Detail == "" {
		return d.Short
	}
	if d.Detail == "" {
		return fmt.Sprintf("%s %s", d.Verb, d.Short)
	}
	return fmt.Sprintf("%s %s (%s)", d.Verb, d.Short, d.Detail)
}

// JobFunc is a job's executable body: given the Job itself (whose ID a
// continuation reuses; children are created through whatever context the
// function closes over), it returns an Outcome plus a Go error.
// A non-nil error is always treated as job failure, equivalent to returning
// Failure(err) as the Outcome — this mirrors the original Rust job_fn's
// `anyhow::Result<JobOutcome>` signature, where Err short-circuits outcome
// interpretation entirely.
type JobFunc func(job *Job) (Outcome, error)

// Job is an executable unit of work owned by the scheduler.
type Job struct {
	ID      JobId
	Desc    string
	Display DisplayInfo
	Fn      JobFunc

	// TraceID correlates this job's progress events and log lines across
	// a single build invocation, independent of the JobId that deferral
	// continuations reuse.
	TraceID string

	// InitialDeps records the dependency JobIds this job was constructed
	// or added with, for diagnostics; the live dependency bookkeeping is
	// owned by the scheduler, not the Job value.
	InitialDeps []JobId
}

// NewJob constructs a job bound to a freshly reserved JobId from sys.
func NewJob(sys *JobSystem, desc string, display DisplayInfo, fn JobFunc) *Job {
	return &Job{ID: sys.NextID(), Desc: desc, Display: display, Fn: fn, TraceID: uuid.New().String()}
}

// NewJobWithID constructs a job that reuses an existing JobId, used to build
// a deferral's continuation, which carries the deferring job's JobId.
func NewJobWithID(id JobId, desc string, display DisplayInfo, fn JobFunc) *Job {
	return &Job{ID: id, Desc: desc, Display: display, Fn: fn, TraceID: uuid.New().String()}
}

// WithDeps records the dependencies this job should be added with when
// passed to AddJob (as opposed to AddJobWithDeps, which takes them as an
// explicit argument). Returns the job for chaining.
func (j *Job) WithDeps(deps ...JobId) *Job {
	j.InitialDeps = deps
	return j
}
