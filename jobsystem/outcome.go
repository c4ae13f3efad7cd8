package jobsystem

// Kind tags which variant of the JobOutcome tagged union is populated.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindDeferred
)

// Deferral describes the "replace myself with a continuation" mechanism,
// spec §3.5 and §4.4.4. The continuation inherits the deferring job's
// JobId; BlockedBy may reference child jobs created moments earlier in the
// same job function invocation.
type Deferral struct {
	BlockedBy    []JobId
	Continuation *Job
}

// Outcome is the tagged union a JobFunc returns: exactly one of Success,
// Failure, or Deferred is meaningful, selected by Kind.
type Outcome struct {
	Kind     Kind
	Artifact Artifact
	Err      error
	Deferral Deferral
}

// Success builds a terminal, successful outcome carrying the given artifact.
func Success(artifact Artifact) Outcome {
	return Outcome{Kind: KindSuccess, Artifact: artifact}
}

// Failure builds a terminal, failed outcome.
func Failure(err error) Outcome {
	return Outcome{Kind: KindFailure, Err: err}
}

// Defer builds a deferred outcome: the job is replaced by continuation,
// which becomes runnable once every id in blockedBy has a stored success
// result.
func Defer(blockedBy []JobId, continuation *Job) Outcome {
	return Outcome{Kind: KindDeferred, Deferral: Deferral{BlockedBy: blockedBy, Continuation: continuation}}
}
