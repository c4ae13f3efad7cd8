package jobsystem

import (
	"sync/atomic"
	"time"
)

// EventKind identifies which variant of ProgressEvent is populated, spec §6.3.
type EventKind int

const (
	EventJobStarted EventKind = iota
	EventJobCompleted
	EventJobFailed
	EventWorkerIdle
	EventSetJobCounter
)

// ProgressEvent is one entry in the send-only progress stream the scheduler
// feeds to a UI/logging collaborator. Every JobId that reaches a terminal
// result gets exactly one terminal (JobCompleted or JobFailed) event.
// JobStarted is sent on every dispatch, so a JobId that defers gets one
// JobStarted for the original job and one for each continuation.
type ProgressEvent struct {
	Kind       EventKind
	WorkerID   int
	JobID      JobId
	TraceID    string
	Display    DisplayInfo
	Duration   time.Duration
	ErrOutput  string
	JobCounter *atomic.Int64 // populated only for EventSetJobCounter
}

// send delivers ev to tx, blocking if necessary. The "exactly one terminal
// event per JobId" guarantee only holds if the consumer keeps draining the
// channel (callers typically size it generously or run a dedicated drain
// goroutine, as internal/ui does); a nil channel silently discards events.
func send(tx chan<- ProgressEvent, ev ProgressEvent) {
	if tx == nil {
		return
	}
	tx <- ev
}
