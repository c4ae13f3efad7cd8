package jobsystem

import (
	"sync"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/anubis/internal/anubiserr"
)

// resultEntry is the terminal state recorded for a JobId: exactly one of
// artifact or err is meaningful.
type resultEntry struct {
	artifact Artifact
	err      error
}

// blockedJob tracks a job waiting on a shrinking set of dependency JobIds.
type blockedJob struct {
	job       *Job
	remaining map[JobId]struct{}
}

// JobSystem is the scheduler: a single shared instance owns the runnable
// queue, the blocked-job table, and the results map for one build
// invocation (spec §3.7, §4.4).
type JobSystem struct {
	mu   sync.Mutex
	cond *sync.Cond

	nextID atomic.Int64

	runnable   []*Job
	blocked    map[JobId]*blockedJob
	waiters    map[JobId][]JobId // dep id -> dependents waiting on it
	runningSet map[JobId]bool
	running    int

	results map[JobId]resultEntry

	abort    atomic.Bool
	firstErr error
	finished bool

	totalJobs atomic.Int64

	progressTx chan<- ProgressEvent
}

// New constructs an empty JobSystem.
func New() *JobSystem {
	s := &JobSystem{
		blocked:    make(map[JobId]*blockedJob),
		waiters:    make(map[JobId][]JobId),
		runningSet: make(map[JobId]bool),
		results:    make(map[JobId]resultEntry),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// NextID returns a monotonically increasing JobId, unique within this
// JobSystem instance.
func (s *JobSystem) NextID() JobId {
	return JobId(s.nextID.Add(1) - 1)
}

// JobCounter exposes the shared atomic counter of known jobs so a progress
// collaborator can poll the current total even as deferral grows it.
func (s *JobSystem) JobCounter() *atomic.Int64 { return &s.totalJobs }

// AddJob enqueues job, using whatever dependencies it was constructed with
// via WithDeps (if any).
func (s *JobSystem) AddJob(job *Job) error {
	return s.addWithDeps(job, job.InitialDeps, true)
}

// AddJobWithDeps enqueues job as blocked on deps, or immediately runnable
// if every dep has already succeeded. Returns a DependencyError immediately
// if any dep is already known to have failed.
func (s *JobSystem) AddJobWithDeps(job *Job, deps []JobId) error {
	job.InitialDeps = deps
	return s.addWithDeps(job, deps, true)
}

func (s *JobSystem) addWithDeps(job *Job, deps []JobId, countsTowardTotal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := make(map[JobId]struct{})
	for _, dep := range deps {
		if r, ok := s.results[dep]; ok {
			if r.err != nil {
				return anubiserr.New(anubiserr.KindDependency,
					"job %s depends on already-failed job %s", job.ID, dep)
			}
			continue // already succeeded: filtered out
		}
		remaining[dep] = struct{}{}
	}

	if countsTowardTotal {
		s.totalJobs.Add(1)
	}

	if len(remaining) == 0 {
		s.runnable = append(s.runnable, job)
	} else {
		s.blocked[job.ID] = &blockedJob{job: job, remaining: remaining}
		for dep := range remaining {
			s.waiters[dep] = append(s.waiters[dep], job.ID)
		}
	}
	s.cond.Broadcast()
	return nil
}

// GetResult waits for id's terminal result and downcasts its artifact to T.
func GetResult[T any](s *JobSystem, id JobId) (T, error) {
	var zero T
	entry, err := s.waitResult(id)
	if err != nil {
		return zero, err
	}
	if entry.err != nil {
		return zero, entry.err
	}
	v, ok := entry.artifact.(T)
	if !ok {
		return zero, anubiserr.New(anubiserr.KindArtifact,
			"job %s artifact is not of the requested type", id)
	}
	return v, nil
}

// ExpectResult behaves exactly like GetResult: an absent job (never added,
// or abandoned because the scheduler aborted before it could run) already
// yields an error there, as a failed job does.
func ExpectResult[T any](s *JobSystem, id JobId) (T, error) {
	return GetResult[T](s, id)
}

func (s *JobSystem) waitResult(id JobId) (resultEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if r, ok := s.results[id]; ok {
			return r, nil
		}
		if s.finished {
			return resultEntry{}, anubiserr.New(anubiserr.KindDependency,
				"job %s has no result: it never ran", id)
		}
		if s.abort.Load() && !s.runningSet[id] {
			return resultEntry{}, anubiserr.New(anubiserr.KindAbort,
				"job %s will never complete: scheduler aborted", id)
		}
		s.cond.Wait()
	}
}

// RunToCompletion spins up numWorkers worker goroutines and dispatches
// runnable jobs (plus any seeded earlier via AddJob/AddJobWithDeps) until
// the system is quiescent or aborted. progressTx may be nil.
func (s *JobSystem) RunToCompletion(numWorkers int, progressTx chan<- ProgressEvent) error {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	s.mu.Lock()
	s.finished = false
	s.progressTx = progressTx
	s.mu.Unlock()
	send(progressTx, ProgressEvent{Kind: EventSetJobCounter, JobCounter: &s.totalJobs})

	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(25 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go s.worker(i, &wg)
	}
	wg.Wait()
	close(stop)

	s.mu.Lock()
	s.finished = true
	err := s.firstErr
	s.cond.Broadcast()
	s.mu.Unlock()
	return err
}

// quiescentLocked reports whether the scheduler has nothing left to do. It
// also detects deadlock: no runnable job, nothing running, something still
// blocked, and no prior abort — that combination can only mean a cyclic or
// dangling dependency, so it is recorded as the (first) failure and the
// scheduler is told to wind down.
func (s *JobSystem) quiescentLocked() bool {
	if s.abort.Load() && s.running == 0 {
		return true
	}
	if len(s.runnable) > 0 || s.running > 0 {
		return false
	}
	if len(s.blocked) == 0 {
		return true
	}
	if !s.abort.Load() {
		s.recordFailureLocked(anubiserr.New(anubiserr.KindDependency,
			"deadlock: %d job(s) blocked on dependencies that will never complete", len(s.blocked)))
	}
	return true
}

func (s *JobSystem) recordFailureLocked(err error) {
	if !s.abort.Load() {
		s.abort.Store(true)
		s.firstErr = err
	}
}

func (s *JobSystem) worker(workerID int, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		s.mu.Lock()
		for {
			if s.quiescentLocked() {
				s.mu.Unlock()
				return
			}
			if len(s.runnable) > 0 && !s.abort.Load() {
				break
			}
			send(s.progressTx, ProgressEvent{Kind: EventWorkerIdle, WorkerID: workerID})
			s.cond.Wait()
		}
		job := s.runnable[0]
		s.runnable = s.runnable[1:]
		s.running++
		s.runningSet[job.ID] = true
		s.mu.Unlock()

		send(s.progressTx, ProgressEvent{Kind: EventJobStarted, WorkerID: workerID, JobID: job.ID, TraceID: job.TraceID, Display: job.Display})
		started := time.Now()
		outcome, err := s.execute(job)
		duration := time.Since(started)

		s.mu.Lock()
		delete(s.runningSet, job.ID)
		s.running--
		s.finishJobLocked(workerID, job, outcome, err, duration)
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// execute invokes the job function, converting a panic or empty function
// into a RuleError failure (§9: an empty job_fn is a programming error
// surfaced as failure at dispatch time).
func (s *JobSystem) execute(job *Job) (outcome Outcome, err error) {
	if job.Fn == nil {
		return Outcome{}, anubiserr.New(anubiserr.KindRule, "job %s has no job function", job.ID)
	}
	defer func() {
		if r := recover(); r != nil {
			err = anubiserr.New(anubiserr.KindRule, "job %s panicked: %v", job.ID, r)
		}
	}()
	return job.Fn(job)
}

func (s *JobSystem) finishJobLocked(workerID int, job *Job, outcome Outcome, fnErr error, dur time.Duration) {
	switch {
	case fnErr != nil:
		s.storeResultLocked(job.ID, resultEntry{err: fnErr})
		send(s.progressTx, ProgressEvent{Kind: EventJobFailed, WorkerID: workerID, JobID: job.ID, TraceID: job.TraceID, Display: job.Display, ErrOutput: fnErr.Error()})

	case outcome.Kind == KindFailure:
		s.storeResultLocked(job.ID, resultEntry{err: outcome.Err})
		errOutput := ""
		if outcome.Err != nil {
			errOutput = outcome.Err.Error()
		}
		send(s.progressTx, ProgressEvent{Kind: EventJobFailed, WorkerID: workerID, JobID: job.ID, TraceID: job.TraceID, Display: job.Display, ErrOutput: errOutput})

	case outcome.Kind == KindDeferred:
		s.resumeDeferralLocked(job, outcome.Deferral)
		// No terminal progress event yet: the JobId isn't done, it just
		// changed its job function. A later finish will emit the terminal
		// event for this same JobId.

	default: // KindSuccess
		s.storeResultLocked(job.ID, resultEntry{artifact: outcome.Artifact})
		send(s.progressTx, ProgressEvent{Kind: EventJobCompleted, WorkerID: workerID, JobID: job.ID, TraceID: job.TraceID, Display: job.Display, Duration: dur})
	}
}

// storeResultLocked records a terminal result and releases any dependents
// that were waiting on a success. A failure never releases dependents: per
// spec §4.4.5, jobs blocked on a failed dependency are simply never run.
func (s *JobSystem) storeResultLocked(id JobId, entry resultEntry) {
	s.results[id] = entry
	if entry.err != nil {
		s.recordFailureLocked(entry.err)
		return
	}
	for _, waiterID := range s.waiters[id] {
		bj, ok := s.blocked[waiterID]
		if !ok {
			continue
		}
		delete(bj.remaining, id)
		if len(bj.remaining) == 0 {
			delete(s.blocked, waiterID)
			s.runnable = append(s.runnable, bj.job)
		}
	}
	delete(s.waiters, id)
}

// resumeDeferralLocked replaces job's slot with its continuation, which
// inherits job's JobId (spec §4.4.4). If blocked_by is empty the
// continuation becomes immediately runnable.
func (s *JobSystem) resumeDeferralLocked(job *Job, def Deferral) {
	cont := def.Continuation
	cont.ID = job.ID
	cont.InitialDeps = def.BlockedBy

	remaining := make(map[JobId]struct{})
	for _, dep := range def.BlockedBy {
		if r, ok := s.results[dep]; ok {
			if r.err != nil {
				s.storeResultLocked(job.ID, resultEntry{err: anubiserr.New(anubiserr.KindDependency,
					"continuation of job %s depends on already-failed job %s", job.ID, dep)})
				return
			}
			continue
		}
		remaining[dep] = struct{}{}
	}

	if len(remaining) == 0 {
		s.runnable = append(s.runnable, cont)
		return
	}
	s.blocked[cont.ID] = &blockedJob{job: cont, remaining: remaining}
	for dep := range remaining {
		s.waiters[dep] = append(s.waiters[dep], cont.ID)
	}
}
