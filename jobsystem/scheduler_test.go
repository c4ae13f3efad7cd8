package jobsystem_test

import (
	"sync/atomic"
	"testing"

	"code.cloudfoundry.org/anubis/jobsystem"
)

type trivialResult struct{ Value int64 }

// S1 — trivial job.
func TestTrivialJob(t *testing.T) {
	sys := jobsystem.New()
	job := jobsystem.NewJob(sys, "trivial", jobsystem.DisplayFromDesc("trivial"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		return jobsystem.Success(trivialResult{42}), nil
	})
	if err := sys.AddJob(job); err != nil {
		t.Fatal(err)
	}
	if err := sys.RunToCompletion(1, nil); err != nil {
		t.Fatal(err)
	}
	res, err := jobsystem.GetResult[trivialResult](sys, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 42 {
		t.Errorf("got %d, want 42", res.Value)
	}
}

// S2 — linear chain A->B->C->D, each recording a fetch-and-increment.
func TestLinearChain(t *testing.T) {
	sys := jobsystem.New()
	var counter atomic.Int64

	record := func() (jobsystem.Outcome, error) {
		v := counter.Add(1) - 1
		return jobsystem.Success(trivialResult{v}), nil
	}

	a := jobsystem.NewJob(sys, "a", jobsystem.DisplayFromDesc("a"), func(*jobsystem.Job) (jobsystem.Outcome, error) { return record() })
	b := jobsystem.NewJob(sys, "b", jobsystem.DisplayFromDesc("b"), func(*jobsystem.Job) (jobsystem.Outcome, error) { return record() })
	c := jobsystem.NewJob(sys, "c", jobsystem.DisplayFromDesc("c"), func(*jobsystem.Job) (jobsystem.Outcome, error) { return record() })
	d := jobsystem.NewJob(sys, "d", jobsystem.DisplayFromDesc("d"), func(*jobsystem.Job) (jobsystem.Outcome, error) { return record() })

	must(t, sys.AddJob(a))
	must(t, sys.AddJobWithDeps(b, []jobsystem.JobId{a.ID}))
	must(t, sys.AddJobWithDeps(c, []jobsystem.JobId{b.ID}))
	must(t, sys.AddJobWithDeps(d, []jobsystem.JobId{c.ID}))

	if err := sys.RunToCompletion(4, nil); err != nil {
		t.Fatal(err)
	}

	expect := map[jobsystem.JobId]int64{a.ID: 0, b.ID: 1, c.ID: 2, d.ID: 3}
	for id, want := range expect {
		got, err := jobsystem.GetResult[trivialResult](sys, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Value != want {
			t.Errorf("job %s = %d, want %d", id, got.Value, want)
		}
	}
}

// S3 — diamond A->{B,C}->D.
func TestDiamond(t *testing.T) {
	sys := jobsystem.New()
	var aFlag, bFlag, cFlag atomic.Bool

	a := jobsystem.NewJob(sys, "a", jobsystem.DisplayFromDesc("a"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		aFlag.Store(true)
		return jobsystem.Success(trivialResult{}), nil
	})
	b := jobsystem.NewJob(sys, "b", jobsystem.DisplayFromDesc("b"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		if !aFlag.Load() {
			t.Error("b ran before a")
		}
		bFlag.Store(true)
		return jobsystem.Success(trivialResult{}), nil
	})
	c := jobsystem.NewJob(sys, "c", jobsystem.DisplayFromDesc("c"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		if !aFlag.Load() {
			t.Error("c ran before a")
		}
		cFlag.Store(true)
		return jobsystem.Success(trivialResult{}), nil
	})
	d := jobsystem.NewJob(sys, "d", jobsystem.DisplayFromDesc("d"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		if !bFlag.Load() || !cFlag.Load() {
			t.Error("d ran before b and c")
		}
		return jobsystem.Success(trivialResult{}), nil
	})

	must(t, sys.AddJob(a))
	must(t, sys.AddJobWithDeps(b, []jobsystem.JobId{a.ID}))
	must(t, sys.AddJobWithDeps(c, []jobsystem.JobId{a.ID}))
	must(t, sys.AddJobWithDeps(d, []jobsystem.JobId{b.ID, c.ID}))

	if err := sys.RunToCompletion(4, nil); err != nil {
		t.Fatal(err)
	}
}

// S4 — error propagation.
func TestErrorPropagation(t *testing.T) {
	sys := jobsystem.New()
	a := jobsystem.NewJob(sys, "a", jobsystem.DisplayFromDesc("a"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		return jobsystem.Outcome{}, errFailure
	})
	b := jobsystem.NewJob(sys, "b", jobsystem.DisplayFromDesc("b"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		return jobsystem.Success(trivialResult{}), nil
	})

	must(t, sys.AddJob(a))
	must(t, sys.AddJobWithDeps(b, []jobsystem.JobId{a.ID}))

	if err := sys.RunToCompletion(2, nil); err == nil {
		t.Fatal("expected run_to_completion to return an error")
	}

	if _, err := jobsystem.GetResult[trivialResult](sys, b.ID); err == nil {
		t.Error("expected b to have no success result")
	}
}

// S5 — deep deferral: A defers to B defers to C which succeeds; the result
// at A's JobId ends up Success(42).
func TestDeepDeferral(t *testing.T) {
	sys := jobsystem.New()

	var aJob *jobsystem.Job
	aJob = jobsystem.NewJob(sys, "a", jobsystem.DisplayFromDesc("a"), func(job *jobsystem.Job) (jobsystem.Outcome, error) {
		var bJob *jobsystem.Job
		bJob = jobsystem.NewJobWithID(job.ID, "b", jobsystem.DisplayFromDesc("b"), func(job *jobsystem.Job) (jobsystem.Outcome, error) {
			cJob := jobsystem.NewJobWithID(job.ID, "c", jobsystem.DisplayFromDesc("c"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
				return jobsystem.Success(trivialResult{42}), nil
			})
			return jobsystem.Defer(nil, cJob), nil
		})
		return jobsystem.Defer(nil, bJob), nil
	})

	must(t, sys.AddJob(aJob))
	if err := sys.RunToCompletion(1, nil); err != nil {
		t.Fatal(err)
	}

	res, err := jobsystem.GetResult[trivialResult](sys, aJob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 42 {
		t.Errorf("got %d, want 42", res.Value)
	}
}

func TestEmptyBlockedByRunsImmediately(t *testing.T) {
	sys := jobsystem.New()
	job := jobsystem.NewJob(sys, "j", jobsystem.DisplayFromDesc("j"), func(job *jobsystem.Job) (jobsystem.Outcome, error) {
		cont := jobsystem.NewJobWithID(job.ID, "j-cont", jobsystem.DisplayFromDesc("j-cont"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
			return jobsystem.Success(trivialResult{7}), nil
		})
		return jobsystem.Defer(nil, cont), nil
	})
	must(t, sys.AddJob(job))
	if err := sys.RunToCompletion(1, nil); err != nil {
		t.Fatal(err)
	}
	res, err := jobsystem.GetResult[trivialResult](sys, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 7 {
		t.Errorf("got %d, want 7", res.Value)
	}
}

func TestAddJobDependingOnAlreadyFailedJobIsSynchronousError(t *testing.T) {
	sys := jobsystem.New()
	a := jobsystem.NewJob(sys, "a", jobsystem.DisplayFromDesc("a"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		return jobsystem.Outcome{}, errFailure
	})
	must(t, sys.AddJob(a))
	if err := sys.RunToCompletion(1, nil); err == nil {
		t.Fatal("expected failure")
	}

	b := jobsystem.NewJob(sys, "b", jobsystem.DisplayFromDesc("b"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		return jobsystem.Success(trivialResult{}), nil
	})
	if err := sys.AddJobWithDeps(b, []jobsystem.JobId{a.ID}); err == nil {
		t.Fatal("expected DependencyError adding a job depending on an already-failed job")
	}
}

func TestAddJobDependingOnAlreadySucceededJobRunsImmediately(t *testing.T) {
	sys := jobsystem.New()
	a := jobsystem.NewJob(sys, "a", jobsystem.DisplayFromDesc("a"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		return jobsystem.Success(trivialResult{1}), nil
	})
	must(t, sys.AddJob(a))
	must(t, sys.RunToCompletion(1, nil))

	ran := make(chan struct{}, 1)
	b := jobsystem.NewJob(sys, "b", jobsystem.DisplayFromDesc("b"), func(*jobsystem.Job) (jobsystem.Outcome, error) {
		ran <- struct{}{}
		return jobsystem.Success(trivialResult{2}), nil
	})
	must(t, sys.AddJobWithDeps(b, []jobsystem.JobId{a.ID}))
	must(t, sys.RunToCompletion(1, nil))

	select {
	case <-ran:
	default:
		t.Error("expected b to have run")
	}
}

var errFailure = &testError{"job a failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
