package ui

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"code.cloudfoundry.org/anubis/jobsystem"
)

func TestSuppressedDefaultsFalseAndToggles(t *testing.T) {
	assert.False(t, Suppressed())
	SetSuppressed(true)
	defer SetSuppressed(false)
	assert.True(t, Suppressed())
}

func TestRunDrainsEventsWithoutPanicking(t *testing.T) {
	SetSuppressed(true)
	defer SetSuppressed(false)

	var counter atomic.Int64
	counter.Store(2)

	r := NewRenderer()
	ch := make(chan jobsystem.ProgressEvent, 8)
	ch <- jobsystem.ProgressEvent{Kind: jobsystem.EventSetJobCounter, JobCounter: &counter}
	ch <- jobsystem.ProgressEvent{Kind: jobsystem.EventJobStarted, Display: jobsystem.DisplayFromDesc("a")}
	ch <- jobsystem.ProgressEvent{Kind: jobsystem.EventJobCompleted, Display: jobsystem.DisplayFromDesc("a"), Duration: time.Millisecond}
	ch <- jobsystem.ProgressEvent{Kind: jobsystem.EventJobFailed, Display: jobsystem.DisplayFromDesc("b"), ErrOutput: "boom"}
	ch <- jobsystem.ProgressEvent{Kind: jobsystem.EventWorkerIdle, WorkerID: 0}
	close(ch)

	r.Run(ch)
	r.Wait()
}
