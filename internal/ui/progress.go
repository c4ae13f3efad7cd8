package ui

import (
	"log"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/vbauerster/mpb"
	"github.com/vbauerster/mpb/decor"

	"code.cloudfoundry.org/anubis/jobsystem"
)

// Renderer drains a jobsystem.ProgressEvent channel and renders an overall
// progress bar plus one colorized log line per job start/finish, the way
// the teacher's compile worker pool logs per-package start/result lines.
type Renderer struct {
	progress *mpb.Progress
	bar      *mpb.Bar
	total    *atomic.Int64
	done     int64
}

// NewRenderer constructs a Renderer. Call Run in its own goroutine with
// the channel passed to jobsystem.RunToCompletion.
func NewRenderer() *Renderer {
	return &Renderer{progress: mpb.New()}
}

// Run drains events until ch is closed by the caller (typically after
// RunToCompletion returns). It is safe to call at most once.
func (r *Renderer) Run(ch <-chan jobsystem.ProgressEvent) {
	for ev := range ch {
		r.handle(ev)
	}
}

func (r *Renderer) handle(ev jobsystem.ProgressEvent) {
	switch ev.Kind {
	case jobsystem.EventSetJobCounter:
		r.total = ev.JobCounter
		total := 0
		if r.total != nil {
			total = int(r.total.Load())
		}
		r.bar = r.progress.AddBar(int64(total),
			mpb.PrependDecorators(
				decor.Name("build", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)

	case jobsystem.EventJobStarted:
		if !Suppressed() {
			log.Printf("%s %s\n", color.YellowString("start"), ev.Display.String())
		}

	case jobsystem.EventJobCompleted:
		r.done++
		if r.bar != nil {
			r.bar.SetTotal(r.currentTotal(), false)
			r.bar.IncrBy(1)
		}
		if !Suppressed() {
			log.Printf("%s %s (%s)\n", color.GreenString("done "), ev.Display.String(), ev.Duration)
		}

	case jobsystem.EventJobFailed:
		r.done++
		if r.bar != nil {
			r.bar.SetTotal(r.currentTotal(), false)
			r.bar.IncrBy(1)
		}
		if !Suppressed() {
			log.Printf("%s %s: %s\n", color.RedString("FAIL "), ev.Display.String(), ev.ErrOutput)
		}

	case jobsystem.EventWorkerIdle:
		// Not surfaced to the terminal; useful only for debugging the
		// scheduler itself.
	}
}

func (r *Renderer) currentTotal() int64 {
	if r.total == nil {
		return r.done
	}
	return r.total.Load()
}

// Wait blocks until every bar managed by this renderer has finished
// rendering, matching mpb's own shutdown convention.
func (r *Renderer) Wait() { r.progress.Wait() }
