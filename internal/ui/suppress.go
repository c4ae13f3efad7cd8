// Package ui renders the scheduler's progress-event stream to the
// terminal: a multi-bar overall-progress display plus colorized per-job
// log lines, in the style of the teacher's compilator worker-pool logging.
package ui

import "sync/atomic"

// suppressed is the sole package-level mutable state this repository
// carries, the one exception spec.md §9's "Global state" note allows: a
// single flag letting a TUI take over the terminal and silence plain log
// output without threading a flag through every call site.
var suppressed atomic.Bool

// SetSuppressed enables or disables plain log output, e.g. while a
// full-screen TUI owns the terminal.
func SetSuppressed(v bool) { suppressed.Store(v) }

// Suppressed reports the current suppression state.
func Suppressed() bool { return suppressed.Load() }
