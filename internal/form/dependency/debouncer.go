package dependency

import (
	"sync"
	"time"
)

// DefaultWindow is how long input must pause before a recompute runs.
const DefaultWindow = 150 * time.Millisecond

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// Scheduler arms a callback after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer is a pending-recompute queue of length one. Each Schedule call
// cancels the pending run and arms a new one; Flush runs a pending
// recompute immediately. A timer that fires after being superseded does
// nothing.
type Debouncer struct {
	mu        sync.Mutex
	window    time.Duration
	scheduler Scheduler
	run       func()
	seq       uint64
	pending   *pendingRun
}

type pendingRun struct {
	seq   uint64
	timer Timer
}

type DebouncerOption func(*Debouncer)

func WithScheduler(s Scheduler) DebouncerOption {
	return func(d *Debouncer) {
		if s != nil {
			d.scheduler = s
		}
	}
}

// NewDebouncer returns a debouncer that calls run after window of quiet.
func NewDebouncer(window time.Duration, run func(), opts ...DebouncerOption) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	d := &Debouncer{window: window, scheduler: realScheduler{}, run: run}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Schedule replaces any pending recompute with a new one.
func (d *Debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.pending = &pendingRun{seq: seq}
	d.pending.timer = d.scheduler.AfterFunc(d.window, func() { d.fire(seq) })
}

// Flush runs the pending recompute now. It reports whether one was pending.
func (d *Debouncer) Flush() bool {
	if !d.take(0) {
		return false
	}
	d.run()
	return true
}

// Cancel drops the pending recompute without running it.
func (d *Debouncer) Cancel() {
	d.take(0)
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) fire(seq uint64) {
	if !d.take(seq) {
		return
	}
	d.run()
}

// take removes the pending run if it matches seq (0 matches any).
func (d *Debouncer) take(seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil || (seq != 0 && d.pending.seq != seq) {
		return false
	}
	d.pending.timer.Stop()
	d.pending = nil
	return true
}
