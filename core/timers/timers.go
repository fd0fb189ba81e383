// Package timers implements the software timer wheel driven once per poll
// step by the manager. It is a flat list walked on every call to Advance,
// grounded in the periodic-ticker idiom the teacher's core/engine.go uses
// for cleanupIdleConnections and core/observability/monitor.go uses for
// analyzeBottlenecks — generalized here from a single fixed-interval
// goroutine into a list of independently scheduled, poll-driven timers, per
// spec.md §4.11.
package timers

import "time"

// Flag bits controlling a Timer's scheduling behavior.
const (
	// RunNow fires the timer immediately on the first Advance call after
	// Add, instead of waiting a full period.
	RunNow = 1 << 0
	// Repeat reschedules the timer by adding its period after it fires;
	// without it, the timer fires once and Advance removes it.
	Repeat = 1 << 1
)

// Callback is invoked when a timer fires. arg is the value passed to Add.
type Callback func(arg any)

// Timer is one entry in the wheel.
type Timer struct {
	period   time.Duration
	flags    int
	callback Callback
	arg      any
	nextFire time.Time
	id       uint64
}

// ID returns the timer's identity, usable with Wheel.Remove.
func (t *Timer) ID() uint64 { return t.id }

// Wheel is the manager's flat list of scheduled timers.
type Wheel struct {
	timers []*Timer
	nextID uint64
}

// NewWheel creates an empty timer wheel.
func NewWheel() *Wheel {
	return &Wheel{}
}

// Add schedules a new timer and returns it. now is the clock reading at
// schedule time (the manager's monotonic clock, not wall time), so that
// RunNow and the first period are computed consistently with Advance.
func (w *Wheel) Add(now time.Time, period time.Duration, flags int, cb Callback, arg any) *Timer {
	w.nextID++
	t := &Timer{
		period:   period,
		flags:    flags,
		callback: cb,
		arg:      arg,
		id:       w.nextID,
	}
	if flags&RunNow != 0 {
		t.nextFire = now
	} else {
		t.nextFire = now.Add(period)
	}
	w.timers = append(w.timers, t)
	return t
}

// Remove unschedules a timer by ID. It is a no-op if the ID is unknown,
// e.g. because it already fired and wasn't a Repeat timer but was removed
// twice by a careless caller.
func (w *Wheel) Remove(id uint64) {
	for i, t := range w.timers {
		if t.id == id {
			w.timers = append(w.timers[:i], w.timers[i+1:]...)
			return
		}
	}
}

// Len returns the number of scheduled timers.
func (w *Wheel) Len() int { return len(w.timers) }

// Advance fires every timer whose nextFire is at or before now. Each timer
// fires at most once per Advance call — there is no catch-up loop for a
// timer that missed several periods while the poll loop was busy, per
// spec.md §4.11's "one fire per poll per timer" rule. Repeat timers are
// rescheduled by adding their period to the previous nextFire (not to
// now), so a timer's long-run average rate doesn't drift under load.
// Non-repeating timers that fire are removed automatically.
func (w *Wheel) Advance(now time.Time) {
	var toRemove []uint64
	for _, t := range w.timers {
		if t.nextFire.After(now) {
			continue
		}
		t.callback(t.arg)
		if t.flags&Repeat != 0 {
			t.nextFire = t.nextFire.Add(t.period)
		} else {
			toRemove = append(toRemove, t.id)
		}
	}
	for _, id := range toRemove {
		w.Remove(id)
	}
}
