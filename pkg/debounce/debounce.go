// Package debounce coalesces a rapidly changing value into the value that
// stayed unchanged for a quiet period.
package debounce

import (
	"sync"
	"time"
)

// Debouncer exposes only values that remained the latest input for at least
// the configured delay. Intermediate values are discarded, never queued.
type Debouncer[T any] struct {
	delay time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	pending    T
	settled    T
	hasSettled bool
	stopped    bool
	out        chan T
}

// New returns a debouncer with the given quiet period. A non-positive delay
// settles each value on the next timer tick.
func New[T any](delay time.Duration) *Debouncer[T] {
	if delay < 0 {
		delay = 0
	}
	return &Debouncer[T]{
		delay: delay,
		out:   make(chan T, 1),
	}
}

// Set records a new input value and restarts the quiet period.
func (d *Debouncer[T]) Set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	d.pending = v
	d.generation++
	gen := d.generation
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.settle(gen) })
}

// Value returns the most recently settled value.
func (d *Debouncer[T]) Value() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled, d.hasSettled
}

// Settled delivers each settled value. The channel holds at most one value;
// a reader that falls behind only sees the newest one. It is closed by Stop.
func (d *Debouncer[T]) Settled() <-chan T {
	return d.out
}

// Stop cancels any pending value and closes the Settled channel. Calling Stop
// more than once is safe.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}

func (d *Debouncer[T]) settle(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// A newer Set superseded this timer after it had already fired.
	if d.stopped || gen != d.generation {
		return
	}

	d.settled = d.pending
	d.hasSettled = true

	select {
	case <-d.out:
	default:
	}
	d.out <- d.settled
}
