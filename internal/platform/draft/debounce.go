package draft

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a pending draft write runs.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer coalesces bursts of triggers into one call of fn, made once no
// trigger has arrived for the configured delay.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func()
	timer   *time.Timer
	gen     uint64
	pending bool
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn, restarting the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()
	d.fn()
}

// Flush runs a pending call immediately and reports whether one was
// pending.
func (d *Debouncer) Flush() bool {
	if !d.cancel() {
		return false
	}
	d.fn()
	return true
}

// Stop cancels a pending call, including one whose timer has expired but
// has not started fn yet. A call already running is not interrupted.
func (d *Debouncer) Stop() {
	d.cancel()
}

func (d *Debouncer) cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	was := d.pending
	d.pending = false
	return was
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}
