package watcher

import (
	"sync"
	"time"
)

// Debouncer collects changes and emits them as one batch once no new change
// has arrived for the delay.
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	pending []Change
	emit    func([]Change)
}

// NewDebouncer creates a debouncer that hands each batch to emit.
func NewDebouncer(delay time.Duration, emit func([]Change)) *Debouncer {
	return &Debouncer{delay: delay, emit: emit}
}

// Add queues changes and restarts the quiet period.
func (d *Debouncer) Add(changes ...Change) {
	if len(changes) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = append(d.pending, changes...)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if len(batch) > 0 && d.emit != nil {
		d.emit(batch)
	}
}

// Flush emits pending changes immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.flush()
}

// Cancel drops pending changes without emitting them.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

// Pending returns the number of queued changes.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
