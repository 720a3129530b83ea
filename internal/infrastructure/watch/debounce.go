// Package watch turns a directory into an attachment drop folder: files that
// appear in it and stop changing are reported once.
package watch

import (
	"sync"
	"time"
)

// Debouncer delays a callback per key until that key has been quiet for the
// window. Each key fires at most once per burst of triggers.
type Debouncer struct {
	window time.Duration
	fire   func(key string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewDebouncer(window time.Duration, fire func(key string)) *Debouncer {
	return &Debouncer{window: window, fire: fire, timers: make(map[string]*time.Timer)}
}

// Trigger restarts the window for key.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, key)
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			d.fire(key)
		}
	})
}

// Cancel drops a pending callback for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
}

// Stop cancels every pending callback. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}
