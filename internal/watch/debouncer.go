package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events into a single callback invocation.
// Only the last event within the configured interval triggers the callback.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func(Event)
	last     Event
}

// NewDebouncer creates a debouncer that waits for interval of quiet before
// firing callback with the last event.
func NewDebouncer(interval time.Duration, callback func(Event)) *Debouncer {
	return &Debouncer{
		interval: interval,
		callback: callback,
	}
}

// Trigger records an event. If no further events arrive within the debounce
// interval, the callback fires with the last event seen.
func (d *Debouncer) Trigger(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = ev

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("debouncer callback panicked", slog.Any("error", r))
			}
		}()

		d.mu.Lock()
		ev := d.last
		d.mu.Unlock()
		d.callback(ev)
	})
}

// Stop cancels any pending debounced callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
