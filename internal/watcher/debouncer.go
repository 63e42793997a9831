package watcher

import (
	"sync"
	"time"
)

// Debouncer merges rapid events for the same path. Each path has its own
// timer; the event delivered is the last one received before it fired.
type Debouncer struct {
	delay   time.Duration
	output  chan Event
	pending map[string]*pendingEvent
	done    chan struct{}
	stopped bool
	mutex   sync.Mutex
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// NewDebouncer creates a debouncer whose output channel holds up to buffer
// events. A zero delay forwards events immediately.
func NewDebouncer(delay time.Duration, buffer int) *Debouncer {
	return &Debouncer{
		delay:   delay,
		output:  make(chan Event, buffer),
		pending: make(map[string]*pendingEvent),
		done:    make(chan struct{}),
	}
}

// Output returns the channel of debounced events.
func (d *Debouncer) Output() <-chan Event {
	return d.output
}

// Add schedules event, replacing any pending event for the same path.
func (d *Debouncer) Add(event Event) {
	d.mutex.Lock()
	if d.stopped {
		d.mutex.Unlock()
		return
	}
	if d.delay <= 0 {
		d.mutex.Unlock()
		d.send(event)
		return
	}
	defer d.mutex.Unlock()

	if p, ok := d.pending[event.Path]; ok {
		p.event = event
		p.timer.Reset(d.delay)
		return
	}

	path := event.Path
	d.pending[path] = &pendingEvent{
		event: event,
		timer: time.AfterFunc(d.delay, func() { d.flush(path) }),
	}
}

// Pending returns the number of paths waiting for their timer.
func (d *Debouncer) Pending() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.pending)
}

// Stop cancels every pending timer and releases senders blocked on a full
// output. Later events are ignored. Stop may be called more than once.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	close(d.done)
	for path, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, path)
	}
}

func (d *Debouncer) flush(path string) {
	d.mutex.Lock()
	p, ok := d.pending[path]
	if !ok || d.stopped {
		d.mutex.Unlock()
		return
	}
	delete(d.pending, path)
	d.mutex.Unlock()

	d.send(p.event)
}

func (d *Debouncer) send(event Event) {
	select {
	case d.output <- event:
	case <-d.done:
	}
}
