package capture

import (
	"log"
	"sync"
)

// outboxCapacity bounds how many captured events can queue before the
// backpressure policy in push kicks in.
const outboxCapacity = 256

// outbox is the bounded event queue backing a Source's output channel. It
// implements the backpressure policy (spec.md §5): when full, the oldest
// queued pointer-motion event is dropped to make room for a new event, and
// key events are never dropped to make room for pointer motion. Every drop
// is logged.
type outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Event
	logger *log.Logger
	closed bool
}

func newOutbox(logger *log.Logger) *outbox {
	o := &outbox{logger: logger}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// push enqueues ev, applying the §5 backpressure policy if the queue is full.
func (o *outbox) push(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if len(o.buf) < outboxCapacity {
		o.buf = append(o.buf, ev)
		o.cond.Signal()
		return
	}

	if isMotionEvent(ev) {
		o.logger.Printf("capture: output queue full, dropping pointer-motion event")
		return
	}
	if i := o.oldestMotionLocked(); i >= 0 {
		o.logger.Printf("capture: output queue full, dropping oldest pointer-motion event to admit %v", ev.Kind)
		o.buf = append(o.buf[:i], o.buf[i+1:]...)
	} else {
		// No motion event to drop in favour of this one: every queued event
		// is already non-motion (key/lifecycle), so the oldest of those
		// yields instead of silently refusing ev.
		o.logger.Printf("capture: output queue full of non-motion events, dropping oldest to admit %v", ev.Kind)
		o.buf = o.buf[1:]
	}
	o.buf = append(o.buf, ev)
	o.cond.Signal()
}

// pop blocks until an event is available or the outbox is closed.
func (o *outbox) pop() (Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.buf) == 0 && !o.closed {
		o.cond.Wait()
	}
	if len(o.buf) == 0 {
		return Event{}, false
	}
	ev := o.buf[0]
	o.buf = o.buf[1:]
	return ev, true
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cond.Broadcast()
}

func (o *outbox) oldestMotionLocked() int {
	for i, ev := range o.buf {
		if isMotionEvent(ev) {
			return i
		}
	}
	return -1
}

// isMotionEvent reports whether ev is the class of event the §5
// backpressure policy drops first: captured pointer motion, never a key
// event or a device lifecycle notification.
func isMotionEvent(ev Event) bool {
	return ev.Kind == EventInput && ev.Input.IsMotion()
}
