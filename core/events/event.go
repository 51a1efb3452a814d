package events

import "sync"

// Event is a committed state change handed to an Emitter.
type Event interface {
	EventType() string
}

// Emitter receives events after the state change that produced them commits.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Multi fans each event out to every non-nil emitter in order.
func Multi(emitters ...Emitter) Emitter {
	out := make(multi, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multi []Emitter

func (m multi) Emit(evt Event) {
	for _, e := range m {
		e.Emit(evt)
	}
}

// Ring keeps the most recent events up to a fixed capacity.
type Ring struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	full  bool
	total uint64
}

// NewRing returns a ring holding at most capacity events (minimum 1).
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Event, capacity)}
}

// Emit implements the Emitter interface.
func (r *Ring) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = evt
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.total++
}

// Snapshot returns the retained events oldest first, plus the number of
// events ever emitted. A nil ring is empty.
func (r *Ring) Snapshot() ([]Event, uint64) {
	if r == nil {
		return nil, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Event(nil), r.buf[:r.next]...), r.total
	}
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out, r.total
}
