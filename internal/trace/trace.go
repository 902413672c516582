// Package trace records task and actor state transitions. The scheduler's
// state machines are required to be inspectable; this journal is how tests
// and tooling inspect them after the fact.
package trace

import (
	"sync"
	"time"
)

// Event is one recorded transition.
type Event struct {
	Time   time.Time
	Kind   string // "task" or "actor"
	ID     string
	Name   string
	From   string
	To     string
	Reason string // suspension reason or fault message, when applicable
}

// Recorder consumes transition events. Implementations must be safe for
// concurrent use; the scheduler records from every shard.
type Recorder interface {
	Record(Event)
}

// Ring is a fixed-size in-memory journal that keeps the most recent events.
type Ring struct {
	mu    sync.Mutex
	buf   []Event
	start int
	count int
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{buf: make([]Event, size)}
}

func (r *Ring) Record(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = ev
		r.count++
		return
	}
	r.buf[r.start] = ev
	r.start = (r.start + 1) % len(r.buf)
}

// Snapshot returns the retained events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Tee fans events out to several recorders.
type Tee []Recorder

func (t Tee) Record(ev Event) {
	for _, r := range t {
		r.Record(ev)
	}
}
