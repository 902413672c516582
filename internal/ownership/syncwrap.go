package ownership

import (
	"sync"

	"github.com/sigil-lang/sigil/internal/value"
)

// Sync is #sync: at most one exclusive access session at a time. Waiters are
// queued FIFO and the lock is handed off directly, so a second session never
// starts before the first one's body and release have both completed.
//
// Sessions are keyed by task identity. A task re-entering its own active
// session would deadlock against itself; that surfaces as DeadlockDetected
// instead of hanging.
type Sync struct {
	mu      sync.Mutex
	locked  bool
	owner   int64
	waiters []syncWaiter
	val     value.Value
	dropped bool
}

type syncWaiter struct {
	taskID int64
	wake   func()
}

func (s *Store) WrapSync(v value.Value) *Sync {
	return &Sync{val: v}
}

func (sy *Sync) Kind() Kind { return KindSync }

// Acquire takes the session lock, or queues wake to run once the lock is
// handed to taskID. The boolean reports an immediate grant. A nil wake makes
// this a pure try-acquire that never queues.
func (sy *Sync) Acquire(taskID int64, wake func()) (bool, *value.Error) {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if sy.dropped {
		return false, value.NewError(value.BorrowViolation, "sync value was dropped")
	}
	if sy.locked {
		if sy.owner == taskID {
			return false, value.NewError(value.DeadlockDetected,
				"task re-entered its own #sync session")
		}
		if wake != nil {
			sy.waiters = append(sy.waiters, syncWaiter{taskID: taskID, wake: wake})
		}
		return false, nil
	}
	sy.locked = true
	sy.owner = taskID
	return true, nil
}

// Release ends the session. If anyone is queued the lock transfers to the
// first waiter before their wake runs.
func (sy *Sync) Release() {
	sy.mu.Lock()
	if !sy.locked {
		sy.mu.Unlock()
		invariantf("release of an unlocked #sync value")
	}
	sy.handOff()
}

// handOff transfers the lock to the next waiter, or unlocks when the queue is
// empty. Called with sy.mu held; releases it.
func (sy *Sync) handOff() {
	if len(sy.waiters) == 0 {
		sy.locked = false
		sy.owner = 0
		sy.mu.Unlock()
		return
	}
	next := sy.waiters[0]
	sy.waiters = sy.waiters[1:]
	sy.owner = next.taskID
	sy.mu.Unlock()
	next.wake()
}

// Abandon withdraws every claim a session has on the lock: a queued waiter is
// removed, a held lock is handed off. Task cancellation cleanup calls this so
// a task that dies while parked on the lock, or right after a hand-off it
// never observed, cannot strand the session.
func (sy *Sync) Abandon(session int64) {
	sy.mu.Lock()
	kept := sy.waiters[:0]
	for _, w := range sy.waiters {
		if w.taskID != session {
			kept = append(kept, w)
		}
	}
	sy.waiters = kept
	if sy.locked && sy.owner == session {
		sy.handOff()
		return
	}
	sy.mu.Unlock()
}

// Value accessors are only safe inside a session; With enforces that.
func (sy *Sync) get() *value.Value { return &sy.val }

// With runs body with exclusive mutable access, blocking the calling
// goroutine until the session can start. The lock is released on every exit
// path, including a failing body.
func (sy *Sync) With(taskID int64, body func(*value.Value) *value.Error) *value.Error {
	ready := make(chan struct{})
	granted, err := sy.Acquire(taskID, func() { close(ready) })
	if err != nil {
		return err
	}
	if !granted {
		<-ready
	}
	defer sy.Release()
	return body(sy.get())
}

// Locked runs body inside a session the caller already holds, then releases
// it. The cooperative scheduler path acquires with a wake callback and lands
// here once the lock has been handed off.
func (sy *Sync) Locked(body func(*value.Value) *value.Error) *value.Error {
	defer sy.Release()
	return body(sy.get())
}

func (sy *Sync) Drop() {
	sy.mu.Lock()
	sy.dropped = true
	sy.val = value.Zero
	sy.mu.Unlock()
}
