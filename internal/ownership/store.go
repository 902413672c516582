package ownership

import (
	"fmt"
	"sync"

	"github.com/sigil-lang/sigil/internal/value"
)

// Store is the arena backing all ownership wrappers. Handles carry slot
// indices plus a generation counter, never native pointers; a stale handle
// (its slot reused after a drop) is caught as a BorrowViolation instead of
// reading someone else's value.
type Store struct {
	mu    sync.Mutex
	slots []slot
	free  []int

	cellMu sync.Mutex
	cells  []*sharedCell
	freeC  []int
}

type slot struct {
	gen   uint32
	live  bool
	moved bool
	val   value.Value
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) alloc(v value.Value) (int, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		sl := &s.slots[idx]
		sl.gen++
		sl.live = true
		sl.moved = false
		sl.val = v
		return idx, sl.gen
	}
	s.slots = append(s.slots, slot{gen: 1, live: true, val: v})
	return len(s.slots) - 1, 1
}

// UniqueState is the wrapper's state machine: Owned -> Moved is terminal for
// the handle, Owned -> Dropped frees the slot.
type UniqueState string

const (
	UniqueOwned   UniqueState = "owned"
	UniqueMoved   UniqueState = "moved"
	UniqueDropped UniqueState = "dropped"
)

// Unique is ~T: exactly one live owner at any time.
type Unique struct {
	store *Store
	idx   int
	gen   uint32
}

func (s *Store) WrapUnique(v value.Value) *Unique {
	idx, gen := s.alloc(v)
	return &Unique{store: s, idx: idx, gen: gen}
}

func (u *Unique) Kind() Kind { return KindUnique }

func (u *Unique) slot() (*slot, *value.Error) {
	sl := &u.store.slots[u.idx]
	if sl.gen != u.gen || !sl.live {
		if sl.moved || sl.gen != u.gen {
			return nil, value.NewError(value.UseAfterMove,
				"binding was moved or dropped")
		}
		return nil, value.NewError(value.BorrowViolation, "binding is not live")
	}
	if sl.moved {
		return nil, value.NewError(value.UseAfterMove,
			"read of a moved-from unique binding")
	}
	return sl, nil
}

// Get reads the owned value. After MoveOut it always fails UseAfterMove.
func (u *Unique) Get() (value.Value, *value.Error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	sl, err := u.slot()
	if err != nil {
		return value.Value{}, err
	}
	return sl.val, nil
}

// Set replaces the owned value in place.
func (u *Unique) Set(v value.Value) *value.Error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	sl, err := u.slot()
	if err != nil {
		return err
	}
	sl.val = v
	return nil
}

// MoveOut transfers the value out and permanently invalidates this handle.
func (u *Unique) MoveOut() (value.Value, *value.Error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	sl, err := u.slot()
	if err != nil {
		return value.Value{}, err
	}
	v := sl.val
	sl.moved = true
	sl.val = value.Zero
	return v, nil
}

// State is inspectable for tests and diagnostics.
func (u *Unique) State() UniqueState {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	sl := &u.store.slots[u.idx]
	if sl.gen != u.gen || !sl.live {
		return UniqueDropped
	}
	if sl.moved {
		return UniqueMoved
	}
	return UniqueOwned
}

// Drop deregisters the slot. Dropping a moved-from or already-dropped handle
// is a no-op.
func (u *Unique) Drop() {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	sl := &u.store.slots[u.idx]
	if sl.gen != u.gen || !sl.live {
		return
	}
	sl.live = false
	sl.moved = false
	sl.val = value.Zero
	u.store.free = append(u.store.free, u.idx)
}

// invariantf reports a runtime defect, not a program error. Per the error
// model these terminate the process.
func invariantf(format string, a ...interface{}) {
	panic(fmt.Sprintf("ownership invariant violated: "+format, a...))
}
