package ownership

import (
	"sync"
	"sync/atomic"

	"github.com/sigil-lang/sigil/internal/value"
)

// sharedCell is the backing storage for @T. Counts are always atomic: shared
// handles cross task and actor boundaries through channels, so there is no
// safe single-threaded narrowing.
type sharedCell struct {
	strong atomic.Int64
	weak   atomic.Int64 // observer count, informational only

	mu        sync.Mutex
	val       value.Value
	finalizer func(value.Value)
	finalized bool
}

// Shared is one strong handle into a cell. Each handle contributes exactly
// one strong count and gives it back on Drop.
type Shared struct {
	cell    *sharedCell
	dropped atomic.Bool
}

// WrapShared creates shared storage with a strong count of one. finalizer
// (optional) runs exactly once, when the count reaches zero.
func (s *Store) WrapShared(v value.Value, finalizer func(value.Value)) *Shared {
	cell := &sharedCell{val: v, finalizer: finalizer}
	cell.strong.Store(1)
	s.cellMu.Lock()
	s.cells = append(s.cells, cell)
	s.cellMu.Unlock()
	return &Shared{cell: cell}
}

func (sh *Shared) Kind() Kind { return KindShared }

// Clone atomically takes another strong count and returns a new handle.
func (sh *Shared) Clone() (*Shared, *value.Error) {
	if sh.dropped.Load() {
		return nil, value.NewError(value.BorrowViolation,
			"clone of a dropped shared handle")
	}
	if n := sh.cell.strong.Add(1); n <= 1 {
		invariantf("shared clone raced finalization (count %d)", n)
	}
	return &Shared{cell: sh.cell}, nil
}

func (sh *Shared) Get() (value.Value, *value.Error) {
	if sh.dropped.Load() {
		return value.Value{}, value.NewError(value.BorrowViolation,
			"read of a dropped shared handle")
	}
	sh.cell.mu.Lock()
	defer sh.cell.mu.Unlock()
	return sh.cell.val, nil
}

func (sh *Shared) Set(v value.Value) *value.Error {
	if sh.dropped.Load() {
		return value.NewError(value.BorrowViolation,
			"write through a dropped shared handle")
	}
	sh.cell.mu.Lock()
	defer sh.cell.mu.Unlock()
	sh.cell.val = v
	return nil
}

// StrongCount is inspectable for tests.
func (sh *Shared) StrongCount() int64 { return sh.cell.strong.Load() }

// WeakCount is informational; it never affects liveness.
func (sh *Shared) WeakCount() int64 { return sh.cell.weak.Load() }

// Drop releases this handle's strong count. Reaching zero finalizes the cell
// exactly once. A second Drop on the same handle is a no-op; a negative count
// is a runtime defect.
func (sh *Shared) Drop() {
	if !sh.dropped.CompareAndSwap(false, true) {
		return
	}
	n := sh.cell.strong.Add(-1)
	switch {
	case n > 0:
		return
	case n < 0:
		invariantf("negative strong count %d", n)
	}
	sh.cell.mu.Lock()
	if sh.cell.finalized {
		sh.cell.mu.Unlock()
		invariantf("shared cell finalized twice")
	}
	sh.cell.finalized = true
	v := sh.cell.val
	fin := sh.cell.finalizer
	sh.cell.val = value.Zero
	sh.cell.finalizer = nil
	sh.cell.mu.Unlock()
	if fin != nil {
		fin(v)
	}
}

// Downgrade produces a weak observer without touching the strong count.
func (sh *Shared) Downgrade() (*Weak, *value.Error) {
	if sh.dropped.Load() {
		return nil, value.NewError(value.BorrowViolation,
			"downgrade of a dropped shared handle")
	}
	sh.cell.weak.Add(1)
	return &Weak{cell: sh.cell}, nil
}

// Weak observes shared storage without owning it.
type Weak struct {
	cell    *sharedCell
	dropped atomic.Bool
}

func (w *Weak) Kind() Kind { return KindWeak }

// Get returns the value while at least one strong owner is live, and
// (Zero, false) afterwards, never a dangling payload.
func (w *Weak) Get() (value.Value, bool) {
	w.cell.mu.Lock()
	defer w.cell.mu.Unlock()
	if w.cell.finalized || w.cell.strong.Load() <= 0 {
		return value.Zero, false
	}
	return w.cell.val, true
}

func (w *Weak) Drop() {
	if !w.dropped.CompareAndSwap(false, true) {
		return
	}
	w.cell.weak.Add(-1)
}
