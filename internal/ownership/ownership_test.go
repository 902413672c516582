package ownership

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sigil-lang/sigil/internal/typesystem"
	"github.com/sigil-lang/sigil/internal/value"
)

func intVal(n int64) value.Value {
	return value.NewStatic(typesystem.I64, &value.Integer{Value: n})
}

func TestUniqueMoveInvalidatesSource(t *testing.T) {
	store := NewStore()
	u := store.WrapUnique(intVal(7))

	if u.State() != UniqueOwned {
		t.Fatalf("state = %s, want owned", u.State())
	}
	v, err := u.MoveOut()
	if err != nil {
		t.Fatalf("move failed: %s", err.Inspect())
	}
	if v.Payload().(*value.Integer).Value != 7 {
		t.Fatalf("moved value = %s, want 7", v.Inspect())
	}
	if u.State() != UniqueMoved {
		t.Errorf("state = %s, want moved", u.State())
	}

	if _, err := u.Get(); err == nil || err.Code != value.UseAfterMove {
		t.Error("read after move must fail UseAfterMove")
	}
	if _, err := u.MoveOut(); err == nil || err.Code != value.UseAfterMove {
		t.Error("double move must fail UseAfterMove")
	}
	if err := u.Set(intVal(1)); err == nil || err.Code != value.UseAfterMove {
		t.Error("write after move must fail UseAfterMove")
	}
}

func TestUniqueDropFreesSlotAndStaleHandleFails(t *testing.T) {
	store := NewStore()
	u := store.WrapUnique(intVal(1))
	u.Drop()
	if u.State() != UniqueDropped {
		t.Fatalf("state = %s, want dropped", u.State())
	}
	// Slot reuse must not resurrect the old handle.
	u2 := store.WrapUnique(intVal(2))
	if _, err := u.Get(); err == nil {
		t.Error("stale handle must not read the reused slot")
	}
	if v, err := u2.Get(); err != nil || v.Payload().(*value.Integer).Value != 2 {
		t.Error("fresh handle must read its own value")
	}
	u.Drop() // idempotent, must not free u2's slot
	if _, err := u2.Get(); err != nil {
		t.Error("double drop of a stale handle corrupted a live slot")
	}
}

func TestSharedCloneDropFinalizesOnce(t *testing.T) {
	store := NewStore()
	var finalized atomic.Int64
	sh := store.WrapShared(intVal(10), func(value.Value) {
		finalized.Add(1)
	})

	c1, err := sh.Clone()
	if err != nil {
		t.Fatalf("clone failed: %s", err.Inspect())
	}
	if sh.StrongCount() != 2 {
		t.Fatalf("strong count = %d, want 2", sh.StrongCount())
	}
	sh.Drop()
	if finalized.Load() != 0 {
		t.Fatal("finalized while a strong owner remains")
	}
	c1.Drop()
	if finalized.Load() != 1 {
		t.Fatalf("finalizer ran %d times, want exactly 1", finalized.Load())
	}
	c1.Drop() // handle-level no-op
	if finalized.Load() != 1 {
		t.Fatal("double drop re-ran the finalizer")
	}
	if _, err := c1.Clone(); err == nil || err.Code != value.BorrowViolation {
		t.Error("clone of a dropped handle must fail BorrowViolation")
	}
}

func TestSharedCloneDropInterleavings(t *testing.T) {
	store := NewStore()
	var finalized atomic.Int64
	sh := store.WrapShared(intVal(1), func(value.Value) { finalized.Add(1) })

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		c, err := sh.Clone()
		if err != nil {
			t.Fatalf("clone failed: %s", err.Inspect())
		}
		wg.Add(1)
		go func(h *Shared) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cc, err := h.Clone()
				if err != nil {
					t.Errorf("clone failed: %s", err.Inspect())
					return
				}
				cc.Drop()
			}
			h.Drop()
		}(c)
	}
	wg.Wait()
	if n := sh.StrongCount(); n != 1 {
		t.Fatalf("strong count = %d, want 1 (root handle)", n)
	}
	sh.Drop()
	if finalized.Load() != 1 {
		t.Fatalf("finalizer ran %d times, want exactly 1", finalized.Load())
	}
}

func TestWeakNeverDangles(t *testing.T) {
	store := NewStore()
	sh := store.WrapShared(intVal(99), nil)
	w, err := sh.Downgrade()
	if err != nil {
		t.Fatalf("downgrade failed: %s", err.Inspect())
	}
	if sh.StrongCount() != 1 {
		t.Fatal("downgrade must not touch the strong count")
	}
	if sh.WeakCount() != 1 {
		t.Fatal("weak observer count not recorded")
	}

	if v, ok := w.Get(); !ok || v.Payload().(*value.Integer).Value != 99 {
		t.Fatal("weak read failed while a strong owner is live")
	}

	sh.Drop()
	if _, ok := w.Get(); ok {
		t.Fatal("weak read after last strong drop must be empty")
	}
	w.Drop()
}

func TestSyncMutualExclusion(t *testing.T) {
	store := NewStore()
	sy := store.WrapSync(intVal(0))

	var inside atomic.Int64
	var maxInside atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			err := sy.With(id+1, func(v *value.Value) *value.Error {
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				cur := v.Payload().(*value.Integer).Value
				time.Sleep(time.Millisecond)
				*v = intVal(cur + 1)
				inside.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("with failed: %s", err.Inspect())
			}
		}(int64(i))
	}
	wg.Wait()

	if maxInside.Load() != 1 {
		t.Fatalf("observed %d concurrent sessions, want 1", maxInside.Load())
	}
	err := sy.With(100, func(v *value.Value) *value.Error {
		if got := (*v).Payload().(*value.Integer).Value; got != 8 {
			t.Errorf("final value = %d, want 8", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with failed: %s", err.Inspect())
	}
}

func TestSyncReleasedOnBodyFailure(t *testing.T) {
	store := NewStore()
	sy := store.WrapSync(intVal(0))
	boom := value.NewError(value.TypeMismatch, "boom")
	if err := sy.With(1, func(*value.Value) *value.Error { return boom }); err != boom {
		t.Fatal("body error must propagate")
	}
	// Lock must be free again.
	done := make(chan struct{})
	go func() {
		sy.With(2, func(*value.Value) *value.Error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released after a failing body")
	}
}

func TestSyncReentryDeadlockDetected(t *testing.T) {
	store := NewStore()
	sy := store.WrapSync(intVal(0))
	var inner *value.Error
	err := sy.With(42, func(*value.Value) *value.Error {
		_, inner = sy.Acquire(42, func() {})
		return nil
	})
	if err != nil {
		t.Fatalf("outer with failed: %s", err.Inspect())
	}
	if inner == nil || inner.Code != value.DeadlockDetected {
		t.Fatal("self re-entry must fail DeadlockDetected, not hang")
	}
}

func TestSyncFIFOHandoff(t *testing.T) {
	store := NewStore()
	sy := store.WrapSync(intVal(0))

	granted, err := sy.Acquire(1, nil)
	if err != nil || !granted {
		t.Fatal("initial acquire should be granted")
	}

	var order []int64
	var mu sync.Mutex
	for i := int64(2); i <= 4; i++ {
		id := i
		g, err := sy.Acquire(id, func() {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			sy.Release()
		})
		if err != nil || g {
			t.Fatal("waiters must queue, not acquire")
		}
	}
	sy.Release()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 2 || order[1] != 3 || order[2] != 4 {
		t.Fatalf("handoff order = %v, want [2 3 4]", order)
	}
}

func TestSyncAbandonedWaiterIsSkipped(t *testing.T) {
	store := NewStore()
	sy := store.WrapSync(intVal(0))

	granted, err := sy.Acquire(1, nil)
	if err != nil || !granted {
		t.Fatal("initial acquire should be granted")
	}
	woke := false
	sy.Acquire(2, func() { t.Error("abandoned waiter must not be woken") })
	sy.Acquire(3, func() {
		woke = true
		sy.Release()
	})
	sy.Abandon(2)
	sy.Release()
	if !woke {
		t.Fatal("live waiter was not handed the lock")
	}
}

func TestSyncAbandonByHolderHandsOff(t *testing.T) {
	store := NewStore()
	sy := store.WrapSync(intVal(0))

	granted, err := sy.Acquire(4, nil)
	if err != nil || !granted {
		t.Fatal("initial acquire should be granted")
	}
	woke := false
	sy.Acquire(5, func() {
		woke = true
		sy.Release()
	})
	sy.Abandon(4)
	if !woke {
		t.Fatal("abandoning the holder must hand the lock to the next waiter")
	}
	// The lock is free again after the waiter's release.
	granted, err = sy.Acquire(6, nil)
	if err != nil || !granted {
		t.Fatal("lock must be acquirable after abandon and release")
	}
	sy.Release()
}

func TestOwnReleaseExactlyOnce(t *testing.T) {
	store := NewStore()
	var released atomic.Int64
	o := store.WrapOwn(intVal(5), func(value.Value) error {
		released.Add(1)
		return nil
	})

	if _, err := o.Get(); err != nil {
		t.Fatalf("get failed: %s", err.Inspect())
	}
	if err := o.Close(); err != nil {
		t.Fatalf("close failed: %s", err.Inspect())
	}
	if err := o.Close(); err != nil {
		t.Fatal("second close must be a silent no-op")
	}
	o.Drop()
	if released.Load() != 1 {
		t.Fatalf("release ran %d times, want exactly 1", released.Load())
	}
	if _, err := o.Get(); err == nil || err.Code != value.BorrowViolation {
		t.Error("read after release must fail BorrowViolation")
	}
}

func TestOwnReleaseFailure(t *testing.T) {
	store := NewStore()
	o := store.WrapOwn(intVal(1), func(value.Value) error {
		return errors.New("device busy")
	})
	err := o.Close()
	if err == nil || err.Code != value.ResourceReleaseFailure {
		t.Fatal("failing release must surface ResourceReleaseFailure")
	}
	if !o.Released() {
		t.Error("a failed release still counts as released")
	}
}

func TestScopeDropsInReverseOrder(t *testing.T) {
	store := NewStore()
	var order []string
	var mu sync.Mutex
	mark := func(name string) func(value.Value) error {
		return func(value.Value) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	var sc Scope
	sc.Track(store.WrapOwn(intVal(1), mark("a")))
	sc.Track(store.WrapOwn(intVal(2), mark("b")))
	u := store.WrapUnique(intVal(3))
	sc.Track(u)
	sc.Exit()

	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("release order = %v, want [b a]", order)
	}
	if u.State() != UniqueDropped {
		t.Error("scope exit must drop unique bindings")
	}
}

func TestWrapQualifiers(t *testing.T) {
	store := NewStore()
	if o, err := store.Wrap(intVal(1), KindUnique); err != nil || o.Kind() != KindUnique {
		t.Error("wrap unique failed")
	}
	if o, err := store.Wrap(intVal(1), KindShared); err != nil || o.Kind() != KindShared {
		t.Error("wrap shared failed")
	}
	if o, err := store.Wrap(intVal(1), KindSync); err != nil || o.Kind() != KindSync {
		t.Error("wrap sync failed")
	}
	if _, err := store.Wrap(intVal(1), KindWeak); err == nil {
		t.Error("weak must not be constructible directly")
	}
	if _, err := store.Wrap(intVal(1), KindOwn); err == nil {
		t.Error("own requires a release callback")
	}
}

func TestKindString(t *testing.T) {
	want := map[Kind]string{
		KindUnique: "~", KindShared: "@", KindWeak: "#weak",
		KindSync: "#sync", KindOwn: "#own",
	}
	for k, s := range want {
		if k.String() != s {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), s)
		}
	}
}
