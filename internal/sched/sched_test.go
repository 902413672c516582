package sched

import (
	"path/filepath"
	"testing"

	"github.com/sigil-lang/sigil/internal/config"
	"github.com/sigil-lang/sigil/internal/trace"
	"github.com/sigil-lang/sigil/internal/value"
)

func TestHandleWaitReturnsResult(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()

	h := s.Spawn("answer", func(task *Task, in any) Outcome {
		return Done(&value.Integer{Value: 42})
	})
	obj, fault := h.Wait()
	if fault != nil {
		t.Fatalf("task faulted: %v", fault)
	}
	if got := obj.(*value.Integer).Value; got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
	if h.State() != TaskCompleted {
		t.Fatalf("state = %s, want completed", h.State())
	}
}

func TestTaskTransitionJournal(t *testing.T) {
	ring := trace.NewRing(64)
	s := New(config.DefaultRuntime(), WithRecorder(ring))
	defer s.Close()
	snd, rcv := s.NewChannel(0)

	h := s.Spawn("consumer", func(task *Task, in any) Outcome {
		return rcv.Next(task, func(task *Task, in any) Outcome {
			msg := in.(Msg)
			v, _ := msg.Get()
			return Done(v.Payload())
		})
	})
	waitFor(t, "consumer to park", func() bool {
		return h.State() == TaskSuspended
	})
	if err := snd.PushWait(intVal(5)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, fault := h.Wait(); fault != nil {
		t.Fatalf("consumer faulted: %v", fault)
	}

	var seen []string
	var suspendReason string
	for _, ev := range ring.Snapshot() {
		if ev.ID != h.ID().String() {
			continue
		}
		seen = append(seen, ev.To)
		if ev.To == string(TaskSuspended) {
			suspendReason = ev.Reason
		}
	}
	want := []string{"created", "ready", "running", "suspended", "ready", "running", "completed"}
	if len(seen) != len(want) {
		t.Fatalf("journal = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("journal[%d] = %s, want %s (full: %v)", i, seen[i], want[i], seen)
		}
	}
	if suspendReason != string(ReasonChannelRecv) {
		t.Errorf("suspend reason = %q, want channel-recv", suspendReason)
	}
}

func TestJournalBuiltFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	cfg := config.DefaultRuntime()
	cfg.Trace = config.Trace{Ring: 32, Path: path}
	s := New(cfg)

	h := s.Spawn("observed", func(task *Task, in any) Outcome {
		return Done(value.UNIT)
	})
	h.Wait()

	completed := false
	for _, ev := range s.Journal() {
		if ev.ID == h.ID().String() && ev.To == string(TaskCompleted) {
			completed = true
		}
	}
	if !completed {
		t.Fatal("configured ring did not record the task's completion")
	}
	s.Close()

	sink, err := trace.NewSQLiteSink(path)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer sink.Close()
	events, err := sink.Events()
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("configured sqlite mirror recorded nothing")
	}
}

func TestYieldJournaledAsReady(t *testing.T) {
	ring := trace.NewRing(64)
	s := New(config.DefaultRuntime(), WithRecorder(ring))
	defer s.Close()

	turns := 0
	var f Frame
	f = func(task *Task, in any) Outcome {
		turns++
		if turns == 3 {
			return Done(value.UNIT)
		}
		return Yield(f)
	}
	h := s.Spawn("spinner", f)
	if _, fault := h.Wait(); fault != nil {
		t.Fatalf("spinner faulted: %v", fault)
	}

	yields := 0
	for _, ev := range ring.Snapshot() {
		if ev.ID == h.ID().String() && ev.Reason == "yield" {
			yields++
		}
	}
	if yields != 2 {
		t.Fatalf("journal shows %d yields, want 2", yields)
	}
}

func TestAwaitDeliversResult(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()

	ha := s.Spawn("half", func(task *Task, in any) Outcome {
		return Done(&value.Integer{Value: 21})
	})
	hb := s.Spawn("double", func(task *Task, in any) Outcome {
		return ha.Await(task, func(task *Task, in any) Outcome {
			if e, ok := in.(*value.Error); ok {
				return Fault(e)
			}
			n := in.(value.Object).(*value.Integer).Value
			return Done(&value.Integer{Value: n * 2})
		})
	})

	obj, fault := hb.Wait()
	if fault != nil {
		t.Fatalf("awaiting task faulted: %v", fault)
	}
	if got := obj.(*value.Integer).Value; got != 42 {
		t.Fatalf("result = %d, want 42", got)
	}
}

func TestAwaitFaultedTask(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()

	ha := s.Spawn("doomed", func(task *Task, in any) Outcome {
		return Fault(value.NewError(value.ActorFault, "boom"))
	})
	hb := s.Spawn("watcher", func(task *Task, in any) Outcome {
		return ha.Await(task, func(task *Task, in any) Outcome {
			e, ok := in.(*value.Error)
			if !ok {
				return Fault(value.NewError(value.ActorFault, "await gave %T", in))
			}
			return Done(&value.String{Value: string(e.Code)})
		})
	})

	obj, fault := hb.Wait()
	if fault != nil {
		t.Fatalf("watcher faulted: %v", fault)
	}
	if got := obj.(*value.String).Value; got != string(value.ActorFault) {
		t.Fatalf("observed code %q, want ActorFault", got)
	}
}

func TestAwaitCancelledTask(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	_, rcv := s.NewChannel(0)

	ha := s.Spawn("parked", func(task *Task, in any) Outcome {
		return rcv.Next(task, func(task *Task, in any) Outcome {
			return Done(value.UNIT)
		})
	})
	hb := s.Spawn("watcher", func(task *Task, in any) Outcome {
		return ha.Await(task, func(task *Task, in any) Outcome {
			e, ok := in.(*value.Error)
			if !ok {
				return Fault(value.NewError(value.ActorFault, "await gave %T", in))
			}
			return Done(&value.String{Value: string(e.Code)})
		})
	})

	waitFor(t, "parked task to suspend", func() bool {
		return ha.State() == TaskSuspended
	})
	ha.Drop()

	obj, fault := hb.Wait()
	if fault != nil {
		t.Fatalf("watcher faulted: %v", fault)
	}
	if got := obj.(*value.String).Value; got != string(value.TaskCancelledErr) {
		t.Fatalf("observed code %q, want TaskCancelled", got)
	}
	if ha.State() != TaskCancelled {
		t.Fatalf("cancelled task state = %s", ha.State())
	}
}

func TestCancellationRunsCleanups(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	_, rcv := s.NewChannel(0)

	released := false
	own := s.Store().WrapOwn(intVal(1), func(value.Value) error {
		released = true
		return nil
	})
	h := s.Spawn("holder", func(task *Task, in any) Outcome {
		task.PushCleanup(own.Drop)
		return rcv.Next(task, func(task *Task, in any) Outcome {
			return Done(value.UNIT)
		})
	})

	waitFor(t, "holder to suspend", func() bool {
		return h.State() == TaskSuspended
	})
	h.Drop()
	h.Wait()

	if h.State() != TaskCancelled {
		t.Fatalf("state = %s, want cancelled", h.State())
	}
	if !released {
		t.Fatal("cancellation skipped the resource release")
	}
	if !own.Released() {
		t.Fatal("#own handle still reads as live")
	}
}

func TestDropAfterCompletionIsNoop(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()

	h := s.Spawn("done", func(task *Task, in any) Outcome {
		return Done(value.UNIT)
	})
	h.Wait()
	h.Drop()
	if h.State() != TaskCompleted {
		t.Fatalf("drop after completion changed state to %s", h.State())
	}
}

func TestFramePanicBecomesFault(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()

	h := s.Spawn("buggy", func(task *Task, in any) Outcome {
		panic("off the rails")
	})
	_, fault := h.Wait()
	if fault == nil || fault.Code != value.ActorFault {
		t.Fatalf("panic surfaced as %v, want ActorFault", fault)
	}
	if h.State() != TaskFaulted {
		t.Fatalf("state = %s, want faulted", h.State())
	}
}
