package sched

import (
	"testing"
	"time"

	"github.com/sigil-lang/sigil/internal/config"
	"github.com/sigil-lang/sigil/internal/typesystem"
	"github.com/sigil-lang/sigil/internal/value"
)

func intVal(n int64) value.Value {
	return value.NewStatic(typesystem.I64, &value.Integer{Value: n})
}

func intOf(t *testing.T, v value.Value) int64 {
	t.Helper()
	i, ok := v.Payload().(*value.Integer)
	if !ok {
		t.Fatalf("payload is %T, want *value.Integer", v.Payload())
	}
	return i.Value
}

func waitFor(t *testing.T, what string, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestChannelDeliveryOrder(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	snd, rcv := s.NewChannel(0)

	const n = 16
	sent := int64(0)
	var producer Frame
	producer = func(task *Task, in any) Outcome {
		if e, ok := in.(*value.Error); ok {
			return Fault(e)
		}
		if sent == n {
			snd.Drop()
			return Done(value.UNIT)
		}
		sent++
		return snd.Push(task, intVal(sent), producer)
	}
	h := s.Spawn("producer", producer)

	for want := int64(1); want <= n; want++ {
		msg, err := rcv.NextWait()
		if err != nil {
			t.Fatalf("receive %d: %v", want, err)
		}
		v, verr := msg.Get()
		if verr != nil {
			t.Fatalf("read message %d: %v", want, verr)
		}
		if got := intOf(t, v); got != want {
			t.Fatalf("received %d, want %d", got, want)
		}
	}
	if _, err := rcv.NextWait(); err == nil || err.Code != value.ChannelClosed {
		t.Fatalf("drained closed channel yields %v, want ChannelClosed", err)
	}
	if _, fault := h.Wait(); fault != nil {
		t.Fatalf("producer faulted: %v", fault)
	}
}

func TestBoundedSendSuspends(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	snd, rcv := s.NewChannel(1)

	sent := int64(0)
	var producer Frame
	producer = func(task *Task, in any) Outcome {
		if e, ok := in.(*value.Error); ok {
			return Fault(e)
		}
		if sent == 3 {
			return Done(value.UNIT)
		}
		sent++
		return snd.Push(task, intVal(sent), producer)
	}
	h := s.Spawn("producer", producer)

	waitFor(t, "producer to park on the full channel", func() bool {
		return h.State() == TaskSuspended && h.t.Reason() == ReasonChannelSend
	})
	if sent != 2 {
		t.Fatalf("suspended after sending %d, want 2 (1 queued, 1 parked)", sent)
	}

	for want := int64(1); want <= 3; want++ {
		msg, err := rcv.NextWait()
		if err != nil {
			t.Fatalf("receive %d: %v", want, err)
		}
		v, _ := msg.Get()
		if got := intOf(t, v); got != want {
			t.Fatalf("received %d, want %d", got, want)
		}
	}
	if _, fault := h.Wait(); fault != nil {
		t.Fatalf("producer faulted: %v", fault)
	}
}

func TestSendAfterReceiverDrop(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	snd, rcv := s.NewChannel(0)

	rcv.Drop()
	err := snd.PushWait(intVal(1))
	if err == nil || err.Code != value.ChannelClosed {
		t.Fatalf("send after receiver drop yields %v, want ChannelClosed", err)
	}
}

func TestSenderDropWakesParkedReceiver(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	snd, rcv := s.NewChannel(0)

	h := s.Spawn("consumer", func(task *Task, in any) Outcome {
		return rcv.Next(task, func(task *Task, in any) Outcome {
			if e, ok := in.(*value.Error); ok {
				return Fault(e)
			}
			return Done(value.UNIT)
		})
	})
	waitFor(t, "consumer to park on the empty channel", func() bool {
		return h.State() == TaskSuspended && h.t.Reason() == ReasonChannelRecv
	})

	snd.Drop()
	_, fault := h.Wait()
	if fault == nil || fault.Code != value.ChannelClosed {
		t.Fatalf("parked receiver got %v, want ChannelClosed", fault)
	}
}

func TestSenderDropLeavesQueueReceivable(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	snd, rcv := s.NewChannel(0)

	for i := int64(1); i <= 2; i++ {
		if err := snd.PushWait(intVal(i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	snd.Drop()

	for want := int64(1); want <= 2; want++ {
		msg, err := rcv.NextWait()
		if err != nil {
			t.Fatalf("receive %d after close: %v", want, err)
		}
		v, _ := msg.Get()
		if got := intOf(t, v); got != want {
			t.Fatalf("received %d, want %d", got, want)
		}
	}
	if _, err := rcv.NextWait(); err == nil || err.Code != value.ChannelClosed {
		t.Fatalf("drained channel yields %v, want ChannelClosed", err)
	}
}

func TestUniqueMovesAcrossChannel(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	snd, rcv := s.NewChannel(0)

	u := s.Store().WrapUnique(intVal(7))
	if err := snd.PushWait(u); err != nil {
		t.Fatalf("send unique: %v", err)
	}
	if _, err := u.Get(); err == nil || err.Code != value.UseAfterMove {
		t.Fatalf("source read after send yields %v, want UseAfterMove", err)
	}

	msg, err := rcv.NextWait()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	v, verr := msg.Get()
	if verr != nil {
		t.Fatalf("read moved value: %v", verr)
	}
	if got := intOf(t, v); got != 7 {
		t.Fatalf("moved value is %d, want 7", got)
	}
}

func TestSharedClonesAcrossChannel(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	snd, rcv := s.NewChannel(0)

	finalized := 0
	sh := s.Store().WrapShared(intVal(3), func(value.Value) { finalized++ })
	if err := snd.PushWait(sh); err != nil {
		t.Fatalf("send shared: %v", err)
	}
	if n := sh.StrongCount(); n != 2 {
		t.Fatalf("strong count after send = %d, want 2", n)
	}

	msg, err := rcv.NextWait()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.Shared == nil {
		t.Fatal("shared handle did not survive the channel")
	}
	msg.Drop()
	if n := sh.StrongCount(); n != 1 {
		t.Fatalf("strong count after receiver drop = %d, want 1", n)
	}
	sh.Drop()
	if finalized != 1 {
		t.Fatalf("finalizer ran %d times, want 1", finalized)
	}
}

func TestReceiverDropDiscardsQueuedShared(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	snd, rcv := s.NewChannel(0)

	sh := s.Store().WrapShared(intVal(1), nil)
	if err := snd.PushWait(sh); err != nil {
		t.Fatalf("send shared: %v", err)
	}
	rcv.Drop()
	if n := sh.StrongCount(); n != 1 {
		t.Fatalf("queued clone leaked, strong count = %d, want 1", n)
	}
}

func TestSyncCannotCrossChannel(t *testing.T) {
	s := New(config.DefaultRuntime())
	defer s.Close()
	snd, _ := s.NewChannel(0)

	sy := s.Store().WrapSync(intVal(1))
	err := snd.PushWait(sy)
	if err == nil || err.Code != value.BorrowViolation {
		t.Fatalf("sending a #sync handle yields %v, want BorrowViolation", err)
	}
}
