package sched

import (
	"github.com/google/uuid"
	"github.com/sigil-lang/sigil/internal/trace"
	"github.com/sigil-lang/sigil/internal/value"
)

// ActorStatus is the inspectable actor lifecycle.
type ActorStatus string

const (
	ActorIdle    ActorStatus = "idle"
	ActorBusy    ActorStatus = "busy"
	ActorFaulted ActorStatus = "faulted"
	ActorStopped ActorStatus = "stopped"
)

// Handler processes one message against the actor's private state and returns
// the next state. Returning an error faults the actor.
type Handler func(state value.Value, msg Msg) (value.Value, *value.Error)

// actor is the scheduler-private record behind an ActorRef. Its driver task is
// pinned to one shard, so message handling is strictly sequential: at most one
// handler invocation is in flight at any time.
type actor struct {
	id      uuid.UUID
	name    string
	s       *Scheduler
	handler Handler
	cap     int // <= 0 means unbounded mailbox

	// All fields below are guarded by the driver task's scheduler plus this
	// record's residence in s.actors; mutation happens under s.actorMu.
	status  ActorStatus
	state   value.Value
	mailbox []Msg
	sendq   []*actorSender
	driver  *Task
	parked  bool
	stopReq bool
}

type actorSender struct {
	t    *Task
	host chan *value.Error
	msg  Msg
}

// ActorRef is the public identity of an actor. It is a handle, not the actor:
// the scheduler owns the live actor set, and a ref to a stopped actor simply
// fails to deliver.
type ActorRef struct {
	s  *Scheduler
	id uuid.UUID
}

func (r ActorRef) ID() uuid.UUID { return r.id }

// SpawnActor creates an actor with initial private state and starts its driver
// task. capacity bounds the mailbox; <= 0 means unbounded.
func (s *Scheduler) SpawnActor(name string, initial value.Value, capacity int, h Handler) ActorRef {
	a := &actor{
		id:      uuid.New(),
		name:    name,
		s:       s,
		handler: h,
		cap:     capacity,
		status:  ActorIdle,
		state:   initial,
	}
	s.actorMu.Lock()
	s.actors[a.id] = a
	s.actorMu.Unlock()
	s.recordActor(a, "", string(ActorIdle), "spawn")

	handle := s.Spawn("actor:"+name, a.loop)
	a.driver = handle.t
	return ActorRef{s: s, id: a.id}
}

func (s *Scheduler) lookupActor(id uuid.UUID) *actor {
	s.actorMu.Lock()
	defer s.actorMu.Unlock()
	return s.actors[id]
}

// Status reports the actor's lifecycle state; a dead ref reads as stopped.
func (r ActorRef) Status() ActorStatus {
	a := r.s.lookupActor(r.id)
	if a == nil {
		return ActorStopped
	}
	r.s.actorMu.Lock()
	defer r.s.actorMu.Unlock()
	return a.status
}

// Send delivers from task context. A full bounded mailbox suspends the sender
// until the actor frees a slot; a stopped actor fails with ChannelClosed. A
// faulted actor still accepts mail, it just will not process until restarted.
func (r ActorRef) Send(t *Task, payload any, k Frame) Outcome {
	msg, terr := TransferIn(payload)
	if terr != nil {
		return Fault(terr)
	}
	a := r.s.lookupActor(r.id)
	if a == nil {
		msg.Drop()
		return Continue(k, value.NewError(value.ChannelClosed,
			"send to a stopped actor"))
	}
	s := r.s
	s.actorMu.Lock()
	if a.status == ActorStopped || a.stopReq {
		s.actorMu.Unlock()
		msg.Drop()
		return Continue(k, value.NewError(value.ChannelClosed,
			"send to a stopped actor"))
	}
	if a.cap > 0 && len(a.mailbox) >= a.cap {
		a.sendq = append(a.sendq, &actorSender{t: t, msg: msg})
		s.actorMu.Unlock()
		return Suspend(ReasonMailbox, k)
	}
	a.mailbox = append(a.mailbox, msg)
	wake := a.parked
	a.parked = false
	s.actorMu.Unlock()
	if wake {
		s.resume(a.driver, nil)
	}
	return Continue(k, value.UNIT)
}

// Post is the host-side blocking send.
func (r ActorRef) Post(payload any) *value.Error {
	msg, terr := TransferIn(payload)
	if terr != nil {
		return terr
	}
	a := r.s.lookupActor(r.id)
	if a == nil {
		msg.Drop()
		return value.NewError(value.ChannelClosed, "send to a stopped actor")
	}
	s := r.s
	s.actorMu.Lock()
	if a.status == ActorStopped || a.stopReq {
		s.actorMu.Unlock()
		msg.Drop()
		return value.NewError(value.ChannelClosed, "send to a stopped actor")
	}
	if a.cap > 0 && len(a.mailbox) >= a.cap {
		wait := make(chan *value.Error, 1)
		a.sendq = append(a.sendq, &actorSender{host: wait, msg: msg})
		s.actorMu.Unlock()
		return <-wait
	}
	a.mailbox = append(a.mailbox, msg)
	wake := a.parked
	a.parked = false
	s.actorMu.Unlock()
	if wake {
		s.resume(a.driver, nil)
	}
	return nil
}

// Restart recovers a faulted actor. State and queued mail are preserved; the
// message that faulted the handler was already consumed and stays discarded.
func (r ActorRef) Restart() *value.Error {
	a := r.s.lookupActor(r.id)
	if a == nil {
		return value.NewError(value.ActorFault, "restart of a stopped actor")
	}
	s := r.s
	s.actorMu.Lock()
	if a.status != ActorFaulted {
		status := a.status
		s.actorMu.Unlock()
		return value.NewError(value.ActorFault,
			"restart requires a faulted actor, status is %s", status)
	}
	a.status = ActorIdle
	wake := a.parked
	a.parked = false
	s.actorMu.Unlock()
	s.recordActor(a, string(ActorFaulted), string(ActorIdle), "restart")
	if wake {
		s.resume(a.driver, nil)
	}
	return nil
}

// Stop shuts the actor down. An in-flight handler invocation finishes first;
// everything still queued after that is discarded, and parked senders fail.
func (r ActorRef) Stop() {
	a := r.s.lookupActor(r.id)
	if a == nil {
		return
	}
	s := r.s
	s.actorMu.Lock()
	if a.status == ActorStopped || a.stopReq {
		s.actorMu.Unlock()
		return
	}
	a.stopReq = true
	wake := a.parked
	a.parked = false
	s.actorMu.Unlock()
	if wake {
		s.resume(a.driver, nil)
	}
}

// loop is the driver frame: handle one message per scheduling slice, then
// yield so other tasks on the shard get a turn.
func (a *actor) loop(t *Task, in any) Outcome {
	s := a.s
	s.actorMu.Lock()
	if a.stopReq {
		orphans := a.mailbox
		a.mailbox = nil
		senders := a.sendq
		a.sendq = nil
		from := a.status
		s.actorMu.Unlock()

		for _, m := range orphans {
			m.Drop()
		}
		err := value.NewError(value.ChannelClosed, "actor stopped")
		for _, w := range senders {
			w.msg.Drop()
			if w.t != nil {
				s.resume(w.t, err)
			} else {
				w.host <- err
			}
		}

		s.actorMu.Lock()
		a.status = ActorStopped
		delete(s.actors, a.id)
		s.actorMu.Unlock()
		s.recordActor(a, string(from), string(ActorStopped), "stop")
		return Done(value.UNIT)
	}
	if a.status == ActorFaulted || len(a.mailbox) == 0 {
		a.parked = true
		s.actorMu.Unlock()
		return Suspend(ReasonMailboxRecv, a.loop)
	}

	msg := a.mailbox[0]
	a.mailbox = a.mailbox[1:]
	a.refillSenders()
	a.status = ActorBusy
	state := a.state
	s.actorMu.Unlock()
	s.recordActor(a, string(ActorIdle), string(ActorBusy), "")

	next, herr := a.invoke(state, msg)
	msg.Drop()

	if herr != nil {
		s.actorMu.Lock()
		a.status = ActorFaulted
		s.actorMu.Unlock()
		s.recordActor(a, string(ActorBusy), string(ActorFaulted), herr.Message)
		log.Errorf("actor %s (%s) faulted: %s", a.name, a.id, herr.Inspect())
		return Yield(a.loop)
	}

	s.actorMu.Lock()
	a.state = next
	a.status = ActorIdle
	s.actorMu.Unlock()
	s.recordActor(a, string(ActorBusy), string(ActorIdle), "")
	return Yield(a.loop)
}

// invoke runs the handler, converting panics into faults so one bad handler
// cannot take the driver's shard down with it.
func (a *actor) invoke(state value.Value, msg Msg) (next value.Value, herr *value.Error) {
	defer func() {
		if r := recover(); r != nil {
			herr = value.NewError(value.ActorFault, "handler panic: %v", r)
		}
	}()
	return a.handler(state, msg)
}

// refillSenders assumes s.actorMu is held: move parked senders into freed
// mailbox slots, skipping senders that were cancelled while parked.
func (a *actor) refillSenders() {
	for len(a.sendq) > 0 && (a.cap <= 0 || len(a.mailbox) < a.cap) {
		w := a.sendq[0]
		a.sendq = a.sendq[1:]
		if w.t != nil && w.t.State().Terminal() {
			w.msg.Drop()
			continue
		}
		a.mailbox = append(a.mailbox, w.msg)
		if w.t != nil {
			a.s.resume(w.t, value.UNIT)
		} else {
			w.host <- nil
		}
	}
}

func (s *Scheduler) recordActor(a *actor, from, to, reason string) {
	if s.rec == nil {
		return
	}
	s.rec.Record(trace.Event{
		Kind:   "actor",
		ID:     a.id.String(),
		Name:   a.name,
		From:   from,
		To:     to,
		Reason: reason,
	})
}
