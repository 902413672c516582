package sched

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sigil-lang/sigil/internal/ownership"
	"github.com/sigil-lang/sigil/internal/value"
)

// Msg is one value crossing a concurrency boundary: either a raw value or a
// shared handle whose strong count it keeps alive while queued.
type Msg struct {
	Value  value.Value
	Shared *ownership.Shared
}

// Get reads the message payload.
func (m Msg) Get() (value.Value, *value.Error) {
	if m.Shared != nil {
		return m.Shared.Get()
	}
	return m.Value, nil
}

// Drop releases whatever the message owns. Discarding a queued message (actor
// stop, channel teardown) must not leak strong counts.
func (m Msg) Drop() {
	if m.Shared != nil {
		m.Shared.Drop()
	}
}

// TransferIn applies the ownership discipline of a send: a Unique handle is
// moved from (the source binding is invalidated), a Shared handle is cloned,
// a plain value is carried as-is. Weak, Sync and Own handles do not cross
// concurrency boundaries.
func TransferIn(v any) (Msg, *value.Error) {
	switch h := v.(type) {
	case *ownership.Unique:
		moved, err := h.MoveOut()
		if err != nil {
			return Msg{}, err
		}
		return Msg{Value: moved}, nil
	case *ownership.Shared:
		clone, err := h.Clone()
		if err != nil {
			return Msg{}, err
		}
		return Msg{Shared: clone}, nil
	case value.Value:
		return Msg{Value: h}, nil
	case ownership.Owned:
		return Msg{}, value.NewError(value.BorrowViolation,
			"%s values cannot cross a task boundary", h.Kind())
	}
	return Msg{}, value.NewError(value.BorrowViolation,
		"unsupported message payload %T", v)
}

// Channel is one FIFO queue with a sender end and a receiver end. Delivery
// order equals send order for the single sender/receiver pair.
type Channel struct {
	id  uuid.UUID
	s   *Scheduler
	cap int // <= 0 means unbounded

	mu            sync.Mutex
	queue         []Msg
	senderDropped bool
	recvDropped   bool
	sendq         []*sendWaiter
	recvq         []*recvWaiter
}

type sendWaiter struct {
	t    *Task             // task-context sender
	host chan *value.Error // host-context sender
	msg  Msg
}

type recvWaiter struct {
	t    *Task
	host chan hostRecv
}

type hostRecv struct {
	msg Msg
	err *value.Error
}

// Sender is the sending end.
type Sender struct {
	ch      *Channel
	dropped bool
}

// Receiver is the receiving end.
type Receiver struct {
	ch      *Channel
	dropped bool
}

// NewChannel creates a channel. capacity <= 0 means unbounded; a bounded
// channel suspends senders while full.
func (s *Scheduler) NewChannel(capacity int) (*Sender, *Receiver) {
	ch := &Channel{id: uuid.New(), s: s, cap: capacity}
	return &Sender{ch: ch}, &Receiver{ch: ch}
}

func (c *Channel) closedForSend() bool { return c.senderDropped || c.recvDropped }

// deliver assumes c.mu is held: move msg to a live receiver or the queue.
// Returns false when there is no room (bounded, full, no receiver waiting).
func (c *Channel) deliver(msg Msg) bool {
	for len(c.recvq) > 0 {
		w := c.recvq[0]
		c.recvq = c.recvq[1:]
		if w.t != nil {
			if w.t.State().Terminal() {
				continue // receiver was cancelled while parked
			}
			c.s.resume(w.t, msg)
			return true
		}
		w.host <- hostRecv{msg: msg}
		return true
	}
	if c.cap > 0 && len(c.queue) >= c.cap {
		return false
	}
	c.queue = append(c.queue, msg)
	return true
}

// refill assumes c.mu is held: pull parked senders into freed queue space.
func (c *Channel) refill() {
	for len(c.sendq) > 0 && (c.cap <= 0 || len(c.queue) < c.cap) {
		w := c.sendq[0]
		c.sendq = c.sendq[1:]
		if w.t != nil && w.t.State().Terminal() {
			w.msg.Drop() // sender cancelled; its queued value is discarded
			continue
		}
		c.queue = append(c.queue, w.msg)
		if w.t != nil {
			c.s.resume(w.t, value.UNIT)
		} else {
			w.host <- nil
		}
	}
}

// Push sends from task context. On a full bounded channel the sender
// suspends; k runs once the value is accepted.
func (snd *Sender) Push(t *Task, payload any, k Frame) Outcome {
	msg, err := TransferIn(payload)
	if err != nil {
		return Fault(err)
	}
	c := snd.ch
	c.mu.Lock()
	if snd.dropped || c.closedForSend() {
		c.mu.Unlock()
		msg.Drop()
		return Continue(k, value.NewError(value.ChannelClosed,
			"send on a closed channel"))
	}
	if c.deliver(msg) {
		c.mu.Unlock()
		return Continue(k, value.UNIT)
	}
	c.sendq = append(c.sendq, &sendWaiter{t: t, msg: msg})
	c.mu.Unlock()
	return Suspend(ReasonChannelSend, k)
}

// PushWait is the host-side blocking send.
func (snd *Sender) PushWait(payload any) *value.Error {
	msg, err := TransferIn(payload)
	if err != nil {
		return err
	}
	c := snd.ch
	c.mu.Lock()
	if snd.dropped || c.closedForSend() {
		c.mu.Unlock()
		msg.Drop()
		return value.NewError(value.ChannelClosed, "send on a closed channel")
	}
	if c.deliver(msg) {
		c.mu.Unlock()
		return nil
	}
	wait := make(chan *value.Error, 1)
	c.sendq = append(c.sendq, &sendWaiter{host: wait, msg: msg})
	c.mu.Unlock()
	return <-wait
}

// Next receives from task context. An empty open channel suspends; k receives
// a Msg, or a *value.Error once the channel is closed and drained.
func (rcv *Receiver) Next(t *Task, k Frame) Outcome {
	c := rcv.ch
	c.mu.Lock()
	if rcv.dropped {
		c.mu.Unlock()
		return Continue(k, value.NewError(value.ChannelClosed,
			"receive on a dropped receiver"))
	}
	if len(c.queue) > 0 {
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.refill()
		c.mu.Unlock()
		return Continue(k, msg)
	}
	if c.senderDropped {
		c.mu.Unlock()
		return Continue(k, value.NewError(value.ChannelClosed,
			"channel is closed"))
	}
	c.recvq = append(c.recvq, &recvWaiter{t: t})
	c.mu.Unlock()
	return Suspend(ReasonChannelRecv, k)
}

// NextWait is the host-side blocking receive.
func (rcv *Receiver) NextWait() (Msg, *value.Error) {
	c := rcv.ch
	c.mu.Lock()
	if rcv.dropped {
		c.mu.Unlock()
		return Msg{}, value.NewError(value.ChannelClosed,
			"receive on a dropped receiver")
	}
	if len(c.queue) > 0 {
		msg := c.queue[0]
		c.queue = c.queue[1:]
		c.refill()
		c.mu.Unlock()
		return msg, nil
	}
	if c.senderDropped {
		c.mu.Unlock()
		return Msg{}, value.NewError(value.ChannelClosed, "channel is closed")
	}
	wait := make(chan hostRecv, 1)
	c.recvq = append(c.recvq, &recvWaiter{host: wait})
	c.mu.Unlock()
	got := <-wait
	return got.msg, got.err
}

// Drop closes the sending end. Parked receivers fail ChannelClosed once the
// queue drains; queued values stay receivable.
func (snd *Sender) Drop() {
	c := snd.ch
	c.mu.Lock()
	if snd.dropped {
		c.mu.Unlock()
		return
	}
	snd.dropped = true
	c.senderDropped = true
	var parked []*recvWaiter
	if len(c.queue) == 0 {
		parked = c.recvq
		c.recvq = nil
	}
	destroy := c.recvDropped
	var orphans []Msg
	if destroy {
		orphans = c.queue
		c.queue = nil
	}
	c.mu.Unlock()

	err := value.NewError(value.ChannelClosed, "channel is closed")
	for _, w := range parked {
		if w.t != nil {
			c.s.resume(w.t, err)
		} else {
			w.host <- hostRecv{err: err}
		}
	}
	for _, m := range orphans {
		m.Drop()
	}
}

// Drop closes the receiving end. Parked and future senders fail
// ChannelClosed; undeliverable queued values are discarded.
func (rcv *Receiver) Drop() {
	c := rcv.ch
	c.mu.Lock()
	if rcv.dropped {
		c.mu.Unlock()
		return
	}
	rcv.dropped = true
	c.recvDropped = true
	senders := c.sendq
	c.sendq = nil
	orphans := c.queue
	c.queue = nil
	c.mu.Unlock()

	err := value.NewError(value.ChannelClosed, "receiver is gone")
	for _, w := range senders {
		w.msg.Drop()
		if w.t != nil {
			c.s.resume(w.t, err)
		} else {
			w.host <- err
		}
	}
	for _, m := range orphans {
		m.Drop()
	}
}
