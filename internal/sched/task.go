package sched

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sigil-lang/sigil/internal/value"
)

// TaskState is the explicit, inspectable task state machine:
//
//	Created -> Ready -> Running -> Suspended(reason) -> Ready -> ...
//	                 -> Completed | Cancelled | Faulted
type TaskState string

const (
	TaskCreated   TaskState = "created"
	TaskReady     TaskState = "ready"
	TaskRunning   TaskState = "running"
	TaskSuspended TaskState = "suspended"
	TaskCompleted TaskState = "completed"
	TaskCancelled TaskState = "cancelled"
	TaskFaulted   TaskState = "faulted"
)

func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskCancelled, TaskFaulted:
		return true
	}
	return false
}

// SuspendReason says why a suspended task is parked. Suspension happens only
// at await points, bounded channel/mailbox contention, and lock contention.
type SuspendReason string

const (
	ReasonAwait       SuspendReason = "await"
	ReasonChannelSend SuspendReason = "channel-send"
	ReasonChannelRecv SuspendReason = "channel-recv"
	ReasonMailbox     SuspendReason = "mailbox-send"
	ReasonMailboxRecv SuspendReason = "mailbox-recv"
	ReasonLock        SuspendReason = "lock"
)

// Frame is one resumable unit of task execution: it runs to the next
// suspension point and says what happens after. Task state does not live in
// any host coroutine; it is all in these records.
//
// in carries whatever completed the previous suspension (nil on first entry).
type Frame func(t *Task, in any) Outcome

type outcomeKind uint8

const (
	outcomeDone outcomeKind = iota
	outcomeFault
	outcomeSuspend
	outcomeContinue
	outcomeYield
)

// Outcome is a frame's verdict.
type Outcome struct {
	kind   outcomeKind
	result value.Object
	fault  *value.Error
	reason SuspendReason
	next   Frame
	input  any
}

// Done completes the task with result.
func Done(result value.Object) Outcome {
	return Outcome{kind: outcomeDone, result: result}
}

// Fault terminates the task with a runtime error.
func Fault(err *value.Error) Outcome {
	return Outcome{kind: outcomeFault, fault: err}
}

// Suspend parks the task. The caller must already have registered a wakeup
// that will eventually resume the task; next runs on resumption.
func Suspend(reason SuspendReason, next Frame) Outcome {
	return Outcome{kind: outcomeSuspend, reason: reason, next: next}
}

// Continue chains into next within the same scheduling slice.
func Continue(next Frame, input any) Outcome {
	return Outcome{kind: outcomeContinue, next: next, input: input}
}

// Yield re-queues the task at the back of its shard's run queue, giving other
// ready tasks a turn.
func Yield(next Frame) Outcome {
	return Outcome{kind: outcomeYield, next: next}
}

// Task is an asynchronous unit of execution.
type Task struct {
	id    uuid.UUID
	seq   int64 // dense identity, used as the #sync session key
	name  string
	s     *Scheduler
	shard *shard

	mu            sync.Mutex
	state         TaskState
	reason        SuspendReason
	frame         Frame
	resumeIn      any
	wakePending   bool
	cancelPending bool
	result        value.Object
	fault         *value.Error
	cleanups      []func()
	awaiters      []*Task
	done          chan struct{}
}

func (t *Task) ID() uuid.UUID { return t.id }

// Wake delivers in to a task parked by an external suspension source, such as
// a lock hand-off. Channel and actor wakeups go through the scheduler
// directly.
func (t *Task) Wake(in any) { t.s.resume(t, in) }

// SeqID identifies the task for #sync session ownership.
func (t *Task) SeqID() int64 { return t.seq }

func (t *Task) Name() string { return t.name }

func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Reason reports why the task is suspended; empty unless Suspended.
func (t *Task) Reason() SuspendReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// PushCleanup registers a callback that runs if the task terminates without
// unwinding normally (cancellation or fault). Own releases register here so
// they still run during cancellation cleanup.
func (t *Task) PushCleanup(fn func()) {
	t.mu.Lock()
	t.cleanups = append(t.cleanups, fn)
	t.mu.Unlock()
}

// PopCleanup removes the most recent cleanup; the evaluator pops when a scope
// exits normally and has run its own drops.
func (t *Task) PopCleanup() {
	t.mu.Lock()
	if n := len(t.cleanups); n > 0 {
		t.cleanups = t.cleanups[:n-1]
	}
	t.mu.Unlock()
}

// Handle is the owner-side view of a spawned task. Dropping it requests
// cooperative cancellation, observed at the task's next suspension point.
type Handle struct {
	t *Task
}

func (h *Handle) ID() uuid.UUID    { return h.t.id }
func (h *Handle) State() TaskState { return h.t.State() }

// Result is valid once the task is terminal.
func (h *Handle) Result() (value.Object, *value.Error) {
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	return h.t.result, h.t.fault
}

// Wait blocks the calling goroutine until the task is terminal. It is the
// host-side bridge; tasks themselves use Await.
func (h *Handle) Wait() (value.Object, *value.Error) {
	<-h.t.done
	return h.Result()
}

// Drop requests cooperative cancellation. A suspended task is woken so it can
// observe the request at its suspension point.
func (h *Handle) Drop() {
	t := h.t
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.cancelPending = true
	if t.state == TaskSuspended {
		t.state = TaskReady
		t.reason = ""
		t.mu.Unlock()
		t.s.recordTask(t, string(TaskSuspended), string(TaskReady), "cancel")
		t.shard.enqueue(t)
		return
	}
	t.mu.Unlock()
}

// Await suspends the calling task until this handle's task is terminal. The
// continuation receives the result object, or a *value.Error for a faulted or
// cancelled target. Awaiters resume in the order their awaited tasks finish.
func (h *Handle) Await(t *Task, k Frame) Outcome {
	target := h.t
	target.mu.Lock()
	if target.state.Terminal() {
		in := awaitInput(target)
		target.mu.Unlock()
		return Continue(k, in)
	}
	target.awaiters = append(target.awaiters, t)
	target.mu.Unlock()
	return Suspend(ReasonAwait, k)
}

// awaitInput must be called with target.mu held.
func awaitInput(target *Task) any {
	switch target.state {
	case TaskFaulted:
		return target.fault
	case TaskCancelled:
		return value.NewError(value.TaskCancelledErr, "awaited task was cancelled")
	default:
		return target.result
	}
}
