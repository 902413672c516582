package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/sigil-lang/sigil/internal/config"
	"github.com/sigil-lang/sigil/internal/ownership"
	"github.com/sigil-lang/sigil/internal/trace"
	"github.com/sigil-lang/sigil/internal/value"
)

var log = commonlog.GetLogger("sigil.sched")

// Scheduler runs cooperative tasks on one or more shards. Each shard executes
// ready tasks on a single logical thread; preemption never happens, tasks
// give control back only at suspension points.
//
// The scheduler owns the live actor set; there is no global actor namespace.
type Scheduler struct {
	cfg    config.Runtime
	rec    trace.Recorder
	ring   *trace.Ring
	sink   *trace.SQLiteSink
	store  *ownership.Store
	shards []*shard

	nextShard atomic.Uint32
	seq       atomic.Int64

	actorMu sync.Mutex
	actors  map[uuid.UUID]*actor

	closed atomic.Bool
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder attaches a transition journal.
func WithRecorder(rec trace.Recorder) Option {
	return func(s *Scheduler) { s.rec = rec }
}

// WithStore shares an ownership store with the evaluator; without it the
// scheduler creates its own.
func WithStore(store *ownership.Store) Option {
	return func(s *Scheduler) { s.store = store }
}

func New(cfg config.Runtime, opts ...Option) *Scheduler {
	if cfg.Shards < 1 {
		cfg.Shards = config.DefaultShards
	}
	s := &Scheduler{
		cfg:    cfg,
		actors: make(map[uuid.UUID]*actor),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = ownership.NewStore()
	}
	if s.rec == nil {
		s.rec = s.openJournal(cfg.Trace)
	}
	for i := 0; i < cfg.Shards; i++ {
		sh := newShard(s, i)
		s.shards = append(s.shards, sh)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sh.loop()
		}()
	}
	log.Debugf("scheduler started with %d shard(s)", cfg.Shards)
	return s
}

// openJournal builds the journal the configuration asks for: an in-memory
// ring, a SQLite mirror, or both behind a tee. An unopenable SQLite path is
// logged and skipped rather than failing startup.
func (s *Scheduler) openJournal(tc config.Trace) trace.Recorder {
	var recs trace.Tee
	if tc.Ring > 0 {
		s.ring = trace.NewRing(tc.Ring)
		recs = append(recs, s.ring)
	}
	if tc.Path != "" {
		sink, err := trace.NewSQLiteSink(tc.Path)
		if err != nil {
			log.Errorf("trace journal %s unavailable: %v", tc.Path, err)
		} else {
			s.sink = sink
			recs = append(recs, sink)
		}
	}
	switch len(recs) {
	case 0:
		return nil
	case 1:
		return recs[0]
	}
	return recs
}

// Journal snapshots the in-memory transition ring; nil when the configuration
// disabled it or an explicit recorder was injected.
func (s *Scheduler) Journal() []trace.Event {
	if s.ring == nil {
		return nil
	}
	return s.ring.Snapshot()
}

// Store exposes the ownership store channels use for move/clone transfer.
func (s *Scheduler) Store() *ownership.Store { return s.store }

// Close stops the shards after their queues drain. Tasks still suspended stay
// suspended; Close does not cancel them.
func (s *Scheduler) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	for _, sh := range s.shards {
		sh.stop()
	}
	s.wg.Wait()
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			log.Errorf("closing trace journal: %v", err)
		}
	}
	log.Debug("scheduler stopped")
}

// Spawn creates a task from an initial frame and makes it ready.
func (s *Scheduler) Spawn(name string, f Frame) *Handle {
	t := &Task{
		id:    uuid.New(),
		seq:   s.seq.Add(1),
		name:  name,
		s:     s,
		state: TaskCreated,
		frame: f,
		done:  make(chan struct{}),
	}
	t.shard = s.shards[int(s.nextShard.Add(1))%len(s.shards)]
	s.recordTask(t, "", string(TaskCreated), "")
	s.ready(t, "")
	return &Handle{t: t}
}

// ready moves a non-terminal task to Ready and enqueues it.
func (s *Scheduler) ready(t *Task, why string) {
	t.mu.Lock()
	from := t.state
	if from.Terminal() || from == TaskReady {
		t.mu.Unlock()
		return
	}
	t.state = TaskReady
	t.reason = ""
	t.mu.Unlock()
	s.recordTask(t, string(from), string(TaskReady), why)
	t.shard.enqueue(t)
}

// resume delivers in to a suspended task. If the task is mid-slice (its frame
// has registered a wakeup but not yet returned), the wakeup is held until the
// suspend lands.
func (s *Scheduler) resume(t *Task, in any) {
	t.mu.Lock()
	switch t.state {
	case TaskSuspended:
		t.resumeIn = in
		t.state = TaskReady
		t.reason = ""
		t.mu.Unlock()
		s.recordTask(t, string(TaskSuspended), string(TaskReady), "")
		t.shard.enqueue(t)
	case TaskRunning:
		t.resumeIn = in
		t.wakePending = true
		t.mu.Unlock()
	case TaskReady, TaskCreated:
		t.resumeIn = in
		t.mu.Unlock()
	default:
		t.mu.Unlock()
	}
}

// step runs one scheduling slice of t.
func (s *Scheduler) step(t *Task) {
	t.mu.Lock()
	if t.state != TaskReady {
		t.mu.Unlock()
		return
	}
	if t.cancelPending {
		t.mu.Unlock()
		s.finish(t, TaskCancelled, nil, nil)
		return
	}
	t.state = TaskRunning
	frame := t.frame
	in := t.resumeIn
	t.resumeIn = nil
	t.mu.Unlock()
	s.recordTask(t, string(TaskReady), string(TaskRunning), "")

	for {
		out := s.runFrame(t, frame, in)
		switch out.kind {
		case outcomeContinue:
			frame, in = out.next, out.input
			continue
		case outcomeDone:
			s.finish(t, TaskCompleted, out.result, nil)
		case outcomeFault:
			s.finish(t, TaskFaulted, nil, out.fault)
		case outcomeYield:
			t.mu.Lock()
			t.frame = out.next
			if t.cancelPending {
				t.mu.Unlock()
				s.finish(t, TaskCancelled, nil, nil)
				return
			}
			t.state = TaskReady
			t.mu.Unlock()
			s.recordTask(t, string(TaskRunning), string(TaskReady), "yield")
			t.shard.enqueue(t)
		case outcomeSuspend:
			t.mu.Lock()
			t.frame = out.next
			if t.cancelPending {
				t.mu.Unlock()
				s.finish(t, TaskCancelled, nil, nil)
				return
			}
			if t.wakePending {
				// The awaited event fired before the suspend landed.
				t.wakePending = false
				t.state = TaskReady
				t.mu.Unlock()
				s.recordTask(t, string(TaskRunning), string(TaskReady), "")
				t.shard.enqueue(t)
				return
			}
			t.state = TaskSuspended
			t.reason = out.reason
			t.mu.Unlock()
			s.recordTask(t, string(TaskRunning), string(TaskSuspended), string(out.reason))
		}
		return
	}
}

// runFrame executes one frame, converting panics into faults so a defective
// frame cannot take a shard down.
func (s *Scheduler) runFrame(t *Task, frame Frame, in any) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Fault(value.NewError(value.ActorFault, "task panic: %v", r))
		}
	}()
	return frame(t, in)
}

// finish moves t to a terminal state, runs remaining cleanups (Own releases
// survive cancellation), and wakes awaiters in FIFO order.
func (s *Scheduler) finish(t *Task, state TaskState, result value.Object, fault *value.Error) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	from := t.state
	t.state = state
	t.reason = ""
	if result == nil {
		result = value.UNIT
	}
	t.result = result
	t.fault = fault
	cleanups := t.cleanups
	t.cleanups = nil
	awaiters := t.awaiters
	t.awaiters = nil
	t.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	why := ""
	if fault != nil {
		why = fault.Message
		log.Errorf("task %s (%s) faulted: %s", t.name, t.id, fault.Inspect())
	}
	s.recordTask(t, string(from), string(state), why)
	close(t.done)

	for _, waiter := range awaiters {
		t.mu.Lock()
		in := awaitInput(t)
		t.mu.Unlock()
		s.resume(waiter, in)
	}
}

func (s *Scheduler) recordTask(t *Task, from, to, reason string) {
	if s.rec == nil {
		return
	}
	s.rec.Record(trace.Event{
		Kind:   "task",
		ID:     t.id.String(),
		Name:   t.name,
		From:   from,
		To:     to,
		Reason: reason,
	})
}

// invariantf reports a scheduler defect; these are unrecoverable.
func invariantf(format string, a ...interface{}) {
	panic(fmt.Sprintf("scheduler invariant violated: "+format, a...))
}

// shard is one run queue draining on its own goroutine. Within a shard, task
// execution is strictly sequential.
type shard struct {
	s       *Scheduler
	id      int
	mu      sync.Mutex
	cond    *sync.Cond
	runq    []*Task
	stopped bool
}

func newShard(s *Scheduler, id int) *shard {
	sh := &shard{s: s, id: id}
	sh.cond = sync.NewCond(&sh.mu)
	return sh
}

func (sh *shard) enqueue(t *Task) {
	sh.mu.Lock()
	if sh.stopped {
		sh.mu.Unlock()
		return
	}
	sh.runq = append(sh.runq, t)
	sh.mu.Unlock()
	sh.cond.Signal()
}

func (sh *shard) stop() {
	sh.mu.Lock()
	sh.stopped = true
	sh.mu.Unlock()
	sh.cond.Broadcast()
}

func (sh *shard) loop() {
	for {
		sh.mu.Lock()
		for len(sh.runq) == 0 && !sh.stopped {
			sh.cond.Wait()
		}
		if len(sh.runq) == 0 && sh.stopped {
			sh.mu.Unlock()
			return
		}
		t := sh.runq[0]
		sh.runq = sh.runq[1:]
		sh.mu.Unlock()
		sh.s.step(t)
	}
}
