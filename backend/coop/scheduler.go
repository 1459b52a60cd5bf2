package coop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/embedkit/osal"
)

// ErrDeadlock is returned by Run in virtual-time mode when every live task
// is blocked with no pending deadline, so no task can ever run again.
var ErrDeadlock = errors.New("coop: all tasks blocked with no pending deadline")

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithExternalTicks disables virtual time; the caller drives the timebase
// through Tick.
func WithExternalTicks() Option {
	return func(s *Scheduler) { s.virtual = false }
}

// Scheduler is the cooperative backend. Create with New, add tasks with
// Spawn, then call Run from the goroutine that owns execution.
type Scheduler struct {
	mu         sync.Mutex // the interrupt mask; every Region aliases it
	ready      []*Task
	tasks      []*Task
	current    *Task
	ticks      atomic.Uint64
	nextID     uint32
	idleWake   chan struct{}
	stop       chan struct{}
	stopOnce   sync.Once
	dispatchMu sync.Mutex
	virtual    bool
	running    atomic.Bool
	stackLimit atomic.Uint32
	overflowFn atomic.Pointer[func(osal.TaskRef)]
}

// New creates a cooperative scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		idleWake: make(chan struct{}, 1),
		stop:     make(chan struct{}),
		virtual:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "coop".
func (s *Scheduler) Name() string { return "coop" }

// Now returns the current tick count.
func (s *Scheduler) Now() uint64 { return s.ticks.Load() }

// Tick advances the timebase by one tick. Safe from any goroutine,
// including a simulated ISR.
func (s *Scheduler) Tick() {
	s.ticks.Add(1)
	s.wakeLoop()
}

// SetStackLimit installs a per-task stack budget. A task whose sampled
// stack depth first exceeds bytes runs onOverflow once, on its own
// goroutine. Zero bytes disables the check.
func (s *Scheduler) SetStackLimit(bytes uint32, onOverflow func(ref osal.TaskRef)) {
	s.stackLimit.Store(bytes)
	if onOverflow == nil {
		s.overflowFn.Store(nil)
		return
	}
	s.overflowFn.Store(&onOverflow)
}

// NewRegion returns a critical section aliasing the interrupt mask.
func (s *Scheduler) NewRegion() osal.Region { return &region{mu: &s.mu} }

// NewWaitQueue returns a wait list tied to this scheduler.
func (s *Scheduler) NewWaitQueue() osal.WaitQueue { return &waitQueue{s: s} }

// Spawn adds a task to the ready queue. Tasks added before Run start when
// the loop does.
func (s *Scheduler) Spawn(name string, prio osal.Priority, fn func(ctx context.Context)) (osal.TaskRef, error) {
	if prio > osal.MaxPriority {
		return nil, osal.Errorf(osal.StatusInvalidParam, "coop.Spawn", "priority %d > %d", prio, osal.MaxPriority)
	}
	if fn == nil {
		return nil, osal.Errorf(osal.StatusNullPointer, "coop.Spawn", "nil task function")
	}

	s.mu.Lock()
	s.nextID++
	t := newTask(s, s.nextID, name, prio, fn)
	s.tasks = append(s.tasks, t)
	s.ready = append(s.ready, t)
	s.mu.Unlock()
	s.wakeLoop()
	return t, nil
}

// Yield moves the calling task to the back of the ready queue and switches
// to the next ready task. Pending suspend or delete requests are honored
// here.
func (s *Scheduler) Yield(ctx context.Context) {
	t, ok := taskFrom(ctx)
	if !ok {
		return
	}

	s.mu.Lock()
	switch {
	case t.deletePending:
		s.mu.Unlock()
		t.exitSlice()
	case t.suspendPending:
		t.suspendPending = false
		t.setState(osal.TaskSuspended)
		s.mu.Unlock()
		t.yieldBaton()
	default:
		t.setState(osal.TaskReady)
		s.ready = append(s.ready, t)
		s.mu.Unlock()
		t.yieldBaton()
	}
}

// Sleep blocks the calling task for the given number of ticks.
func (s *Scheduler) Sleep(ctx context.Context, ticks osal.Timeout) {
	t, ok := taskFrom(ctx)
	if !ok {
		return
	}

	s.mu.Lock()
	t.setState(osal.TaskBlocked)
	t.wq = nil
	if ticks == osal.WaitForever {
		t.hasDeadline = false
	} else {
		t.deadline = s.ticks.Load() + uint64(ticks)
		t.hasDeadline = true
	}
	s.mu.Unlock()
	t.yieldBaton()
}

// DispatchISR runs fn with the ISR marker. The handler runs on the caller's
// goroutine; any region it enters excludes the current task for its
// duration, modeling an interrupt-masked section.
func (s *Scheduler) DispatchISR(fn func(ctx context.Context)) {
	s.dispatchMu.Lock()
	fn(osal.WithISR(context.Background()))
	s.dispatchMu.Unlock()
	s.wakeLoop()
}

// Shutdown stops the run loop.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wakeLoop()
}

// Run executes the scheduler loop: sweep expired deadlines, pop the next
// ready task, hand it the baton, repeat. It returns nil when every task has
// been deleted or Shutdown is called, and ErrDeadlock when virtual time
// cannot make progress.
func (s *Scheduler) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("coop: Run called twice")
	}
	defer s.running.Store(false)

	for {
		select {
		case <-s.stop:
			return nil
		default:
		}

		s.mu.Lock()
		s.sweepDeadlines()

		if t := s.popReady(); t != nil {
			t.setState(osal.TaskRunning)
			s.current = t
			s.mu.Unlock()

			t.runSlice()

			s.mu.Lock()
			s.current = nil
			s.mu.Unlock()
			continue
		}

		live, blockedForever, suspended := s.census()
		if live == 0 {
			s.mu.Unlock()
			return nil
		}

		if s.virtual {
			if d, ok := s.nearestDeadline(); ok {
				s.ticks.Store(d)
				s.mu.Unlock()
				continue
			}
			if suspended == 0 && blockedForever == live {
				s.mu.Unlock()
				return ErrDeadlock
			}
		}
		s.mu.Unlock()

		// Nothing ready; wait for an external tick, resume, spawn, or ISR.
		select {
		case <-s.idleWake:
		case <-s.stop:
			return nil
		}
	}
}

func (s *Scheduler) wakeLoop() {
	select {
	case s.idleWake <- struct{}{}:
	default:
	}
}

// sweepDeadlines readies every blocked task whose deadline has passed,
// marking it timed out. Caller holds mu.
func (s *Scheduler) sweepDeadlines() {
	now := s.ticks.Load()
	for _, t := range s.tasks {
		if t.State() != osal.TaskBlocked || !t.hasDeadline || t.deadline > now {
			continue
		}
		if t.wq != nil {
			t.wq.removeLocked(t)
			t.timedOut = true
		}
		t.hasDeadline = false
		t.wq = nil
		t.setState(osal.TaskReady)
		s.ready = append(s.ready, t)
	}
}

// popReady pops the next runnable task, dropping stale entries. Caller
// holds mu.
func (s *Scheduler) popReady() *Task {
	for len(s.ready) > 0 {
		t := s.ready[0]
		s.ready = s.ready[1:]
		if t.State() == osal.TaskReady {
			return t
		}
	}
	return nil
}

// census counts live, blocked-forever, and suspended tasks. Caller holds mu.
func (s *Scheduler) census() (live, blockedForever, suspended int) {
	for _, t := range s.tasks {
		switch t.State() {
		case osal.TaskDeleted:
		case osal.TaskSuspended:
			live++
			suspended++
		case osal.TaskBlocked:
			live++
			if !t.hasDeadline {
				blockedForever++
			}
		default:
			live++
		}
	}
	return live, blockedForever, suspended
}

// nearestDeadline returns the earliest pending deadline. Caller holds mu.
func (s *Scheduler) nearestDeadline() (uint64, bool) {
	var best uint64
	found := false
	for _, t := range s.tasks {
		if t.State() == osal.TaskBlocked && t.hasDeadline {
			if !found || t.deadline < best {
				best = t.deadline
				found = true
			}
		}
	}
	return best, found
}

// removeReady drops a task from the ready queue. Caller holds mu.
func (s *Scheduler) removeReady(target *Task) {
	for i, t := range s.ready {
		if t == target {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			return
		}
	}
}

type region struct {
	mu *sync.Mutex
}

func (r *region) Enter() { r.mu.Lock() }
func (r *region) Exit()  { r.mu.Unlock() }

func taskFrom(ctx context.Context) (*Task, bool) {
	ref, ok := osal.TaskFromContext(ctx)
	if !ok {
		return nil, false
	}
	t, ok := ref.(*Task)
	return t, ok
}
