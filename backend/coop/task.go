package coop

import (
	"context"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/embedkit/osal"
)

// Task is the cooperative scheduler's task control block. Execution passes
// between the run loop and the task through an unbuffered baton pair: the
// loop sends on resume to start a slice, the task sends on yield to end one.
type Task struct {
	s    *Scheduler
	id   uint32
	name string
	fn   func(ctx context.Context)

	base  atomic.Uint32
	boost atomic.Uint32 // effective boost + 1, 0 when none
	state atomic.Uint32

	resume  chan struct{}
	yield   chan struct{}
	started bool // loop-only

	// Guarded by s.mu.
	suspendPending bool
	deletePending  bool
	wq             *waitQueue
	deadline       uint64
	hasDeadline    bool
	timedOut       bool

	stackBase  uintptr
	stackHW    atomic.Uint32
	overflowed bool // own goroutine only
}

func newTask(s *Scheduler, id uint32, name string, prio osal.Priority, fn func(ctx context.Context)) *Task {
	t := &Task{
		s:      s,
		id:     id,
		name:   name,
		fn:     fn,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
	}
	t.base.Store(uint32(prio))
	t.state.Store(uint32(osal.TaskReady))
	return t
}

// ID returns the scheduler-unique task identifier.
func (t *Task) ID() uint32 { return t.id }

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// State returns the current lifecycle state.
func (t *Task) State() osal.TaskState { return osal.TaskState(t.state.Load()) }

// Priority returns the effective priority including any inherited boost.
func (t *Task) Priority() osal.Priority {
	base := osal.Priority(t.base.Load())
	if b := t.boost.Load(); b != 0 && osal.Priority(b-1) > base {
		return osal.Priority(b - 1)
	}
	return base
}

// BasePriority returns the priority excluding boosts.
func (t *Task) BasePriority() osal.Priority { return osal.Priority(t.base.Load()) }

// SetPriority changes the base priority.
func (t *Task) SetPriority(p osal.Priority) { t.base.Store(uint32(p)) }

// Boost raises the effective priority for priority inheritance.
func (t *Task) Boost(p osal.Priority) { t.boost.Store(uint32(p) + 1) }

// ClearBoost removes any inherited boost.
func (t *Task) ClearBoost() { t.boost.Store(0) }

// Suspend takes a ready task off the ready queue, or marks a running task
// to park at its next yield. Blocked and deleted tasks are left alone.
func (t *Task) Suspend() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t.State() {
	case osal.TaskRunning:
		t.suspendPending = true
	case osal.TaskReady:
		s.removeReady(t)
		t.setState(osal.TaskSuspended)
	}
}

// Resume moves a suspended task back to the ready queue and cancels any
// pending suspend request.
func (t *Task) Resume() {
	s := t.s
	s.mu.Lock()
	t.suspendPending = false
	woke := false
	if t.State() == osal.TaskSuspended {
		t.setState(osal.TaskReady)
		s.ready = append(s.ready, t)
		woke = true
	}
	s.mu.Unlock()
	if woke {
		s.wakeLoop()
	}
}

// Delete terminally removes the task. A running task exits at its next
// yield; a parked task is marked deleted in place and its goroutine stays
// parked for the life of the process.
func (t *Task) Delete() {
	s := t.s
	s.mu.Lock()
	switch t.State() {
	case osal.TaskDeleted:
	case osal.TaskRunning:
		t.deletePending = true
	case osal.TaskReady:
		s.removeReady(t)
		t.forceState(osal.TaskDeleted)
	case osal.TaskBlocked:
		if t.wq != nil {
			t.wq.removeLocked(t)
			t.wq = nil
		}
		t.hasDeadline = false
		t.forceState(osal.TaskDeleted)
	case osal.TaskSuspended:
		t.forceState(osal.TaskDeleted)
	}
	s.mu.Unlock()
	s.wakeLoop()
}

// StackHighWater returns the largest sampled stack usage in bytes.
func (t *Task) StackHighWater() uint32 { return t.stackHW.Load() }

func (t *Task) setState(st osal.TaskState) {
	if t.State() == osal.TaskDeleted {
		return
	}
	t.state.Store(uint32(st))
}

func (t *Task) forceState(st osal.TaskState) { t.state.Store(uint32(st)) }

// runSlice hands the baton to the task and blocks until it is handed back.
// Loop-only; the caller must not hold mu.
func (t *Task) runSlice() {
	if !t.started {
		t.started = true
		go t.main()
	}
	t.resume <- struct{}{}
	<-t.yield
}

func (t *Task) main() {
	<-t.resume
	var anchor byte
	t.stackBase = uintptr(unsafe.Pointer(&anchor))
	t.checkPendingDelete()

	t.fn(osal.WithTask(context.Background(), t))

	t.s.mu.Lock()
	t.forceState(osal.TaskDeleted)
	t.s.mu.Unlock()
	t.yield <- struct{}{}
}

// yieldBaton ends the current slice and parks until the loop schedules the
// task again. The caller has already recorded the reason (ready, blocked,
// suspended) under mu.
func (t *Task) yieldBaton() {
	t.sampleStack()
	t.yield <- struct{}{}
	<-t.resume
	t.checkPendingDelete()
}

func (t *Task) checkPendingDelete() {
	t.s.mu.Lock()
	pending := t.deletePending
	t.s.mu.Unlock()
	if pending {
		t.exitSlice()
	}
}

// exitSlice records the terminal state, hands the baton back, and kills the
// goroutine. Never returns.
func (t *Task) exitSlice() {
	t.s.mu.Lock()
	t.forceState(osal.TaskDeleted)
	t.s.mu.Unlock()
	t.yield <- struct{}{}
	runtime.Goexit()
}

// sampleStack updates the high-water mark from the current stack depth.
// Approximate: Go may move stacks, but samples on one goroutine track real
// growth. Only the task's own goroutine writes. The first sample past the
// scheduler's stack limit reports the overflow, once per task.
func (t *Task) sampleStack() {
	var here byte
	p := uintptr(unsafe.Pointer(&here))
	var depth uintptr
	if t.stackBase > p {
		depth = t.stackBase - p
	} else {
		depth = p - t.stackBase
	}
	if uint32(depth) > t.stackHW.Load() {
		t.stackHW.Store(uint32(depth))
	}
	if limit := t.s.stackLimit.Load(); limit > 0 && uint32(depth) > limit && !t.overflowed {
		t.overflowed = true
		if fn := t.s.overflowFn.Load(); fn != nil {
			(*fn)(t)
		}
	}
}
