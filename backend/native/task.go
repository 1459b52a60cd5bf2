package native

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/embedkit/osal"
)

// Task is the native backend's task control block.
type Task struct {
	be         *Backend
	id         uint32
	name       string
	base       atomic.Uint32
	boost      atomic.Uint32 // effective boost + 1, 0 when none
	state      atomic.Uint32
	suspended  atomic.Bool
	deleted    atomic.Bool
	resumeCh   chan struct{}
	done       chan struct{}
	stackBase  uintptr
	stackHW    atomic.Uint32
	overflowed bool // own goroutine only
}

func newTask(be *Backend, id uint32, name string, prio osal.Priority) *Task {
	t := &Task{
		be:       be,
		id:       id,
		name:     name,
		resumeCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	t.base.Store(uint32(prio))
	t.state.Store(uint32(osal.TaskReady))
	return t
}

// ID returns the backend-unique task identifier.
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

// Suspend marks the task suspended. The task parks at its next suspension
// point and stays parked until Resume.
func (t *Task) Suspend() {
	if t.deleted.Load() {
		return
	}
	t.suspended.Store(true)
	t.state.Store(uint32(osal.TaskSuspended))
}

// Resume releases a suspended task.
func (t *Task) Resume() {
	if !t.suspended.CompareAndSwap(true, false) {
		return
	}
	t.state.Store(uint32(osal.TaskReady))
	select {
	case t.resumeCh <- struct{}{}:
	default:
	}
}

// Delete terminally removes the task. A task deleting itself exits at its
// next suspension point; deleting another task takes effect at that task's
// next suspension point.
func (t *Task) Delete() {
	t.deleted.Store(true)
	// Unpark if suspended so the exit can happen.
	t.suspended.Store(false)
	select {
	case t.resumeCh <- struct{}{}:
	default:
	}
}

// StackHighWater returns the largest sampled stack usage in bytes.
func (t *Task) StackHighWater() uint32 { return t.stackHW.Load() }

// Done is closed when the task function has returned. Test helper.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) setState(s osal.TaskState) {
	if t.State() == osal.TaskDeleted && s != osal.TaskDeleted {
		return
	}
	t.state.Store(uint32(s))
}

// anchorStack records the goroutine stack base for high-water sampling.
// Must run on the task's own goroutine.
func (t *Task) anchorStack() {
	var anchor byte
	t.stackBase = uintptr(unsafe.Pointer(&anchor))
}

// sampleStack updates the stack high-water mark from the current stack
// depth. Approximate: Go may move stacks, but successive samples on the
// same goroutine track real growth. The first sample past the backend's
// stack limit reports the overflow, once per task.
func (t *Task) sampleStack() {
	var here byte
	p := uintptr(unsafe.Pointer(&here))
	var depth uintptr
	if t.stackBase > p {
		depth = t.stackBase - p
	} else {
		depth = p - t.stackBase
	}
	for {
		old := t.stackHW.Load()
		if uint32(depth) <= old || t.stackHW.CompareAndSwap(old, uint32(depth)) {
			break
		}
	}
	if limit := t.be.stackLimit.Load(); limit > 0 && uint32(depth) > limit && !t.overflowed {
		t.overflowed = true
		if fn := t.be.overflowFn.Load(); fn != nil {
			(*fn)(t)
		}
	}
}

// checkpoint services pending suspend/delete requests. Called at suspension
// points on the task's own goroutine.
func (t *Task) checkpoint() {
	t.sampleStack()
	// Goexit runs the spawn wrapper's deferred cleanup, which records the
	// terminal state and closes done.
	if t.deleted.Load() {
		runtime.Goexit()
	}
	for t.suspended.Load() {
		<-t.resumeCh
		if t.deleted.Load() {
			runtime.Goexit()
		}
	}
}
