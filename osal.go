package osal

import "context"

// Kind identifies which resource family a handle or accounting record
// belongs to.
type Kind uint8

const (
	KindTask Kind = iota
	KindMutex
	KindSemaphore
	KindQueue
	KindEvent
	KindTimer

	// KindCount is the number of resource kinds.
	KindCount
)

var kindNames = [KindCount]string{
	KindTask:      "task",
	KindMutex:     "mutex",
	KindSemaphore: "semaphore",
	KindQueue:     "queue",
	KindEvent:     "event",
	KindTimer:     "timer",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if k < KindCount {
		return kindNames[k]
	}
	return "unknown"
}

// Valid reports whether the kind is one of the six resource kinds.
func (k Kind) Valid() bool { return k < KindCount }

// Handle is an opaque reference to a resource control block. It packs a slot
// index and a generation counter; handle 0 is reserved and always invalid.
type Handle uint32

// Priority is a task priority in [0, MaxPriority]; higher runs first on
// priority-aware operations.
type Priority uint8

// MaxPriority is the highest allowed task priority.
const MaxPriority Priority = 31

// Timeout is a wait bound expressed in ticks.
type Timeout uint32

const (
	// NoWait makes a blocking call return immediately when its condition
	// does not already hold.
	NoWait Timeout = 0

	// WaitForever blocks without a deadline.
	WaitForever Timeout = 0xFFFFFFFF
)

// TaskState is the scheduler-visible lifecycle state of a task.
type TaskState uint8

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskBlocked
	TaskSuspended
	TaskDeleted
)

var taskStateNames = [...]string{
	TaskReady:     "ready",
	TaskRunning:   "running",
	TaskBlocked:   "blocked",
	TaskSuspended: "suspended",
	TaskDeleted:   "deleted",
}

// String returns the lowercase state name.
func (s TaskState) String() string {
	if int(s) < len(taskStateNames) {
		return taskStateNames[s]
	}
	return "unknown"
}

// Region is a critical section serializing access to one resource's control
// block. On the cooperative backend Enter masks interrupt dispatch; on the
// native backend it is a lock.
type Region interface {
	Enter()
	Exit()
}

// WaitQueue is a per-resource wait list. Waiters are queued FIFO. Every
// method must be called with the resource's Region held; the region is what
// serializes access to the list.
type WaitQueue interface {
	// Wait releases region, blocks the calling task until woken or until
	// timeout ticks elapse, then reacquires region. It returns false on
	// timeout. The region must be held on entry. Calls from a context that
	// carries no task (or an ISR marker) fail immediately with false.
	Wait(ctx context.Context, region Region, timeout Timeout) bool

	// WakeOne readies the longest-waiting task, if any. The woken task is
	// moved to the ready state, never resumed synchronously.
	WakeOne() bool

	// WakeAll readies every waiter and returns how many were woken.
	WakeAll() int

	// Len returns the number of blocked waiters.
	Len() int

	// MaxWaiterPriority returns the highest priority among current waiters.
	// The second result is false when the list is empty.
	MaxWaiterPriority() (Priority, bool)
}

// TaskRef is a backend's view of one task. Primitives use it for mutex
// ownership and priority inheritance; the task package wraps it with handle
// validation.
type TaskRef interface {
	// ID is a backend-unique task identifier, stable for the task's life.
	ID() uint32

	// Name returns the task name given at spawn.
	Name() string

	// State returns the current lifecycle state.
	State() TaskState

	// Priority returns the effective priority: the base priority or the
	// inherited boost, whichever is higher.
	Priority() Priority

	// BasePriority returns the priority set at spawn or by SetPriority.
	BasePriority() Priority

	// SetPriority changes the base priority.
	SetPriority(p Priority)

	// Boost temporarily raises the effective priority for priority
	// inheritance. A boost below the base priority has no effect.
	Boost(p Priority)

	// ClearBoost removes any inherited boost.
	ClearBoost()

	// Suspend takes the task out of scheduling until Resume. A task observes
	// its own suspension at the next suspension point.
	Suspend()

	// Resume makes a suspended task ready again.
	Resume()

	// Delete terminally removes the task from scheduling.
	Delete()

	// StackHighWater returns the largest observed stack usage in bytes.
	StackHighWater() uint32
}

// TickSource provides the monotonic tick count used for timeouts and
// software timers.
type TickSource interface {
	// Now returns the current tick count.
	Now() uint64
}

// Backend is the execution substrate all primitives block and unblock
// against. Implementations: backend/native (preemptive goroutines) and
// backend/coop (single-threaded cooperative run loop).
type Backend interface {
	TickSource

	// Name identifies the backend ("native", "coop").
	Name() string

	// NewRegion creates a critical section for one resource.
	NewRegion() Region

	// NewWaitQueue creates a wait list for one resource condition.
	NewWaitQueue() WaitQueue

	// Spawn creates a task. The task function receives a context carrying
	// its TaskRef (see TaskFromContext).
	Spawn(name string, prio Priority, fn func(ctx context.Context)) (TaskRef, error)

	// Yield gives up the processor to the next ready task.
	Yield(ctx context.Context)

	// Sleep blocks the calling task for the given number of ticks.
	Sleep(ctx context.Context, ticks Timeout)

	// DispatchISR runs fn as a simulated interrupt service routine. The
	// context it passes carries the ISR marker, so blocking entry points
	// reject calls made inside fn. Dispatches are serialized with each
	// other, and any region an ISR-safe operation enters excludes tasks for
	// its duration, mirroring an interrupt-masked critical section.
	DispatchISR(fn func(ctx context.Context))

	// Shutdown stops the backend. Behavior of outstanding tasks is
	// backend-specific.
	Shutdown()
}

// StackGuard is implemented by backends that police a per-task stack
// budget. Stack depth is sampled at suspension points; the first sample of
// a task that exceeds the limit runs the handler once, on that task's own
// goroutine. A zero limit disables the check.
type StackGuard interface {
	SetStackLimit(bytes uint32, onOverflow func(ref TaskRef))
}

type taskCtxKey struct{}
type isrCtxKey struct{}

// WithTask returns a context carrying the given task reference. Backends
// call this when entering a task function.
func WithTask(ctx context.Context, ref TaskRef) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, ref)
}

// TaskFromContext returns the task bound to ctx, if any.
func TaskFromContext(ctx context.Context) (TaskRef, bool) {
	ref, ok := ctx.Value(taskCtxKey{}).(TaskRef)
	return ref, ok
}

// WithISR marks ctx as interrupt context. Backends apply it in DispatchISR.
func WithISR(ctx context.Context) context.Context {
	return context.WithValue(ctx, isrCtxKey{}, true)
}

// InISR reports whether ctx is marked as interrupt context.
func InISR(ctx context.Context) bool {
	v, _ := ctx.Value(isrCtxKey{}).(bool)
	return v
}
