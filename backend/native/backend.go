package native

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/embedkit/osal"
)

// DefaultTickInterval is the tick period used by New.
const DefaultTickInterval = time.Millisecond

// Backend is the preemptive goroutine-based scheduler backend.
type Backend struct {
	ticks      atomic.Uint64
	nextID     atomic.Uint32
	interval   time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
	dispatchMu sync.Mutex
	stackLimit atomic.Uint32
	overflowFn atomic.Pointer[func(osal.TaskRef)]
}

// New creates a native backend and starts its tick source at
// DefaultTickInterval.
func New() *Backend {
	return NewWithInterval(DefaultTickInterval)
}

// NewWithInterval creates a native backend with a custom tick period.
func NewWithInterval(interval time.Duration) *Backend {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	b := &Backend{
		interval: interval,
		stop:     make(chan struct{}),
	}
	go b.tickLoop()
	return b
}

func (b *Backend) tickLoop() {
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			b.ticks.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Name returns "native".
func (b *Backend) Name() string { return "native" }

// Now returns the current tick count.
func (b *Backend) Now() uint64 { return b.ticks.Load() }

// SetStackLimit installs a per-task stack budget. A task whose sampled
// stack depth first exceeds bytes runs onOverflow once, on its own
// goroutine. Zero bytes disables the check.
func (b *Backend) SetStackLimit(bytes uint32, onOverflow func(ref osal.TaskRef)) {
	b.stackLimit.Store(bytes)
	if onOverflow == nil {
		b.overflowFn.Store(nil)
		return
	}
	b.overflowFn.Store(&onOverflow)
}

// NewRegion returns a mutex-backed critical section.
func (b *Backend) NewRegion() osal.Region { return &region{} }

// NewWaitQueue returns a channel-based wait list.
func (b *Backend) NewWaitQueue() osal.WaitQueue { return &waitQueue{be: b} }

// Spawn starts a goroutine task. The task context carries its TaskRef.
func (b *Backend) Spawn(name string, prio osal.Priority, fn func(ctx context.Context)) (osal.TaskRef, error) {
	if prio > osal.MaxPriority {
		return nil, osal.Errorf(osal.StatusInvalidParam, "native.Spawn", "priority %d > %d", prio, osal.MaxPriority)
	}
	if fn == nil {
		return nil, osal.Errorf(osal.StatusNullPointer, "native.Spawn", "nil task function")
	}

	t := newTask(b, b.nextID.Add(1), name, prio)
	go func() {
		t.anchorStack()
		t.setState(osal.TaskRunning)
		defer func() {
			t.setState(osal.TaskDeleted)
			close(t.done)
		}()
		fn(osal.WithTask(context.Background(), t))
	}()
	return t, nil
}

// Adopt binds the calling goroutine to a new task reference so code outside
// Spawn (main, tests) can use blocking primitives with ownership tracking.
func (b *Backend) Adopt(ctx context.Context, name string, prio osal.Priority) (context.Context, osal.TaskRef) {
	t := newTask(b, b.nextID.Add(1), name, prio)
	t.anchorStack()
	t.setState(osal.TaskRunning)
	return osal.WithTask(ctx, t), t
}

// Yield cedes the processor and services any pending suspend or delete on
// the calling task.
func (b *Backend) Yield(ctx context.Context) {
	if t, ok := taskFrom(ctx); ok {
		t.checkpoint()
	}
	runtime.Gosched()
}

// Sleep blocks for the given number of ticks.
func (b *Backend) Sleep(ctx context.Context, ticks osal.Timeout) {
	t, ok := taskFrom(ctx)
	if ok {
		t.checkpoint()
		t.setState(osal.TaskBlocked)
	}
	if ticks == osal.WaitForever {
		<-ctx.Done()
	} else {
		time.Sleep(b.toDuration(ticks))
	}
	if ok {
		t.setState(osal.TaskRunning)
		t.checkpoint()
	}
}

// DispatchISR runs fn with the ISR context marker. Dispatches are
// serialized.
func (b *Backend) DispatchISR(fn func(ctx context.Context)) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()
	fn(osal.WithISR(context.Background()))
}

// Shutdown stops the tick source. Tasks keep running until their functions
// return.
func (b *Backend) Shutdown() {
	b.stopOnce.Do(func() { close(b.stop) })
}

func (b *Backend) toDuration(ticks osal.Timeout) time.Duration {
	return time.Duration(ticks) * b.interval
}

type region struct {
	mu sync.Mutex
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
