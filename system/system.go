package system

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/handle"
	"github.com/embedkit/osal/mem"
	"github.com/embedkit/osal/queue"
	"github.com/embedkit/osal/stats"
	osalsync "github.com/embedkit/osal/sync"
	"github.com/embedkit/osal/task"
	"github.com/embedkit/osal/timer"
)

// System owns one instance of the abstraction layer.
type System struct {
	cfg    osal.Config
	be     osal.Backend
	reg    *handle.Registry
	acct   *stats.Accounting
	pool   *mem.Pool
	timers *timer.Service
	tasks  *task.Manager
	log    *zap.Logger
	closed atomic.Bool
}

// New builds a System from a validated configuration on the given backend.
// Disabled modules are left unconstructed.
func New(cfg osal.Config, be osal.Backend) (*System, error) {
	if be == nil {
		return nil, osal.Errorf(osal.StatusNullPointer, "system.New", "nil backend")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	acct := stats.New(cfg.Statistics)
	reg := handle.New(cfg.MaxResources, cfg.DebugHandleChecks)
	reg.Subscribe(acct)

	if sg, ok := be.(osal.StackGuard); ok && cfg.StackLimitBytes > 0 {
		sg.SetStackLimit(cfg.StackLimitBytes, func(osal.TaskRef) {
			acct.Fault(osal.StatusStackOverflow)
		})
	}

	s := &System{
		cfg:  cfg,
		be:   be,
		reg:  reg,
		acct: acct,
		log:  osal.Logger().Named("system"),
	}
	if cfg.Modules.Memory {
		pool, st := mem.New(cfg.PoolSize, acct, cfg.MemoryTracking)
		if !st.Ok() {
			return nil, osal.Errorf(st, "system.New", "pool of %d bytes", cfg.PoolSize)
		}
		s.pool = pool
	}
	if cfg.Modules.Timer {
		s.timers = timer.NewService(be)
	}
	if cfg.Modules.Task {
		s.tasks = task.NewManager(be, reg)
	}

	s.log.Info("initialized",
		zap.String("backend", be.Name()),
		zap.Uint32("pool_size", cfg.PoolSize),
		zap.Bool("statistics", cfg.Statistics))
	return s, nil
}

// Backend returns the execution substrate the system runs on.
func (s *System) Backend() osal.Backend { return s.be }

// Config returns the configuration the system was built with.
func (s *System) Config() osal.Config { return s.cfg }

// Registry returns the handle registry, for diagnostics.
func (s *System) Registry() *handle.Registry { return s.reg }

// Accounting returns the resource accounting, for diagnostics.
func (s *System) Accounting() *stats.Accounting { return s.acct }

// Pool returns the allocator pool, nil when the memory module is disabled.
func (s *System) Pool() *mem.Pool { return s.pool }

// Timers returns the timer service, nil when the timer module is disabled.
func (s *System) Timers() *timer.Service { return s.timers }

// Close invalidates every live handle and shuts the backend down. The
// system is unusable afterwards.
func (s *System) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.reg.Close()
	s.be.Shutdown()
	s.log.Info("closed")
}

func (s *System) gate(enabled bool) osal.Status {
	if s.closed.Load() || !enabled {
		return osal.StatusNotInit
	}
	return osal.StatusOk
}

// Stats returns a point-in-time copy of all per-kind counters.
func (s *System) Stats() stats.Snapshot { return s.acct.Snapshot() }

// ResetWatermarks folds every watermark down to its current count.
func (s *System) ResetWatermarks() { s.acct.ResetWatermarks() }

// SetErrorCallback installs the fault callback. It can be set exactly once.
func (s *System) SetErrorCallback(cb stats.Callback) osal.Status {
	return s.acct.SetErrorCallback(cb)
}

// --- tasks ---

// CreateTask spawns a task and returns its handle.
func (s *System) CreateTask(name string, prio osal.Priority, fn func(ctx context.Context)) (osal.Handle, osal.Status) {
	if st := s.gate(s.cfg.Modules.Task); !st.Ok() {
		return 0, st
	}
	return s.tasks.Create(name, prio, fn)
}

// Task resolves a task handle.
func (s *System) Task(h osal.Handle) (osal.TaskRef, osal.Status) {
	if st := s.gate(s.cfg.Modules.Task); !st.Ok() {
		return nil, st
	}
	return s.tasks.Lookup(h)
}

// SuspendTask takes the task out of scheduling until ResumeTask.
func (s *System) SuspendTask(h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Task); !st.Ok() {
		return st
	}
	return s.tasks.Suspend(h)
}

// ResumeTask makes a suspended task ready again.
func (s *System) ResumeTask(h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Task); !st.Ok() {
		return st
	}
	return s.tasks.Resume(h)
}

// DeleteTask removes the task and invalidates its handle.
func (s *System) DeleteTask(h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Task); !st.Ok() {
		return st
	}
	return s.tasks.Delete(h)
}

// SetTaskPriority changes a task's base priority.
func (s *System) SetTaskPriority(h osal.Handle, prio osal.Priority) osal.Status {
	if st := s.gate(s.cfg.Modules.Task); !st.Ok() {
		return st
	}
	return s.tasks.SetPriority(h, prio)
}

// --- mutexes ---

// CreateMutex creates an unlocked mutex and returns its handle.
func (s *System) CreateMutex() (osal.Handle, osal.Status) {
	if st := s.gate(s.cfg.Modules.Mutex); !st.Ok() {
		return 0, st
	}
	return s.reg.Register(osal.KindMutex, osalsync.NewMutex(s.be))
}

func (s *System) mutex(h osal.Handle) (*osalsync.Mutex, osal.Status) {
	v, st := s.reg.Lookup(h, osal.KindMutex)
	if !st.Ok() {
		return nil, st
	}
	m, ok := v.(*osalsync.Mutex)
	if !ok {
		return nil, osal.StatusInvalidParam
	}
	return m, osal.StatusOk
}

// LockMutex acquires the mutex, blocking up to timeout ticks.
func (s *System) LockMutex(ctx context.Context, h osal.Handle, timeout osal.Timeout) osal.Status {
	if st := s.gate(s.cfg.Modules.Mutex); !st.Ok() {
		return st
	}
	m, st := s.mutex(h)
	if !st.Ok() {
		return st
	}
	return m.Lock(ctx, timeout)
}

// UnlockMutex releases the mutex. Owner-checked.
func (s *System) UnlockMutex(ctx context.Context, h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Mutex); !st.Ok() {
		return st
	}
	m, st := s.mutex(h)
	if !st.Ok() {
		return st
	}
	return m.Unlock(ctx)
}

// DestroyMutex invalidates the handle. A locked mutex cannot be destroyed.
func (s *System) DestroyMutex(h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Mutex); !st.Ok() {
		return st
	}
	m, st := s.mutex(h)
	if !st.Ok() {
		return st
	}
	if _, locked := m.Owner(); locked {
		return osal.StatusBusy
	}
	_, st = s.reg.Invalidate(h, osal.KindMutex)
	return st
}

// --- semaphores ---

// CreateSemaphore creates a counting semaphore and returns its handle.
func (s *System) CreateSemaphore(initial, max uint32) (osal.Handle, osal.Status) {
	if st := s.gate(s.cfg.Modules.Semaphore); !st.Ok() {
		return 0, st
	}
	sem, err := osalsync.NewSemaphore(s.be, initial, max)
	if err != nil {
		return 0, osal.StatusOf(err)
	}
	return s.reg.Register(osal.KindSemaphore, sem)
}

func (s *System) semaphore(h osal.Handle) (*osalsync.Semaphore, osal.Status) {
	v, st := s.reg.Lookup(h, osal.KindSemaphore)
	if !st.Ok() {
		return nil, st
	}
	sem, ok := v.(*osalsync.Semaphore)
	if !ok {
		return nil, osal.StatusInvalidParam
	}
	return sem, osal.StatusOk
}

// TakeSemaphore acquires one permit, blocking up to timeout ticks.
func (s *System) TakeSemaphore(ctx context.Context, h osal.Handle, timeout osal.Timeout) osal.Status {
	if st := s.gate(s.cfg.Modules.Semaphore); !st.Ok() {
		return st
	}
	sem, st := s.semaphore(h)
	if !st.Ok() {
		return st
	}
	return sem.Take(ctx, timeout)
}

// GiveSemaphore releases one permit. ISR-safe.
func (s *System) GiveSemaphore(ctx context.Context, h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Semaphore); !st.Ok() {
		return st
	}
	sem, st := s.semaphore(h)
	if !st.Ok() {
		return st
	}
	return sem.Give(ctx)
}

// SemaphoreCount returns the available permits.
func (s *System) SemaphoreCount(h osal.Handle) (uint32, osal.Status) {
	if st := s.gate(s.cfg.Modules.Semaphore); !st.Ok() {
		return 0, st
	}
	sem, st := s.semaphore(h)
	if !st.Ok() {
		return 0, st
	}
	return sem.Count(), osal.StatusOk
}

// DestroySemaphore invalidates the handle.
func (s *System) DestroySemaphore(h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Semaphore); !st.Ok() {
		return st
	}
	if _, st := s.semaphore(h); !st.Ok() {
		return st
	}
	_, st := s.reg.Invalidate(h, osal.KindSemaphore)
	return st
}

// --- queues ---

// CreateQueue creates a message queue whose ring lives in the system pool.
// Requires the memory module.
func (s *System) CreateQueue(itemSize, capacity uint32, mode queue.Mode) (osal.Handle, osal.Status) {
	if st := s.gate(s.cfg.Modules.Queue && s.cfg.Modules.Memory); !st.Ok() {
		return 0, st
	}
	q, err := queue.New(s.be, s.pool, itemSize, capacity, mode)
	if err != nil {
		return 0, osal.StatusOf(err)
	}
	return s.reg.Register(osal.KindQueue, q)
}

func (s *System) queue(h osal.Handle) (*queue.Queue, osal.Status) {
	v, st := s.reg.Lookup(h, osal.KindQueue)
	if !st.Ok() {
		return nil, st
	}
	q, ok := v.(*queue.Queue)
	if !ok {
		return nil, osal.StatusInvalidParam
	}
	return q, osal.StatusOk
}

// SendQueue copies item into the queue, blocking up to timeout ticks.
func (s *System) SendQueue(ctx context.Context, h osal.Handle, item []byte, timeout osal.Timeout) osal.Status {
	if st := s.gate(s.cfg.Modules.Queue); !st.Ok() {
		return st
	}
	q, st := s.queue(h)
	if !st.Ok() {
		return st
	}
	return q.Send(ctx, item, timeout)
}

// ReceiveQueue copies the oldest item into buf, blocking up to timeout
// ticks.
func (s *System) ReceiveQueue(ctx context.Context, h osal.Handle, buf []byte, timeout osal.Timeout) osal.Status {
	if st := s.gate(s.cfg.Modules.Queue); !st.Ok() {
		return st
	}
	q, st := s.queue(h)
	if !st.Ok() {
		return st
	}
	return q.Receive(ctx, buf, timeout)
}

// PeekQueue copies the oldest item without removing it.
func (s *System) PeekQueue(ctx context.Context, h osal.Handle, buf []byte) osal.Status {
	if st := s.gate(s.cfg.Modules.Queue); !st.Ok() {
		return st
	}
	q, st := s.queue(h)
	if !st.Ok() {
		return st
	}
	return q.Peek(ctx, buf)
}

// QueueCount returns the number of queued items.
func (s *System) QueueCount(h osal.Handle) (uint32, osal.Status) {
	if st := s.gate(s.cfg.Modules.Queue); !st.Ok() {
		return 0, st
	}
	q, st := s.queue(h)
	if !st.Ok() {
		return 0, st
	}
	return q.Count(), osal.StatusOk
}

// DestroyQueue frees the ring storage and invalidates the handle.
func (s *System) DestroyQueue(ctx context.Context, h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Queue); !st.Ok() {
		return st
	}
	v, st := s.reg.Invalidate(h, osal.KindQueue)
	if !st.Ok() {
		return st
	}
	q, ok := v.(*queue.Queue)
	if !ok {
		return osal.StatusInvalidParam
	}
	return q.Destroy(ctx)
}

// --- event groups ---

// CreateEventGroup creates an event group with all flags clear.
func (s *System) CreateEventGroup() (osal.Handle, osal.Status) {
	if st := s.gate(s.cfg.Modules.Event); !st.Ok() {
		return 0, st
	}
	return s.reg.Register(osal.KindEvent, osalsync.NewEventGroup(s.be))
}

func (s *System) events(h osal.Handle) (*osalsync.EventGroup, osal.Status) {
	v, st := s.reg.Lookup(h, osal.KindEvent)
	if !st.Ok() {
		return nil, st
	}
	g, ok := v.(*osalsync.EventGroup)
	if !ok {
		return nil, osal.StatusInvalidParam
	}
	return g, osal.StatusOk
}

// SetEvents ORs bits into the group and releases satisfied waiters.
func (s *System) SetEvents(ctx context.Context, h osal.Handle, bits uint32) (uint32, osal.Status) {
	if st := s.gate(s.cfg.Modules.Event); !st.Ok() {
		return 0, st
	}
	g, st := s.events(h)
	if !st.Ok() {
		return 0, st
	}
	return g.Set(ctx, bits)
}

// ClearEvents removes bits from the group, returning the prior value.
func (s *System) ClearEvents(ctx context.Context, h osal.Handle, bits uint32) (uint32, osal.Status) {
	if st := s.gate(s.cfg.Modules.Event); !st.Ok() {
		return 0, st
	}
	g, st := s.events(h)
	if !st.Ok() {
		return 0, st
	}
	return g.Clear(ctx, bits)
}

// WaitEvents blocks until the bit condition holds.
func (s *System) WaitEvents(ctx context.Context, h osal.Handle, bits uint32, waitAll, clear bool, timeout osal.Timeout) (uint32, osal.Status) {
	if st := s.gate(s.cfg.Modules.Event); !st.Ok() {
		return 0, st
	}
	g, st := s.events(h)
	if !st.Ok() {
		return 0, st
	}
	return g.Wait(ctx, bits, waitAll, clear, timeout)
}

// SyncEvents performs a rendezvous on the group.
func (s *System) SyncEvents(ctx context.Context, h osal.Handle, setBits, waitBits uint32, timeout osal.Timeout) (uint32, osal.Status) {
	if st := s.gate(s.cfg.Modules.Event); !st.Ok() {
		return 0, st
	}
	g, st := s.events(h)
	if !st.Ok() {
		return 0, st
	}
	return g.Sync(ctx, setBits, waitBits, timeout)
}

// DestroyEventGroup invalidates the handle.
func (s *System) DestroyEventGroup(h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Event); !st.Ok() {
		return st
	}
	if _, st := s.events(h); !st.Ok() {
		return st
	}
	_, st := s.reg.Invalidate(h, osal.KindEvent)
	return st
}

// --- timers ---

// CreateTimer registers a stopped timer and returns its handle.
func (s *System) CreateTimer(name string, period uint64, periodic bool, cb func()) (osal.Handle, osal.Status) {
	if st := s.gate(s.cfg.Modules.Timer); !st.Ok() {
		return 0, st
	}
	t, err := s.timers.Create(name, period, periodic, cb)
	if err != nil {
		return 0, osal.StatusOf(err)
	}
	return s.reg.Register(osal.KindTimer, t)
}

func (s *System) timer(h osal.Handle) (*timer.Timer, osal.Status) {
	v, st := s.reg.Lookup(h, osal.KindTimer)
	if !st.Ok() {
		return nil, st
	}
	t, ok := v.(*timer.Timer)
	if !ok {
		return nil, osal.StatusInvalidParam
	}
	return t, osal.StatusOk
}

// StartTimer arms the timer with a full period.
func (s *System) StartTimer(h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Timer); !st.Ok() {
		return st
	}
	t, st := s.timer(h)
	if !st.Ok() {
		return st
	}
	return t.Start()
}

// StopTimer disarms the timer.
func (s *System) StopTimer(h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Timer); !st.Ok() {
		return st
	}
	t, st := s.timer(h)
	if !st.Ok() {
		return st
	}
	return t.Stop()
}

// SetTimerPeriod changes the timer period, clamping remaining time.
func (s *System) SetTimerPeriod(h osal.Handle, period uint64) osal.Status {
	if st := s.gate(s.cfg.Modules.Timer); !st.Ok() {
		return st
	}
	t, st := s.timer(h)
	if !st.Ok() {
		return st
	}
	return t.SetPeriod(period)
}

// DestroyTimer removes the timer and invalidates its handle.
func (s *System) DestroyTimer(h osal.Handle) osal.Status {
	if st := s.gate(s.cfg.Modules.Timer); !st.Ok() {
		return st
	}
	v, st := s.reg.Invalidate(h, osal.KindTimer)
	if !st.Ok() {
		return st
	}
	t, ok := v.(*timer.Timer)
	if !ok {
		return osal.StatusInvalidParam
	}
	return t.Destroy()
}

// Advance moves the timer service forward by delta ticks.
func (s *System) Advance(delta uint64) osal.Status {
	if st := s.gate(s.cfg.Modules.Timer); !st.Ok() {
		return st
	}
	s.timers.Advance(delta)
	return osal.StatusOk
}

// --- memory ---

// Alloc allocates size bytes from the system pool.
func (s *System) Alloc(size uint32) (uint32, osal.Status) {
	if st := s.gate(s.cfg.Modules.Memory); !st.Ok() {
		return 0, st
	}
	return s.pool.Alloc(size)
}

// AllocAligned allocates size bytes at an aligned offset.
func (s *System) AllocAligned(size, align uint32) (uint32, osal.Status) {
	if st := s.gate(s.cfg.Modules.Memory); !st.Ok() {
		return 0, st
	}
	return s.pool.AllocAligned(size, align)
}

// Free releases a block obtained from Alloc.
func (s *System) Free(off uint32) osal.Status {
	if st := s.gate(s.cfg.Modules.Memory); !st.Ok() {
		return st
	}
	return s.pool.Free(off)
}

// FreeAligned releases a block obtained from AllocAligned.
func (s *System) FreeAligned(off uint32) osal.Status {
	if st := s.gate(s.cfg.Modules.Memory); !st.Ok() {
		return st
	}
	return s.pool.FreeAligned(off)
}

// CheckIntegrity walks every live block's guard values.
func (s *System) CheckIntegrity() osal.Status {
	if st := s.gate(s.cfg.Modules.Memory); !st.Ok() {
		return st
	}
	return s.pool.CheckIntegrity()
}
