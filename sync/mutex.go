package sync

import (
	"context"

	"github.com/embedkit/osal"
)

// Mutex is a non-recursive ownership lock with priority inheritance: while
// a higher-priority task waits, the owner runs boosted to the waiter's
// priority so it cannot be starved out of the critical section by
// middle-priority tasks.
type Mutex struct {
	region osal.Region
	wq     osal.WaitQueue
	owner  osal.TaskRef
}

// NewMutex creates an unlocked mutex on the given backend.
func NewMutex(be osal.Backend) *Mutex {
	return &Mutex{region: be.NewRegion(), wq: be.NewWaitQueue()}
}

// Lock acquires the mutex, blocking up to timeout ticks. It returns
// StatusTimeout when the deadline expires (including timeout == NoWait on a
// held mutex), StatusBusy when the caller already owns it, StatusIsr from
// interrupt context, and StatusInvalidParam when ctx carries no task.
func (m *Mutex) Lock(ctx context.Context, timeout osal.Timeout) osal.Status {
	if osal.InISR(ctx) {
		return osal.StatusIsr
	}
	caller, ok := osal.TaskFromContext(ctx)
	if !ok {
		return osal.StatusInvalidParam
	}

	m.region.Enter()
	defer m.region.Exit()
	for m.owner != nil {
		if m.owner.ID() == caller.ID() {
			return osal.StatusBusy
		}
		if caller.Priority() > m.owner.Priority() {
			m.owner.Boost(caller.Priority())
		}
		// A wake races other acquirers, so re-check ownership. The full
		// timeout applies to each wait round.
		if !m.wq.Wait(ctx, m.region, timeout) {
			return osal.StatusTimeout
		}
	}
	m.owner = caller
	return osal.StatusOk
}

// Unlock releases the mutex. Only the owner may unlock; any other caller
// gets StatusBusy. The owner's inherited boost is dropped here.
func (m *Mutex) Unlock(ctx context.Context) osal.Status {
	if osal.InISR(ctx) {
		return osal.StatusIsr
	}
	caller, ok := osal.TaskFromContext(ctx)
	if !ok {
		return osal.StatusInvalidParam
	}

	m.region.Enter()
	defer m.region.Exit()
	if m.owner == nil || m.owner.ID() != caller.ID() {
		return osal.StatusBusy
	}
	caller.ClearBoost()
	m.owner = nil
	m.wq.WakeOne()
	return osal.StatusOk
}

// Owner returns the current owner, or false when unlocked.
func (m *Mutex) Owner() (osal.TaskRef, bool) {
	m.region.Enter()
	defer m.region.Exit()
	return m.owner, m.owner != nil
}

// IsLocked reports whether the mutex is currently held.
func (m *Mutex) IsLocked() bool {
	_, locked := m.Owner()
	return locked
}
