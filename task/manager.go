package task

import (
	"context"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/handle"
)

// Manager creates tasks on a backend and tracks them in a handle registry.
type Manager struct {
	be  osal.Backend
	reg *handle.Registry
}

// NewManager creates a task manager over the given backend and registry.
func NewManager(be osal.Backend, reg *handle.Registry) *Manager {
	return &Manager{be: be, reg: reg}
}

// Create spawns a task and registers it, returning its handle. Priority
// must be in [0, MaxPriority].
func (m *Manager) Create(name string, prio osal.Priority, fn func(ctx context.Context)) (osal.Handle, osal.Status) {
	ref, err := m.be.Spawn(name, prio, fn)
	if err != nil {
		return 0, osal.StatusOf(err)
	}
	h, st := m.reg.Register(osal.KindTask, ref)
	if !st.Ok() {
		// Over the cap or registry closed; do not leave an untracked task.
		ref.Delete()
		return 0, st
	}
	return h, osal.StatusOk
}

// Lookup resolves a handle to its task reference.
func (m *Manager) Lookup(h osal.Handle) (osal.TaskRef, osal.Status) {
	v, st := m.reg.Lookup(h, osal.KindTask)
	if !st.Ok() {
		return nil, st
	}
	ref, ok := v.(osal.TaskRef)
	if !ok {
		return nil, osal.StatusInvalidParam
	}
	return ref, osal.StatusOk
}

// Suspend takes the task out of scheduling until Resume.
func (m *Manager) Suspend(h osal.Handle) osal.Status {
	ref, st := m.Lookup(h)
	if !st.Ok() {
		return st
	}
	ref.Suspend()
	return osal.StatusOk
}

// Resume makes a suspended task ready again.
func (m *Manager) Resume(h osal.Handle) osal.Status {
	ref, st := m.Lookup(h)
	if !st.Ok() {
		return st
	}
	ref.Resume()
	return osal.StatusOk
}

// SetPriority changes the task's base priority.
func (m *Manager) SetPriority(h osal.Handle, prio osal.Priority) osal.Status {
	if prio > osal.MaxPriority {
		return osal.StatusInvalidParam
	}
	ref, st := m.Lookup(h)
	if !st.Ok() {
		return st
	}
	ref.SetPriority(prio)
	return osal.StatusOk
}

// Priority returns the task's effective priority.
func (m *Manager) Priority(h osal.Handle) (osal.Priority, osal.Status) {
	ref, st := m.Lookup(h)
	if !st.Ok() {
		return 0, st
	}
	return ref.Priority(), osal.StatusOk
}

// State returns the task's lifecycle state.
func (m *Manager) State(h osal.Handle) (osal.TaskState, osal.Status) {
	ref, st := m.Lookup(h)
	if !st.Ok() {
		return 0, st
	}
	return ref.State(), osal.StatusOk
}

// StackHighWater returns the task's largest observed stack usage in bytes.
func (m *Manager) StackHighWater(h osal.Handle) (uint32, osal.Status) {
	ref, st := m.Lookup(h)
	if !st.Ok() {
		return 0, st
	}
	return ref.StackHighWater(), osal.StatusOk
}

// Delete removes the task from scheduling and invalidates its handle.
func (m *Manager) Delete(h osal.Handle) osal.Status {
	v, st := m.reg.Invalidate(h, osal.KindTask)
	if !st.Ok() {
		return st
	}
	ref, ok := v.(osal.TaskRef)
	if !ok {
		return osal.StatusInvalidParam
	}
	ref.Delete()
	return osal.StatusOk
}

// Release invalidates the handle of a task that has already exited on its
// own, reclaiming the registry slot.
func (m *Manager) Release(h osal.Handle) osal.Status {
	ref, st := m.Lookup(h)
	if !st.Ok() {
		return st
	}
	if ref.State() != osal.TaskDeleted {
		return osal.StatusBusy
	}
	_, st = m.reg.Invalidate(h, osal.KindTask)
	return st
}

// Count returns the number of live task handles.
func (m *Manager) Count() uint32 { return m.reg.LiveCount(osal.KindTask) }
