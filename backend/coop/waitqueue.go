package coop

import (
	"context"

	"github.com/embedkit/osal"
)

// waitQueue is a FIFO wait list. The resource's region aliases the
// scheduler mutex, so holding the region is holding mu; every method runs
// under it.
type waitQueue struct {
	s       *Scheduler
	waiters []*Task
}

func (wq *waitQueue) Wait(ctx context.Context, region osal.Region, timeout osal.Timeout) bool {
	if timeout == osal.NoWait || osal.InISR(ctx) {
		return false
	}
	t, ok := taskFrom(ctx)
	if !ok {
		return false
	}

	t.setState(osal.TaskBlocked)
	t.wq = wq
	t.timedOut = false
	if timeout == osal.WaitForever {
		t.hasDeadline = false
	} else {
		t.deadline = wq.s.ticks.Load() + uint64(timeout)
		t.hasDeadline = true
	}
	wq.waiters = append(wq.waiters, t)

	region.Exit()
	t.yieldBaton()
	region.Enter()
	return !t.timedOut
}

func (wq *waitQueue) WakeOne() bool {
	if len(wq.waiters) == 0 {
		return false
	}
	t := wq.waiters[0]
	wq.waiters = wq.waiters[1:]
	wq.readyLocked(t)
	return true
}

func (wq *waitQueue) WakeAll() int {
	n := len(wq.waiters)
	for _, t := range wq.waiters {
		wq.readyLocked(t)
	}
	wq.waiters = wq.waiters[:0]
	return n
}

func (wq *waitQueue) Len() int { return len(wq.waiters) }

func (wq *waitQueue) MaxWaiterPriority() (osal.Priority, bool) {
	if len(wq.waiters) == 0 {
		return 0, false
	}
	var max osal.Priority
	for _, t := range wq.waiters {
		if t.Priority() > max {
			max = t.Priority()
		}
	}
	return max, true
}

// readyLocked moves a satisfied waiter to the ready queue. Caller holds mu
// and has removed the task from the waiter list.
func (wq *waitQueue) readyLocked(t *Task) {
	t.wq = nil
	t.hasDeadline = false
	t.timedOut = false
	t.setState(osal.TaskReady)
	wq.s.ready = append(wq.s.ready, t)
	wq.s.wakeLoop()
}

// removeLocked drops a timed-out or deleted task from the list. Caller
// holds mu.
func (wq *waitQueue) removeLocked(target *Task) {
	for i, t := range wq.waiters {
		if t == target {
			wq.waiters = append(wq.waiters[:i], wq.waiters[i+1:]...)
			return
		}
	}
}
