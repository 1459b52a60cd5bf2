package native

import (
	"context"
	"time"

	"github.com/embedkit/osal"
)

type waiter struct {
	ch   chan struct{}
	task *Task
}

// waitQueue parks waiters on per-waiter channels. The resource's region
// serializes all access to the waiter list, per the WaitQueue contract.
type waitQueue struct {
	be      *Backend
	waiters []*waiter
}

func (wq *waitQueue) Wait(ctx context.Context, region osal.Region, timeout osal.Timeout) bool {
	if timeout == osal.NoWait || osal.InISR(ctx) {
		return false
	}
	// Only tasks may block; a context without one fails out, per the
	// WaitQueue contract.
	t, ok := taskFrom(ctx)
	if !ok {
		return false
	}

	w := &waiter{ch: make(chan struct{}, 1), task: t}
	t.setState(osal.TaskBlocked)
	wq.waiters = append(wq.waiters, w)
	region.Exit()

	timedOut := false
	if timeout == osal.WaitForever {
		select {
		case <-w.ch:
		case <-ctx.Done():
			timedOut = true
		}
	} else {
		t := time.NewTimer(wq.be.toDuration(timeout))
		select {
		case <-w.ch:
		case <-t.C:
			timedOut = true
		case <-ctx.Done():
			timedOut = true
		}
		t.Stop()
	}

	region.Enter()
	if timedOut {
		// A wake may have raced the timer; prefer the wake.
		select {
		case <-w.ch:
			timedOut = false
		default:
			wq.remove(w)
		}
	}
	// Suspend/delete, if pending, is serviced by the caller's next
	// suspension point; doing it here would park while holding the region.
	w.task.setState(osal.TaskRunning)
	return !timedOut
}

func (wq *waitQueue) WakeOne() bool {
	if len(wq.waiters) == 0 {
		return false
	}
	w := wq.waiters[0]
	wq.waiters = wq.waiters[1:]
	w.task.setState(osal.TaskReady)
	w.ch <- struct{}{}
	return true
}

func (wq *waitQueue) WakeAll() int {
	n := len(wq.waiters)
	for _, w := range wq.waiters {
		w.task.setState(osal.TaskReady)
		w.ch <- struct{}{}
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
	for _, w := range wq.waiters {
		if w.task.Priority() > max {
			max = w.task.Priority()
		}
	}
	return max, true
}

func (wq *waitQueue) remove(target *waiter) {
	for i, w := range wq.waiters {
		if w == target {
			wq.waiters = append(wq.waiters[:i], wq.waiters[i+1:]...)
			return
		}
	}
}
