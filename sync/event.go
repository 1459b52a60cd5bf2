package sync

import (
	"context"

	"github.com/embedkit/osal"
)

// EventGroup is a 32-bit flag word multiple tasks can wait on, each with its
// own match condition. A single Set satisfies every waiter whose condition
// now holds; all of them observe the same snapshot of the flag word, taken
// before any waiter's clear-on-exit mask is applied.
type EventGroup struct {
	region  osal.Region
	wq      osal.WaitQueue
	bits    uint32
	waiters []*eventWaiter
}

type eventWaiter struct {
	bits      uint32
	all       bool
	clear     bool
	satisfied bool
	snapshot  uint32
}

// NewEventGroup creates an event group with all flags clear.
func NewEventGroup(be osal.Backend) *EventGroup {
	return &EventGroup{region: be.NewRegion(), wq: be.NewWaitQueue()}
}

func eventMatch(have, want uint32, all bool) bool {
	if all {
		return have&want == want
	}
	return have&want != 0
}

// settleLocked evaluates every registered waiter against the current flag
// word. Satisfied waiters capture the same snapshot; their clear masks are
// applied only after all have been evaluated. Caller holds the region.
func (g *EventGroup) settleLocked() {
	var clearMask uint32
	any := false
	kept := g.waiters[:0]
	for _, w := range g.waiters {
		if eventMatch(g.bits, w.bits, w.all) {
			w.satisfied = true
			w.snapshot = g.bits
			if w.clear {
				clearMask |= w.bits
			}
			any = true
		} else {
			kept = append(kept, w)
		}
	}
	g.waiters = kept
	g.bits &^= clearMask
	if any {
		g.wq.WakeAll()
	}
}

// Set ORs bits into the flag word and releases every waiter whose condition
// now holds. ISR-safe. Returns the flag word after waiter clears.
func (g *EventGroup) Set(ctx context.Context, bits uint32) (uint32, osal.Status) {
	g.region.Enter()
	defer g.region.Exit()
	g.bits |= bits
	g.settleLocked()
	return g.bits, osal.StatusOk
}

// Clear removes bits from the flag word and returns the value before the
// clear. ISR-safe.
func (g *EventGroup) Clear(ctx context.Context, bits uint32) (uint32, osal.Status) {
	g.region.Enter()
	defer g.region.Exit()
	prev := g.bits
	g.bits &^= bits
	return prev, osal.StatusOk
}

// Bits returns the current flag word.
func (g *EventGroup) Bits() uint32 {
	g.region.Enter()
	defer g.region.Exit()
	return g.bits
}

// Wait blocks until the condition over bits holds: all of them when waitAll
// is set, any one otherwise. On success it returns the satisfying snapshot
// and, when clear is set, removes the waited bits from the flag word. On
// timeout it returns the current flag word and StatusTimeout.
func (g *EventGroup) Wait(ctx context.Context, bits uint32, waitAll, clear bool, timeout osal.Timeout) (uint32, osal.Status) {
	if bits == 0 {
		return 0, osal.StatusInvalidParam
	}
	if osal.InISR(ctx) && timeout != osal.NoWait {
		return 0, osal.StatusIsr
	}

	g.region.Enter()
	defer g.region.Exit()
	if eventMatch(g.bits, bits, waitAll) {
		snap := g.bits
		if clear {
			g.bits &^= bits
		}
		return snap, osal.StatusOk
	}
	if timeout == osal.NoWait {
		return g.bits, osal.StatusTimeout
	}

	w := &eventWaiter{bits: bits, all: waitAll, clear: clear}
	g.waiters = append(g.waiters, w)
	for !w.satisfied {
		if !g.wq.Wait(ctx, g.region, timeout) {
			// A settle may have raced the timeout; the snapshot wins.
			if w.satisfied {
				break
			}
			g.removeWaiter(w)
			return g.bits, osal.StatusTimeout
		}
	}
	return w.snapshot, osal.StatusOk
}

// Sync is a rendezvous: the caller contributes setBits, then blocks until
// every bit in waitBits is present. The last arriver releases the whole
// barrier with one snapshot and the waited bits are cleared for the next
// round.
func (g *EventGroup) Sync(ctx context.Context, setBits, waitBits uint32, timeout osal.Timeout) (uint32, osal.Status) {
	if waitBits == 0 {
		return 0, osal.StatusInvalidParam
	}
	if osal.InISR(ctx) {
		return 0, osal.StatusIsr
	}

	g.region.Enter()
	defer g.region.Exit()
	g.bits |= setBits
	if g.bits&waitBits == waitBits {
		snap := g.bits
		// Release parked peers before clearing so they see the same snapshot.
		g.settleLocked()
		g.bits &^= waitBits
		return snap, osal.StatusOk
	}
	g.settleLocked()

	w := &eventWaiter{bits: waitBits, all: true, clear: true}
	g.waiters = append(g.waiters, w)
	for !w.satisfied {
		if !g.wq.Wait(ctx, g.region, timeout) {
			if w.satisfied {
				break
			}
			g.removeWaiter(w)
			return g.bits, osal.StatusTimeout
		}
	}
	return w.snapshot, osal.StatusOk
}

// Waiters returns the number of tasks parked on the group.
func (g *EventGroup) Waiters() int {
	g.region.Enter()
	defer g.region.Exit()
	return len(g.waiters)
}

func (g *EventGroup) removeWaiter(target *eventWaiter) {
	for i, w := range g.waiters {
		if w == target {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
}
