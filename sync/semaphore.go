package sync

import (
	"context"

	"github.com/embedkit/osal"
)

// Semaphore is a counting semaphore with a hard ceiling. Give saturates:
// releasing at the ceiling succeeds without raising the count.
type Semaphore struct {
	region osal.Region
	wq     osal.WaitQueue
	count  uint32
	max    uint32
}

// NewSemaphore creates a semaphore holding initial permits out of max.
func NewSemaphore(be osal.Backend, initial, max uint32) (*Semaphore, error) {
	if max == 0 {
		return nil, osal.Errorf(osal.StatusInvalidParam, "sync.NewSemaphore", "max must be positive")
	}
	if initial > max {
		return nil, osal.Errorf(osal.StatusInvalidParam, "sync.NewSemaphore", "initial %d > max %d", initial, max)
	}
	return &Semaphore{
		region: be.NewRegion(),
		wq:     be.NewWaitQueue(),
		count:  initial,
		max:    max,
	}, nil
}

// NewBinarySemaphore creates a one-permit semaphore, initially available
// when available is true.
func NewBinarySemaphore(be osal.Backend, available bool) *Semaphore {
	initial := uint32(0)
	if available {
		initial = 1
	}
	s, _ := NewSemaphore(be, initial, 1)
	return s
}

// Take acquires one permit, blocking up to timeout ticks. From interrupt
// context only NoWait is allowed; a blocking attempt returns StatusIsr.
func (s *Semaphore) Take(ctx context.Context, timeout osal.Timeout) osal.Status {
	if osal.InISR(ctx) && timeout != osal.NoWait {
		return osal.StatusIsr
	}

	s.region.Enter()
	defer s.region.Exit()
	for s.count == 0 {
		if timeout == osal.NoWait {
			return osal.StatusTimeout
		}
		if !s.wq.Wait(ctx, s.region, timeout) {
			return osal.StatusTimeout
		}
	}
	s.count--
	return osal.StatusOk
}

// Give releases one permit and readies the longest waiter. ISR-safe.
// Giving at the ceiling saturates: the count stays put and the call
// succeeds.
func (s *Semaphore) Give(ctx context.Context) osal.Status {
	s.region.Enter()
	defer s.region.Exit()
	if s.count < s.max {
		s.count++
		s.wq.WakeOne()
	}
	return osal.StatusOk
}

// Reset forces the count to value, which must not exceed the ceiling. When
// the new count is positive, blocked takers are woken to claim the permits.
func (s *Semaphore) Reset(value uint32) osal.Status {
	if value > s.max {
		return osal.StatusInvalidParam
	}
	s.region.Enter()
	defer s.region.Exit()
	s.count = value
	if value > 0 {
		s.wq.WakeAll()
	}
	return osal.StatusOk
}

// Count returns the number of available permits.
func (s *Semaphore) Count() uint32 {
	s.region.Enter()
	defer s.region.Exit()
	return s.count
}

// Max returns the permit ceiling.
func (s *Semaphore) Max() uint32 { return s.max }
