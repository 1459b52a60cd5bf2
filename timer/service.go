package timer

import (
	"context"

	"github.com/embedkit/osal"
)

// Service manages a set of software timers against one timebase.
type Service struct {
	region osal.Region
	be     osal.Backend
	timers []*Timer
	nextID uint32
}

// Timer counts down from its period and fires a callback at zero. Periodic
// timers reload; one-shot timers deactivate. All methods go through the
// owning service's critical section.
type Timer struct {
	svc       *Service
	id        uint32
	name      string
	period    uint64
	remaining uint64
	periodic  bool
	active    bool
	destroyed bool
	cb        func()
	fires     uint64
}

// NewService creates an empty timer service on the given backend.
func NewService(be osal.Backend) *Service {
	return &Service{region: be.NewRegion(), be: be}
}

// Create registers a stopped timer. period is in ticks and must be
// positive; cb fires on expiry, outside the service's critical section.
func (s *Service) Create(name string, period uint64, periodic bool, cb func()) (*Timer, error) {
	if period == 0 {
		return nil, osal.Errorf(osal.StatusInvalidParam, "timer.Create", "zero period")
	}
	if cb == nil {
		return nil, osal.Errorf(osal.StatusNullPointer, "timer.Create", "nil callback")
	}

	s.region.Enter()
	defer s.region.Exit()
	s.nextID++
	t := &Timer{
		svc:       s,
		id:        s.nextID,
		name:      name,
		period:    period,
		remaining: period,
		periodic:  periodic,
		cb:        cb,
	}
	s.timers = append(s.timers, t)
	return t, nil
}

// Advance moves the timebase forward by delta ticks and fires every timer
// that expires. A timer fires at most once per Advance, even when delta
// spans several of its periods.
func (s *Service) Advance(delta uint64) {
	if delta == 0 {
		return
	}

	var fired []func()
	s.region.Enter()
	for _, t := range s.timers {
		if !t.active {
			continue
		}
		if t.remaining > delta {
			t.remaining -= delta
			continue
		}
		fired = append(fired, t.cb)
		t.fires++
		if t.periodic {
			t.remaining = t.period
		} else {
			t.active = false
			t.remaining = 0
		}
	}
	s.region.Exit()

	for _, cb := range fired {
		cb()
	}
}

// Run pumps Advance from the backend's tick source until ctx is canceled.
// Intended for the native backend; the cooperative backend drives Advance
// from its own loop or tests.
func (s *Service) Run(ctx context.Context) {
	last := s.be.Now()
	for ctx.Err() == nil {
		s.be.Sleep(ctx, 1)
		now := s.be.Now()
		if now > last {
			s.Advance(now - last)
			last = now
		}
	}
}

// Count returns the number of registered timers.
func (s *Service) Count() int {
	s.region.Enter()
	defer s.region.Exit()
	return len(s.timers)
}

// ActiveCount returns the number of running timers.
func (s *Service) ActiveCount() int {
	s.region.Enter()
	defer s.region.Exit()
	n := 0
	for _, t := range s.timers {
		if t.active {
			n++
		}
	}
	return n
}

// Name returns the timer name given at creation.
func (t *Timer) Name() string { return t.name }

// ID returns the service-unique timer identifier.
func (t *Timer) ID() uint32 { return t.id }

// Start arms the timer with a full period. Starting a running timer
// restarts its countdown.
func (t *Timer) Start() osal.Status {
	t.svc.region.Enter()
	defer t.svc.region.Exit()
	if t.destroyed {
		return osal.StatusNotInit
	}
	t.remaining = t.period
	t.active = true
	return osal.StatusOk
}

// Stop disarms the timer. Stopping a stopped timer is a no-op.
func (t *Timer) Stop() osal.Status {
	t.svc.region.Enter()
	defer t.svc.region.Exit()
	if t.destroyed {
		return osal.StatusNotInit
	}
	t.active = false
	return osal.StatusOk
}

// Reset restarts the countdown from the full period, arming the timer if
// it was stopped.
func (t *Timer) Reset() osal.Status { return t.Start() }

// SetPeriod changes the period. A running timer keeps its remaining time
// unless it exceeds the new period, in which case it is clamped down, so
// remaining never leaves [0, period].
func (t *Timer) SetPeriod(period uint64) osal.Status {
	if period == 0 {
		return osal.StatusInvalidParam
	}
	t.svc.region.Enter()
	defer t.svc.region.Exit()
	if t.destroyed {
		return osal.StatusNotInit
	}
	t.period = period
	if t.remaining > period {
		t.remaining = period
	}
	return osal.StatusOk
}

// SetCallback replaces the expiry callback. The change applies from the
// next expiry.
func (t *Timer) SetCallback(cb func()) osal.Status {
	if cb == nil {
		return osal.StatusNullPointer
	}
	t.svc.region.Enter()
	defer t.svc.region.Exit()
	if t.destroyed {
		return osal.StatusNotInit
	}
	t.cb = cb
	return osal.StatusOk
}

// Period returns the current period in ticks.
func (t *Timer) Period() uint64 {
	t.svc.region.Enter()
	defer t.svc.region.Exit()
	return t.period
}

// Remaining returns the ticks left until the next expiry. Zero when the
// timer is stopped after firing.
func (t *Timer) Remaining() uint64 {
	t.svc.region.Enter()
	defer t.svc.region.Exit()
	return t.remaining
}

// Active reports whether the timer is armed.
func (t *Timer) Active() bool {
	t.svc.region.Enter()
	defer t.svc.region.Exit()
	return t.active
}

// Fires returns how many times the timer has expired.
func (t *Timer) Fires() uint64 {
	t.svc.region.Enter()
	defer t.svc.region.Exit()
	return t.fires
}

// Destroy removes the timer from its service. Further operations return
// StatusNotInit.
func (t *Timer) Destroy() osal.Status {
	s := t.svc
	s.region.Enter()
	defer s.region.Exit()
	if t.destroyed {
		return osal.StatusNotInit
	}
	t.destroyed = true
	t.active = false
	for i, other := range s.timers {
		if other == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			break
		}
	}
	return osal.StatusOk
}
