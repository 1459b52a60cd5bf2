package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/backend/native"
)

func newTestService(t *testing.T) (*native.Backend, *Service) {
	t.Helper()
	b := native.NewWithInterval(time.Millisecond)
	t.Cleanup(b.Shutdown)
	return b, NewService(b)
}

func TestOneShotFiresOnce(t *testing.T) {
	_, svc := newTestService(t)

	var fired atomic.Uint32
	tm, err := svc.Create("oneshot", 10, false, func() { fired.Add(1) })
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tm.Active() {
		t.Fatal("timer armed before Start")
	}

	tm.Start()
	svc.Advance(9)
	if fired.Load() != 0 {
		t.Fatalf("fired %d ticks early", 10-9)
	}
	if tm.Remaining() != 1 {
		t.Fatalf("remaining = %d, want 1", tm.Remaining())
	}

	svc.Advance(1)
	if fired.Load() != 1 {
		t.Fatal("did not fire at expiry")
	}
	if tm.Active() {
		t.Fatal("one-shot still armed after firing")
	}

	svc.Advance(100)
	if fired.Load() != 1 {
		t.Fatalf("fired again while stopped, count = %d", fired.Load())
	}
}

func TestPeriodicReloads(t *testing.T) {
	_, svc := newTestService(t)

	var fired atomic.Uint32
	tm, _ := svc.Create("periodic", 5, true, func() { fired.Add(1) })
	tm.Start()

	for i := 0; i < 3; i++ {
		svc.Advance(5)
	}
	if fired.Load() != 3 {
		t.Fatalf("fired %d times, want 3", fired.Load())
	}
	if !tm.Active() || tm.Remaining() != 5 {
		t.Fatalf("active/remaining = %v/%d, want true/5 after reload", tm.Active(), tm.Remaining())
	}
	if tm.Fires() != 3 {
		t.Fatalf("fire count = %d, want 3", tm.Fires())
	}
}

func TestStopPreventsFire(t *testing.T) {
	_, svc := newTestService(t)

	var fired atomic.Uint32
	tm, _ := svc.Create("stopped", 5, false, func() { fired.Add(1) })
	tm.Start()
	svc.Advance(3)
	tm.Stop()
	svc.Advance(10)
	if fired.Load() != 0 {
		t.Fatal("stopped timer fired")
	}
}

func TestResetRestartsCountdown(t *testing.T) {
	_, svc := newTestService(t)

	var fired atomic.Uint32
	tm, _ := svc.Create("resettable", 10, false, func() { fired.Add(1) })
	tm.Start()
	svc.Advance(8)
	tm.Reset()
	svc.Advance(9)
	if fired.Load() != 0 {
		t.Fatal("fired before the restarted period elapsed")
	}
	svc.Advance(1)
	if fired.Load() != 1 {
		t.Fatal("did not fire after the restarted period")
	}
}

func TestSetPeriodClampsRemaining(t *testing.T) {
	_, svc := newTestService(t)
	tm, _ := svc.Create("resize", 100, true, func() {})
	tm.Start()
	svc.Advance(10)

	if st := tm.SetPeriod(50); st != osal.StatusOk {
		t.Fatalf("SetPeriod = %v", st)
	}
	if tm.Period() != 50 || tm.Remaining() != 50 {
		t.Fatalf("period/remaining = %d/%d, want 50/50", tm.Period(), tm.Remaining())
	}

	svc.Advance(10)
	if st := tm.SetPeriod(200); st != osal.StatusOk {
		t.Fatalf("SetPeriod = %v", st)
	}
	// Remaining below the new period is kept.
	if tm.Remaining() != 40 {
		t.Fatalf("remaining = %d, want 40", tm.Remaining())
	}

	if st := tm.SetPeriod(0); st != osal.StatusInvalidParam {
		t.Fatalf("zero period = %v, want invalid param", st)
	}
}

func TestCallbackMayRescheduleTimers(t *testing.T) {
	_, svc := newTestService(t)

	var second atomic.Bool
	chain, _ := svc.Create("second", 5, false, func() { second.Store(true) })
	first, _ := svc.Create("first", 5, false, func() { chain.Start() })

	first.Start()
	svc.Advance(5) // fires first; its callback arms chain without deadlocking
	svc.Advance(5)
	if !second.Load() {
		t.Fatal("chained timer never fired")
	}
}

func TestDestroy(t *testing.T) {
	_, svc := newTestService(t)
	tm, _ := svc.Create("doomed", 5, false, func() {})

	if svc.Count() != 1 {
		t.Fatalf("count = %d, want 1", svc.Count())
	}
	if st := tm.Destroy(); st != osal.StatusOk {
		t.Fatalf("destroy = %v", st)
	}
	if svc.Count() != 0 {
		t.Fatalf("count after destroy = %d, want 0", svc.Count())
	}
	if st := tm.Start(); st != osal.StatusNotInit {
		t.Fatalf("start after destroy = %v, want not init", st)
	}
	if st := tm.Destroy(); st != osal.StatusNotInit {
		t.Fatalf("double destroy = %v, want not init", st)
	}
}

func TestCreateValidation(t *testing.T) {
	_, svc := newTestService(t)
	if _, err := svc.Create("bad", 0, false, func() {}); err == nil {
		t.Fatal("zero period accepted")
	}
	if _, err := svc.Create("bad", 5, false, nil); err == nil {
		t.Fatal("nil callback accepted")
	}
}

func TestRunPumpsTicks(t *testing.T) {
	_, svc := newTestService(t)

	var fired atomic.Uint32
	tm, _ := svc.Create("pumped", 3, true, func() { fired.Add(1) })
	tm.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	deadline := time.After(2 * time.Second)
	for fired.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("fired %d times, want at least 2", fired.Load())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSetCallbackReplaces(t *testing.T) {
	_, svc := newTestService(t)

	var first, second atomic.Uint32
	tm, _ := svc.Create("swapped", 10, true, func() { first.Add(1) })
	tm.Start()

	svc.Advance(10)
	if st := tm.SetCallback(func() { second.Add(1) }); !st.Ok() {
		t.Fatalf("SetCallback = %v", st)
	}
	if st := tm.SetCallback(nil); st != osal.StatusNullPointer {
		t.Fatalf("nil callback = %v, want null_pointer", st)
	}
	svc.Advance(10)

	if first.Load() != 1 || second.Load() != 1 {
		t.Fatalf("fires = %d/%d, want 1/1", first.Load(), second.Load())
	}
}
