package diag

import (
	"strings"
	"testing"
	"time"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/backend/native"
	"github.com/embedkit/osal/system"
)

func newTestSystem(t *testing.T) *system.System {
	t.Helper()
	be := native.NewWithInterval(time.Millisecond)
	s, err := system.New(osal.DefaultConfig(), be)
	if err != nil {
		t.Fatalf("system.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestReportReflectsResources(t *testing.T) {
	s := newTestSystem(t)
	c := NewCollector(s)

	s.CreateMutex()
	s.CreateMutex()
	sh, _ := s.CreateSemaphore(0, 1)
	s.DestroySemaphore(sh)
	s.Alloc(128)

	r := c.Report()
	if r.Backend != "native" {
		t.Fatalf("backend = %q, want native", r.Backend)
	}
	if len(r.Resources) != int(osal.KindCount) {
		t.Fatalf("resource rows = %d, want %d", len(r.Resources), osal.KindCount)
	}

	byKind := map[osal.Kind]Resource{}
	for _, res := range r.Resources {
		byKind[res.Kind] = res
	}
	if m := byKind[osal.KindMutex]; m.Count != 2 || m.Watermark != 2 || m.Cap != 64 {
		t.Fatalf("mutex row = %+v", m)
	}
	if sem := byKind[osal.KindSemaphore]; sem.Count != 0 || sem.Watermark != 1 {
		t.Fatalf("semaphore row = %+v", sem)
	}
	if r.LiveHandles != 2 {
		t.Fatalf("live handles = %d, want 2", r.LiveHandles)
	}
	if r.PoolAllocations != 1 || !r.PoolIntact {
		t.Fatalf("pool allocations/intact = %d/%v, want 1/true", r.PoolAllocations, r.PoolIntact)
	}
}

func TestReportTimers(t *testing.T) {
	s := newTestSystem(t)
	c := NewCollector(s)

	th, _ := s.CreateTimer("armed", 10, true, func() {})
	s.CreateTimer("stopped", 10, false, func() {})
	s.StartTimer(th)

	r := c.Report()
	if r.TimersTotal != 2 || r.TimersActive != 1 {
		t.Fatalf("timers = %d active of %d, want 1 of 2", r.TimersActive, r.TimersTotal)
	}
}

func TestReportString(t *testing.T) {
	s := newTestSystem(t)
	c := NewCollector(s)
	s.CreateMutex()

	out := c.Report().String()
	for _, want := range []string{"backend native", "mutex", "watermark", "pool"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}
