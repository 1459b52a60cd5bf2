package mem

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/stats"
)

func newTestPool(t *testing.T, size uint32) *Pool {
	t.Helper()
	p, st := New(size, stats.New(true), true)
	if st != osal.StatusOk {
		t.Fatalf("New = %v", st)
	}
	return p
}

func TestAllocFreeRoundTrip(t *testing.T) {
	p := newTestPool(t, 4096)

	off, st := p.Alloc(64)
	if st != osal.StatusOk {
		t.Fatalf("Alloc = %v", st)
	}
	if off == 0 {
		t.Fatal("offset 0 returned")
	}
	if off%8 != 0 {
		t.Fatalf("offset %d not 8-aligned", off)
	}
	if p.AllocationCount() != 1 {
		t.Fatalf("count = %d, want 1", p.AllocationCount())
	}

	data := bytes.Repeat([]byte{0xAB}, 64)
	if st := p.Write(off, data); st != osal.StatusOk {
		t.Fatalf("Write = %v", st)
	}
	got, st := p.Read(off, 64)
	if st != osal.StatusOk || !bytes.Equal(got, data) {
		t.Fatalf("Read = %v, %v", got, st)
	}

	if st := p.Free(off); st != osal.StatusOk {
		t.Fatalf("Free = %v", st)
	}
	if p.AllocationCount() != 0 {
		t.Fatalf("count after free = %d, want 0", p.AllocationCount())
	}
}

func TestAllocationCountLaw(t *testing.T) {
	p := newTestPool(t, 32*1024)
	rng := rand.New(rand.NewSource(42))

	var live []uint32
	allocs, frees := 0, 0
	for i := 0; i < 400; i++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			off, st := p.Alloc(uint32(1 + rng.Intn(128)))
			if st != osal.StatusOk {
				continue
			}
			live = append(live, off)
			allocs++
		} else {
			idx := rng.Intn(len(live))
			if st := p.Free(live[idx]); st != osal.StatusOk {
				t.Fatalf("step %d: Free = %v", i, st)
			}
			live = append(live[:idx], live[idx+1:]...)
			frees++
		}
		if p.AllocationCount() != allocs-frees {
			t.Fatalf("step %d: count = %d, want %d", i, p.AllocationCount(), allocs-frees)
		}
	}
	if st := p.CheckIntegrity(); st != osal.StatusOk {
		t.Fatalf("CheckIntegrity = %v", st)
	}
	for _, off := range live {
		if st := p.Free(off); st != osal.StatusOk {
			t.Fatalf("final Free = %v", st)
		}
	}
	if p.AllocationCount() != 0 {
		t.Fatalf("final count = %d", p.AllocationCount())
	}
}

func TestCoalescingReusesSpace(t *testing.T) {
	p := newTestPool(t, 2048)

	// Fill most of the pool, free everything, then a large allocation must
	// fit again. Fails if freed neighbors are not merged.
	var offs []uint32
	for {
		off, st := p.Alloc(128)
		if st != osal.StatusOk {
			break
		}
		offs = append(offs, off)
	}
	if len(offs) < 2 {
		t.Fatalf("only %d blocks fit", len(offs))
	}
	for _, off := range offs {
		p.Free(off)
	}

	if _, st := p.Alloc(1024); st != osal.StatusOk {
		t.Fatalf("large Alloc after frees = %v", st)
	}
}

func TestAlignedAlloc(t *testing.T) {
	p := newTestPool(t, 8192)

	for _, align := range []uint32{8, 16, 64, 256} {
		off, st := p.AllocAligned(40, align)
		if st != osal.StatusOk {
			t.Fatalf("AllocAligned(align=%d) = %v", align, st)
		}
		if off%align != 0 {
			t.Fatalf("offset %d not divisible by %d", off, align)
		}
		if st := p.FreeAligned(off); st != osal.StatusOk {
			t.Fatalf("FreeAligned = %v", st)
		}
	}

	if _, st := p.AllocAligned(8, 3); st != osal.StatusInvalidParam {
		t.Fatalf("non-power-of-two align = %v, want invalid_param", st)
	}
}

func TestFreeFlavorMismatch(t *testing.T) {
	p := newTestPool(t, 4096)

	plain, _ := p.Alloc(16)
	aligned, _ := p.AllocAligned(16, 64)

	if st := p.FreeAligned(plain); st != osal.StatusInvalidParam {
		t.Fatalf("FreeAligned(plain) = %v, want invalid_param", st)
	}
	if st := p.Free(aligned); st != osal.StatusInvalidParam {
		t.Fatalf("Free(aligned) = %v, want invalid_param", st)
	}
	// The right flavor still works; the rejection had no side effect.
	if st := p.Free(plain); st != osal.StatusOk {
		t.Fatalf("Free(plain) = %v", st)
	}
	if st := p.FreeAligned(aligned); st != osal.StatusOk {
		t.Fatalf("FreeAligned(aligned) = %v", st)
	}
}

func TestDoubleFreeDetected(t *testing.T) {
	p := newTestPool(t, 4096)

	off, _ := p.Alloc(32)
	if st := p.Free(off); st != osal.StatusOk {
		t.Fatalf("Free = %v", st)
	}
	if st := p.Free(off); st != osal.StatusInvalidParam {
		t.Fatalf("double Free = %v, want invalid_param", st)
	}
}

func TestGuardCorruptionFiresCallback(t *testing.T) {
	acct := stats.New(true)
	var faults []osal.Status
	acct.SetErrorCallback(func(s osal.Status, file string, line int) {
		faults = append(faults, s)
	})
	p, st := New(4096, acct, true)
	if st != osal.StatusOk {
		t.Fatalf("New = %v", st)
	}

	off, _ := p.Alloc(32)
	// Overrun: stomp the tail guard.
	p.Write(off+32, []byte{1, 2, 3, 4})

	if st := p.CheckIntegrity(); st != osal.StatusCorrupted {
		t.Fatalf("CheckIntegrity = %v, want corrupted", st)
	}
	if st := p.Free(off); st != osal.StatusCorrupted {
		t.Fatalf("Free of corrupted block = %v, want corrupted", st)
	}
	if len(faults) != 2 || faults[0] != osal.StatusCorrupted {
		t.Fatalf("faults = %v, want two corrupted reports", faults)
	}
}

func TestExhaustion(t *testing.T) {
	p := newTestPool(t, 1024)

	if _, st := p.Alloc(4096); st != osal.StatusNoMemory {
		t.Fatalf("oversized Alloc = %v, want no_memory", st)
	}
	if _, st := p.Alloc(0); st != osal.StatusInvalidParam {
		t.Fatalf("zero Alloc = %v, want invalid_param", st)
	}
}

func TestIntegrityAfterValidSequences(t *testing.T) {
	p := newTestPool(t, 16*1024)

	a, _ := p.Alloc(100)
	b, _ := p.AllocAligned(200, 128)
	c, _ := p.Alloc(300)
	p.Free(a)
	d, _ := p.Alloc(50)

	if st := p.CheckIntegrity(); st != osal.StatusOk {
		t.Fatalf("CheckIntegrity = %v", st)
	}
	for _, st := range []osal.Status{p.FreeAligned(b), p.Free(c), p.Free(d)} {
		if st != osal.StatusOk {
			t.Fatalf("Free = %v", st)
		}
	}
	if st := p.CheckIntegrity(); st != osal.StatusOk {
		t.Fatalf("final CheckIntegrity = %v", st)
	}
}

func BenchmarkAllocFree(b *testing.B) {
	p, _ := New(64*1024, nil, true)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		off, _ := p.Alloc(64)
		p.Free(off)
	}
}
