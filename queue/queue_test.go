package queue

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/backend/native"
	"github.com/embedkit/osal/mem"
)

func newTestQueue(t *testing.T, capacity uint32, mode Mode) (*native.Backend, *mem.Pool, *Queue) {
	t.Helper()
	b := native.NewWithInterval(time.Millisecond)
	t.Cleanup(b.Shutdown)
	pool, st := mem.New(4096, nil, true)
	if !st.Ok() {
		t.Fatalf("mem.New: %v", st)
	}
	q, err := New(b, pool, 4, capacity, mode)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	return b, pool, q
}

func u32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func TestSendReceiveOrder(t *testing.T) {
	b, _, q := newTestQueue(t, 4, Normal)
	ctx, _ := b.Adopt(context.Background(), "main", 5)

	for i := uint32(1); i <= 4; i++ {
		if st := q.Send(ctx, u32(i), osal.NoWait); st != osal.StatusOk {
			t.Fatalf("send %d = %v", i, st)
		}
	}
	if q.Count() != 4 || q.Spaces() != 0 {
		t.Fatalf("count/spaces = %d/%d, want 4/0", q.Count(), q.Spaces())
	}

	buf := make([]byte, 4)
	for i := uint32(1); i <= 4; i++ {
		if st := q.Receive(ctx, buf, osal.NoWait); st != osal.StatusOk {
			t.Fatalf("receive %d = %v", i, st)
		}
		if got := binary.LittleEndian.Uint32(buf); got != i {
			t.Fatalf("received %d, want %d", got, i)
		}
	}
	if st := q.Receive(ctx, buf, osal.NoWait); st != osal.StatusEmpty {
		t.Fatalf("receive on empty = %v, want empty", st)
	}
}

func TestFullPolicy(t *testing.T) {
	b, _, q := newTestQueue(t, 4, Normal)
	ctx, _ := b.Adopt(context.Background(), "main", 5)

	for i := uint32(1); i <= 4; i++ {
		q.Send(ctx, u32(i), osal.NoWait)
	}
	if st := q.Send(ctx, u32(5), osal.NoWait); st != osal.StatusFull {
		t.Fatalf("5th immediate send = %v, want full", st)
	}
	if st := q.Send(ctx, u32(5), 3); st != osal.StatusTimeout {
		t.Fatalf("5th waiting send = %v, want timeout", st)
	}
}

func TestOverwriteEvictsOldest(t *testing.T) {
	b, _, q := newTestQueue(t, 4, Overwrite)
	ctx, _ := b.Adopt(context.Background(), "main", 5)

	for i := uint32(1); i <= 4; i++ {
		q.Send(ctx, u32(i), osal.NoWait)
	}
	if st := q.Send(ctx, u32(5), osal.NoWait); st != osal.StatusOk {
		t.Fatalf("send to full overwrite queue = %v", st)
	}
	if q.Count() != 4 {
		t.Fatalf("count = %d, want 4", q.Count())
	}

	buf := make([]byte, 4)
	for _, want := range []uint32{2, 3, 4, 5} {
		if st := q.Receive(ctx, buf, osal.NoWait); st != osal.StatusOk {
			t.Fatalf("receive = %v", st)
		}
		if got := binary.LittleEndian.Uint32(buf); got != want {
			t.Fatalf("received %d, want %d", got, want)
		}
	}
}

func TestPeekDoesNotPop(t *testing.T) {
	b, _, q := newTestQueue(t, 4, Normal)
	ctx, _ := b.Adopt(context.Background(), "main", 5)

	buf := make([]byte, 4)
	if st := q.Peek(ctx, buf); st != osal.StatusEmpty {
		t.Fatalf("peek on empty = %v, want empty", st)
	}

	q.Send(ctx, u32(7), osal.NoWait)
	q.Peek(ctx, buf)
	q.Peek(ctx, buf)
	if got := binary.LittleEndian.Uint32(buf); got != 7 {
		t.Fatalf("peeked %d, want 7", got)
	}
	if q.Count() != 1 {
		t.Fatalf("peek consumed the item, count = %d", q.Count())
	}
}

func TestBlockedReceiverWokenBySend(t *testing.T) {
	b, _, q := newTestQueue(t, 4, Normal)
	ctx, _ := b.Adopt(context.Background(), "main", 5)

	got := make(chan uint32, 1)
	b.Spawn("receiver", 5, func(ctx context.Context) {
		buf := make([]byte, 4)
		if st := q.Receive(ctx, buf, osal.WaitForever); st != osal.StatusOk {
			t.Errorf("receive = %v", st)
			return
		}
		got <- binary.LittleEndian.Uint32(buf)
	})

	time.Sleep(5 * time.Millisecond)
	if st := q.Send(ctx, u32(42), osal.NoWait); st != osal.StatusOk {
		t.Fatalf("send = %v", st)
	}
	select {
	case v := <-got:
		if v != 42 {
			t.Fatalf("received %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("receiver never woke")
	}
}

func TestBadItemSize(t *testing.T) {
	b, _, q := newTestQueue(t, 4, Normal)
	ctx, _ := b.Adopt(context.Background(), "main", 5)

	if st := q.Send(ctx, []byte{1, 2}, osal.NoWait); st != osal.StatusInvalidParam {
		t.Fatalf("short send = %v, want invalid param", st)
	}
	if st := q.Receive(ctx, make([]byte, 8), osal.NoWait); st != osal.StatusInvalidParam {
		t.Fatalf("oversized receive = %v, want invalid param", st)
	}
}

func TestRingSizeOverflowRejected(t *testing.T) {
	b := native.NewWithInterval(time.Millisecond)
	t.Cleanup(b.Shutdown)
	pool, st := mem.New(4096, nil, true)
	if !st.Ok() {
		t.Fatalf("mem.New: %v", st)
	}

	// 65536 * 65537 wraps to 65536 in uint32; the queue must reject the
	// request instead of allocating a truncated ring.
	if _, err := New(b, pool, 1<<16, (1<<16)+1, Normal); osal.StatusOf(err) != osal.StatusInvalidParam {
		t.Fatalf("overflowing ring size: err = %v, want invalid param", err)
	}
	if n := pool.AllocationCount(); n != 0 {
		t.Fatalf("rejected queue left %d allocations behind", n)
	}
}

func TestReset(t *testing.T) {
	b, _, q := newTestQueue(t, 4, Normal)
	ctx, _ := b.Adopt(context.Background(), "main", 5)

	for i := uint32(1); i <= 4; i++ {
		q.Send(ctx, u32(i), osal.NoWait)
	}
	if st := q.Reset(ctx); st != osal.StatusOk {
		t.Fatalf("reset = %v", st)
	}
	if q.Count() != 0 {
		t.Fatalf("count after reset = %d", q.Count())
	}
	if st := q.Send(ctx, u32(9), osal.NoWait); st != osal.StatusOk {
		t.Fatalf("send after reset = %v", st)
	}
}

func TestDestroyReleasesStorage(t *testing.T) {
	b, pool, q := newTestQueue(t, 4, Normal)
	ctx, _ := b.Adopt(context.Background(), "main", 5)

	before := pool.AllocationCount()
	if st := q.Destroy(ctx); st != osal.StatusOk {
		t.Fatalf("destroy = %v", st)
	}
	if pool.AllocationCount() != before-1 {
		t.Fatalf("ring not freed, allocations = %d", pool.AllocationCount())
	}
	if st := q.Send(ctx, u32(1), osal.NoWait); st != osal.StatusNotInit {
		t.Fatalf("send after destroy = %v, want not init", st)
	}
	if st := q.Destroy(ctx); st != osal.StatusNotInit {
		t.Fatalf("double destroy = %v, want not init", st)
	}
}

func TestISRSend(t *testing.T) {
	b, _, q := newTestQueue(t, 2, Normal)

	b.DispatchISR(func(ctx context.Context) {
		if st := q.Send(ctx, u32(1), osal.NoWait); st != osal.StatusOk {
			t.Errorf("ISR send = %v", st)
		}
		if st := q.Send(ctx, u32(2), 10); st != osal.StatusIsr {
			t.Errorf("blocking ISR send = %v, want isr", st)
		}
		buf := make([]byte, 4)
		if st := q.Receive(ctx, buf, osal.NoWait); st != osal.StatusOk {
			t.Errorf("ISR receive = %v", st)
		}
	})
}

func TestSetModeSwitchesPolicy(t *testing.T) {
	b, _, q := newTestQueue(t, 2, Normal)
	ctx, _ := b.Adopt(context.Background(), "switcher", 5)

	q.Send(ctx, u32(1), osal.NoWait)
	q.Send(ctx, u32(2), osal.NoWait)
	if st := q.Send(ctx, u32(3), osal.NoWait); st != osal.StatusFull {
		t.Fatalf("full normal send = %v, want full", st)
	}

	if st := q.SetMode(Overwrite); !st.Ok() {
		t.Fatalf("SetMode = %v", st)
	}
	if q.Mode() != Overwrite {
		t.Fatalf("mode = %v, want overwrite", q.Mode())
	}
	if st := q.Send(ctx, u32(3), osal.NoWait); st != osal.StatusOk {
		t.Fatalf("overwrite send = %v", st)
	}

	buf := make([]byte, 4)
	q.Receive(ctx, buf, osal.NoWait)
	if got := binary.LittleEndian.Uint32(buf); got != 2 {
		t.Fatalf("oldest after overwrite = %d, want 2", got)
	}

	if st := q.SetMode(Mode(9)); st != osal.StatusInvalidParam {
		t.Fatalf("bad mode = %v, want invalid_param", st)
	}
}

func BenchmarkSendReceive(b *testing.B) {
	be := native.NewWithInterval(time.Millisecond)
	defer be.Shutdown()
	pool, _ := mem.New(4096, nil, false)
	q, err := New(be, pool, 4, 64, Normal)
	if err != nil {
		b.Fatalf("queue.New: %v", err)
	}
	ctx, _ := be.Adopt(context.Background(), "bench", 5)
	item := u32(42)
	buf := make([]byte, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Send(ctx, item, osal.NoWait)
		q.Receive(ctx, buf, osal.NoWait)
	}
}
