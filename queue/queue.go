package queue

import (
	"context"
	"math"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/mem"
)

// Mode selects the full-queue policy.
type Mode uint8

const (
	// Normal rejects sends to a full queue with StatusFull (or blocks).
	Normal Mode = iota

	// Overwrite evicts the oldest item to admit a send to a full queue.
	Overwrite
)

// Queue is a FIFO of fixed-size items backed by a pool allocation.
type Queue struct {
	region   osal.Region
	notFull  osal.WaitQueue
	notEmpty osal.WaitQueue
	pool     *mem.Pool
	buf      uint32 // ring storage offset in the pool
	itemSize uint32
	capacity uint32
	head     uint32
	count    uint32
	mode     Mode
	closed   bool
}

// New creates a queue of capacity items of itemSize bytes, allocating the
// ring out of the given pool.
func New(be osal.Backend, pool *mem.Pool, itemSize, capacity uint32, mode Mode) (*Queue, error) {
	if itemSize == 0 || capacity == 0 {
		return nil, osal.Errorf(osal.StatusInvalidParam, "queue.New", "item size %d, capacity %d", itemSize, capacity)
	}
	// The ring size must fit the pool's 32-bit offsets; a wrapped product
	// would under-allocate storage that slot() still indexes in full.
	if uint64(itemSize)*uint64(capacity) > math.MaxUint32 {
		return nil, osal.Errorf(osal.StatusInvalidParam, "queue.New", "ring of %d x %d bytes overflows", capacity, itemSize)
	}
	off, st := pool.Alloc(itemSize * capacity)
	if !st.Ok() {
		return nil, osal.Errorf(st, "queue.New", "ring of %d bytes", itemSize*capacity)
	}
	return &Queue{
		region:   be.NewRegion(),
		notFull:  be.NewWaitQueue(),
		notEmpty: be.NewWaitQueue(),
		pool:     pool,
		buf:      off,
		itemSize: itemSize,
		capacity: capacity,
		mode:     mode,
	}, nil
}

// Send copies item into the queue, blocking up to timeout ticks while full.
// In Overwrite mode a full queue drops its oldest item instead of blocking.
// NoWait on a full Normal queue returns StatusFull; an expired positive
// timeout returns StatusTimeout.
func (q *Queue) Send(ctx context.Context, item []byte, timeout osal.Timeout) osal.Status {
	if uint32(len(item)) != q.itemSize {
		return osal.StatusInvalidParam
	}
	if osal.InISR(ctx) && timeout != osal.NoWait {
		return osal.StatusIsr
	}

	q.region.Enter()
	defer q.region.Exit()
	for q.count == q.capacity {
		if q.closed {
			return osal.StatusNotInit
		}
		if q.mode == Overwrite {
			q.head = (q.head + 1) % q.capacity
			q.count--
			break
		}
		if timeout == osal.NoWait {
			return osal.StatusFull
		}
		if !q.notFull.Wait(ctx, q.region, timeout) {
			return osal.StatusTimeout
		}
	}
	if q.closed {
		return osal.StatusNotInit
	}

	if st := q.pool.Write(q.slot(q.count), item); !st.Ok() {
		return st
	}
	q.count++
	q.notEmpty.WakeOne()
	return osal.StatusOk
}

// Receive copies the oldest item into buf, blocking up to timeout ticks
// while empty. NoWait on an empty queue returns StatusEmpty; an expired
// positive timeout returns StatusTimeout.
func (q *Queue) Receive(ctx context.Context, buf []byte, timeout osal.Timeout) osal.Status {
	if uint32(len(buf)) != q.itemSize {
		return osal.StatusInvalidParam
	}
	if osal.InISR(ctx) && timeout != osal.NoWait {
		return osal.StatusIsr
	}

	q.region.Enter()
	defer q.region.Exit()
	for q.count == 0 {
		if q.closed {
			return osal.StatusNotInit
		}
		if timeout == osal.NoWait {
			return osal.StatusEmpty
		}
		if !q.notEmpty.Wait(ctx, q.region, timeout) {
			return osal.StatusTimeout
		}
	}
	if q.closed {
		return osal.StatusNotInit
	}

	if st := q.pool.ReadInto(buf, q.slot(0)); !st.Ok() {
		return st
	}
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.notFull.WakeOne()
	return osal.StatusOk
}

// Peek copies the oldest item into buf without removing it.
func (q *Queue) Peek(ctx context.Context, buf []byte) osal.Status {
	if uint32(len(buf)) != q.itemSize {
		return osal.StatusInvalidParam
	}

	q.region.Enter()
	defer q.region.Exit()
	if q.closed {
		return osal.StatusNotInit
	}
	if q.count == 0 {
		return osal.StatusEmpty
	}
	return q.pool.ReadInto(buf, q.slot(0))
}

// Count returns the number of queued items.
func (q *Queue) Count() uint32 {
	q.region.Enter()
	defer q.region.Exit()
	return q.count
}

// Spaces returns the number of free slots.
func (q *Queue) Spaces() uint32 {
	q.region.Enter()
	defer q.region.Exit()
	return q.capacity - q.count
}

// Mode returns the current full-queue policy.
func (q *Queue) Mode() Mode {
	q.region.Enter()
	defer q.region.Exit()
	return q.mode
}

// SetMode changes the full-queue policy. Switching to Overwrite readies
// blocked senders, since a full queue no longer blocks them.
func (q *Queue) SetMode(mode Mode) osal.Status {
	if mode != Normal && mode != Overwrite {
		return osal.StatusInvalidParam
	}
	q.region.Enter()
	defer q.region.Exit()
	if q.closed {
		return osal.StatusNotInit
	}
	q.mode = mode
	if mode == Overwrite {
		q.notFull.WakeAll()
	}
	return osal.StatusOk
}

// Capacity returns the slot count given at creation.
func (q *Queue) Capacity() uint32 { return q.capacity }

// ItemSize returns the slot size in bytes.
func (q *Queue) ItemSize() uint32 { return q.itemSize }

// Reset discards all queued items and readies blocked senders.
func (q *Queue) Reset(ctx context.Context) osal.Status {
	q.region.Enter()
	defer q.region.Exit()
	if q.closed {
		return osal.StatusNotInit
	}
	q.head = 0
	q.count = 0
	q.notFull.WakeAll()
	return osal.StatusOk
}

// Destroy frees the ring storage and fails out every blocked sender and
// receiver with StatusNotInit. The queue is unusable afterwards.
func (q *Queue) Destroy(ctx context.Context) osal.Status {
	q.region.Enter()
	defer q.region.Exit()
	if q.closed {
		return osal.StatusNotInit
	}
	q.closed = true
	st := q.pool.Free(q.buf)
	q.notFull.WakeAll()
	q.notEmpty.WakeAll()
	return st
}

func (q *Queue) slot(i uint32) uint32 {
	return q.buf + ((q.head+i)%q.capacity)*q.itemSize
}
