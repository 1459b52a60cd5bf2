package mem

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/stats"
)

const (
	guardHead  = 0xF00DCAFE
	guardTail  = 0xDEADC0DE
	guardFreed = 0xFEE1DEAD

	// Block layout, offsets relative to the user offset:
	//   [-24] guardHead
	//   [-20] user size
	//   [-16] raw block offset
	//   [-12] raw block total size
	//   [ -8] flags
	//   [ -4] reserved
	//   [  0] user data ...
	//   [+sz] guardTail
	headerSize = 24
	footerSize = 4

	flagAligned = 1 << 0

	// Free ranges and block totals stay 8-byte granular so plain
	// allocations come out 8-aligned without padding.
	grain = 8

	// Remainders smaller than this are absorbed into the block instead of
	// split into a free fragment.
	minFragment = 32
)

type freeRange struct {
	off  uint32
	size uint32
}

// Pool is a guard-banded allocator over one contiguous byte pool. Blocks
// are addressed by pool-relative offsets; offset 0 is never returned.
type Pool struct {
	mu       sync.Mutex
	buf      []byte
	ranges   []freeRange // sorted by offset
	live     map[uint32]uint32
	acct     *stats.Accounting
	count    atomic.Int32
	tracking bool
}

// New creates a pool of the given size. acct receives fault reports on
// corruption and may be nil. tracking enables the live-block map behind
// CheckIntegrity and double-free detection.
func New(size uint32, acct *stats.Accounting, tracking bool) (*Pool, osal.Status) {
	if size < headerSize+footerSize+grain {
		return nil, osal.StatusInvalidParam
	}
	size &^= grain - 1
	p := &Pool{
		buf:  make([]byte, size),
		acct: acct,
		// Offset 0 is reserved so a zero offset always means "no block".
		ranges:   []freeRange{{off: grain, size: size - grain}},
		tracking: tracking,
	}
	if tracking {
		p.live = make(map[uint32]uint32)
	}
	return p, osal.StatusOk
}

// Size returns the pool size in bytes.
func (p *Pool) Size() uint32 { return uint32(len(p.buf)) }

// Alloc allocates size bytes and returns the block's offset. The offset is
// 8-aligned. Returns StatusNoMemory when no free range fits.
func (p *Pool) Alloc(size uint32) (uint32, osal.Status) {
	return p.alloc(size, grain, 0)
}

// AllocAligned allocates size bytes at an offset divisible by align, which
// must be a power of two. The block must be released with FreeAligned.
func (p *Pool) AllocAligned(size, align uint32) (uint32, osal.Status) {
	if align == 0 || align&(align-1) != 0 {
		return 0, osal.StatusInvalidParam
	}
	if align < grain {
		align = grain
	}
	return p.alloc(size, align, flagAligned)
}

func (p *Pool) alloc(size, align, flags uint32) (uint32, osal.Status) {
	if size == 0 {
		return 0, osal.StatusInvalidParam
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, r := range p.ranges {
		user := alignUp(r.off+headerSize, align)
		end := user + size + footerSize
		if end < user || end > r.off+r.size {
			continue
		}
		total := alignUp(end-r.off, grain)
		if total > r.size {
			continue
		}

		if r.size-total >= minFragment {
			p.ranges[i] = freeRange{off: r.off + total, size: r.size - total}
		} else {
			total = r.size
			p.ranges = append(p.ranges[:i], p.ranges[i+1:]...)
		}

		p.writeHeader(user, size, r.off, total, flags)
		if p.tracking {
			p.live[user] = total
		}
		p.count.Add(1)
		return user, osal.StatusOk
	}
	return 0, osal.StatusNoMemory
}

// Free releases a block obtained from Alloc. Guard words are verified
// first: a poisoned guard reports StatusInvalidParam (stale free), any
// other mismatch raises a fault and reports StatusCorrupted. Blocks from
// AllocAligned are rejected with StatusInvalidParam.
func (p *Pool) Free(off uint32) osal.Status {
	return p.free(off, 0)
}

// FreeAligned releases a block obtained from AllocAligned.
func (p *Pool) FreeAligned(off uint32) osal.Status {
	return p.free(off, flagAligned)
}

func (p *Pool) free(off uint32, wantFlags uint32) osal.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	if off < headerSize || off >= uint32(len(p.buf)) {
		return osal.StatusInvalidParam
	}
	if p.tracking {
		if _, ok := p.live[off]; !ok {
			return osal.StatusInvalidParam
		}
	}

	head := p.u32(off - 24)
	if head == guardFreed {
		return osal.StatusInvalidParam
	}
	if head != guardHead {
		return p.corrupted()
	}

	size := p.u32(off - 20)
	rawOff := p.u32(off - 16)
	total := p.u32(off - 12)
	flags := p.u32(off - 8)

	if flags&flagAligned != wantFlags {
		return osal.StatusInvalidParam
	}
	if rawOff >= off || rawOff+total > uint32(len(p.buf)) || off+size+footerSize > rawOff+total {
		return p.corrupted()
	}
	if p.u32(off+size) != guardTail {
		return p.corrupted()
	}

	p.putU32(off-24, guardFreed)
	if p.tracking {
		delete(p.live, off)
	}
	p.count.Add(-1)
	p.release(rawOff, total)
	return osal.StatusOk
}

// AllocationCount returns allocations minus frees. Lock-free, ISR-safe.
func (p *Pool) AllocationCount() int {
	return int(p.count.Load())
}

// CheckIntegrity walks every live block and verifies both guard words. On
// the first mismatch it raises a fault and returns StatusCorrupted. Without
// tracking there is no block map to walk and the check trivially passes.
func (p *Pool) CheckIntegrity() osal.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	for off := range p.live {
		if p.u32(off-24) != guardHead {
			return p.corrupted()
		}
		size := p.u32(off - 20)
		if off+size+footerSize > uint32(len(p.buf)) || p.u32(off+size) != guardTail {
			return p.corrupted()
		}
	}
	return osal.StatusOk
}

// Read copies n bytes out of a block. The range must lie inside the pool.
func (p *Pool) Read(off, n uint32) ([]byte, osal.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if off+n < off || off+n > uint32(len(p.buf)) {
		return nil, osal.StatusInvalidParam
	}
	out := make([]byte, n)
	copy(out, p.buf[off:off+n])
	return out, osal.StatusOk
}

// ReadInto copies n bytes out of a block into dst, avoiding allocation.
func (p *Pool) ReadInto(dst []byte, off uint32) osal.Status {
	n := uint32(len(dst))
	p.mu.Lock()
	defer p.mu.Unlock()
	if off+n < off || off+n > uint32(len(p.buf)) {
		return osal.StatusInvalidParam
	}
	copy(dst, p.buf[off:off+n])
	return osal.StatusOk
}

// Write copies data into a block.
func (p *Pool) Write(off uint32, data []byte) osal.Status {
	n := uint32(len(data))
	p.mu.Lock()
	defer p.mu.Unlock()
	if off+n < off || off+n > uint32(len(p.buf)) {
		return osal.StatusInvalidParam
	}
	copy(p.buf[off:off+n], data)
	return osal.StatusOk
}

func (p *Pool) corrupted() osal.Status {
	if p.acct != nil {
		p.acct.Fault(osal.StatusCorrupted)
	}
	return osal.StatusCorrupted
}

func (p *Pool) writeHeader(user, size, rawOff, total, flags uint32) {
	p.putU32(user-24, guardHead)
	p.putU32(user-20, size)
	p.putU32(user-16, rawOff)
	p.putU32(user-12, total)
	p.putU32(user-8, flags)
	p.putU32(user-4, 0)
	p.putU32(user+size, guardTail)
}

// release inserts a raw range back into the sorted free list, coalescing
// with adjacent ranges.
func (p *Pool) release(off, size uint32) {
	i := 0
	for i < len(p.ranges) && p.ranges[i].off < off {
		i++
	}

	if i > 0 && p.ranges[i-1].off+p.ranges[i-1].size == off {
		p.ranges[i-1].size += size
		if i < len(p.ranges) && p.ranges[i-1].off+p.ranges[i-1].size == p.ranges[i].off {
			p.ranges[i-1].size += p.ranges[i].size
			p.ranges = append(p.ranges[:i], p.ranges[i+1:]...)
		}
		return
	}
	if i < len(p.ranges) && off+size == p.ranges[i].off {
		p.ranges[i].off = off
		p.ranges[i].size += size
		return
	}

	p.ranges = append(p.ranges, freeRange{})
	copy(p.ranges[i+1:], p.ranges[i:])
	p.ranges[i] = freeRange{off: off, size: size}
}

func (p *Pool) u32(off uint32) uint32 {
	return binary.LittleEndian.Uint32(p.buf[off:])
}

func (p *Pool) putU32(off, v uint32) {
	binary.LittleEndian.PutUint32(p.buf[off:], v)
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}
