package stats

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/handle"
)

// Record is one kind's accounting state.
type Record struct {
	// Count is the number of currently live instances.
	Count uint32

	// Watermark is the historical maximum of Count since the last reset.
	Watermark uint32
}

// Snapshot is a point-in-time copy of every kind's record, returned by
// value.
type Snapshot struct {
	Kinds [osal.KindCount]Record
}

// For returns the record for one kind.
func (s Snapshot) For(k osal.Kind) Record {
	if !k.Valid() {
		return Record{}
	}
	return s.Kinds[k]
}

// Callback is the fault handler signature: the detected status plus the
// source location that raised it.
type Callback func(status osal.Status, file string, line int)

// Accounting tracks per-kind counts and watermarks. All updates are atomic
// with respect to concurrent callers and ISR context.
type Accounting struct {
	counts  [osal.KindCount]atomic.Uint32
	marks   [osal.KindCount]atomic.Uint32
	fault   atomic.Pointer[Callback]
	enabled bool
}

// New creates an accounting instance. When enabled is false the counters
// stay zero and Snapshot returns empty records; the fault callback still
// works.
func New(enabled bool) *Accounting {
	return &Accounting{enabled: enabled}
}

// OnCreate records a successful create of one kind.
func (a *Accounting) OnCreate(kind osal.Kind) {
	if !a.enabled || !kind.Valid() {
		return
	}
	c := a.counts[kind].Add(1)
	for {
		m := a.marks[kind].Load()
		if m >= c || a.marks[kind].CompareAndSwap(m, c) {
			return
		}
	}
}

// OnDestroy records a successful destroy of one kind.
func (a *Accounting) OnDestroy(kind osal.Kind) {
	if !a.enabled || !kind.Valid() {
		return
	}
	a.counts[kind].Add(^uint32(0))
}

// OnHandleEvent implements handle.Observer, mapping registry lifecycle
// events onto create/destroy accounting.
func (a *Accounting) OnHandleEvent(e handle.Event) {
	switch e.Type {
	case handle.EventRegistered:
		a.OnCreate(e.Kind)
	case handle.EventInvalidated:
		a.OnDestroy(e.Kind)
	}
}

// Snapshot returns a copy of every record. It never blocks and performs no
// heap allocation, so it is safe from ISR context.
func (a *Accounting) Snapshot() Snapshot {
	var s Snapshot
	for k := range s.Kinds {
		s.Kinds[k] = Record{
			Count:     a.counts[k].Load(),
			Watermark: a.marks[k].Load(),
		}
	}
	return s
}

// ResetWatermarks sets every watermark to the corresponding current count.
// A watermark is never set below the live count, so the reset is idempotent
// and safe to repeat.
func (a *Accounting) ResetWatermarks() {
	for k := range a.marks {
		for {
			c := a.counts[k].Load()
			m := a.marks[k].Load()
			if m == c || a.marks[k].CompareAndSwap(m, c) {
				break
			}
		}
	}
}

// SetErrorCallback registers the process-wide fault handler. It may be set
// once; later calls return StatusBusy. A nil callback is rejected with
// StatusNullPointer.
func (a *Accounting) SetErrorCallback(cb Callback) osal.Status {
	if cb == nil {
		return osal.StatusNullPointer
	}
	if !a.fault.CompareAndSwap(nil, &cb) {
		return osal.StatusBusy
	}
	return osal.StatusOk
}

// Fault reports detected corruption (heap guard mismatch, stack overflow)
// through the registered callback, tagging it with the caller's source
// location. It is callable from any context.
func (a *Accounting) Fault(status osal.Status) {
	file, line := "", 0
	if _, f, l, ok := runtime.Caller(1); ok {
		file, line = f, l
	}
	osal.Logger().Error("fault detected",
		zap.Stringer("status", status),
		zap.String("file", file),
		zap.Int("line", line),
	)
	if cb := a.fault.Load(); cb != nil {
		(*cb)(status, file, line)
	}
}
