package handle

import (
	"sync"

	"github.com/embedkit/osal"
)

const (
	indexBits = 20
	indexMask = (1 << indexBits) - 1
	genBits   = 12
	genMask   = (1 << genBits) - 1

	// maxSlots keeps packed indexes inside indexBits. Index 0 is reserved so
	// that handle 0 stays invalid.
	maxSlots = indexMask - 1
)

// EventType distinguishes handle lifecycle notifications.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventInvalidated
)

// Event is a handle lifecycle notification.
type Event struct {
	Handle osal.Handle
	Kind   osal.Kind
	Type   EventType
}

// Observer receives handle lifecycle events. The accounting subsystem
// subscribes to keep per-kind counts.
type Observer interface {
	OnHandleEvent(Event)
}

type slot struct {
	value any
	gen   uint16
	kind  osal.Kind
	live  bool
}

// Registry assigns and validates handles for all resource kinds.
type Registry struct {
	mu        sync.RWMutex
	slots     []slot
	freeList  []uint32
	counts    [osal.KindCount]uint32
	caps      osal.ResourceCaps
	observers []Observer
	debug     bool
	closed    bool
}

// New creates a registry with per-kind capacity limits. debug selects full
// generation+kind validation.
func New(caps osal.ResourceCaps, debug bool) *Registry {
	return &Registry{
		slots:    make([]slot, 0, 64),
		freeList: make([]uint32, 0, 16),
		caps:     caps,
		debug:    debug,
	}
}

func pack(index uint32, gen uint16) osal.Handle {
	return osal.Handle((uint32(gen)&genMask)<<indexBits | (index + 1))
}

func unpack(h osal.Handle) (index uint32, gen uint16) {
	return uint32(h)&indexMask - 1, uint16(uint32(h) >> indexBits & genMask)
}

// Register stores a control block and returns its handle. It returns
// StatusNullPointer for a nil value, StatusInvalidParam for an unknown kind,
// StatusNoMemory when the kind's cap is reached, and StatusNotInit after
// Close.
func (r *Registry) Register(kind osal.Kind, value any) (osal.Handle, osal.Status) {
	if value == nil {
		return 0, osal.StatusNullPointer
	}
	if !kind.Valid() {
		return 0, osal.StatusInvalidParam
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, osal.StatusNotInit
	}
	if limit := r.caps.ForKind(kind); limit > 0 && r.counts[kind] >= limit {
		r.mu.Unlock()
		return 0, osal.StatusNoMemory
	}

	var index uint32
	if n := len(r.freeList); n > 0 {
		index = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
	} else {
		if len(r.slots) >= maxSlots {
			r.mu.Unlock()
			return 0, osal.StatusNoMemory
		}
		r.slots = append(r.slots, slot{gen: 1})
		index = uint32(len(r.slots) - 1)
	}

	s := &r.slots[index]
	s.value = value
	s.kind = kind
	s.live = true
	r.counts[kind]++
	h := pack(index, s.gen)
	r.mu.Unlock()

	r.notify(Event{Type: EventRegistered, Handle: h, Kind: kind})
	return h, osal.StatusOk
}

// Lookup returns the control block for a handle after validating it against
// the expected kind. Any mismatch reports StatusInvalidParam; the value is
// never returned for a handle that fails validation. The kind check runs in
// both modes, so a foreign-kind handle can never reach a caller's type
// assertion; only the generation check is debug-depth.
func (r *Registry) Lookup(h osal.Handle, kind osal.Kind) (any, osal.Status) {
	if h == 0 {
		return nil, osal.StatusInvalidParam
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	index, gen := unpack(h)
	if int(index) >= len(r.slots) {
		return nil, osal.StatusInvalidParam
	}
	s := &r.slots[index]
	if !s.live || s.kind != kind {
		return nil, osal.StatusInvalidParam
	}
	if r.debug && s.gen != gen {
		return nil, osal.StatusInvalidParam
	}
	return s.value, osal.StatusOk
}

// Validate reports whether the handle currently passes validation for the
// given kind.
func (r *Registry) Validate(h osal.Handle, kind osal.Kind) bool {
	_, st := r.Lookup(h, kind)
	return st == osal.StatusOk
}

// Invalidate destroys a handle after validating it against the expected
// kind, so a foreign-kind handle is rejected without touching the resource
// it names. The slot is cleared and its generation bumped before it returns
// to the free list, so reuse of the stale handle is detectable. Returns the
// stored control block.
func (r *Registry) Invalidate(h osal.Handle, kind osal.Kind) (any, osal.Status) {
	if h == 0 {
		return nil, osal.StatusInvalidParam
	}

	r.mu.Lock()
	index, gen := unpack(h)
	if int(index) >= len(r.slots) {
		r.mu.Unlock()
		return nil, osal.StatusInvalidParam
	}
	s := &r.slots[index]
	if !s.live || s.kind != kind {
		r.mu.Unlock()
		return nil, osal.StatusInvalidParam
	}
	if r.debug && s.gen != gen {
		r.mu.Unlock()
		return nil, osal.StatusInvalidParam
	}

	value := s.value
	s.value = nil
	s.live = false
	s.gen++
	if s.gen&genMask == 0 {
		s.gen = 1
	}
	r.counts[kind]--
	r.freeList = append(r.freeList, index)
	r.mu.Unlock()

	r.notify(Event{Type: EventInvalidated, Handle: h, Kind: kind})
	return value, osal.StatusOk
}

// LiveCount returns the number of live handles of one kind.
func (r *Registry) LiveCount(kind osal.Kind) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !kind.Valid() {
		return 0
	}
	return r.counts[kind]
}

// Len returns the total number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, c := range r.counts {
		total += int(c)
	}
	return total
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Close invalidates every live handle and stops accepting registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true

	var events []Event
	for i := range r.slots {
		s := &r.slots[i]
		if !s.live {
			continue
		}
		events = append(events, Event{
			Type:   EventInvalidated,
			Handle: pack(uint32(i), s.gen),
			Kind:   s.kind,
		})
		s.value = nil
		s.live = false
		r.counts[s.kind]--
	}
	r.slots = nil
	r.freeList = nil
	r.mu.Unlock()

	for _, e := range events {
		r.notify(e)
	}
}

func (r *Registry) notify(e Event) {
	r.mu.RLock()
	obs := r.observers
	r.mu.RUnlock()
	for _, o := range obs {
		o.OnHandleEvent(e)
	}
}
