package diag

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/system"
)

// Resource is one kind's usage against its configured cap.
type Resource struct {
	Kind      osal.Kind
	Count     uint32
	Watermark uint32
	Cap       uint32
}

// Report is a point-in-time view of a system's health.
type Report struct {
	Backend         string
	Ticks           uint64
	Resources       []Resource
	LiveHandles     int
	PoolSize        uint32
	PoolAllocations int
	PoolIntact      bool
	TimersActive    int
	TimersTotal     int
}

// Collector gathers reports from one system.
type Collector struct {
	sys *system.System
	log *zap.Logger
}

// NewCollector creates a collector over the given system.
func NewCollector(sys *system.System) *Collector {
	return &Collector{sys: sys, log: osal.Logger().Named("diag")}
}

// Report gathers a snapshot. Pool integrity is verified as part of the
// collection; corruption is logged and reflected in PoolIntact.
func (c *Collector) Report() Report {
	snap := c.sys.Accounting().Snapshot()
	caps := c.sys.Config().MaxResources

	r := Report{
		Backend:     c.sys.Backend().Name(),
		Ticks:       c.sys.Backend().Now(),
		LiveHandles: c.sys.Registry().Len(),
		PoolIntact:  true,
	}
	for k := osal.Kind(0); k < osal.KindCount; k++ {
		rec := snap.For(k)
		r.Resources = append(r.Resources, Resource{
			Kind:      k,
			Count:     rec.Count,
			Watermark: rec.Watermark,
			Cap:       caps.ForKind(k),
		})
	}
	if pool := c.sys.Pool(); pool != nil {
		r.PoolSize = pool.Size()
		r.PoolAllocations = pool.AllocationCount()
		if st := pool.CheckIntegrity(); !st.Ok() {
			r.PoolIntact = false
			c.log.Error("pool integrity check failed", zap.Stringer("status", st))
		}
	}
	if svc := c.sys.Timers(); svc != nil {
		r.TimersActive = svc.ActiveCount()
		r.TimersTotal = svc.Count()
	}
	return r
}

// String renders the report as a fixed-width text block.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend %s  ticks %d  handles %d\n", r.Backend, r.Ticks, r.LiveHandles)
	fmt.Fprintf(&b, "%-10s %7s %10s %5s\n", "kind", "count", "watermark", "cap")
	for _, res := range r.Resources {
		fmt.Fprintf(&b, "%-10s %7d %10d %5d\n", res.Kind, res.Count, res.Watermark, res.Cap)
	}
	if r.PoolSize > 0 {
		state := "ok"
		if !r.PoolIntact {
			state = "CORRUPTED"
		}
		fmt.Fprintf(&b, "pool %d bytes, %d allocations, %s\n", r.PoolSize, r.PoolAllocations, state)
	}
	fmt.Fprintf(&b, "timers %d active of %d\n", r.TimersActive, r.TimersTotal)
	return b.String()
}
