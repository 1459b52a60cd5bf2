// Package handle implements the registry that issues and validates the
// opaque handles every OSAL resource is addressed by.
//
// Handles are generation-indexed: each resource occupies a slot in a slab,
// and the handle packs the slot index together with the slot's generation
// counter. Invalidating a handle bumps the generation, so a stale handle
// held across a destroy/create cycle can never alias the slot's new
// occupant. There is no sentinel value to forge and no header to clear at
// runtime; validation is two comparisons.
//
// In debug mode (Config.DebugHandleChecks) validation checks bounds,
// liveness, generation, and kind, failing closed on any mismatch. In release
// mode it degrades to a nonzero-and-bounds check, trading stale-handle
// detection for a shorter lookup path. The trade-off is deliberate and
// selected by configuration, never silently.
package handle
