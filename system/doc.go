// Package system assembles the full abstraction layer behind one owning
// object. A System binds a backend, the handle registry, resource
// accounting, the allocator pool, the timer service, and the task manager,
// and exposes the handle-based operation surface on top of them.
//
// Subsystems are compiled in or out by osal.Config: an operation whose
// module is disabled returns StatusNotInit without touching any state.
// Every primitive created through a System is addressed by osal.Handle and
// validated by the registry on each call.
package system
