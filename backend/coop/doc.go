// Package coop implements the bare-metal-style cooperative scheduler
// backend: a single run loop, one ready queue served round-robin, and
// run-to-completion-or-yield tasks.
//
// Exactly one task executes at a time. The loop hands the execution baton
// to the task at the head of the ready queue and takes it back when the
// task yields, blocks, or exits; there is no timer preemption. Blocking
// operations insert the caller into a per-resource wait list and switch to
// the next ready task; a satisfied waiter is moved back to ready, never
// resumed synchronously. Timeouts are pure data: an absolute tick deadline
// swept by the loop on every pass.
//
// Regions alias the scheduler's interrupt mask, so a task inside a critical
// section excludes ISR-safe operations exactly as disabling interrupts
// would on hardware.
//
// Time is virtual by default: when every task is blocked on a deadline the
// loop jumps the tick counter to the nearest one. WithExternalTicks
// disables the jump for callers driving Tick from a real source.
package coop
