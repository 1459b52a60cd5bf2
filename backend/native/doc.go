// Package native implements the scheduler backend on ordinary goroutines.
//
// Tasks are goroutines, regions are mutexes, and wait queues park waiters on
// per-waiter channels with a timer for the tick deadline. Scheduling is
// preemptive (the Go runtime's), so suspension, resumption, and deletion of
// a task take effect at the task's next suspension point: a blocking call,
// Yield, or Sleep.
//
// The backend runs a tick goroutine incrementing an atomic counter, the
// timebase for all timeouts and software timers.
package native
