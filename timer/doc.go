// Package timer provides tick-driven software timers. A Service owns a set
// of one-shot and periodic timers and fires their callbacks as its timebase
// advances.
//
// The service never creates its own tick source. Advance is the only thing
// that moves timers forward, so tests and the cooperative backend can step
// time exactly, and the native backend can pump it from real ticks with
// Run. Callbacks execute outside the service's critical section and may
// freely start, stop, or reschedule timers.
package timer
