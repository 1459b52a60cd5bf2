// Package sync provides the blocking primitives: a priority-inheritance
// mutex, a counting semaphore, and an event group with atomic multi-waiter
// wake.
//
// Each primitive pairs a backend Region with a backend WaitQueue. The
// region serializes the control block; the wait queue parks callers when
// the condition does not hold. Operations return a Status instead of
// panicking or raising, so a timeout or misuse is an ordinary value the
// caller inspects.
//
// Blocking entry points take a context.Context that carries the calling
// task (see osal.WithTask) and reject interrupt contexts with StatusIsr.
// ISR-safe variants are the non-blocking paths: semaphore give, event set
// and clear, and any call with NoWait.
package sync
