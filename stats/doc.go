// Package stats tracks live-instance counts and high-water marks for every
// resource kind, and owns the process-wide fault callback.
//
// Accounting subscribes to handle registry events, so counts increment
// exactly once per successful create and decrement exactly once per
// successful destroy. Snapshots are plain atomic loads: callable from any
// context, including a simulated ISR, without blocking or allocating.
package stats
