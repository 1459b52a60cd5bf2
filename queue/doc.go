// Package queue implements fixed-size message queues whose ring storage
// lives in the guard-banded allocator pool, so queue payloads get the same
// corruption detection as every other allocation.
//
// Items are copied by value in fixed-size slots. A full queue either
// rejects the send (Normal mode) or drops the oldest item to admit the new
// one (Overwrite mode, for latest-value telemetry).
package queue
