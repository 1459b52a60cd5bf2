// Package mem implements the OSAL heap: a fixed pool carved into
// guard-banded blocks addressed by pool-relative offsets.
//
// Every block is bracketed by guard words written at allocation and checked
// at free; CheckIntegrity walks all live blocks and fails closed on any
// mismatch, reporting through the fault callback. Freed blocks get a poison
// guard so a double free is distinguishable from corruption.
//
// Aligned allocations record their padding in the block header, so
// FreeAligned can recover the raw block start. Free and FreeAligned are not
// interchangeable; using the wrong one is rejected before any mutation.
package mem
