// Package diag reports on the health of a running system: per-kind resource
// counts and watermarks against their caps, live handles, allocator
// occupancy and guard integrity, and timer activity. Reports are
// point-in-time copies safe to render or ship off-target.
package diag
