// Package registry holds per-stream settings and the stream lifecycle state
// machine.
//
// # Overview
//
// Settings resolve by overlaying a stream's explicitly set fields on the
// __default__ stream, so reads always observe a consistent merged snapshot.
// Writers serialize through the registry lock; the merged copy handed to a
// reader never mutates afterwards. Settings changes therefore become visible
// to the scheduler at its next per-frame snapshot, never mid-frame.
//
// The lifecycle is IDLE → ADMITTED → ACTIVE → DRAINING → STOPPED with the
// ADMITTED → STOPPED shortcut. __default__ exists from init, is never ACTIVE
// and may not be STOPPED.
package registry
