// Package buffer provides the bounded per-stream frame ring feeding the
// scheduler.
//
// Each stream owns one Ring of at most Capacity undispatched frames. When a
// frame arrives on a full ring the oldest undispatched frame is dropped
// (drop-old policy) and surfaced through the OnDrop callback so the drop is
// never silent.
package buffer
