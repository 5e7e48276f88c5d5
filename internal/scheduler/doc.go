// Package scheduler decides, per ingested frame, what reaches the wire and
// when.
//
// # Overview
//
// Each stream runs one scheduler task. Per frame the task snapshots the
// stream's settings, slices the points into a broadcast base layer and
// unicast enhancement layers, admits each enhancement against the remaining
// time before the playout deadline, commissions the codec facade on a
// bounded worker pool, and dispatches in frame-id order per (stream, layer).
// The base layer is never shed; everything else competes for deadline and
// bandwidth.
//
// Every frame leaves the scheduler through a terminal event — Delivered,
// PartiallyDelivered, or Dropped(reason) — recorded in the per-stream
// dispatch log, so frame-id gaps are always accounted for.
package scheduler
