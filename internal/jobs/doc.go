// Package jobs supervises transmission jobs: the periodic producers that
// read a dataset folder or a procedural generator and feed frames into the
// scheduler at the requested fps.
//
// The supervisor exclusively owns producer tasks. Stopping a job cancels its
// producer, drains in-flight frames up to their deadlines through the
// scheduler, and walks the stream through DRAINING to STOPPED. A producer
// that panics is restarted; two failures within ten seconds stop the job as
// failed.
package jobs
