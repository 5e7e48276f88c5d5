// Package runtime wires configuration, the stream registry, the egress
// fabric, the scheduler, and the job supervisor into a single-node instance
// with explicit startup and teardown.
package runtime
