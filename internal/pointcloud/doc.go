// Package pointcloud defines the in-memory frame model shared by the
// ingestion pipeline, the scheduler, and the egress senders, together with
// PLY parsing/serialization and the procedural test generators.
package pointcloud
