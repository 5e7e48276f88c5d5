// Package fec implements the systematic block codec protecting the
// broadcast base layer.
//
// A payload is split into k equal-size source symbols (the last one padded)
// and extended with r = ceil(k * pct) Reed-Solomon repair symbols over
// GF(2^8). Any k of the k+r symbols reconstruct the payload byte-exactly.
// Encoding is deterministic for identical inputs.
package fec
