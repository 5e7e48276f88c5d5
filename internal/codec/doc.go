// Package codec is the encoding facade between the scheduler and the
// concrete point-cloud codecs.
//
// Ply and Bitcode are implemented natively. Draco, LASzip, and Tmf are
// external codecs: callers may register implementations at startup via
// Register; without one, encoding or decoding those formats reports a
// CodecError. Encoding is pure and reentrant, so callers are free to run it
// on a worker pool, as long as dispatch order per (stream, layer) is kept
// by the caller.
package codec
