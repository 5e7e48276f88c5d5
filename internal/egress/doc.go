// Package egress contains the protocol-specific senders behind the
// scheduler: FLUTE-style UDP multicast for the broadcast base layer, WebRTC
// data channels and WebSockets for unicast enhancements, and a file sink for
// offline analysis.
//
// Every sender implements the same capability set {Send, Backpressure,
// Close}. Senders own their queues and sockets; the scheduler owns frame
// ordering and never learns transport details beyond the Result it gets
// back.
package egress
