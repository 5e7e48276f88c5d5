package egress

import (
	"github.com/idlab-discover/pointcast/internal/fault"
)

// Protocol identifies an egress transport.
type Protocol string

const (
	ProtocolWebSocket Protocol = "WebSocket"
	ProtocolWebRTC    Protocol = "WebRTC"
	ProtocolFlute     Protocol = "Flute"
	ProtocolFile      Protocol = "File"
)

// ParseProtocol validates a protocol name from a request parameter.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolWebSocket, ProtocolWebRTC, ProtocolFlute, ProtocolFile:
		return Protocol(s), nil
	}
	return "", fault.New(fault.KindInvalidArgument, "unknown egress protocol %q", s)
}

// Broadcast reports whether the protocol is the one-to-all channel.
func (p Protocol) Broadcast() bool { return p == ProtocolFlute }
