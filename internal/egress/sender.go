package egress

import (
	"context"
	"time"

	"github.com/idlab-discover/pointcast/internal/pointcloud"
)

// Packet is one encoded layer of one frame handed to a sender.
type Packet struct {
	StreamID string
	FrameID  uint64
	Layer    int
	CodecID  uint8
	Payload  []byte
	Pose     pointcloud.Pose
	Deadline time.Time
}

// Status is the terminal outcome of a Send.
type Status int

const (
	// StatusDispatched means the bytes were handed to the wire; no
	// receiver acknowledgment is expected.
	StatusDispatched Status = iota
	// StatusAcked means at least one receiver acknowledged the payload.
	StatusAcked
	// StatusDropped means the sender refused or abandoned the packet.
	StatusDropped
)

func (s Status) String() string {
	switch s {
	case StatusDispatched:
		return "Dispatched"
	case StatusAcked:
		return "Acked"
	case StatusDropped:
		return "Dropped"
	}
	return "Unknown"
}

// Result reports what a sender did with a packet. Reason is set for drops.
type Result struct {
	Status Status
	Reason string
}

// Sender is the capability set shared by all egress protocols.
type Sender interface {
	Protocol() Protocol

	// Send delivers one packet. It blocks at most until the packet's
	// deadline or ctx cancellation, whichever is earlier, and reports
	// drops through the Result rather than an error. Errors are reserved
	// for transport failures.
	Send(ctx context.Context, p Packet) (Result, error)

	// Backpressure returns the bytes queued but not yet on the wire.
	Backpressure() int64

	// Close drains and releases the transport.
	Close() error
}

// Fabric routes packets to the sender registered for each protocol.
type Fabric struct {
	senders map[Protocol]Sender
}

// NewFabric builds a Fabric over the given senders.
func NewFabric(senders ...Sender) *Fabric {
	m := make(map[Protocol]Sender, len(senders))
	for _, s := range senders {
		m[s.Protocol()] = s
	}
	return &Fabric{senders: m}
}

// Sender returns the sender for the protocol, nil when not configured.
func (f *Fabric) Sender(p Protocol) Sender { return f.senders[p] }

// Close closes every sender, returning the first error encountered.
func (f *Fabric) Close() error {
	var first error
	for _, s := range f.senders {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
