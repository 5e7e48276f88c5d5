package registry

import (
	"github.com/idlab-discover/pointcast/internal/egress"
	"github.com/idlab-discover/pointcast/internal/pointcloud"
)

// DefaultStreamID is the pseudo-stream whose settings seed all others.
const DefaultStreamID = "__default__"

// State is a stream's lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StateAdmitted State = "ADMITTED"
	StateActive   State = "ACTIVE"
	StateDraining State = "DRAINING"
	StateStopped  State = "STOPPED"
)

// Settings is the fully resolved configuration of one stream.
type Settings struct {
	StreamID                 string            `json:"stream_id"`
	Priority                 uint8             `json:"priority"`
	EgressProtocols          []egress.Protocol `json:"egress_protocols"`
	ProcessIncomingFrames    bool              `json:"process_incoming_frames"`
	Pose                     pointcloud.Pose   `json:"pose"`
	PresentationTimeOffsetMs uint64            `json:"presentation_time_offset"`
	DecodeBypass             bool              `json:"decode_bypass"`
	AggregatorBypass         bool              `json:"aggregator_bypass"`
	RingBufferBypass         bool              `json:"ring_buffer_bypass"`
	MaxPointPercentages      []uint8           `json:"max_point_percentages,omitempty"`
}

// Patch is a sparse settings update: nil fields are left untouched.
type Patch struct {
	Priority                 *uint8
	EgressProtocols          *[]egress.Protocol
	ProcessIncomingFrames    *bool
	Position                 *[3]float32
	Rotation                 *[3]float32
	Scale                    *[3]float32
	PresentationTimeOffsetMs *uint64
	DecodeBypass             *bool
	AggregatorBypass         *bool
	RingBufferBypass         *bool
	MaxPointPercentages      *[]uint8
}

// Summary is the list-view projection of a stream.
type Summary struct {
	Settings
	State     State  `json:"state"`
	ActiveJob string `json:"active_job,omitempty"`
}

// baseDefaults are the settings of __default__ before any update.
func baseDefaults() Settings {
	return Settings{
		StreamID:                 DefaultStreamID,
		Priority:                 0,
		EgressProtocols:          []egress.Protocol{egress.ProtocolWebSocket},
		ProcessIncomingFrames:    true,
		Pose:                     pointcloud.DefaultPose(),
		PresentationTimeOffsetMs: 100,
	}
}

// apply overlays the patch's set fields onto s.
func (s *Settings) apply(p Patch) {
	if p.Priority != nil {
		s.Priority = *p.Priority
	}
	if p.EgressProtocols != nil {
		s.EgressProtocols = append([]egress.Protocol{}, (*p.EgressProtocols)...)
	}
	if p.ProcessIncomingFrames != nil {
		s.ProcessIncomingFrames = *p.ProcessIncomingFrames
	}
	if p.Position != nil {
		s.Pose.Position = *p.Position
	}
	if p.Rotation != nil {
		s.Pose.Rotation = *p.Rotation
	}
	if p.Scale != nil {
		s.Pose.Scale = *p.Scale
	}
	if p.PresentationTimeOffsetMs != nil {
		s.PresentationTimeOffsetMs = *p.PresentationTimeOffsetMs
	}
	if p.DecodeBypass != nil {
		s.DecodeBypass = *p.DecodeBypass
	}
	if p.AggregatorBypass != nil {
		s.AggregatorBypass = *p.AggregatorBypass
	}
	if p.RingBufferBypass != nil {
		s.RingBufferBypass = *p.RingBufferBypass
	}
	if p.MaxPointPercentages != nil {
		s.MaxPointPercentages = append([]uint8{}, (*p.MaxPointPercentages)...)
	}
}

// merge folds the later patch into the earlier one, field by field.
func (p *Patch) merge(next Patch) {
	if next.Priority != nil {
		p.Priority = next.Priority
	}
	if next.EgressProtocols != nil {
		p.EgressProtocols = next.EgressProtocols
	}
	if next.ProcessIncomingFrames != nil {
		p.ProcessIncomingFrames = next.ProcessIncomingFrames
	}
	if next.Position != nil {
		p.Position = next.Position
	}
	if next.Rotation != nil {
		p.Rotation = next.Rotation
	}
	if next.Scale != nil {
		p.Scale = next.Scale
	}
	if next.PresentationTimeOffsetMs != nil {
		p.PresentationTimeOffsetMs = next.PresentationTimeOffsetMs
	}
	if next.DecodeBypass != nil {
		p.DecodeBypass = next.DecodeBypass
	}
	if next.AggregatorBypass != nil {
		p.AggregatorBypass = next.AggregatorBypass
	}
	if next.RingBufferBypass != nil {
		p.RingBufferBypass = next.RingBufferBypass
	}
	if next.MaxPointPercentages != nil {
		p.MaxPointPercentages = next.MaxPointPercentages
	}
}
