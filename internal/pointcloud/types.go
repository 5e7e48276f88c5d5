package pointcloud

import (
	"github.com/idlab-discover/pointcast/internal/fault"
)

// Point is a single 3D position with an RGB attribute.
type Point struct {
	X, Y, Z float32
	R, G, B uint8
}

// Pose carries the stream's placement in the scene. The core treats it as
// opaque and forwards it to the egress senders.
type Pose struct {
	Position [3]float32 `json:"position"`
	Rotation [3]float32 `json:"rotation"`
	Scale    [3]float32 `json:"scale"`
}

// DefaultPose returns identity placement.
func DefaultPose() Pose {
	return Pose{Scale: [3]float32{1, 1, 1}}
}

// Frame is one point-cloud frame travelling through the pipeline.
//
// FrameID is strictly monotonic within a stream. ArrivalUs is the producer's
// monotonic clock in microseconds; DeadlineUs is ArrivalUs plus the stream's
// presentation time offset.
type Frame struct {
	StreamID   string
	FrameID    uint64
	ArrivalUs  int64
	DeadlineUs int64
	Points     []Point
	Pose       Pose
}

// Layer is a contiguous, non-overlapping range of point indexes assigned to
// one delivery channel. Layer 0 is always the broadcast base.
type Layer struct {
	Index int
	Start int // inclusive point index
	End   int // exclusive point index
}

// Count returns the number of points in the layer.
func (l Layer) Count() int { return l.End - l.Start }

// Partition slices n points into layers sized by percentages, which must sum
// to 100. The last layer absorbs rounding so the layers partition the points
// exactly. A nil or empty percentages slice yields a single base layer.
func Partition(n int, percentages []uint8) ([]Layer, error) {
	if len(percentages) == 0 {
		return []Layer{{Index: 0, Start: 0, End: n}}, nil
	}
	sum := 0
	for _, p := range percentages {
		sum += int(p)
	}
	if sum != 100 {
		return nil, fault.New(fault.KindInvalidArgument, "max_point_percentages must sum to 100, got %d", sum)
	}
	layers := make([]Layer, 0, len(percentages))
	start := 0
	for i, p := range percentages {
		end := start + n*int(p)/100
		if i == len(percentages)-1 {
			end = n
		}
		layers = append(layers, Layer{Index: i, Start: start, End: end})
		start = end
	}
	return layers, nil
}

// Slice returns the frame's points belonging to the layer. The returned slice
// aliases the frame's backing array.
func (f *Frame) Slice(l Layer) []Point {
	return f.Points[l.Start:l.End]
}
