package buffer

import (
	"sync"

	"github.com/idlab-discover/pointcast/internal/pointcloud"
)

// Capacity is the maximum number of undispatched frames held per stream.
const Capacity = 4

// Ring is a bounded FIFO of frames with drop-oldest overflow. It is written
// by the producer task and drained by the stream's scheduler task.
type Ring struct {
	mu     sync.Mutex
	frames []*pointcloud.Frame
	cap    int

	// OnDrop is invoked outside the lock for every frame evicted on
	// overflow. May be nil.
	OnDrop func(*pointcloud.Frame)
}

// NewRing creates a ring with the given capacity; values < 1 fall back to
// the package default.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = Capacity
	}
	return &Ring{cap: capacity}
}

// Push appends a frame, evicting the oldest when full. The evicted frame is
// returned, nil otherwise.
func (r *Ring) Push(f *pointcloud.Frame) *pointcloud.Frame {
	r.mu.Lock()
	var dropped *pointcloud.Frame
	if len(r.frames) == r.cap {
		dropped = r.frames[0]
		copy(r.frames, r.frames[1:])
		r.frames = r.frames[:len(r.frames)-1]
	}
	r.frames = append(r.frames, f)
	r.mu.Unlock()

	if dropped != nil && r.OnDrop != nil {
		r.OnDrop(dropped)
	}
	return dropped
}

// Pop removes and returns the oldest frame, nil when empty.
func (r *Ring) Pop() *pointcloud.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	f := r.frames[0]
	r.frames[0] = nil
	copy(r.frames, r.frames[1:])
	r.frames = r.frames[:len(r.frames)-1]
	return f
}

// Peek returns the oldest frame without removing it, nil when empty.
func (r *Ring) Peek() *pointcloud.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[0]
}

// Len returns the number of buffered frames.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Drain removes and returns all buffered frames, oldest first.
func (r *Ring) Drain() []*pointcloud.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.frames
	r.frames = nil
	return out
}
