package scheduler

import (
	"container/heap"
	"context"
	"hash/fnv"
	"sync"
)

// encodeSem is a counting semaphore over the encode worker pool that grants
// slots by stream priority. Equal priorities break ties round-robin by a
// hash of (stream id, admission round) so no stream camps on the pool.
type encodeSem struct {
	mu      sync.Mutex
	slots   int
	waiters waiterHeap
	round   uint64
}

type waiter struct {
	priority uint8
	tie      uint64
	ready    chan struct{}
	index    int
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].tie < h[j].tie
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return w
}

func newEncodeSem(slots int) *encodeSem {
	if slots < 1 {
		slots = 1
	}
	return &encodeSem{slots: slots}
}

func (s *encodeSem) tieFor(streamID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(streamID))
	var b [8]byte
	round := s.round
	s.round++
	for i := 0; i < 8; i++ {
		b[i] = byte(round >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return h.Sum64()
}

// Acquire blocks until a slot is granted or ctx is done.
func (s *encodeSem) Acquire(ctx context.Context, priority uint8, streamID string) error {
	s.mu.Lock()
	if s.slots > 0 && s.waiters.Len() == 0 {
		s.slots--
		s.mu.Unlock()
		return nil
	}
	w := &waiter{priority: priority, tie: s.tieFor(streamID), ready: make(chan struct{})}
	heap.Push(&s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-w.ready:
			// Granted concurrently with cancellation; give it back.
			s.releaseLocked()
		default:
			if w.index >= 0 && w.index < s.waiters.Len() && s.waiters[w.index] == w {
				heap.Remove(&s.waiters, w.index)
			}
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// Release returns a slot, handing it to the highest-priority waiter.
func (s *encodeSem) Release() {
	s.mu.Lock()
	s.releaseLocked()
	s.mu.Unlock()
}

func (s *encodeSem) releaseLocked() {
	if s.waiters.Len() > 0 {
		w := heap.Pop(&s.waiters).(*waiter)
		close(w.ready)
		return
	}
	s.slots++
}
