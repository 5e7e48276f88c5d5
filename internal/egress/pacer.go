package egress

import (
	"sync"
	"time"
)

// pacer is a token bucket metering bytes against a bits-per-second cap. The
// bucket holds up to one second of budget so frame-sized bursts pass while
// the long-run rate stays at the cap.
type pacer struct {
	mu          sync.Mutex
	bytesPerSec float64
	tokens      float64
	last        time.Time
	now         func() time.Time
}

// newPacer creates a pacer for the given rate in bits per second. A rate of
// 0 disables pacing.
func newPacer(bitsPerSec uint64) *pacer {
	p := &pacer{now: time.Now}
	p.SetRate(bitsPerSec)
	return p
}

// SetRate changes the cap. The bucket starts full (one second of budget) at
// the new rate.
func (p *pacer) SetRate(bitsPerSec uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bytesPerSec = float64(bitsPerSec) / 8
	p.tokens = p.bytesPerSec
	p.last = p.now()
}

// Admit consumes n bytes of budget if available and reports whether the
// caller may send. Callers drop whole frames on refusal; symbols are never
// split.
func (p *pacer) Admit(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bytesPerSec <= 0 {
		return true
	}
	now := p.now()
	p.tokens += now.Sub(p.last).Seconds() * p.bytesPerSec
	p.last = now
	if p.tokens > p.bytesPerSec {
		p.tokens = p.bytesPerSec
	}
	if float64(n) > p.tokens {
		return false
	}
	p.tokens -= float64(n)
	return true
}
