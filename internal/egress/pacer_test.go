package egress

import (
	"testing"
	"time"
)

func pacedClock(start time.Time) (*time.Time, func() time.Time) {
	now := start
	return &now, func() time.Time { return now }
}

func TestPacerAdmitsWithinBudget(t *testing.T) {
	p := newPacer(8000) // 1000 bytes/sec
	now, clock := pacedClock(time.Unix(0, 0))
	p.now = clock
	p.SetRate(8000)

	if !p.Admit(500) {
		t.Fatal("first 500 bytes refused")
	}
	if !p.Admit(500) {
		t.Fatal("second 500 bytes refused")
	}
	if p.Admit(1) {
		t.Fatal("admitted past budget")
	}

	// One second later the bucket has refilled.
	*now = now.Add(time.Second)
	if !p.Admit(1000) {
		t.Fatal("refused after refill")
	}
}

func TestPacerBucketDoesNotOverfill(t *testing.T) {
	p := newPacer(8000)
	now, clock := pacedClock(time.Unix(0, 0))
	p.now = clock
	p.SetRate(8000)

	*now = now.Add(10 * time.Second)
	if p.Admit(2000) {
		t.Fatal("bucket accumulated more than one second of budget")
	}
	if !p.Admit(1000) {
		t.Fatal("full second of budget refused")
	}
}

func TestPacerZeroRateUnlimited(t *testing.T) {
	p := newPacer(0)
	if !p.Admit(1 << 30) {
		t.Fatal("unpaced sender refused bytes")
	}
}
