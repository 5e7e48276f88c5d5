package fec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/idlab-discover/pointcast/internal/fault"
)

func payloadOfSize(n int) []byte {
	rng := rand.New(rand.NewSource(42))
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func TestEncodeSymbolCounts(t *testing.T) {
	payload := payloadOfSize(10 * 1200)
	symbols, err := Encode(7, 0, payload, 0.15)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	h := symbols[0].Header
	if h.K != 10 {
		t.Errorf("k = %d, want 10", h.K)
	}
	if h.R != 2 { // ceil(10 * 0.15)
		t.Errorf("r = %d, want 2", h.R)
	}
	if len(symbols) != int(h.K+h.R) {
		t.Errorf("got %d symbols, want %d", len(symbols), h.K+h.R)
	}
}

func TestRoundTripNoLoss(t *testing.T) {
	payload := payloadOfSize(5000)
	symbols, err := Encode(1, 0, payload, 0.2)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(symbols)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch after round trip")
	}
}

func TestRecoveryFromRepair(t *testing.T) {
	payload := payloadOfSize(20 * 1200)
	symbols, err := Encode(2, 0, payload, 0.15)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	k, r := int(symbols[0].K), int(symbols[0].R)

	// Drop r source symbols; exactly k remain.
	remaining := symbols[r:]
	if len(remaining) != k {
		t.Fatalf("test setup: %d symbols left, want %d", len(remaining), k)
	}
	got, err := Decode(remaining)
	if err != nil {
		t.Fatalf("decode with %d losses: %v", r, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch after recovery")
	}
}

func TestUnrecoverableBelowK(t *testing.T) {
	payload := payloadOfSize(20 * 1200)
	symbols, err := Encode(3, 0, payload, 0.15)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	k := int(symbols[0].K)
	_, err = Decode(symbols[:k-1])
	if err == nil {
		t.Fatal("expected UnrecoverableLoss with k-1 symbols")
	}
	if fault.KindOf(err) != fault.KindUnrecoverableLoss {
		t.Fatalf("kind = %s, want UnrecoverableLoss", fault.KindOf(err))
	}
}

func TestZeroPercentageNoRepair(t *testing.T) {
	payload := payloadOfSize(3000)
	symbols, err := Encode(4, 0, payload, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if symbols[0].R != 0 {
		t.Fatalf("r = %d, want 0", symbols[0].R)
	}
	got, err := Decode(symbols)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch")
	}
	if _, err := Decode(symbols[1:]); fault.KindOf(err) != fault.KindUnrecoverableLoss {
		t.Fatalf("expected UnrecoverableLoss when source lost with r=0, got %v", err)
	}
}

func TestSymbolSizeGrowsForLargePayloads(t *testing.T) {
	payload := payloadOfSize(KMax*defaultSymbolSize + 1)
	symbols, err := Encode(5, 0, payload, 0.1)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	h := symbols[0].Header
	if int(h.K) > KMax {
		t.Errorf("k = %d exceeds KMax", h.K)
	}
	if int(h.K)+int(h.R) > 256 {
		t.Errorf("k+r = %d exceeds GF(2^8) shard limit", int(h.K)+int(h.R))
	}
	if h.SymbolSize <= defaultSymbolSize {
		t.Errorf("symbol size did not grow: %d", h.SymbolSize)
	}
}

func TestSymbolWireRoundTrip(t *testing.T) {
	payload := payloadOfSize(2500)
	symbols, err := Encode(9, 2, payload, 0.5)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	parsed := make([]Symbol, 0, len(symbols))
	for _, s := range symbols {
		p, err := ParseSymbol(s.Marshal())
		if err != nil {
			t.Fatalf("parse symbol %d: %v", s.Index, err)
		}
		if p.Header != s.Header {
			t.Fatalf("header mismatch: %+v vs %+v", p.Header, s.Header)
		}
		parsed = append(parsed, p)
	}
	got, err := Decode(parsed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch after wire round trip")
	}
}

func TestEncodeDeterministic(t *testing.T) {
	payload := payloadOfSize(7000)
	a, err := Encode(11, 0, payload, 0.3)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := Encode(11, 0, payload, 0.3)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := range a {
		if !bytes.Equal(a[i].Data, b[i].Data) {
			t.Fatalf("symbol %d differs between runs", i)
		}
	}
}
