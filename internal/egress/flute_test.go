package egress

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/idlab-discover/pointcast/internal/fec"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

// listenUDP returns a loopback listener standing in for the multicast group.
func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func collectSymbols(t *testing.T, conn *net.UDPConn, n int) []fec.Symbol {
	t.Helper()
	symbols := make([]fec.Symbol, 0, n)
	buf := make([]byte, 64<<10)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(symbols) < n {
		read, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("read after %d symbols: %v", len(symbols), err)
		}
		sym, err := fec.ParseSymbol(append([]byte{}, buf[:read]...))
		if err != nil {
			t.Fatalf("parse symbol: %v", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols
}

func TestFluteEmitsDecodableBlock(t *testing.T) {
	listener := listenUDP(t)
	s, err := NewFluteSender(FluteOptions{
		Addr:          listener.LocalAddr().String(),
		FECPercentage: 0.5,
	}, nil, logpkg.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	payload := bytes.Repeat([]byte{0xAB, 0xCD}, 3000)
	res, err := s.Send(context.Background(), Packet{
		StreamID: "s1",
		FrameID:  12,
		Layer:    0,
		Payload:  payload,
		Deadline: time.Now().Add(time.Second),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Status != StatusDispatched {
		t.Fatalf("status = %v", res.Status)
	}

	first := collectSymbols(t, listener, 1)
	k, r := int(first[0].K), int(first[0].R)
	symbols := append(first, collectSymbols(t, listener, k+r-1)...)

	// Simulate loss of r symbols; decode must still succeed.
	got, err := fec.Decode(symbols[r:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch after broadcast round trip")
	}
}

func TestFluteDropsWholeFrameOnBandwidth(t *testing.T) {
	listener := listenUDP(t)
	s, err := NewFluteSender(FluteOptions{
		Addr:          listener.LocalAddr().String(),
		BandwidthBits: 8, // one byte per second
	}, nil, logpkg.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	res, err := s.Send(context.Background(), Packet{
		StreamID: "s1",
		FrameID:  1,
		Layer:    0,
		Payload:  bytes.Repeat([]byte{1}, 5000),
		Deadline: time.Now().Add(time.Second),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Status != StatusDropped || res.Reason != "Bandwidth" {
		t.Fatalf("result = %+v, want Dropped(Bandwidth)", res)
	}
}

func TestFluteMD5AndContentEncoding(t *testing.T) {
	listener := listenUDP(t)
	s, err := NewFluteSender(FluteOptions{
		Addr:            listener.LocalAddr().String(),
		FECPercentage:   0,
		ContentEncoding: "zlib",
		MD5:             true,
	}, nil, logpkg.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	payload := bytes.Repeat([]byte("cloud"), 500)
	if _, err := s.Send(context.Background(), Packet{
		StreamID: "s1", FrameID: 3, Layer: 0,
		Payload:  payload,
		Deadline: time.Now().Add(time.Second),
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	first := collectSymbols(t, listener, 1)
	k := int(first[0].K)
	symbols := append(first, collectSymbols(t, listener, k-1)...)
	block, err := fec.Decode(symbols)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	verified, err := VerifyDigest(block)
	if err != nil {
		t.Fatalf("verify digest: %v", err)
	}
	got, err := RemoveContentEncoding(verified, "zlib")
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch through md5+zlib path")
	}
}
