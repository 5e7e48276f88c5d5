package egress

import (
	"bytes"
	"testing"

	"github.com/idlab-discover/pointcast/internal/fault"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{
		StreamID: "stream-a",
		FrameID:  123456789,
		Layer:    2,
		CodecID:  5,
		Payload:  []byte("encoded points"),
	}
	b, err := in.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := ParseEnvelope(b)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out.StreamID != in.StreamID || out.FrameID != in.FrameID ||
		out.Layer != in.Layer || out.CodecID != in.CodecID ||
		!bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestParseEnvelopeRejectsTruncation(t *testing.T) {
	in := Envelope{StreamID: "s", FrameID: 1, Payload: []byte("abc")}
	b, _ := in.Marshal()
	for cut := 1; cut < len(b); cut++ {
		if _, err := ParseEnvelope(b[:len(b)-cut]); err == nil {
			t.Fatalf("truncation by %d accepted", cut)
		}
	}
}

func TestContentEncodingZlibRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("pointcloud"), 200)
	enc, err := ApplyContentEncoding(payload, "zlib")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(enc) >= len(payload) {
		t.Errorf("zlib did not shrink repetitive payload: %d >= %d", len(enc), len(payload))
	}
	dec, err := RemoveContentEncoding(enc, "zlib")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !bytes.Equal(dec, payload) {
		t.Fatal("zlib round trip mismatch")
	}
}

func TestContentEncodingIdentity(t *testing.T) {
	payload := []byte("as-is")
	for _, scheme := range []string{"", "null", "identity"} {
		out, err := ApplyContentEncoding(payload, scheme)
		if err != nil || !bytes.Equal(out, payload) {
			t.Errorf("scheme %q: %v", scheme, err)
		}
	}
	if _, err := ApplyContentEncoding(payload, "br"); fault.KindOf(err) != fault.KindInvalidArgument {
		t.Errorf("unknown scheme: %v", err)
	}
}

func TestDigestRoundTrip(t *testing.T) {
	payload := []byte("verify me")
	signed := AppendDigest(payload)
	got, err := VerifyDigest(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("digest round trip mismatch")
	}
	signed[0] ^= 0xFF
	if _, err := VerifyDigest(signed); err == nil {
		t.Fatal("corrupted payload passed verification")
	}
}
