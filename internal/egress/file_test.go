package egress

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/idlab-discover/pointcast/internal/pointcloud"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

func TestFileSenderWritesReadableRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSender(dir, nil, logpkg.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	pose := pointcloud.DefaultPose()
	pose.Position = [3]float32{1, 2, 3}
	for i := uint64(1); i <= 3; i++ {
		res, err := s.Send(context.Background(), Packet{
			StreamID: "s1",
			FrameID:  i,
			Layer:    0,
			CodecID:  1,
			Payload:  []byte{byte(i), byte(i + 1)},
			Pose:     pose,
			Deadline: time.Now().Add(time.Second),
		})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if res.Status != StatusDispatched {
			t.Fatalf("send %d: status %v", i, res.Status)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := ReadDump(filepath.Join(dir, "s1.mpk"))
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i, rec := range recs {
		if rec.FrameID != uint64(i+1) {
			t.Errorf("record %d frame id = %d", i, rec.FrameID)
		}
		if !bytes.Equal(rec.Payload, []byte{byte(i + 1), byte(i + 2)}) {
			t.Errorf("record %d payload = %v", i, rec.Payload)
		}
		if rec.Position != [3]float32{1, 2, 3} {
			t.Errorf("record %d position = %v", i, rec.Position)
		}
	}
}

func TestFabricRouting(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileSender(dir, nil, logpkg.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f := NewFabric(fs)
	if f.Sender(ProtocolFile) != fs {
		t.Fatal("file sender not routed")
	}
	if f.Sender(ProtocolWebRTC) != nil {
		t.Fatal("unexpected sender for unconfigured protocol")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestParseProtocol(t *testing.T) {
	for _, ok := range []string{"WebSocket", "WebRTC", "Flute", "File"} {
		if _, err := ParseProtocol(ok); err != nil {
			t.Errorf("%s should parse: %v", ok, err)
		}
	}
	if _, err := ParseProtocol("Buffer"); err == nil {
		t.Error("Buffer should be rejected")
	}
}
