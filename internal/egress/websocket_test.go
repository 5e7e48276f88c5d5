package egress

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

func dialHub(t *testing.T, s *WebSocketSender) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(s.HandleUpgrade))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	// Wait for the hub to register the viewer.
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Sockets()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestWebSocketSendWithoutAck(t *testing.T) {
	s := NewWebSocketSender(false, nil, logpkg.NewNop())
	t.Cleanup(func() { _ = s.Close() })
	conn := dialHub(t, s)

	res, err := s.Send(context.Background(), Packet{
		StreamID: "s1",
		FrameID:  9,
		Layer:    1,
		CodecID:  1,
		Payload:  []byte("enhancement"),
		Deadline: time.Now().Add(time.Second),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Status != StatusDispatched {
		t.Fatalf("status = %v, want Dispatched", res.Status)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := ParseEnvelope(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.StreamID != "s1" || env.FrameID != 9 || env.Layer != 1 {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestWebSocketSendAwaitsAck(t *testing.T) {
	s := NewWebSocketSender(true, nil, logpkg.NewNop())
	t.Cleanup(func() { _ = s.Close() })
	conn := dialHub(t, s)

	// Viewer: read the frame, reply with an ack.
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := ParseEnvelope(msg)
		if err != nil {
			return
		}
		ack := make([]byte, 10)
		ack[0] = ackMsgType
		binary.BigEndian.PutUint64(ack[1:9], env.FrameID)
		ack[9] = env.Layer
		_ = conn.WriteMessage(websocket.BinaryMessage, ack)
	}()

	res, err := s.Send(context.Background(), Packet{
		StreamID: "s1",
		FrameID:  4,
		Layer:    0,
		Payload:  []byte("base"),
		Deadline: time.Now().Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Status != StatusAcked {
		t.Fatalf("status = %v, want Acked", res.Status)
	}
}

func TestWebSocketAckTimeoutIsDeadlineExpired(t *testing.T) {
	s := NewWebSocketSender(true, nil, logpkg.NewNop())
	t.Cleanup(func() { _ = s.Close() })
	_ = dialHub(t, s)

	res, err := s.Send(context.Background(), Packet{
		StreamID: "s1",
		FrameID:  5,
		Layer:    0,
		Payload:  []byte("base"),
		Deadline: time.Now().Add(50 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Status != StatusDropped || res.Reason != "DeadlineExpired" {
		t.Fatalf("result = %+v, want Dropped(DeadlineExpired)", res)
	}
}

func TestSocketsListAndClean(t *testing.T) {
	s := NewWebSocketSender(false, nil, logpkg.NewNop())
	t.Cleanup(func() { _ = s.Close() })
	_ = dialHub(t, s)

	sockets := s.Sockets()
	if len(sockets) != 1 {
		t.Fatalf("got %d sockets, want 1", len(sockets))
	}
	dropped := s.Clean([]string{sockets[0].ID, "bogus"})
	if len(dropped) != 1 || dropped[0] != sockets[0].ID {
		t.Fatalf("dropped = %v", dropped)
	}
	if len(s.Sockets()) != 0 {
		t.Fatal("socket list not empty after clean")
	}
}
