package egress

import (
	"context"
	"encoding/binary"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/idlab-discover/pointcast/internal/metrics"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsSendQueueDepth = 64

	// ackMsgType marks a binary ack message from the viewer:
	// [ackMsgType][frame_id u64][layer u8].
	ackMsgType = 0x01
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type ackKey struct {
	frameID uint64
	layer   uint8
}

type wsClient struct {
	id     string
	remote string
	conn   *websocket.Conn
	send   chan []byte
	queued atomic.Int64
	done   chan struct{}
}

// WebSocketSender fans encoded layers out to connected viewers and doubles
// as the socket hub behind /sockets and /sockets/clean.
type WebSocketSender struct {
	mu          sync.RWMutex
	clients     map[string]*wsClient
	emitWithAck atomic.Bool

	ackMu   sync.Mutex
	pending map[ackKey]chan string

	logger  logpkg.Logger
	metrics *metrics.Metrics
}

// NewWebSocketSender creates the hub. Viewers attach via HandleUpgrade.
func NewWebSocketSender(emitWithAck bool, m *metrics.Metrics, logger logpkg.Logger) *WebSocketSender {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	s := &WebSocketSender{
		clients: make(map[string]*wsClient),
		pending: make(map[ackKey]chan string),
		logger:  logger.With(logpkg.Component("egress.websocket")),
		metrics: m,
	}
	s.emitWithAck.Store(emitWithAck)
	return s
}

func (s *WebSocketSender) Protocol() Protocol { return ProtocolWebSocket }

// HandleUpgrade upgrades an HTTP request into a viewer connection.
func (s *WebSocketSender) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{
		id:     uuid.NewString(),
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, wsSendQueueDepth),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c.id] = c
	n := len(s.clients)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectedSockets.Set(float64(n))
	}
	s.logger.Info("viewer connected", logpkg.Str("socket", c.id), logpkg.Str("remote", c.remote))

	go s.writePump(c)
	go s.readPump(c)
}

func (s *WebSocketSender) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.queued.Add(-int64(len(msg)))
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *WebSocketSender) readPump(c *wsClient) {
	defer s.dropClient(c.id)
	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage || len(msg) < 10 || msg[0] != ackMsgType {
			continue
		}
		key := ackKey{
			frameID: binary.BigEndian.Uint64(msg[1:9]),
			layer:   msg[9],
		}
		s.ackMu.Lock()
		ch := s.pending[key]
		s.ackMu.Unlock()
		if ch != nil {
			select {
			case ch <- c.id:
			default:
			}
		}
	}
}

// Send enqueues the packet on every connected viewer. With emit_with_ack
// enabled it waits for the first application-level ack until the packet's
// deadline; an ack timeout reports Dropped(DeadlineExpired) and the layer is
// not retried.
func (s *WebSocketSender) Send(ctx context.Context, p Packet) (Result, error) {
	msg, err := Envelope{
		StreamID: p.StreamID,
		FrameID:  p.FrameID,
		Layer:    uint8(p.Layer),
		CodecID:  p.CodecID,
		Payload:  p.Payload,
	}.Marshal()
	if err != nil {
		return Result{}, err
	}

	s.mu.RLock()
	targets := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.RUnlock()
	if len(targets) == 0 {
		return Result{Status: StatusDispatched}, nil
	}

	waitAck := s.emitWithAck.Load()
	var ackCh chan string
	if waitAck {
		key := ackKey{frameID: p.FrameID, layer: uint8(p.Layer)}
		ackCh = make(chan string, 1)
		s.ackMu.Lock()
		s.pending[key] = ackCh
		s.ackMu.Unlock()
		defer func() {
			s.ackMu.Lock()
			delete(s.pending, key)
			s.ackMu.Unlock()
		}()
	}

	sent := 0
	for _, c := range targets {
		select {
		case c.send <- msg:
			c.queued.Add(int64(len(msg)))
			sent++
		default:
			// Slow viewer: skip rather than stall the scheduler.
		}
	}
	if sent == 0 {
		return Result{Status: StatusDropped, Reason: "Backpressure"}, nil
	}
	if s.metrics != nil {
		s.metrics.BytesSent.WithLabelValues(string(ProtocolWebSocket)).Add(float64(sent * len(msg)))
	}

	if !waitAck {
		return Result{Status: StatusDispatched}, nil
	}
	timer := time.NewTimer(time.Until(p.Deadline))
	defer timer.Stop()
	select {
	case <-ackCh:
		if s.metrics != nil {
			s.metrics.BytesAcked.WithLabelValues(string(ProtocolWebSocket)).Add(float64(len(msg)))
		}
		return Result{Status: StatusAcked}, nil
	case <-timer.C:
		return Result{Status: StatusDropped, Reason: "DeadlineExpired"}, nil
	case <-ctx.Done():
		return Result{Status: StatusDropped, Reason: "Cancelled"}, nil
	}
}

// Backpressure sums bytes enqueued but not yet written across viewers.
func (s *WebSocketSender) Backpressure() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, c := range s.clients {
		total += c.queued.Load()
	}
	return total
}

// SetEmitWithAck toggles ack-awaited sends; next frame picks it up.
func (s *WebSocketSender) SetEmitWithAck(v bool) { s.emitWithAck.Store(v) }

// SocketInfo describes a connected viewer for the control plane.
type SocketInfo struct {
	ID     string `json:"id"`
	Remote string `json:"remote"`
}

// Sockets lists connected viewers ordered by id.
func (s *WebSocketSender) Sockets() []SocketInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SocketInfo, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, SocketInfo{ID: c.id, Remote: c.remote})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clean disconnects the listed sockets and returns the ids actually dropped.
func (s *WebSocketSender) Clean(ids []string) []string {
	dropped := make([]string, 0, len(ids))
	for _, id := range ids {
		if s.dropClient(id) {
			dropped = append(dropped, id)
		}
	}
	return dropped
}

func (s *WebSocketSender) dropClient(id string) bool {
	s.mu.Lock()
	c, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
	}
	n := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return false
	}
	close(c.done)
	c.conn.Close()
	if s.metrics != nil {
		s.metrics.ConnectedSockets.Set(float64(n))
	}
	s.logger.Info("viewer disconnected", logpkg.Str("socket", id))
	return true
}

// Close disconnects every viewer.
func (s *WebSocketSender) Close() error {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*wsClient)
	s.mu.Unlock()
	for _, c := range clients {
		close(c.done)
		c.conn.Close()
	}
	if s.metrics != nil {
		s.metrics.ConnectedSockets.Set(0)
	}
	return nil
}
