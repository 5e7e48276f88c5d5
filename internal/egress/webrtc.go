package egress

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/metrics"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

// defaultHighWatermark is the buffered-bytes threshold above which a peer's
// data channel is considered congested and enhancements may be shed.
const defaultHighWatermark = 1 << 20

// WebRTCSender delivers enhancement layers over ordered, reliable data
// channels, one peer connection per viewer.
type WebRTCSender struct {
	api           *webrtc.API
	iceServers    []webrtc.ICEServer
	highWatermark uint64

	mu    sync.RWMutex
	peers map[string]*rtcPeer

	logger  logpkg.Logger
	metrics *metrics.Metrics
}

type rtcPeer struct {
	id string
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel
}

// WebRTCOptions configures the unicast WebRTC endpoint.
type WebRTCOptions struct {
	// PortMin/PortMax restrict the ephemeral UDP range; 0 leaves it open.
	PortMin, PortMax uint16
	// HighWatermarkBytes overrides the congestion threshold per channel.
	HighWatermarkBytes uint64
	// STUNServers for NAT traversal, e.g. "stun:stun.l.google.com:19302".
	STUNServers []string
}

// NewWebRTCSender builds the pion API with the configured setting engine.
func NewWebRTCSender(opts WebRTCOptions, m *metrics.Metrics, logger logpkg.Logger) (*WebRTCSender, error) {
	se := webrtc.SettingEngine{}
	if opts.PortMin > 0 && opts.PortMax >= opts.PortMin {
		if err := se.SetEphemeralUDPPortRange(opts.PortMin, opts.PortMax); err != nil {
			return nil, fault.Wrap(err, fault.KindIo, "setting UDP port range")
		}
	}
	hw := opts.HighWatermarkBytes
	if hw == 0 {
		hw = defaultHighWatermark
	}
	var ice []webrtc.ICEServer
	if len(opts.STUNServers) > 0 {
		ice = append(ice, webrtc.ICEServer{URLs: opts.STUNServers})
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &WebRTCSender{
		api:           webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		iceServers:    ice,
		highWatermark: hw,
		peers:         make(map[string]*rtcPeer),
		logger:        logger.With(logpkg.Component("egress.webrtc")),
		metrics:       m,
	}, nil
}

func (s *WebRTCSender) Protocol() Protocol { return ProtocolWebRTC }

// HandleOffer answers a viewer's SDP offer, creating the peer connection and
// its data channel. An existing peer with the same id is replaced.
func (s *WebRTCSender) HandleOffer(clientID, offerSDP string) (string, error) {
	pc, err := s.api.NewPeerConnection(webrtc.Configuration{ICEServers: s.iceServers})
	if err != nil {
		return "", fault.Wrap(err, fault.KindIo, "creating peer connection")
	}
	dc, err := pc.CreateDataChannel("pointcast", nil)
	if err != nil {
		pc.Close()
		return "", fault.Wrap(err, fault.KindIo, "creating data channel")
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		pc.Close()
		return "", fault.Wrap(err, fault.KindInvalidArgument, "bad SDP offer")
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", fault.Wrap(err, fault.KindIo, "creating answer")
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", fault.Wrap(err, fault.KindIo, "setting local description")
	}
	select {
	case <-gathered:
	case <-time.After(5 * time.Second):
	}

	peer := &rtcPeer{id: clientID, pc: pc, dc: dc}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Info("peer state changed",
			logpkg.Str("client", clientID),
			logpkg.Str("state", state.String()))
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			s.removePeer(clientID, peer)
		}
	})

	s.mu.Lock()
	if old, ok := s.peers[clientID]; ok {
		old.pc.Close()
	}
	s.peers[clientID] = peer
	s.mu.Unlock()

	return pc.LocalDescription().SDP, nil
}

// Send pushes the packet onto every open data channel whose buffered amount
// is under the high watermark. When every channel is above it, the result is
// Dropped(Backpressure) so the scheduler can shed subsequent enhancements.
func (s *WebRTCSender) Send(ctx context.Context, p Packet) (Result, error) {
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
	peers := make([]*rtcPeer, 0, len(s.peers))
	for _, peer := range s.peers {
		peers = append(peers, peer)
	}
	s.mu.RUnlock()
	if len(peers) == 0 {
		return Result{Status: StatusDispatched}, nil
	}

	sent, congested := 0, 0
	for _, peer := range peers {
		if peer.dc.ReadyState() != webrtc.DataChannelStateOpen {
			continue
		}
		if peer.dc.BufferedAmount() > s.highWatermark {
			congested++
			continue
		}
		if err := peer.dc.Send(msg); err != nil {
			s.logger.Warn("data channel send failed",
				logpkg.Str("client", peer.id), logpkg.Err(err))
			continue
		}
		sent++
	}
	if sent == 0 && congested > 0 {
		return Result{Status: StatusDropped, Reason: "Backpressure"}, nil
	}
	if s.metrics != nil && sent > 0 {
		s.metrics.BytesSent.WithLabelValues(string(ProtocolWebRTC)).Add(float64(sent * len(msg)))
	}
	return Result{Status: StatusDispatched}, nil
}

// Backpressure sums buffered bytes across open data channels.
func (s *WebRTCSender) Backpressure() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, peer := range s.peers {
		total += int64(peer.dc.BufferedAmount())
	}
	return total
}

// Congested reports whether any channel is past the high watermark; the
// scheduler uses this as the shed signal for upcoming frames.
func (s *WebRTCSender) Congested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, peer := range s.peers {
		if peer.dc.BufferedAmount() > s.highWatermark {
			return true
		}
	}
	return false
}

func (s *WebRTCSender) removePeer(clientID string, expect *rtcPeer) {
	s.mu.Lock()
	if cur, ok := s.peers[clientID]; ok && cur == expect {
		delete(s.peers, clientID)
	}
	s.mu.Unlock()
}

// ClosePeer disconnects one viewer.
func (s *WebRTCSender) ClosePeer(clientID string) error {
	s.mu.Lock()
	peer, ok := s.peers[clientID]
	if ok {
		delete(s.peers, clientID)
	}
	s.mu.Unlock()
	if !ok {
		return fault.New(fault.KindNotFound, "peer %q not found", clientID)
	}
	return peer.pc.Close()
}

// Close tears down every peer connection.
func (s *WebRTCSender) Close() error {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[string]*rtcPeer)
	s.mu.Unlock()
	var first error
	for _, peer := range peers {
		if err := peer.pc.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
