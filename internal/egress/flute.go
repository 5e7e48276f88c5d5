package egress

import (
	"context"
	"net"
	"sync"

	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/fec"
	"github.com/idlab-discover/pointcast/internal/metrics"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

// FluteSender is the broadcast channel: unreliable UDP multicast carrying
// FEC-protected base layers. There are no per-client acks; reliability comes
// entirely from the repair symbols.
type FluteSender struct {
	mu    sync.Mutex
	conn  *net.UDPConn
	pacer *pacer

	fecPct          float64
	contentEncoding string
	md5             bool

	logger  logpkg.Logger
	metrics *metrics.Metrics
}

// FluteOptions configures the broadcast sender.
type FluteOptions struct {
	// Addr is the destination group, host:port.
	Addr string
	// BandwidthBits caps the send rate; 0 disables pacing.
	BandwidthBits uint64
	// FECPercentage is the repair-to-source ratio in [0,1].
	FECPercentage float64
	// ContentEncoding is applied after codec encoding, before FEC.
	ContentEncoding string
	// MD5 appends a digest over the payload before FEC.
	MD5 bool
}

// NewFluteSender opens the UDP socket and returns the sender.
func NewFluteSender(opts FluteOptions, m *metrics.Metrics, logger logpkg.Logger) (*FluteSender, error) {
	raddr, err := net.ResolveUDPAddr("udp", opts.Addr)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindIo, "resolving flute endpoint %s", opts.Addr)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindIo, "opening flute socket")
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &FluteSender{
		conn:            conn,
		pacer:           newPacer(opts.BandwidthBits),
		fecPct:          opts.FECPercentage,
		contentEncoding: opts.ContentEncoding,
		md5:             opts.MD5,
		logger:          logger.With(logpkg.Component("egress.flute")),
		metrics:         m,
	}, nil
}

func (s *FluteSender) Protocol() Protocol { return ProtocolFlute }

// Send encodes the packet into a FEC block and emits all symbols, or drops
// the whole frame when the bandwidth budget refuses it, so a bandwidth refusal
// never emits part of a frame. Cancellation or a write error stops emission
// between symbols.
func (s *FluteSender) Send(ctx context.Context, p Packet) (Result, error) {
	s.mu.Lock()
	pct, cenc, withMD5 := s.fecPct, s.contentEncoding, s.md5
	s.mu.Unlock()

	payload, err := ApplyContentEncoding(p.Payload, cenc)
	if err != nil {
		return Result{}, err
	}
	if withMD5 {
		payload = AppendDigest(payload)
	}

	symbols, err := fec.Encode(p.FrameID, uint8(p.Layer), payload, pct)
	if err != nil {
		return Result{}, err
	}
	total := 0
	for _, sym := range symbols {
		total += fec.HeaderLen + len(sym.Data)
	}
	if !s.pacer.Admit(total) {
		return Result{Status: StatusDropped, Reason: "Bandwidth"}, nil
	}

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return Result{Status: StatusDropped, Reason: "Cancelled"}, nil
		}
		if _, err := s.conn.Write(sym.Marshal()); err != nil {
			return Result{}, fault.Wrap(err, fault.KindIo, "flute write")
		}
	}
	if s.metrics != nil {
		s.metrics.BytesSent.WithLabelValues(string(ProtocolFlute)).Add(float64(total))
		s.metrics.FECBlocksSent.Inc()
	}
	s.logger.Debug("block emitted",
		logpkg.Uint64("frame_id", p.FrameID),
		logpkg.Int("symbols", len(symbols)),
		logpkg.Int("bytes", total))
	return Result{Status: StatusDispatched}, nil
}

// Backpressure is always zero: datagrams leave immediately or the frame is
// dropped.
func (s *FluteSender) Backpressure() int64 { return 0 }

// Close releases the socket.
func (s *FluteSender) Close() error {
	return s.conn.Close()
}

// SetBandwidth updates the pacing cap; takes effect on the next frame.
func (s *FluteSender) SetBandwidth(bitsPerSec uint64) { s.pacer.SetRate(bitsPerSec) }

// SetFECPercentage updates the repair ratio; takes effect on the next frame.
func (s *FluteSender) SetFECPercentage(pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fecPct = pct
}

// SetContentEncoding updates the post-codec compression scheme.
func (s *FluteSender) SetContentEncoding(scheme string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contentEncoding = scheme
}

// SetMD5 toggles digest suffixing.
func (s *FluteSender) SetMD5(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.md5 = enabled
}
