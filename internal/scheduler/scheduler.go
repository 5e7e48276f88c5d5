package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/idlab-discover/pointcast/internal/buffer"
	"github.com/idlab-discover/pointcast/internal/codec"
	"github.com/idlab-discover/pointcast/internal/egress"
	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/metrics"
	"github.com/idlab-discover/pointcast/internal/pointcloud"
	"github.com/idlab-discover/pointcast/internal/registry"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

// Options tunes the scheduler at construction time.
type Options struct {
	// EncodeWorkers bounds concurrent codec encodes; 0 means 4.
	EncodeWorkers int
	// RingCapacity is the per-stream undispatched frame bound; 0 means
	// the buffer package default.
	RingCapacity int
}

// ProtoDefaults are the per-protocol egress defaults the control plane
// mutates through /egress/update_settings.
type ProtoDefaults struct {
	FPS       uint32
	Format    codec.Format
	QuantBits int
	MaxPoints int
	// BandwidthBits caps the channel; 0 leaves admission to the goodput
	// estimate alone.
	BandwidthBits uint64
}

// Scheduler owns one task per stream and the shared encode worker pool.
type Scheduler struct {
	reg     *registry.Registry
	fabric  *egress.Fabric
	metrics *metrics.Metrics
	logger  logpkg.Logger
	sem     *encodeSem

	ringCap int

	mu       sync.Mutex
	streams  map[string]*streamTask
	defaults map[egress.Protocol]*ProtoDefaults
}

// New wires the scheduler over the registry and dispatch fabric.
func New(reg *registry.Registry, fabric *egress.Fabric, m *metrics.Metrics, logger logpkg.Logger, opts Options) *Scheduler {
	workers := opts.EncodeWorkers
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	defaults := make(map[egress.Protocol]*ProtoDefaults)
	for _, p := range []egress.Protocol{egress.ProtocolWebSocket, egress.ProtocolWebRTC, egress.ProtocolFlute, egress.ProtocolFile} {
		defaults[p] = &ProtoDefaults{FPS: 30, Format: codec.FormatPly, QuantBits: 12, MaxPoints: 100_000}
	}
	return &Scheduler{
		reg:      reg,
		fabric:   fabric,
		metrics:  m,
		logger:   logger.With(logpkg.Component("scheduler")),
		sem:      newEncodeSem(workers),
		ringCap:  opts.RingCapacity,
		streams:  make(map[string]*streamTask),
		defaults: defaults,
	}
}

// Defaults returns a copy of the egress defaults for a protocol.
func (s *Scheduler) Defaults(p egress.Protocol) (ProtoDefaults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defaults[p]
	if !ok {
		return ProtoDefaults{}, fault.New(fault.KindNotFound, "no defaults for protocol %s", p)
	}
	return *d, nil
}

// UpdateDefaults mutates the egress defaults for a protocol. Changes apply
// from the next frame.
func (s *Scheduler) UpdateDefaults(p egress.Protocol, mutate func(*ProtoDefaults)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defaults[p]
	if !ok {
		return fault.New(fault.KindNotFound, "no defaults for protocol %s", p)
	}
	mutate(d)
	return nil
}

// task returns the stream's scheduler task, creating and starting it on
// first use.
func (s *Scheduler) task(streamID string) *streamTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.streams[streamID]; ok {
		return t
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &streamTask{
		s:        s,
		streamID: streamID,
		ring:     buffer.NewRing(s.ringCap),
		wake:     make(chan struct{}, 1),
		log:      newDispatchLog(0),
		goodput:  make(map[egress.Protocol]*goodputEstimator),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   s.logger.With(logpkg.Str("stream", streamID)),
	}
	t.ring.OnDrop = func(f *pointcloud.Frame) {
		t.log.add(Event{FrameID: f.FrameID, Kind: EventDropped, Reason: ReasonOverflow})
		if s.metrics != nil {
			s.metrics.RingOverflow.WithLabelValues(streamID).Inc()
			s.metrics.FramesDropped.WithLabelValues(streamID, ReasonOverflow).Inc()
		}
	}
	s.streams[streamID] = t
	go t.run()
	return t
}

// Ingest hands one frame to the stream's scheduler task. Frames are refused
// once the stream is draining or stopped.
func (s *Scheduler) Ingest(f *pointcloud.Frame) error {
	if state, err := s.reg.StateOf(f.StreamID); err == nil {
		if state == registry.StateDraining || state == registry.StateStopped {
			return fault.New(fault.KindInvalidTransition, "stream %q is %s", f.StreamID, state)
		}
	}
	t := s.task(f.StreamID)
	if s.metrics != nil {
		s.metrics.FramesIngested.WithLabelValues(f.StreamID).Inc()
		s.metrics.InFlightFrames.Inc()
	}
	t.ring.Push(f)
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// DispatchLog returns the stream's event history, oldest first.
func (s *Scheduler) DispatchLog(streamID string) []Event {
	s.mu.Lock()
	t, ok := s.streams[streamID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return t.log.Events()
}

// DrainStream waits until the stream's buffered frames resolve, bounded by
// ctx; callers set the grace through ctx's deadline.
func (s *Scheduler) DrainStream(ctx context.Context, streamID string) {
	s.mu.Lock()
	t, ok := s.streams[streamID]
	s.mu.Unlock()
	if !ok {
		return
	}
	t.drain(ctx)
}

// StopStream cancels the stream's task. Buffered frames resolve as dropped.
func (s *Scheduler) StopStream(streamID string) {
	s.mu.Lock()
	t, ok := s.streams[streamID]
	if ok {
		delete(s.streams, streamID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

// Close stops every stream task.
func (s *Scheduler) Close() {
	s.mu.Lock()
	tasks := make([]*streamTask, 0, len(s.streams))
	for _, t := range s.streams {
		tasks = append(tasks, t)
	}
	s.streams = make(map[string]*streamTask)
	s.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
		<-t.done
	}
}

// streamTask is the per-stream scheduling loop. It owns the frame ring; no
// other goroutine pops from it.
type streamTask struct {
	s        *Scheduler
	streamID string
	ring     *buffer.Ring
	wake     chan struct{}
	log      *dispatchLog
	logger   logpkg.Logger

	goodputMu sync.Mutex
	goodput   map[egress.Protocol]*goodputEstimator

	encLatMu sync.Mutex
	encLat   float64 // seconds, EWMA

	busy   sync.Mutex // held while processing one frame; drain uses it
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *streamTask) run() {
	defer close(t.done)
	for {
		select {
		case <-t.ctx.Done():
			for _, f := range t.ring.Drain() {
				t.terminal(f, Event{FrameID: f.FrameID, Kind: EventDropped, Reason: ReasonCancelled})
			}
			return
		case <-t.wake:
		}
		for {
			t.busy.Lock()
			f := t.ring.Pop()
			if f == nil {
				t.busy.Unlock()
				break
			}
			t.process(f)
			t.busy.Unlock()
		}
	}
}

// drain blocks until the ring empties and the in-flight frame resolves.
func (t *streamTask) drain(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if t.ring.Len() == 0 {
			t.busy.Lock() // waits for the current frame, if any
			t.busy.Unlock()
			if t.ring.Len() == 0 {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-t.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *streamTask) estimator(p egress.Protocol) *goodputEstimator {
	t.goodputMu.Lock()
	defer t.goodputMu.Unlock()
	g, ok := t.goodput[p]
	if !ok {
		g = newGoodputEstimator()
		t.goodput[p] = g
	}
	return g
}

func (t *streamTask) encodeLatency() time.Duration {
	t.encLatMu.Lock()
	defer t.encLatMu.Unlock()
	return time.Duration(t.encLat * float64(time.Second))
}

func (t *streamTask) observeEncode(d time.Duration) {
	t.encLatMu.Lock()
	t.encLat = goodputAlpha*d.Seconds() + (1-goodputAlpha)*t.encLat
	t.encLatMu.Unlock()
	if t.s.metrics != nil {
		t.s.metrics.EncodeSeconds.Observe(d.Seconds())
	}
}

// estEncodedSize predicts the codec output for a layer.
func estEncodedSize(points int, f codec.Format) int {
	switch f {
	case codec.FormatBitcode:
		return 33 + points*9
	default:
		// PLY-sized fallback for external codecs.
		return 120 + points*15
	}
}

// terminal records a frame's terminal event and releases its buffers.
func (t *streamTask) terminal(f *pointcloud.Frame, e Event) {
	t.log.add(e)
	if t.s.metrics != nil {
		t.s.metrics.InFlightFrames.Dec()
		switch e.Kind {
		case EventDropped:
			t.s.metrics.FramesDropped.WithLabelValues(t.streamID, e.Reason).Inc()
		default:
			t.s.metrics.FramesDelivered.WithLabelValues(t.streamID).Inc()
		}
	}
	f.Points = nil
}

type layerPlan struct {
	layer    pointcloud.Layer
	sender   egress.Sender
	protocol egress.Protocol
	admitted bool
	encoded  []byte
	err      error
}

// process runs one frame through snapshot, budget, partition, admission,
// encode, and dispatch. Planned -> Encoding -> Dispatching -> terminal.
func (t *streamTask) process(f *pointcloud.Frame) {
	settings := t.s.reg.Get(t.streamID) // consistent snapshot for this frame

	if !settings.ProcessIncomingFrames {
		t.terminal(f, Event{FrameID: f.FrameID, Kind: EventDropped, Reason: "ProcessingDisabled"})
		return
	}

	deadline := time.UnixMicro(f.DeadlineUs)
	remaining := time.Until(deadline)
	if remaining <= 0 {
		t.terminal(f, Event{FrameID: f.FrameID, Kind: EventDropped, Reason: ReasonDeadlinePreSchedule})
		return
	}

	protocols := settings.EgressProtocols
	if len(protocols) == 0 {
		t.terminal(f, Event{FrameID: f.FrameID, Kind: EventDropped, Reason: ReasonNoSender})
		return
	}
	baseProto := protocols[0]
	for _, p := range protocols {
		if p.Broadcast() {
			baseProto = p
			break
		}
	}
	unicast := make([]egress.Protocol, 0, len(protocols))
	for _, p := range protocols {
		if !p.Broadcast() {
			unicast = append(unicast, p)
		}
	}
	if len(unicast) == 0 {
		unicast = []egress.Protocol{baseProto}
	}

	baseDefaults, err := t.s.Defaults(baseProto)
	if err != nil {
		t.terminal(f, Event{FrameID: f.FrameID, Kind: EventDropped, Reason: ReasonNoSender})
		return
	}
	if baseDefaults.MaxPoints > 0 && len(f.Points) > baseDefaults.MaxPoints {
		f.Points = f.Points[:baseDefaults.MaxPoints]
	}

	layers, err := pointcloud.Partition(len(f.Points), settings.MaxPointPercentages)
	if err != nil {
		t.terminal(f, Event{FrameID: f.FrameID, Kind: EventDropped, Reason: ReasonCodec})
		return
	}

	plans := make([]*layerPlan, len(layers))
	for i, l := range layers {
		proto := baseProto
		if i > 0 {
			proto = unicast[(i-1)%len(unicast)]
		}
		plans[i] = &layerPlan{layer: l, protocol: proto, sender: t.s.fabric.Sender(proto)}
	}
	if plans[0].sender == nil {
		t.terminal(f, Event{FrameID: f.FrameID, Kind: EventDropped, Reason: ReasonNoSender})
		return
	}

	// Admission: the base is never shed; each enhancement must fit its
	// channel before the deadline.
	encLat := t.encodeLatency()
	plans[0].admitted = true
	for _, p := range plans[1:] {
		if p.sender == nil {
			t.shed(f, p, ReasonNoSender)
			continue
		}
		if congested, ok := p.sender.(interface{ Congested() bool }); ok && congested.Congested() {
			t.shed(f, p, ReasonBackpressure)
			continue
		}
		d, err := t.s.Defaults(p.protocol)
		if err != nil {
			t.shed(f, p, ReasonNoSender)
			continue
		}
		rate := t.estimator(p.protocol).Estimate()
		if d.BandwidthBits > 0 {
			if limit := float64(d.BandwidthBits) / 8; limit < rate {
				rate = limit
			}
		}
		est := estEncodedSize(p.layer.Count(), d.Format)
		xfer := time.Duration(float64(est) / rate * float64(time.Second))
		if xfer+encLat >= time.Until(deadline) {
			t.shed(f, p, ReasonDeadlineExpired)
			continue
		}
		p.admitted = true
	}

	// Encoding: commission admitted layers in parallel on the pool.
	var wg sync.WaitGroup
	for _, p := range plans {
		if !p.admitted {
			continue
		}
		wg.Add(1)
		go func(p *layerPlan) {
			defer wg.Done()
			if err := t.s.sem.Acquire(t.ctx, settings.Priority, t.streamID); err != nil {
				p.err = err
				return
			}
			defer t.s.sem.Release()
			d, _ := t.s.Defaults(p.protocol)
			start := time.Now()
			p.encoded, p.err = codec.Encode(f.Slice(p.layer), d.Format, d.QuantBits, 0)
			if p.err == nil {
				t.observeEncode(time.Since(start))
			}
		}(p)
	}
	wg.Wait()

	if plans[0].err != nil {
		t.logger.Warn("base encode failed", logpkg.Uint64("frame_id", f.FrameID), logpkg.Err(plans[0].err))
		t.terminal(f, Event{FrameID: f.FrameID, Kind: EventDropped, Reason: ReasonCodec})
		return
	}

	// Dispatching: base first, then enhancements in layer order. FIFO per
	// (stream, layer) holds because this loop is the only dispatcher for
	// the stream.
	ctx, cancelFrame := context.WithDeadline(t.ctx, deadline)
	defer cancelFrame()

	baseFormat, _ := t.s.Defaults(baseProto)
	res, err := plans[0].sender.Send(ctx, egress.Packet{
		StreamID: t.streamID,
		FrameID:  f.FrameID,
		Layer:    0,
		CodecID:  baseFormat.Format.ID(),
		Payload:  plans[0].encoded,
		Pose:     f.Pose,
		Deadline: deadline,
	})
	if err != nil || res.Status == egress.StatusDropped {
		reason := ReasonDeadlineExpired
		if err == nil && res.Reason != "" {
			reason = res.Reason
		}
		t.terminal(f, Event{FrameID: f.FrameID, Kind: EventDropped, Reason: reason})
		return
	}
	if res.Status == egress.StatusAcked {
		t.estimator(baseProto).Observe(len(plans[0].encoded), time.Since(time.UnixMicro(f.ArrivalUs)))
	}

	delivered := 0
	lost := false
	for _, p := range plans[1:] {
		if !p.admitted {
			lost = true
			continue
		}
		if p.err != nil {
			t.shed(f, p, ReasonCodec)
			lost = true
			continue
		}
		// Pre-emption: a newer frame with a closer deadline takes the
		// channel; remaining enhancements of this frame are shed.
		if next := t.ring.Peek(); next != nil && next.DeadlineUs < f.DeadlineUs {
			t.shed(f, p, ReasonPreempted)
			lost = true
			continue
		}
		if time.Until(deadline) <= 0 {
			t.shed(f, p, ReasonDeadlineExpired)
			lost = true
			continue
		}
		d, _ := t.s.Defaults(p.protocol)
		start := time.Now()
		res, err := p.sender.Send(ctx, egress.Packet{
			StreamID: t.streamID,
			FrameID:  f.FrameID,
			Layer:    p.layer.Index,
			CodecID:  d.Format.ID(),
			Payload:  p.encoded,
			Pose:     f.Pose,
			Deadline: deadline,
		})
		if err != nil {
			t.shed(f, p, ReasonCancelled)
			lost = true
			continue
		}
		switch res.Status {
		case egress.StatusAcked:
			t.estimator(p.protocol).Observe(len(p.encoded), time.Since(start))
			if delivered == p.layer.Index-1 {
				delivered = p.layer.Index
			}
		case egress.StatusDispatched:
			if delivered == p.layer.Index-1 {
				delivered = p.layer.Index
			}
		case egress.StatusDropped:
			// An ack timeout is terminal for the layer: a retransmit
			// would miss the deadline by definition.
			t.shed(f, p, res.Reason)
			lost = true
		}
	}

	kind := EventDelivered
	if lost {
		kind = EventPartiallyDelivered
	}
	t.terminal(f, Event{FrameID: f.FrameID, Kind: kind, Level: delivered})
	t.logger.Debug("frame resolved",
		logpkg.Uint64("frame_id", f.FrameID),
		logpkg.Str("kind", string(kind)),
		logpkg.Int("level", delivered))
}

func (t *streamTask) shed(f *pointcloud.Frame, p *layerPlan, reason string) {
	t.log.add(Event{FrameID: f.FrameID, Kind: EventShed, Layer: p.layer.Index, Reason: reason})
	if t.s.metrics != nil {
		t.s.metrics.LayersShed.WithLabelValues(t.streamID, reason).Inc()
	}
}
