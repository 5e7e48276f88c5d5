package runtime

import (
	"context"
	"os"

	"github.com/idlab-discover/pointcast/internal/codec"
	cfgpkg "github.com/idlab-discover/pointcast/internal/config"
	"github.com/idlab-discover/pointcast/internal/egress"
	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/jobs"
	"github.com/idlab-discover/pointcast/internal/metrics"
	"github.com/idlab-discover/pointcast/internal/registry"
	"github.com/idlab-discover/pointcast/internal/scheduler"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
}

// Runtime owns the core subsystems for a single-node instance.
type Runtime struct {
	config cfgpkg.Config
	logger logpkg.Logger

	metrics    *metrics.Metrics
	reg        *registry.Registry
	fabric     *egress.Fabric
	sched      *scheduler.Scheduler
	supervisor *jobs.Supervisor

	websocket *egress.WebSocketSender
	webrtc    *egress.WebRTCSender
	flute     *egress.FluteSender
}

// Open builds every subsystem and returns the Runtime. All state is
// in-memory; nothing survives a restart.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		formatter := logpkg.Formatter(&logpkg.TextFormatter{})
		if cfg.LogFormat == "json" {
			formatter = &logpkg.JSONFormatter{}
		}
		logger = logpkg.NewLogger(
			logpkg.WithLevel(logpkg.ParseLevel(cfg.LogLevel)),
			logpkg.WithFormatter(formatter),
		)
	}

	m := metrics.New()
	reg := registry.New(logger)

	flute, err := egress.NewFluteSender(egress.FluteOptions{
		Addr:            cfg.Flute.Addr,
		BandwidthBits:   cfg.Flute.BandwidthBits,
		FECPercentage:   cfg.Flute.FECPercentage,
		ContentEncoding: cfg.Flute.ContentEncoding,
		MD5:             cfg.Flute.MD5,
	}, m, logger)
	if err != nil {
		return nil, err
	}
	webrtc, err := egress.NewWebRTCSender(egress.WebRTCOptions{
		PortMin:            cfg.WebRTC.PortMin,
		PortMax:            cfg.WebRTC.PortMax,
		HighWatermarkBytes: cfg.WebRTC.HighWatermarkBytes,
		STUNServers:        cfg.WebRTC.STUNServers,
	}, m, logger)
	if err != nil {
		flute.Close()
		return nil, err
	}
	websocket := egress.NewWebSocketSender(cfg.Egress.EmitWithAck, m, logger)
	file, err := egress.NewFileSender(cfg.DumpDir, m, logger)
	if err != nil {
		flute.Close()
		webrtc.Close()
		return nil, err
	}

	fabric := egress.NewFabric(flute, webrtc, websocket, file)
	sched := scheduler.New(reg, fabric, m, logger, scheduler.Options{
		EncodeWorkers: cfg.EncodeWorkers,
		RingCapacity:  cfg.RingCapacity,
	})
	if format, err := codec.ParseFormat(cfg.Egress.EncodingFormat); err == nil {
		for _, p := range []egress.Protocol{egress.ProtocolWebSocket, egress.ProtocolWebRTC, egress.ProtocolFlute, egress.ProtocolFile} {
			_ = sched.UpdateDefaults(p, func(d *scheduler.ProtoDefaults) {
				d.FPS = cfg.Egress.FPS
				d.Format = format
				d.QuantBits = cfg.Egress.QuantBits
				d.MaxPoints = cfg.Egress.MaxPoints
			})
		}
	}
	supervisor := jobs.NewSupervisor(reg, sched, cfg.DatasetsRoot, m, logger)

	return &Runtime{
		config:     cfg,
		logger:     logger,
		metrics:    m,
		reg:        reg,
		fabric:     fabric,
		sched:      sched,
		supervisor: supervisor,
		websocket:  websocket,
		webrtc:     webrtc,
		flute:      flute,
	}, nil
}

// Close stops jobs, scheduler tasks, and senders, in dependency order.
func (r *Runtime) Close() error {
	r.supervisor.StopAll()
	r.sched.Close()
	return r.fabric.Close()
}

// CheckHealth verifies the datasets root is reachable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if _, err := os.Stat(r.config.DatasetsRoot); err != nil {
		return fault.Wrap(err, fault.KindIo, "datasets root unavailable")
	}
	return nil
}

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the root logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// Metrics returns the instrument bundle.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Registry returns the stream registry.
func (r *Runtime) Registry() *registry.Registry { return r.reg }

// Fabric returns the egress dispatch fabric.
func (r *Runtime) Fabric() *egress.Fabric { return r.fabric }

// Scheduler returns the deadline scheduler.
func (r *Runtime) Scheduler() *scheduler.Scheduler { return r.sched }

// Supervisor returns the job supervisor.
func (r *Runtime) Supervisor() *jobs.Supervisor { return r.supervisor }

// WebSocket returns the websocket hub for HTTP upgrades and socket admin.
func (r *Runtime) WebSocket() *egress.WebSocketSender { return r.websocket }

// WebRTC returns the WebRTC endpoint for signaling.
func (r *Runtime) WebRTC() *egress.WebRTCSender { return r.webrtc }

// Flute returns the broadcast sender for egress settings updates.
func (r *Runtime) Flute() *egress.FluteSender { return r.flute }
