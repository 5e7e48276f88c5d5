package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/idlab-discover/pointcast/internal/egress"
	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/metrics"
	"github.com/idlab-discover/pointcast/internal/pointcloud"
	"github.com/idlab-discover/pointcast/internal/registry"
	"github.com/idlab-discover/pointcast/pkg/id"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

// State is a job's lifecycle state.
type State string

const (
	StatePending  State = "PENDING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
	StateStopped  State = "STOPPED"
)

// failWindow is the interval within which a second producer failure stops
// the job instead of restarting the task.
const failWindow = 10 * time.Second

// Pipeline is the slice of the scheduler the supervisor drives.
type Pipeline interface {
	Ingest(f *pointcloud.Frame) error
	DrainStream(ctx context.Context, streamID string)
	StopStream(streamID string)
}

// Params describe a transmission job request.
type Params struct {
	Dataset                  string
	PlyFolder                string
	FPS                      uint32
	PresentationTimeOffsetMs uint64
	ShouldLoop               bool
	Priority                 *uint8
	EgressProtocol           egress.Protocol
	StreamID                 string
	GeneratorName            string
}

// Summary is the list-view projection of a job.
type Summary struct {
	JobID    string          `json:"job_id"`
	StreamID string          `json:"stream_id"`
	State    State           `json:"state"`
	Failed   bool            `json:"failed,omitempty"`
	Protocol egress.Protocol `json:"egress_protocol"`
	FPS      uint32          `json:"fps"`
}

type job struct {
	id       string
	streamID string
	params   Params
	cancel   context.CancelFunc
	done     chan struct{}

	mu       sync.Mutex
	state    State
	failed   bool
	failures []time.Time
}

func (j *job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *job) getState() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Supervisor owns all producer tasks.
type Supervisor struct {
	reg      *registry.Registry
	pipeline Pipeline
	metrics  *metrics.Metrics
	logger   logpkg.Logger

	datasetsRoot string
	ids          *id.Generator

	mu   sync.Mutex
	jobs map[string]*job
}

// NewSupervisor wires the job supervisor.
func NewSupervisor(reg *registry.Registry, pipeline Pipeline, datasetsRoot string, m *metrics.Metrics, logger logpkg.Logger) *Supervisor {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Supervisor{
		reg:          reg,
		pipeline:     pipeline,
		metrics:      m,
		logger:       logger.With(logpkg.Component("jobs")),
		datasetsRoot: datasetsRoot,
		ids:          id.NewGenerator("job"),
		jobs:         make(map[string]*job),
	}
}

// Start validates the request, walks the stream to ACTIVE, and launches the
// producer task.
func (s *Supervisor) Start(p Params) (string, error) {
	if p.Dataset == "" && p.GeneratorName == "" {
		return "", fault.New(fault.KindInvalidArgument, "either dataset or generator_name must be provided")
	}
	if p.FPS == 0 {
		return "", fault.New(fault.KindInvalidArgument, "fps must be positive")
	}
	var source frameSource
	if p.Dataset != "" {
		ds, err := newDatasetSource(s.datasetsRoot, p.Dataset, p.PlyFolder, p.ShouldLoop)
		if err != nil {
			return "", err
		}
		source = ds
	} else {
		gen, ok := pointcloud.ParseGenerator(p.GeneratorName)
		if !ok {
			return "", fault.New(fault.KindInvalidArgument, "unknown generator %q", p.GeneratorName)
		}
		source = &generatorSource{name: gen}
	}

	jobID := s.ids.Next()
	streamID := p.StreamID
	if streamID == "" {
		streamID = "job_" + jobID
	}

	// Seed the stream's settings from the job parameters.
	patch := registry.Patch{
		EgressProtocols:          &[]egress.Protocol{p.EgressProtocol},
		PresentationTimeOffsetMs: &p.PresentationTimeOffsetMs,
	}
	if p.Priority != nil {
		patch.Priority = p.Priority
	}
	if _, err := s.reg.Update(streamID, patch); err != nil {
		return "", err
	}

	// IDLE -> ADMITTED -> ACTIVE; a stream already past IDLE (for example
	// held ACTIVE by another job) refuses the transition.
	if state, _ := s.reg.StateOf(streamID); state == registry.StateStopped {
		if err := s.reg.Reset(streamID); err != nil {
			return "", err
		}
	}
	if err := s.reg.Admit(streamID); err != nil {
		return "", err
	}
	if err := s.reg.Activate(streamID, jobID); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:       jobID,
		streamID: streamID,
		params:   p,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    StatePending,
	}
	s.mu.Lock()
	s.jobs[jobID] = j
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveJobs.Inc()
	}

	go s.supervise(ctx, j, source)
	s.logger.Info("job started",
		logpkg.Str("job", jobID),
		logpkg.Str("stream", streamID),
		logpkg.Str("protocol", string(p.EgressProtocol)))
	return jobID, nil
}

// supervise runs the producer, restarting it after a panic and stopping the
// job after two failures inside failWindow.
func (s *Supervisor) supervise(ctx context.Context, j *job, source frameSource) {
	defer close(j.done)
	j.setState(StateRunning)

	var frameID uint64
	for {
		completed := s.runProducer(ctx, j, source, &frameID)
		if completed || ctx.Err() != nil {
			break
		}
		// The producer panicked. Track the failure and decide.
		now := time.Now()
		j.mu.Lock()
		j.failures = append(j.failures, now)
		recent := 0
		for _, ts := range j.failures {
			if now.Sub(ts) <= failWindow {
				recent++
			}
		}
		j.mu.Unlock()
		if recent >= 2 {
			s.logger.Error("producer failed twice, stopping job", logpkg.Str("job", j.id))
			j.mu.Lock()
			j.failed = true
			j.mu.Unlock()
			break
		}
		s.logger.Warn("producer restarted after failure", logpkg.Str("job", j.id))
	}

	s.finish(j)
}

// runProducer drives ticks until the source ends, the context is cancelled,
// or a panic escapes the tick body. Returns true on orderly completion.
func (s *Supervisor) runProducer(ctx context.Context, j *job, source frameSource, frameID *uint64) (completed bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("producer panic",
				logpkg.Str("job", j.id),
				logpkg.Str("panic", toString(r)))
			completed = false
		}
	}()

	interval := time.Second / time.Duration(j.params.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
		}

		points, ok := source.Next()
		if !ok {
			return true
		}
		if len(points) == 0 {
			continue
		}

		settings := s.reg.Get(j.streamID)
		now := time.Now()
		*frameID++
		frame := &pointcloud.Frame{
			StreamID:   j.streamID,
			FrameID:    *frameID,
			ArrivalUs:  now.UnixMicro(),
			DeadlineUs: now.Add(time.Duration(settings.PresentationTimeOffsetMs) * time.Millisecond).UnixMicro(),
			Points:     points,
			Pose:       settings.Pose,
		}
		if err := s.pipeline.Ingest(frame); err != nil {
			// Draining or stopped stream: the job is done producing.
			return true
		}
	}
}

// finish drains in-flight frames and walks the stream to STOPPED.
func (s *Supervisor) finish(j *job) {
	j.setState(StateStopping)

	settings := s.reg.Get(j.streamID)
	grace := time.Duration(settings.PresentationTimeOffsetMs)*time.Millisecond + 250*time.Millisecond
	drainCtx, cancel := context.WithTimeout(context.Background(), grace)
	s.pipeline.DrainStream(drainCtx, j.streamID)
	cancel()

	if state, _ := s.reg.StateOf(j.streamID); state == registry.StateActive {
		_ = s.reg.Drain(j.streamID)
	}
	_ = s.reg.Stop(j.streamID)
	s.pipeline.StopStream(j.streamID)

	j.setState(StateStopped)
	if s.metrics != nil {
		s.metrics.ActiveJobs.Dec()
	}
	s.logger.Info("job stopped", logpkg.Str("job", j.id), logpkg.Str("stream", j.streamID))
}

// Stop cancels one job and blocks until it is fully stopped. A second Stop
// with the same id reports NotFound.
func (s *Supervisor) Stop(jobID string) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if ok {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()
	if !ok {
		return fault.New(fault.KindNotFound, "job %q not found", jobID)
	}
	j.cancel()
	<-j.done
	return nil
}

// StopAll stops every job and returns the ids stopped.
func (s *Supervisor) StopAll() []string {
	s.mu.Lock()
	all := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		all = append(all, j)
	}
	s.jobs = make(map[string]*job)
	s.mu.Unlock()

	ids := make([]string, 0, len(all))
	for _, j := range all {
		j.cancel()
		<-j.done
		ids = append(ids, j.id)
	}
	return ids
}

// List returns summaries of the jobs not yet removed by Stop or StopAll. A
// job whose source ended on its own stays listed, in state STOPPED.
func (s *Supervisor) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		out = append(out, Summary{
			JobID:    j.id,
			StreamID: j.streamID,
			State:    j.state,
			Failed:   j.failed,
			Protocol: j.params.EgressProtocol,
			FPS:      j.params.FPS,
		})
		j.mu.Unlock()
	}
	return out
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "panic"
}
