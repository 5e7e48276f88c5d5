package registry

import (
	"sort"
	"sync"

	"github.com/idlab-discover/pointcast/internal/fault"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

type record struct {
	patch     Patch
	state     State
	activeJob string
}

// Registry is the process-wide stream table. It is created explicitly at
// startup and torn down on shutdown; there is no lazy singleton.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*record
	logger  logpkg.Logger
}

// New returns a Registry seeded with the __default__ stream.
func New(logger logpkg.Logger) *Registry {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Registry{
		streams: map[string]*record{
			DefaultStreamID: {state: StateIdle},
		},
		logger: logger.With(logpkg.Component("registry")),
	}
}

// resolveLocked merges a stream's explicit fields over __default__.
// Callers hold at least the read lock.
func (r *Registry) resolveLocked(streamID string) Settings {
	s := baseDefaults()
	s.apply(r.streams[DefaultStreamID].patch)
	s.StreamID = streamID
	if streamID == DefaultStreamID {
		return s
	}
	if rec, ok := r.streams[streamID]; ok {
		s.apply(rec.patch)
	}
	return s
}

// Get returns the merged settings snapshot for a stream, creating the stream
// record if it does not exist yet.
func (r *Registry) Get(streamID string) Settings {
	r.mu.RLock()
	_, known := r.streams[streamID]
	if known {
		s := r.resolveLocked(streamID)
		r.mu.RUnlock()
		return s
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[streamID]; !ok {
		r.streams[streamID] = &record{state: StateIdle}
	}
	return r.resolveLocked(streamID)
}

// Update applies a sparse patch to the stream and returns the resulting
// merged settings. Validation failures leave the stream untouched.
func (r *Registry) Update(streamID string, p Patch) (Settings, error) {
	if p.MaxPointPercentages != nil && len(*p.MaxPointPercentages) > 0 {
		sum := 0
		for _, pct := range *p.MaxPointPercentages {
			sum += int(pct)
		}
		if sum != 100 {
			return Settings{}, fault.New(fault.KindInvalidArgument, "max_point_percentages must sum to 100, got %d", sum)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.streams[streamID]
	if !ok {
		rec = &record{state: StateIdle}
		r.streams[streamID] = rec
	}
	rec.patch.merge(p)
	return r.resolveLocked(streamID), nil
}

// List returns summaries for all known streams ordered by stream id.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.streams))
	for id, rec := range r.streams {
		out = append(out, Summary{
			Settings:  r.resolveLocked(id),
			State:     rec.state,
			ActiveJob: rec.activeJob,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

// StateOf returns the stream's lifecycle state.
func (r *Registry) StateOf(streamID string) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.streams[streamID]
	if !ok {
		return "", fault.New(fault.KindNotFound, "stream %q not found", streamID)
	}
	return rec.state, nil
}

// Admit moves an IDLE stream to ADMITTED.
func (r *Registry) Admit(streamID string) error {
	return r.transition(streamID, "", StateAdmitted, StateIdle)
}

// Activate moves an ADMITTED stream to ACTIVE on behalf of a job. At most
// one job may hold a stream active.
func (r *Registry) Activate(streamID, jobID string) error {
	if streamID == DefaultStreamID {
		return fault.New(fault.KindInvalidTransition, "__default__ may not be activated")
	}
	return r.transition(streamID, jobID, StateActive, StateAdmitted)
}

// Drain moves an ACTIVE stream to DRAINING: new frames are rejected while
// in-flight frames run to their deadlines.
func (r *Registry) Drain(streamID string) error {
	return r.transition(streamID, "", StateDraining, StateActive)
}

// Stop terminates a stream from ADMITTED or DRAINING.
func (r *Registry) Stop(streamID string) error {
	if streamID == DefaultStreamID {
		return fault.New(fault.KindInvalidTransition, "__default__ may not be stopped")
	}
	return r.transition(streamID, "", StateStopped, StateAdmitted, StateDraining)
}

// Reset returns a STOPPED stream to IDLE so a new job can reuse the id.
func (r *Registry) Reset(streamID string) error {
	return r.transition(streamID, "", StateIdle, StateStopped)
}

func (r *Registry) transition(streamID, jobID string, to State, from ...State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.streams[streamID]
	if !ok {
		return fault.New(fault.KindNotFound, "stream %q not found", streamID)
	}
	allowed := false
	for _, f := range from {
		if rec.state == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return fault.New(fault.KindInvalidTransition, "stream %q: %s -> %s", streamID, rec.state, to)
	}
	r.logger.Debug("stream transition",
		logpkg.Str("stream", streamID),
		logpkg.Str("from", string(rec.state)),
		logpkg.Str("to", string(to)))
	rec.state = to
	switch to {
	case StateActive:
		rec.activeJob = jobID
	case StateStopped, StateIdle:
		rec.activeJob = ""
	}
	return nil
}

// ActiveJob returns the job currently holding the stream ACTIVE, if any.
func (r *Registry) ActiveJob(streamID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.streams[streamID]; ok {
		return rec.activeJob
	}
	return ""
}
