package controllers

import (
	"net/http"
	"strconv"

	"github.com/idlab-discover/pointcast/internal/egress"
	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/jobs"
	"github.com/idlab-discover/pointcast/internal/runtime"
)

// JobsController starts and stops transmission jobs.
type JobsController struct {
	rt *runtime.Runtime
}

// NewJobsController creates the controller.
func NewJobsController(rt *runtime.Runtime) *JobsController {
	return &JobsController{rt: rt}
}

// RegisterRoutes registers job endpoints on the mux.
func (c *JobsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/start_job", c.handleStart)
	mux.HandleFunc("/stop_job", c.handleStop)
	mux.HandleFunc("/stop_all_jobs", c.handleStopAll)
	mux.HandleFunc("/jobs", c.handleList)
}

// handleStart validates the query parameters and launches a job.
func (c *JobsController) handleStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	proto, err := egress.ParseProtocol(q.Get("egress_protocol"))
	if err != nil {
		writeError(w, err)
		return
	}
	fps64, err := strconv.ParseUint(q.Get("fps"), 10, 32)
	if err != nil || fps64 == 0 {
		writeError(w, fault.New(fault.KindInvalidArgument, "fps must be a positive integer"))
		return
	}
	pto, err := strconv.ParseUint(q.Get("presentation_time_offset"), 10, 64)
	if err != nil {
		pto = 100
	}

	params := jobs.Params{
		Dataset:                  q.Get("dataset"),
		PlyFolder:                q.Get("ply_folder"),
		FPS:                      uint32(fps64),
		PresentationTimeOffsetMs: pto,
		ShouldLoop:               parseBool(q.Get("should_loop")),
		EgressProtocol:           proto,
		StreamID:                 q.Get("stream_id"),
		GeneratorName:            q.Get("generator_name"),
	}
	if v := q.Get("priority"); v != "" {
		p, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			writeError(w, fault.New(fault.KindInvalidArgument, "priority must fit in u8"))
			return
		}
		prio := uint8(p)
		params.Priority = &prio
	}

	jobID, err := c.rt.Supervisor().Start(params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"id": jobID, "message": "Job started with ID " + jobID})
}

// handleStop stops one job by id.
func (c *JobsController) handleStop(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, fault.New(fault.KindInvalidArgument, "job_id is required"))
		return
	}
	if err := c.rt.Supervisor().Stop(jobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"id": jobID, "message": "Job stopped"})
}

// handleStopAll stops every job.
func (c *JobsController) handleStopAll(w http.ResponseWriter, r *http.Request) {
	stopped := c.rt.Supervisor().StopAll()
	writeJSON(w, map[string]any{"stopped": stopped, "message": "All jobs stopped"})
}

// handleList lists the jobs not yet removed by a stop request.
func (c *JobsController) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"jobs": c.rt.Supervisor().List()})
}
