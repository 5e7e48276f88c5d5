package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/idlab-discover/pointcast/internal/egress"
	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/registry"
	"github.com/idlab-discover/pointcast/internal/runtime"
)

// streamSettingsParams enumerates the recognized query parameters of
// /streams/update_settings; anything else is rejected.
var streamSettingsParams = map[string]bool{
	"stream_id":                true,
	"priority":                 true,
	"egress_protocols":         true,
	"process_incoming_frames":  true,
	"position":                 true,
	"rotation":                 true,
	"scale":                    true,
	"presentation_time_offset": true,
	"decode_bypass":            true,
	"aggregator_bypass":        true,
	"ring_buffer_bypass":       true,
	"max_point_percentages":    true,
}

// StreamsController reads and mutates per-stream settings.
type StreamsController struct {
	rt *runtime.Runtime
}

// NewStreamsController creates the controller.
func NewStreamsController(rt *runtime.Runtime) *StreamsController {
	return &StreamsController{rt: rt}
}

// RegisterRoutes registers stream endpoints on the mux.
func (c *StreamsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/streams/update_settings", c.handleUpdateSettings)
	mux.HandleFunc("/streams/list", c.handleList)
	mux.HandleFunc("/streams/dispatch_log", c.handleDispatchLog)
}

// handleUpdateSettings applies a sparse settings patch to one stream.
// Unknown fields are rejected before anything is applied.
func (c *StreamsController) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for key := range q {
		if !streamSettingsParams[key] {
			writeError(w, fault.New(fault.KindInvalidArgument, "unknown field %q", key))
			return
		}
	}
	streamID := q.Get("stream_id")
	if streamID == "" {
		writeError(w, fault.New(fault.KindInvalidArgument, "stream_id is required"))
		return
	}

	var patch registry.Patch
	if v := q.Get("priority"); v != "" {
		p, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			writeError(w, fault.New(fault.KindInvalidArgument, "priority must fit in u8"))
			return
		}
		prio := uint8(p)
		patch.Priority = &prio
	}
	if v := q.Get("egress_protocols"); v != "" {
		names := strings.Split(v, ",")
		protos := make([]egress.Protocol, 0, len(names))
		for _, name := range names {
			p, err := egress.ParseProtocol(strings.TrimSpace(name))
			if err != nil {
				writeError(w, err)
				return
			}
			protos = append(protos, p)
		}
		patch.EgressProtocols = &protos
	}
	if v := q.Get("process_incoming_frames"); v != "" {
		b := parseBool(v)
		patch.ProcessIncomingFrames = &b
	}
	if v := q.Get("position"); v != "" {
		t, err := parseTriple(v)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.Position = &t
	}
	if v := q.Get("rotation"); v != "" {
		t, err := parseTriple(v)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.Rotation = &t
	}
	if v := q.Get("scale"); v != "" {
		t, err := parseTriple(v)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.Scale = &t
	}
	if v := q.Get("presentation_time_offset"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, fault.New(fault.KindInvalidArgument, "presentation_time_offset must be a positive integer"))
			return
		}
		patch.PresentationTimeOffsetMs = &n
	}
	if v := q.Get("decode_bypass"); v != "" {
		b := parseBool(v)
		patch.DecodeBypass = &b
	}
	if v := q.Get("aggregator_bypass"); v != "" {
		b := parseBool(v)
		patch.AggregatorBypass = &b
	}
	if v := q.Get("ring_buffer_bypass"); v != "" {
		b := parseBool(v)
		patch.RingBufferBypass = &b
	}
	if v := q.Get("max_point_percentages"); v != "" {
		pcts, err := parseCSVu8(v)
		if err != nil {
			writeError(w, err)
			return
		}
		patch.MaxPointPercentages = &pcts
	}

	settings, err := c.rt.Registry().Update(streamID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"settings": settings})
}

// handleList returns merged settings and lifecycle state for every stream.
func (c *StreamsController) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"streams": c.rt.Registry().List()})
}

// handleDispatchLog returns the scheduler's event history for one stream.
func (c *StreamsController) handleDispatchLog(w http.ResponseWriter, r *http.Request) {
	streamID := r.URL.Query().Get("stream_id")
	if streamID == "" {
		writeError(w, fault.New(fault.KindInvalidArgument, "stream_id is required"))
		return
	}
	writeJSON(w, map[string]any{"events": c.rt.Scheduler().DispatchLog(streamID)})
}
