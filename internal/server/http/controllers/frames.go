package controllers

import (
	"encoding/base64"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/idlab-discover/pointcast/internal/codec"
	"github.com/idlab-discover/pointcast/internal/egress"
	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/pointcloud"
	"github.com/idlab-discover/pointcast/internal/runtime"
)

// FramesController ingests externally produced frames.
type FramesController struct {
	rt *runtime.Runtime

	mu   sync.Mutex
	next map[string]uint64
}

// NewFramesController creates the controller.
func NewFramesController(rt *runtime.Runtime) *FramesController {
	return &FramesController{rt: rt, next: make(map[string]uint64)}
}

// RegisterRoutes registers frame endpoints on the mux.
func (c *FramesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/frames/receive", c.handleReceive)
}

func (c *FramesController) nextFrameID(streamID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next[streamID]++
	return c.next[streamID]
}

// handleReceive accepts one frame as the request body, raw or base64. The
// stream's decode_bypass setting short-circuits the codec facade: the bytes
// are not decoded and are sent as-is.
func (c *FramesController) handleReceive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, fault.New(fault.KindInvalidArgument, "POST required"))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeError(w, fault.Wrap(err, fault.KindIo, "reading frame body"))
		return
	}
	if len(body) == 0 {
		writeError(w, fault.New(fault.KindInvalidArgument, "empty frame_data"))
		return
	}
	// Accept base64 transparently; raw bytes win on decode failure.
	if decoded, err := base64.StdEncoding.DecodeString(string(body)); err == nil {
		body = decoded
	}

	streamID := r.URL.Query().Get("stream_id")
	if streamID == "" {
		streamID = "ingest"
	}
	settings := c.rt.Registry().Get(streamID)

	now := time.Now()
	if settings.DecodeBypass {
		// The payload is already encoded: skip the codec facade and the
		// slicing pipeline, dispatch it as-is on the stream's first
		// protocol as a whole-frame base layer.
		if len(settings.EgressProtocols) == 0 {
			writeError(w, fault.New(fault.KindInvalidArgument, "stream has no egress protocol"))
			return
		}
		sender := c.rt.Fabric().Sender(settings.EgressProtocols[0])
		if sender == nil {
			writeError(w, fault.New(fault.KindNotFound, "no sender for protocol %s", settings.EgressProtocols[0]))
			return
		}
		frameID := c.nextFrameID(streamID)
		res, err := sender.Send(r.Context(), egress.Packet{
			StreamID: streamID,
			FrameID:  frameID,
			Layer:    0,
			Payload:  body,
			Pose:     settings.Pose,
			Deadline: now.Add(time.Duration(settings.PresentationTimeOffsetMs) * time.Millisecond),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"stream_id": streamID,
			"frame_id":  frameID,
			"result":    res.Status.String(),
		})
		return
	}

	points, err := codec.Decode(body)
	if err != nil {
		writeError(w, err)
		return
	}
	frame := &pointcloud.Frame{
		StreamID:   streamID,
		FrameID:    c.nextFrameID(streamID),
		ArrivalUs:  now.UnixMicro(),
		DeadlineUs: now.Add(time.Duration(settings.PresentationTimeOffsetMs) * time.Millisecond).UnixMicro(),
		Points:     points,
		Pose:       settings.Pose,
	}
	if err := c.rt.Scheduler().Ingest(frame); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"stream_id": streamID,
		"frame_id":  frame.FrameID,
		"points":    len(points),
	})
}
