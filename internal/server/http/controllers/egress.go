package controllers

import (
	"net/http"
	"strconv"

	"github.com/idlab-discover/pointcast/internal/codec"
	"github.com/idlab-discover/pointcast/internal/egress"
	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/runtime"
	"github.com/idlab-discover/pointcast/internal/scheduler"
)

// EgressController mutates the global egress defaults per protocol.
type EgressController struct {
	rt *runtime.Runtime
}

// NewEgressController creates the controller.
func NewEgressController(rt *runtime.Runtime) *EgressController {
	return &EgressController{rt: rt}
}

// RegisterRoutes registers egress endpoints on the mux.
func (c *EgressController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/egress/update_settings", c.handleUpdateSettings)
}

// handleUpdateSettings applies the query parameters to the targeted
// protocol's defaults. FEC and transport knobs reach the broadcast sender;
// emit_with_ack reaches the websocket hub. Changes apply from the next
// frame boundary.
func (c *EgressController) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	protoName := q.Get("egress_protocol")
	if protoName == "" {
		writeError(w, fault.New(fault.KindInvalidArgument, "egress_protocol is required"))
		return
	}
	proto, err := egress.ParseProtocol(protoName)
	if err != nil {
		writeError(w, err)
		return
	}

	var format *codec.Format
	if v := q.Get("encoding_format"); v != "" {
		f, err := codec.ParseFormat(v)
		if err != nil {
			writeError(w, err)
			return
		}
		format = &f
	}

	err = c.rt.Scheduler().UpdateDefaults(proto, func(d *scheduler.ProtoDefaults) {
		if v := q.Get("fps"); v != "" {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
				d.FPS = uint32(n)
			}
		}
		if format != nil {
			d.Format = *format
		}
		if v := q.Get("max_number_of_points"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				d.MaxPoints = n
			}
		}
		if v := q.Get("bandwidth"); v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				d.BandwidthBits = n
			}
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}

	switch proto {
	case egress.ProtocolWebSocket:
		if v := q.Get("emit_with_ack"); v != "" {
			c.rt.WebSocket().SetEmitWithAck(parseBool(v))
		}
	case egress.ProtocolFlute:
		flute := c.rt.Flute()
		if v := q.Get("content_encoding"); v != "" {
			flute.SetContentEncoding(v)
		}
		if v := q.Get("fec_percentage"); v != "" {
			pct, err := strconv.ParseFloat(v, 64)
			if err != nil || pct < 0 || pct > 1 {
				writeError(w, fault.New(fault.KindInvalidArgument, "fec_percentage must be in [0,1]"))
				return
			}
			flute.SetFECPercentage(pct)
		}
		if v := q.Get("bandwidth"); v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				flute.SetBandwidth(n)
			}
		}
		if v := q.Get("md5"); v != "" {
			flute.SetMD5(parseBool(v))
		}
		// The fec scheme name is accepted for interop with existing
		// tooling; the only scheme built in is the systematic block
		// code, so it is validated and otherwise ignored.
		if v := q.Get("fec"); v != "" && v != "nocode" && v != "reed_solomon_gf8" {
			writeError(w, fault.New(fault.KindInvalidArgument, "unknown fec scheme %q", v))
			return
		}
	}

	writeJSON(w, map[string]any{"message": string(proto) + " settings updated"})
}
