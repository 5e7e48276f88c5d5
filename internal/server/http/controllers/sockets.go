package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/runtime"
)

// SocketsController serves the viewer connection surface: the websocket
// upgrade, WebRTC signaling, and socket admin.
type SocketsController struct {
	rt *runtime.Runtime
}

// NewSocketsController creates the controller.
func NewSocketsController(rt *runtime.Runtime) *SocketsController {
	return &SocketsController{rt: rt}
}

// RegisterRoutes registers socket endpoints on the mux.
func (c *SocketsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", c.rt.WebSocket().HandleUpgrade)
	mux.HandleFunc("/webrtc/offer", c.handleWebRTCOffer)
	mux.HandleFunc("/sockets", c.handleList)
	mux.HandleFunc("/sockets/clean", c.handleClean)
}

// handleWebRTCOffer answers an SDP offer. The body is the offer SDP; the
// client_id query parameter names the viewer.
func (c *SocketsController) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, fault.New(fault.KindInvalidArgument, "POST required"))
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeError(w, fault.New(fault.KindInvalidArgument, "client_id is required"))
		return
	}
	offer, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || len(offer) == 0 {
		writeError(w, fault.New(fault.KindInvalidArgument, "missing SDP offer body"))
		return
	}
	answer, err := c.rt.WebRTC().HandleOffer(clientID, string(offer))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"sdp": answer})
}

// handleList lists connected viewers.
func (c *SocketsController) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"sockets": c.rt.WebSocket().Sockets()})
}

// handleClean disconnects the sockets named in the csv parameter.
func (c *SocketsController) handleClean(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("sockets")
	if raw == "" {
		writeError(w, fault.New(fault.KindInvalidArgument, "sockets is required"))
		return
	}
	ids := strings.Split(raw, ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	dropped := c.rt.WebSocket().Clean(ids)
	writeJSON(w, map[string]any{"cleaned": dropped})
}
