package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/idlab-discover/pointcast/internal/fault"
)

// Helper functions for common HTTP responses

// writeJSON writes a success response merging extra fields into
// {"status":"success"}.
func writeJSON(w http.ResponseWriter, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	out := map[string]any{"status": "success"}
	for k, v := range data {
		out[k] = v
	}
	_ = json.NewEncoder(w).Encode(out)
}

// writeError maps the error's kind onto an HTTP status and writes
// {"status":"error","error_kind":...,"message":...}.
func writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "error",
		"error_kind": string(kind),
		"message":    err.Error(),
	})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindInvalidArgument:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindInvalidTransition:
		return http.StatusConflict
	case fault.KindCodec:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseBool parses a boolean query value; "true" and "1" are true.
func parseBool(s string) bool {
	return s == "true" || s == "1"
}

// parseCSVu8 parses a comma-separated list of u8 values, e.g. "15,25,60".
func parseCSVu8(s string) ([]uint8, error) {
	parts := strings.Split(s, ",")
	out := make([]uint8, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return nil, fault.New(fault.KindInvalidArgument, "bad percentage %q", p)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}

// parseTriple parses "x,y,z" into three float32 values.
func parseTriple(s string) ([3]float32, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return [3]float32{}, fault.New(fault.KindInvalidArgument, "expected three comma-separated values, got %q", s)
	}
	var out [3]float32
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return [3]float32{}, fault.New(fault.KindInvalidArgument, "bad component %q", p)
		}
		out[i] = float32(v)
	}
	return out, nil
}
