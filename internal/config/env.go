package config

import (
	"os"
	"strconv"
)

// FromEnv overlays POINTCAST_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("POINTCAST_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("POINTCAST_DATASETS_ROOT"); v != "" {
		cfg.DatasetsRoot = v
	}
	if v := os.Getenv("POINTCAST_DUMP_DIR"); v != "" {
		cfg.DumpDir = v
	}
	if v := os.Getenv("POINTCAST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("POINTCAST_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("POINTCAST_ENCODE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EncodeWorkers = n
		}
	}
	if v := os.Getenv("POINTCAST_RING_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RingCapacity = n
		}
	}
	if v := os.Getenv("POINTCAST_FLUTE_ADDR"); v != "" {
		cfg.Flute.Addr = v
	}
	if v := os.Getenv("POINTCAST_FLUTE_BANDWIDTH_BITS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Flute.BandwidthBits = n
		}
	}
	if v := os.Getenv("POINTCAST_FLUTE_FEC_PERCENTAGE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Flute.FECPercentage = f
		}
	}
	if v := os.Getenv("POINTCAST_WEBRTC_PORT_MIN"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.WebRTC.PortMin = uint16(n)
		}
	}
	if v := os.Getenv("POINTCAST_WEBRTC_PORT_MAX"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			cfg.WebRTC.PortMax = uint16(n)
		}
	}
}
