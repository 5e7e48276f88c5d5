package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/idlab-discover/pointcast/internal/fault"
)

// Config is the top-level configuration.
type Config struct {
	HTTPAddr     string `json:"httpAddr" yaml:"httpAddr"`
	DatasetsRoot string `json:"datasetsRoot" yaml:"datasetsRoot"`
	DumpDir      string `json:"dumpDir" yaml:"dumpDir"`

	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"` // text|json

	EncodeWorkers int `json:"encodeWorkers" yaml:"encodeWorkers"`
	RingCapacity  int `json:"ringCapacity" yaml:"ringCapacity"`

	Flute  FluteConfig  `json:"flute" yaml:"flute"`
	WebRTC WebRTCConfig `json:"webrtc" yaml:"webrtc"`

	Egress EgressDefaults `json:"egress" yaml:"egress"`
}

// FluteConfig configures the broadcast channel.
type FluteConfig struct {
	Addr            string  `json:"addr" yaml:"addr"`
	BandwidthBits   uint64  `json:"bandwidthBits" yaml:"bandwidthBits"`
	FECPercentage   float64 `json:"fecPercentage" yaml:"fecPercentage"`
	ContentEncoding string  `json:"contentEncoding" yaml:"contentEncoding"`
	MD5             bool    `json:"md5" yaml:"md5"`
}

// WebRTCConfig configures the unicast WebRTC endpoint.
type WebRTCConfig struct {
	PortMin            uint16   `json:"portMin" yaml:"portMin"`
	PortMax            uint16   `json:"portMax" yaml:"portMax"`
	HighWatermarkBytes uint64   `json:"highWatermarkBytes" yaml:"highWatermarkBytes"`
	STUNServers        []string `json:"stunServers" yaml:"stunServers"`
}

// EgressDefaults seed the per-protocol defaults the control plane can later
// mutate through /egress/update_settings.
type EgressDefaults struct {
	FPS            uint32 `json:"fps" yaml:"fps"`
	EncodingFormat string `json:"encodingFormat" yaml:"encodingFormat"`
	QuantBits      int    `json:"quantBits" yaml:"quantBits"`
	MaxPoints      int    `json:"maxNumberOfPoints" yaml:"maxNumberOfPoints"`
	EmitWithAck    bool   `json:"emitWithAck" yaml:"emitWithAck"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		DatasetsRoot:  "../Datasets",
		DumpDir:       "dumps",
		LogLevel:      "info",
		LogFormat:     "text",
		EncodeWorkers: 4,
		RingCapacity:  4,
		Flute: FluteConfig{
			Addr:          "239.0.0.1:3400",
			BandwidthBits: 200_000_000,
			FECPercentage: 0.06,
			MD5:           true,
		},
		WebRTC: WebRTCConfig{
			PortMin: 51200,
			PortMax: 51299,
		},
		Egress: EgressDefaults{
			FPS:            30,
			EncodingFormat: "Ply",
			QuantBits:      12,
			MaxPoints:      100_000,
			EmitWithAck:    true,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fault.Wrap(err, fault.KindIo, "reading config %s", path)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fault.Wrap(err, fault.KindInvalidArgument, "parsing yaml config %s", path)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fault.Wrap(err, fault.KindInvalidArgument, "parsing json config %s", path)
		}
	}
	return cfg, nil
}
