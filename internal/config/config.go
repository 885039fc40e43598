// Package config loads the tracker's startup configuration from YAML, a
// .env file and STREAM_TRACKER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/report"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/topology"
)

// DefaultTensorMetaAPI is the accelerator's tensor meta API name.
const DefaultTensorMetaAPI = "GstHailoTensorMetaAPI"

// Config is the complete startup configuration.
type Config struct {
	Sources      int    `yaml:"sources"`
	Devices      int    `yaml:"devices"`
	Model        string `yaml:"model"`       // compiled network (.hef)
	Postprocess  string `yaml:"postprocess"` // post-processing shared object
	Crop         string `yaml:"crop"`        // cropping shared object
	DetectEveryN int    `yaml:"detection_every_n_frames"`
	Display      bool   `yaml:"display"`

	PollIntervalMS int `yaml:"poll_interval_ms"`
	QueueSize      int `yaml:"queue_size"` // inter-stage queue bound, in buffers

	Capture   CaptureConfig   `yaml:"capture"`
	Inference InferenceConfig `yaml:"inference"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Report    ReportConfig    `yaml:"report"`
}

// CaptureConfig selects the stream sources.
type CaptureConfig struct {
	Kind      string   `yaml:"kind"` // v4l2, file, rtsp
	Locations []string `yaml:"locations"`
}

// InferenceConfig tunes the inference and post-processing stages.
type InferenceConfig struct {
	BatchSize         int     `yaml:"batch_size"`
	NMSScoreThreshold float64 `yaml:"nms_score_threshold"`
	NMSIoUThreshold   float64 `yaml:"nms_iou_threshold"`
	// TensorMetaAPI is the GstMeta API name of the inference output attached
	// to nested buffers.
	TensorMetaAPI string `yaml:"tensor_meta_api"`
}

// TrackerConfig tunes the object tracker stage.
type TrackerConfig struct {
	KeepNewFrames     int `yaml:"keep_new_frames"`
	KeepTrackedFrames int `yaml:"keep_tracked_frames"`
	KeepLostFrames    int `yaml:"keep_lost_frames"`
}

// ReportConfig selects where records go.
type ReportConfig struct {
	Log       bool            `yaml:"log"`
	QueueSize int             `yaml:"queue_size"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// MQTTConfig enables the broker reporter when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	QoS         byte   `yaml:"qos"`
	Encoding    string `yaml:"encoding"` // json, msgpack
}

// WebSocketConfig enables the viewer hub when Listen is set.
type WebSocketConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

// Default returns the configuration the tracker runs with when nothing is
// configured: one V4L2 camera on one device, detecting every frame.
func Default() *Config {
	tuning := topology.DefaultTuning()
	return &Config{
		Sources:        1,
		Devices:        1,
		Model:          "./resources/yolov5m_nv12.hef",
		Postprocess:    "./resources/libyolo_hailortpp_post.so",
		Crop:           "./resources/libwhole_buffer.so",
		DetectEveryN:   1,
		Display:        true,
		PollIntervalMS: 250,
		QueueSize:      30,
		// no locations: v4l2 falls back to topology.DefaultDevice, file and
		// rtsp must name theirs
		Capture: CaptureConfig{Kind: string(topology.CaptureV4L2)},
		Inference: InferenceConfig{
			BatchSize:         tuning.BatchSize,
			NMSScoreThreshold: tuning.NMSScoreThreshold,
			NMSIoUThreshold:   tuning.NMSIoUThreshold,
			TensorMetaAPI:     DefaultTensorMetaAPI,
		},
		Tracker: TrackerConfig{
			KeepNewFrames:     tuning.KeepNewFrames,
			KeepTrackedFrames: tuning.KeepTrackedFrames,
			KeepLostFrames:    tuning.KeepLostFrames,
		},
		Report: ReportConfig{
			Log:       true,
			QueueSize: report.DefaultQueueSize,
			MQTT: MQTTConfig{
				TopicPrefix: report.DefaultTopicPrefix,
				Encoding:    string(report.EncodingJSON),
			},
			WebSocket: WebSocketConfig{Path: report.DefaultHubPath},
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Keys
// absent from data keep their default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration. Count and cadence violations are
// reported as *topology.ConfigError.
func Validate(cfg *Config) error {
	if cfg.Sources < 1 {
		return &topology.ConfigError{Field: "sources", Value: cfg.Sources, Reason: "must be >= 1"}
	}
	if cfg.Devices < 1 {
		return &topology.ConfigError{Field: "devices", Value: cfg.Devices, Reason: "must be >= 1"}
	}
	if cfg.DetectEveryN < 1 {
		return &topology.ConfigError{Field: "detection_every_n_frames", Value: cfg.DetectEveryN, Reason: "must be >= 1"}
	}
	if cfg.PollIntervalMS <= 0 {
		return errors.New("poll_interval_ms must be > 0")
	}
	if cfg.Report.MQTT.QoS > 2 {
		return fmt.Errorf("report.mqtt.qos must be 0, 1 or 2 (got %d)", cfg.Report.MQTT.QoS)
	}
	if _, err := report.ParseEncoding(cfg.Report.MQTT.Encoding); err != nil {
		return err
	}
	return nil
}

// PollInterval returns the controller's bus poll timeout.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Params converts the configuration into topology build parameters.
func (c *Config) Params() topology.Params {
	tuning := topology.DefaultTuning()
	tuning.BatchSize = c.Inference.BatchSize
	tuning.NMSScoreThreshold = c.Inference.NMSScoreThreshold
	tuning.NMSIoUThreshold = c.Inference.NMSIoUThreshold
	tuning.KeepNewFrames = c.Tracker.KeepNewFrames
	tuning.KeepTrackedFrames = c.Tracker.KeepTrackedFrames
	tuning.KeepLostFrames = c.Tracker.KeepLostFrames

	return topology.Params{
		Sources:     c.Sources,
		Devices:     c.Devices,
		ModelRef:    c.Model,
		PostprocRef: c.Postprocess,
		CropRef:     c.Crop,
		Cadence:     c.DetectEveryN,
		Display:     c.Display,
		Capture: topology.Capture{
			Kind:      topology.CaptureKind(c.Capture.Kind),
			Locations: c.Capture.Locations,
		},
		QueueSize: c.QueueSize,
		Tuning:    tuning,
	}
}
