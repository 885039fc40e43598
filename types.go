package streamtracker

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/correlate"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/gstengine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/lifecycle"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/roi"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/topology"
)

// Config is the startup configuration (see DefaultConfig and LoadConfig).
type Config = config.Config

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Record is one detection reported for a stream.
type Record = correlate.Record

// MetaDecoder reads accelerator metadata off GStreamer buffers.
type MetaDecoder = gstengine.MetaDecoder

// ParentMetaDecoder is the default MetaDecoder. Set its Tree to decode the
// vendor ROI tree.
type ParentMetaDecoder = gstengine.ParentMetaDecoder

// ROI tree types built by a MetaDecoder.
type (
	ROI            = roi.ROI
	Detection      = roi.Detection
	UniqueID       = roi.UniqueID
	Classification = roi.Classification
	BBox           = roi.BBox
	Tensor         = roi.Tensor
	TensorInfo     = roi.TensorInfo
)

// NewROI returns an empty root ROI.
func NewROI() *ROI { return roi.New() }

// Graph is the pipeline description built from the configuration.
type Graph = topology.Graph

// Engine executes a Graph.
type Engine = lifecycle.Engine

// State is the pipeline lifecycle state.
type State = lifecycle.State

const (
	StateInit                = lifecycle.StateInit
	StateRunning             = lifecycle.StateRunning
	StateAwaitingTermination = lifecycle.StateAwaitingTermination
	StateTerminatedOK        = lifecycle.StateTerminatedOK
	StateTerminatedError     = lifecycle.StateTerminatedError
	StateAborted             = lifecycle.StateAborted
)

// Process exit codes.
const (
	ExitOK      = lifecycle.ExitOK
	ExitRuntime = lifecycle.ExitRuntime
	ExitConfig  = lifecycle.ExitConfig
	ExitAborted = lifecycle.ExitAborted
)

// StreamStats contains per-stream counters
type StreamStats struct {
	// Stream is the 1-based stream index
	Stream int
	// Device is the accelerator device serving the stream
	Device int
	// Sink is the name of the stream's reporting appsink
	Sink string
	// Buffers is the number of buffers delivered to the sink
	Buffers uint64
	// Records is the number of detections reported
	Records uint64
	// Tracked is the number of reported detections carrying a track ID
	Tracked uint64
	// Tensors is the number of tensors attached from nested buffers
	Tensors uint64
	// Panics is the number of buffers whose handling panicked
	Panics uint64
	// LastBuffer is when the last buffer arrived (zero if none yet)
	LastBuffer time.Time
}
