package topology

import (
	"fmt"
	"strconv"
)

// ConfigError reports a startup parameter that makes the topology invalid.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("topology: invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

// CaptureKind selects the source element chain of a stream.
type CaptureKind string

const (
	CaptureV4L2 CaptureKind = "v4l2"
	CaptureFile CaptureKind = "file"
	CaptureRTSP CaptureKind = "rtsp"
)

// DefaultDevice is the V4L2 device used when no location is configured.
const DefaultDevice = "/dev/video0"

// Capture configures the source of every stream.
type Capture struct {
	Kind CaptureKind
	// Locations holds one entry per stream; streams past the end reuse the
	// last entry.
	Locations []string
}

// Location returns the source location for stream i (1-indexed).
func (c Capture) Location(i int) string {
	if len(c.Locations) == 0 {
		if c.Kind == CaptureV4L2 || c.Kind == "" {
			return DefaultDevice
		}
		return ""
	}
	if i-1 < len(c.Locations) {
		return c.Locations[i-1]
	}
	return c.Locations[len(c.Locations)-1]
}

// Tuning holds element properties of the external stages.
type Tuning struct {
	BatchSize         int
	NMSScoreThreshold float64
	NMSIoUThreshold   float64
	OutputFormat      string
	PostFunction      string
	CropFunction      string
	KeepNewFrames     int
	KeepTrackedFrames int
	KeepLostFrames    int
	Threads           int
}

// DefaultTuning returns the properties the Hailo stages are tuned for.
func DefaultTuning() Tuning {
	return Tuning{
		BatchSize:         1,
		NMSScoreThreshold: 0.3,
		NMSIoUThreshold:   0.6,
		OutputFormat:      "HAILO_FORMAT_TYPE_FLOAT32",
		PostFunction:      "yolov5",
		CropFunction:      "create_crops",
		KeepNewFrames:     5,
		KeepTrackedFrames: 5,
		KeepLostFrames:    5,
		Threads:           2,
	}
}

// Params are the inputs of Build.
type Params struct {
	Sources     int
	Devices     int
	ModelRef    string
	PostprocRef string
	CropRef     string
	// Cadence runs detection on every Nth frame.
	Cadence int
	Display bool

	Capture Capture
	// Width and Height of the inference input (default 640x640).
	Width  int
	Height int
	// QueueSize bounds every inter-stage queue (default 30 buffers).
	QueueSize int
	Tuning    Tuning
}

// StreamConfig is the resolved configuration of one stream.
type StreamConfig struct {
	Index       int
	Device      int
	Source      string
	ModelRef    string
	PostprocRef string
	CropRef     string
	Cadence     int
	Display     bool
}

const (
	defaultSize      = 640
	defaultQueueSize = 30
)

// AssignDevice returns the device (1..devices) serving stream i (1-indexed),
// cycling round-robin. It returns 0 when devices or i is below 1.
func AssignDevice(i, devices int) int {
	if devices < 1 || i < 1 {
		return 0
	}
	return (i-1)%devices + 1
}

// ReportSinkName is the name of the reporting appsink of stream i.
func ReportSinkName(i int) string {
	return "sink" + strconv.Itoa(i)
}

func (p Params) validate() error {
	if p.Sources < 1 {
		return &ConfigError{Field: "sources", Value: p.Sources, Reason: "must be >= 1"}
	}
	if p.Devices < 1 {
		return &ConfigError{Field: "devices", Value: p.Devices, Reason: "must be >= 1"}
	}
	if p.Cadence < 1 {
		return &ConfigError{Field: "detection_every_n_frames", Value: p.Cadence, Reason: "must be >= 1"}
	}
	switch p.Capture.Kind {
	case "", CaptureV4L2, CaptureFile, CaptureRTSP:
	default:
		return &ConfigError{Field: "capture.kind", Value: p.Capture.Kind, Reason: "must be v4l2, file or rtsp"}
	}
	if p.Capture.Kind == CaptureFile || p.Capture.Kind == CaptureRTSP {
		if len(p.Capture.Locations) == 0 {
			return &ConfigError{Field: "capture.locations", Value: "[]", Reason: "required for " + string(p.Capture.Kind)}
		}
	}
	return nil
}

func (p Params) withDefaults() Params {
	if p.Width <= 0 {
		p.Width = defaultSize
	}
	if p.Height <= 0 {
		p.Height = defaultSize
	}
	if p.QueueSize <= 0 {
		p.QueueSize = defaultQueueSize
	}
	if p.Tuning == (Tuning{}) {
		p.Tuning = DefaultTuning()
	}
	if p.Capture.Kind == "" {
		p.Capture.Kind = CaptureV4L2
	}
	return p
}

// Streams resolves the per-stream configuration, including device
// assignment.
func Streams(p Params) ([]StreamConfig, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	p = p.withDefaults()

	out := make([]StreamConfig, 0, p.Sources)
	for i := 1; i <= p.Sources; i++ {
		out = append(out, StreamConfig{
			Index:       i,
			Device:      AssignDevice(i, p.Devices),
			Source:      p.Capture.Location(i),
			ModelRef:    p.ModelRef,
			PostprocRef: p.PostprocRef,
			CropRef:     p.CropRef,
			Cadence:     p.Cadence,
			Display:     p.Display,
		})
	}
	return out, nil
}

// Build returns the pipeline graph for p.
//
// This function:
//  1. Validates p and derives one StreamConfig per source (see Streams)
//  2. Assigns each stream an accelerator device, round-robin from device 1
//  3. Builds each stream's chains: capture, scaling and NV12 conversion,
//     the cropper splitting frames into a bypass branch and a detection
//     branch (inference every Cadence frames), the aggregator joining them,
//     then the tracker
//  4. Ends each stream in its reporting appsink, behind a tee feeding the
//     overlay and display branch when Display is set
//  5. Validates the assembled graph (unique names, resolvable links)
//
// Every inter-stage queue is leaky downstream and bounded by QueueSize
// buffers, so a slow stage drops old frames instead of stalling capture.
//
// Returns a *ConfigError when the parameters are out of range (no sources,
// no devices, zero cadence, unknown capture kind, file or rtsp capture
// without locations). Nothing is started either way; the graph is a
// description that an engine loads.
func Build(p Params) (*Graph, error) {
	streams, err := Streams(p)
	if err != nil {
		return nil, err
	}
	p = p.withDefaults()

	b := builder{p: p}
	g := &Graph{Streams: make([]Stream, 0, len(streams))}
	for _, sc := range streams {
		g.Streams = append(g.Streams, b.stream(sc))
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

type builder struct {
	p Params
}

func itoa(i int) string { return strconv.Itoa(i) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func (b builder) queue(name string) Stage {
	return Stage{
		Kind: "queue",
		Name: name,
		Params: []Param{
			{"leaky", "downstream"},
			{"max-size-buffers", itoa(b.p.QueueSize)},
			{"max-size-bytes", "0"},
			{"max-size-time", "0"},
		},
	}
}

func (b builder) stream(sc StreamConfig) Stream {
	i := itoa(sc.Index)
	t := b.p.Tuning
	cropper := "cropper" + i
	agg := "agg" + i

	main := b.capture(sc)
	main = append(main,
		b.queue(""),
		Stage{Kind: "videoscale", Params: []Param{{"qos", "false"}, {"n-threads", itoa(t.Threads)}}},
		Stage{Kind: "video/x-raw", Caps: true, Params: []Param{
			{"pixel-aspect-ratio", "1/1"},
			{"width", itoa(b.p.Width)},
			{"height", itoa(b.p.Height)},
		}},
		b.queue(""),
		Stage{Kind: "videoconvert", Params: []Param{{"n-threads", itoa(t.Threads)}, {"qos", "false"}}},
		Stage{Kind: "video/x-raw", Caps: true, Params: []Param{{"format", "NV12"}}},
		b.queue(""),
		Stage{Kind: "hailocropper", Name: cropper, Params: []Param{
			{"so-path", sc.CropRef},
			{"function-name", t.CropFunction},
			{"internal-offset", "true"},
			{"cropping-period", itoa(sc.Cadence)},
		}},
	)

	chains := []Chain{
		{Stages: main},
		{Stages: []Stage{{Kind: "hailoaggregator", Name: agg}}},
		// bypass: the full frame goes straight to the aggregator
		{From: cropper, Stages: []Stage{b.queue("")}, To: agg},
		// detect: crops go through inference and post-processing
		{From: cropper, To: agg, Stages: []Stage{
			b.queue("hailonet" + i + "_queue"),
			{Kind: "hailonet", Name: "hailonet" + i, Params: []Param{
				{"hef-path", sc.ModelRef},
				{"batch-size", itoa(t.BatchSize)},
				{"nms-score-threshold", ftoa(t.NMSScoreThreshold)},
				{"nms-iou-threshold", ftoa(t.NMSIoUThreshold)},
				{"output-format-type", t.OutputFormat},
				{"vdevice-key", itoa(sc.Device)},
			}},
			b.queue(""),
			{Kind: "hailofilter", Name: "hailofilter" + i, Params: []Param{
				{"function-name", t.PostFunction},
				{"so-path", sc.PostprocRef},
				{"config-path", "null"},
				{"qos", "false"},
			}},
		}},
	}

	track := Chain{From: agg, Stages: []Stage{
		b.queue(""),
		{Kind: "hailotracker", Name: "hailo_tracker" + i, Params: []Param{
			{"keep-new-frames", itoa(t.KeepNewFrames)},
			{"keep-tracked-frames", itoa(t.KeepTrackedFrames)},
			{"keep-lost-frames", itoa(t.KeepLostFrames)},
		}},
	}}

	sinkName := ReportSinkName(sc.Index)
	report := []Stage{
		b.queue(""),
		{Kind: "appsink", Name: sinkName, Params: []Param{
			{"emit-signals", "true"},
			{"max-buffers", "1"},
			{"drop", "true"},
		}},
	}

	if !sc.Display {
		track.Stages = append(track.Stages, report...)
		chains = append(chains, track)
	} else {
		fanout := "fanout" + i
		track.Stages = append(track.Stages, Stage{Kind: "tee", Name: fanout})
		chains = append(chains,
			track,
			Chain{From: fanout, Stages: report},
			Chain{From: fanout, Stages: []Stage{
				b.queue(""),
				{Kind: "hailooverlay", Name: "hailooverlay" + i, Params: []Param{{"qos", "false"}}},
				b.queue(""),
				{Kind: "videoconvert"},
				b.queue(""),
				{Kind: "fpsdisplaysink", Params: []Param{
					{"video-sink", "ximagesink"},
					{"text-overlay", "true"},
					{"sync", "false"},
					{"silent", "false"},
				}},
			}},
		)
	}

	return Stream{Config: sc, Chains: chains, ReportSink: sinkName}
}

// capture returns the source stages of a stream, up to decoded raw video.
func (b builder) capture(sc StreamConfig) []Stage {
	switch b.p.Capture.Kind {
	case CaptureFile:
		return []Stage{
			{Kind: "filesrc", Params: []Param{{"location", sc.Source}}},
			{Kind: "decodebin"},
		}
	case CaptureRTSP:
		// protocols=4 is GST_RTSP_LOWER_TRANS_TCP
		return []Stage{
			{Kind: "rtspsrc", Params: []Param{
				{"location", sc.Source},
				{"protocols", "4"},
				{"latency", "200"},
			}},
			{Kind: "rtph264depay", Params: []Param{{"request-keyframe", "true"}}},
			{Kind: "avdec_h264", Params: []Param{{"max-threads", "0"}}},
		}
	default:
		return []Stage{{Kind: "v4l2src", Params: []Param{{"device", sc.Source}}}}
	}
}
