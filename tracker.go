package streamtracker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/correlate"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/gstengine"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/lifecycle"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/metadata"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/report"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/roi"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/topology"
)

// Reporter receives every record. Report runs on the pipeline's streaming
// threads and must not block.
type Reporter = report.Reporter

// Tracker owns one pipeline run.
type Tracker struct {
	cfg   *Config
	graph *topology.Graph

	engine     Engine
	reporter   Reporter
	interrupts lifecycle.InterruptSource
	decoder    MetaDecoder
	onTensor   func(stream int, t *roi.Tensor)
	debug      bool

	streams []*streamSlot

	started    atomic.Bool
	controller atomic.Pointer[lifecycle.Controller]
}

// streamSlot holds the counters of one stream. Slots are written only by
// that stream's streaming thread.
type streamSlot struct {
	stream int
	device int
	sink   string

	buffers    atomic.Uint64
	records    atomic.Uint64
	tracked    atomic.Uint64
	tensors    atomic.Uint64
	panics     atomic.Uint64
	lastBuffer atomic.Int64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEngine replaces the GStreamer engine.
func WithEngine(e Engine) Option {
	return func(t *Tracker) { t.engine = e }
}

// WithReporter replaces the reporters built from the configuration.
func WithReporter(r Reporter) Option {
	return func(t *Tracker) { t.reporter = r }
}

// WithInterrupts replaces the SIGINT/SIGTERM watcher.
func WithInterrupts(i lifecycle.InterruptSource) Option {
	return func(t *Tracker) { t.interrupts = i }
}

// WithMetaDecoder replaces the default engine's metadata decoder. The
// default reads nested buffers and tensors but not the vendor ROI tree; a
// decoder that does is how detections reach the reporters. It has no effect
// together with WithEngine.
func WithMetaDecoder(d MetaDecoder) Option {
	return func(t *Tracker) { t.decoder = d }
}

// WithTensorHook calls fn for every tensor attached to a buffer's ROI while
// the nested buffer is still mapped. fn runs on the streaming thread.
func WithTensorHook(fn func(stream int, t *roi.Tensor)) Option {
	return func(t *Tracker) { t.onTensor = fn }
}

// WithDebug enables per-buffer debug logs.
func WithDebug(debug bool) Option {
	return func(t *Tracker) { t.debug = debug }
}

// New validates cfg and builds the pipeline graph. It returns a
// *ConfigError when the configuration cannot produce a valid graph.
func New(cfg *Config, opts ...Option) (*Tracker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	g, err := topology.Build(cfg.Params())
	if err != nil {
		return nil, err
	}

	t := &Tracker{cfg: cfg, graph: g}
	for _, opt := range opts {
		opt(t)
	}
	if t.engine == nil {
		decoder := t.decoder
		if decoder == nil {
			decoder = gstengine.ParentMetaDecoder{TensorAPI: cfg.Inference.TensorMetaAPI}
		}
		t.engine = gstengine.New(gstengine.WithMetaDecoder(decoder))
	}

	for _, s := range g.Streams {
		t.streams = append(t.streams, &streamSlot{
			stream: s.Config.Index,
			device: s.Config.Device,
			sink:   s.ReportSink,
		})
	}

	slog.Info("stream-tracker: pipeline built",
		"sources", cfg.Sources,
		"devices", cfg.Devices,
		"stages", g.StageCount(),
		"display", cfg.Display,
	)
	return t, nil
}

// Graph returns the pipeline graph.
func (t *Tracker) Graph() *Graph { return t.graph }

// Launch returns the gst-launch description of the pipeline.
func (t *Tracker) Launch() string { return t.graph.Launch() }

// Run starts the pipeline and blocks until it terminates, fails or is
// aborted. Cancelling ctx drains the pipeline like a first interrupt.
//
// The returned state maps to the process exit code via State.ExitCode.
func (t *Tracker) Run(ctx context.Context) (State, error) {
	if !t.started.CompareAndSwap(false, true) {
		return StateInit, fmt.Errorf("stream-tracker: Run called twice")
	}

	if t.reporter == nil {
		r, err := buildReporter(ctx, t.cfg)
		if err != nil {
			return StateInit, err
		}
		t.reporter = r
	}
	defer func() {
		if err := t.reporter.Close(); err != nil {
			slog.Warn("stream-tracker: closing reporters", "error", err)
		}
	}()

	interrupts := t.interrupts
	if interrupts == nil {
		interrupts = lifecycle.WatchSignals(os.Interrupt, syscall.SIGTERM)
	}

	c := lifecycle.New(t.engine, interrupts, lifecycle.WithPollInterval(t.cfg.PollInterval()))
	t.controller.Store(c)

	sinks := make([]lifecycle.Sink, 0, len(t.streams))
	for _, slot := range t.streams {
		sinks = append(sinks, lifecycle.Sink{
			Stream: slot.stream,
			Name:   slot.sink,
			Handle: t.handler(slot),
		})
	}

	slog.Debug("stream-tracker: starting pipeline", "launch", t.Launch())
	if err := c.Start(t.graph, sinks); err != nil {
		interrupts.Restore()
		t.engine.Stop()
		return StateTerminatedError, err
	}
	defer c.Close()

	started := time.Now()
	state, err := c.Wait(ctx)

	slog.Info("stream-tracker: pipeline finished",
		"state", state.String(),
		"uptime", time.Since(started),
		"exit_code", state.ExitCode(),
	)
	return state, err
}

// handler turns one delivered buffer of slot's stream into records.
// A panic is counted and the buffer skipped; it never reaches the engine.
func (t *Tracker) handler(slot *streamSlot) lifecycle.BufferFunc {
	var hook metadata.Option
	if t.onTensor != nil {
		hook = metadata.WithTensorHook(func(tn *roi.Tensor) {
			t.onTensor(slot.stream, tn)
		})
	}

	return func(buf metadata.Buffer) {
		defer func() {
			if r := recover(); r != nil {
				slot.panics.Add(1)
				slog.Error("stream-tracker: buffer handler panicked, skipping buffer",
					"stream", slot.stream,
					"panic", r,
				)
			}
		}()

		slot.buffers.Add(1)
		slot.lastBuffer.Store(time.Now().UnixNano())

		var st metadata.Stats
		opts := []metadata.Option{metadata.WithStats(&st)}
		if hook != nil {
			opts = append(opts, hook)
		}
		tree := metadata.Extract(buf, opts...)
		slot.tensors.Add(uint64(st.Tensors))

		var traceID string
		correlate.Visit(tree, slot.stream, func(rec correlate.Record) {
			if traceID == "" {
				traceID = uuid.NewString()
			}
			rec.TraceID = traceID

			slot.records.Add(1)
			if rec.Tracked {
				slot.tracked.Add(1)
			}
			if t.debug {
				slog.Debug("stream-tracker: record",
					"stream", rec.Stream,
					"label", rec.Label,
					"track_id", rec.TrackID,
					"trace_id", traceID,
				)
			}
			t.reporter.Report(rec)
		})
	}
}

// State returns the current lifecycle state (StateInit before Run).
func (t *Tracker) State() State {
	if c := t.controller.Load(); c != nil {
		return c.State()
	}
	return StateInit
}

// WiringErrors returns the streams running without reporting.
func (t *Tracker) WiringErrors() []*WiringError {
	if c := t.controller.Load(); c != nil {
		return c.WiringErrors()
	}
	return nil
}

// Stats returns a snapshot of every stream's counters.
func (t *Tracker) Stats() []StreamStats {
	out := make([]StreamStats, 0, len(t.streams))
	for _, s := range t.streams {
		st := StreamStats{
			Stream:  s.stream,
			Device:  s.device,
			Sink:    s.sink,
			Buffers: s.buffers.Load(),
			Records: s.records.Load(),
			Tracked: s.tracked.Load(),
			Tensors: s.tensors.Load(),
			Panics:  s.panics.Load(),
		}
		if ns := s.lastBuffer.Load(); ns != 0 {
			st.LastBuffer = time.Unix(0, ns)
		}
		out = append(out, st)
	}
	return out
}

// buildReporter assembles the reporters enabled in cfg. An unreachable MQTT
// broker is not fatal: the client keeps reconnecting and records are
// counted as errors until it succeeds.
func buildReporter(ctx context.Context, cfg *Config) (Reporter, error) {
	var rs report.Multi

	if cfg.Report.Log {
		rs = append(rs, report.NewLog(nil))
	}

	if m := cfg.Report.MQTT; m.Broker != "" {
		enc, err := report.ParseEncoding(m.Encoding)
		if err != nil {
			return nil, err
		}
		mq := report.NewMQTT(report.MQTTConfig{
			Broker:      m.Broker,
			TopicPrefix: m.TopicPrefix,
			ClientID:    m.ClientID,
			QoS:         m.QoS,
			Encoding:    enc,
			QueueSize:   cfg.Report.QueueSize,
		})
		if err := mq.Connect(ctx); err != nil {
			slog.Warn("stream-tracker: mqtt broker unavailable, will keep retrying", "error", err)
		}
		rs = append(rs, mq)
	}

	if ws := cfg.Report.WebSocket; ws.Listen != "" {
		hub := report.NewHub(cfg.Report.QueueSize)
		if _, err := hub.Listen(ws.Listen, ws.Path); err != nil {
			rs.Close()
			hub.Close()
			return nil, err
		}
		rs = append(rs, hub)
	}

	if len(rs) == 0 {
		return report.Discard{}, nil
	}
	return rs, nil
}
