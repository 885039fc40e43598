// Package gstengine runs a topology graph on GStreamer through go-gst.
//
// The graph is handed to GStreamer as gst-launch text; reporting sinks are
// appsinks looked up by name after the pipeline is parsed.
package gstengine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/lifecycle"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/topology"
)

var initOnce sync.Once

// Init initializes GStreamer once per process.
func Init() {
	initOnce.Do(func() { gst.Init(nil) })
}

// Engine implements lifecycle.Engine on a parse-launch pipeline.
type Engine struct {
	decoder MetaDecoder

	mu       sync.Mutex
	pipeline *gst.Pipeline
	// sinks keeps the wrapped appsinks (and their callbacks) reachable for
	// the lifetime of the pipeline.
	sinks map[string]*app.Sink

	samples atomic.Uint64
	stopped atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetaDecoder replaces the default ParentMetaDecoder. A nil d keeps the
// default.
func WithMetaDecoder(d MetaDecoder) Option {
	return func(e *Engine) {
		if d != nil {
			e.decoder = d
		}
	}
}

// New returns an engine with no pipeline loaded.
func New(opts ...Option) *Engine {
	e := &Engine{
		decoder: ParentMetaDecoder{},
		sinks:   make(map[string]*app.Sink),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ lifecycle.Engine = (*Engine)(nil)

// Decoder returns the metadata decoder handed to sinks.
func (e *Engine) Decoder() MetaDecoder { return e.decoder }

// Load parses the graph's launch description into a pipeline in NULL state.
func (e *Engine) Load(g *topology.Graph) error {
	Init()

	launch := g.Launch()
	slog.Debug("gstengine: parsing pipeline", "stages", g.StageCount(), "launch", launch)

	pipeline, err := gst.NewPipelineFromString(launch)
	if err != nil {
		category := ClassifyError(err.Error(), "")
		slog.Error("gstengine: failed to parse pipeline", "error", err, "category", category.String())
		return fmt.Errorf("gstengine: parse pipeline [%s]: %w", category, err)
	}

	e.mu.Lock()
	e.pipeline = pipeline
	e.mu.Unlock()
	return nil
}

func (e *Engine) loaded() (*gst.Pipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline == nil {
		return nil, fmt.Errorf("gstengine: no pipeline loaded")
	}
	return e.pipeline, nil
}

// ConnectSink registers fn as the new-sample callback of the appsink name.
func (e *Engine) ConnectSink(name string, fn lifecycle.BufferFunc) error {
	pipeline, err := e.loaded()
	if err != nil {
		return err
	}

	elem, err := pipeline.GetElementByName(name)
	if err != nil || elem == nil {
		return fmt.Errorf("gstengine: no element named %q in pipeline: %v", name, err)
	}
	if f := elem.GetFactory(); f == nil || f.GetName() != "appsink" {
		return fmt.Errorf("gstengine: element %q is not an appsink", name)
	}

	sink := app.SinkFromElement(elem)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return e.onSample(s, fn)
		},
	})

	e.mu.Lock()
	e.sinks[name] = sink
	e.mu.Unlock()

	slog.Debug("gstengine: sink connected", "sink", name)
	return nil
}

// onSample runs on the streaming thread of the sink. A bad sample is skipped
// rather than stopping the stream.
func (e *Engine) onSample(s *app.Sink, fn lifecycle.BufferFunc) gst.FlowReturn {
	sample := s.PullSample()
	if sample == nil {
		slog.Warn("gstengine: failed to pull sample, skipping", "sink", s.GetName())
		return gst.FlowOK
	}
	buf := sample.GetBuffer()
	if buf == nil {
		slog.Warn("gstengine: sample without buffer, skipping", "sink", s.GetName())
		return gst.FlowOK
	}

	e.samples.Add(1)
	fn(&buffer{buf: buf, decoder: e.decoder})
	return gst.FlowOK
}

// Samples returns the number of buffers delivered to connected sinks.
func (e *Engine) Samples() uint64 { return e.samples.Load() }

// Play sets the pipeline to PLAYING.
func (e *Engine) Play() error {
	pipeline, err := e.loaded()
	if err != nil {
		return err
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gstengine: set pipeline to PLAYING: %w", err)
	}
	slog.Info("gstengine: pipeline playing")
	return nil
}

// Poll pops the next end-of-stream, error or warning message. Other bus
// traffic (state changes, QoS, stream status) is left to GStreamer.
func (e *Engine) Poll(timeout time.Duration) (lifecycle.Event, bool) {
	pipeline, err := e.loaded()
	if err != nil {
		time.Sleep(timeout)
		return lifecycle.Event{}, false
	}

	msg := pipeline.GetPipelineBus().TimedPopFiltered(timeout, gst.MessageEOS|gst.MessageError|gst.MessageWarning)
	if msg == nil {
		return lifecycle.Event{}, false
	}

	switch msg.Type() {
	case gst.MessageEOS:
		return lifecycle.Event{Kind: lifecycle.EventTerminalOK, Name: "eos", Source: msg.Source()}, true

	case gst.MessageError:
		gerr := msg.ParseError()
		category := ClassifyError(gerr.Error(), gerr.DebugString())
		slog.Debug("gstengine: error message on bus",
			"source", msg.Source(),
			"category", category.String(),
		)
		return lifecycle.Event{
			Kind:    lifecycle.EventTerminalError,
			Name:    "error",
			Source:  msg.Source(),
			Message: gerr.Error(),
			Debug:   gerr.DebugString(),
		}, true

	case gst.MessageWarning:
		gerr := msg.ParseWarning()
		return lifecycle.Event{
			Kind:    lifecycle.EventOther,
			Name:    "warning",
			Source:  msg.Source(),
			Message: gerr.Error(),
			Debug:   gerr.DebugString(),
		}, true

	default:
		return lifecycle.Event{Kind: lifecycle.EventOther, Name: fmt.Sprint(msg.Type()), Source: msg.Source()}, true
	}
}

// RequestTermination sends end-of-stream into the pipeline so that every
// branch drains before the bus reports it.
func (e *Engine) RequestTermination() error {
	pipeline, err := e.loaded()
	if err != nil {
		return err
	}
	if !pipeline.SendEvent(gst.NewEOSEvent()) {
		return fmt.Errorf("gstengine: end-of-stream event was not handled")
	}
	slog.Info("gstengine: end of stream requested")
	return nil
}

// Stop sets the pipeline to NULL. Safe to call more than once.
func (e *Engine) Stop() error {
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	pipeline := e.pipeline
	e.sinks = make(map[string]*app.Sink)
	e.mu.Unlock()

	if pipeline == nil {
		return nil
	}
	if err := pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstengine: set pipeline to NULL: %w", err)
	}
	slog.Info("gstengine: pipeline stopped", "samples", e.samples.Load())
	return nil
}
