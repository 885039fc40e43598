// Package lifecycle drives a pipeline from start to termination and owns the
// interrupt protocol: the first interrupt requests a drain (end of stream),
// a second one before the pipeline finished aborts immediately.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/topology"
)

// DefaultPollInterval bounds how long the wait loop blocks on the bus before
// checking for interrupts.
const DefaultPollInterval = 250 * time.Millisecond

// Sink binds a stream's reporting sink to its buffer handler.
type Sink struct {
	Stream int
	Name   string
	Handle BufferFunc
}

// Controller is the pipeline state machine.
type Controller struct {
	engine       Engine
	interrupts   InterruptSource
	pollInterval time.Duration

	state        atomic.Int32
	terminations atomic.Int32

	mu      sync.Mutex
	wiring  []*WiringError
	failure *RuntimeError

	restoreOnce sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// New returns a controller in StateInit.
func New(engine Engine, interrupts InterruptSource, opts ...Option) *Controller {
	c := &Controller{
		engine:       engine,
		interrupts:   interrupts,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state. Safe for concurrent use.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Terminations returns how many termination requests were sent to the
// engine. It is at most one per run.
func (c *Controller) Terminations() int {
	return int(c.terminations.Load())
}

// WiringErrors returns the streams whose sink could not be connected.
func (c *Controller) WiringErrors() []*WiringError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*WiringError(nil), c.wiring...)
}

// Failure returns the stage error that terminated the run, if any.
func (c *Controller) Failure() *RuntimeError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Start loads g into the engine, connects the reporting sinks and starts
// data flow. A sink that cannot be connected disables reporting for that
// stream only; the error is logged and kept in WiringErrors.
func (c *Controller) Start(g *topology.Graph, sinks []Sink) error {
	if st := c.State(); st != StateInit {
		return fmt.Errorf("lifecycle: cannot start from state %s", st)
	}

	if err := c.engine.Load(g); err != nil {
		return fmt.Errorf("lifecycle: failed to load pipeline: %w", err)
	}

	for _, s := range sinks {
		if err := c.engine.ConnectSink(s.Name, s.Handle); err != nil {
			werr := &WiringError{Stream: s.Stream, Sink: s.Name, Err: err}
			slog.Error("lifecycle: reporting disabled for stream",
				"stream", s.Stream,
				"sink", s.Name,
				"error", err,
			)
			c.mu.Lock()
			c.wiring = append(c.wiring, werr)
			c.mu.Unlock()
			continue
		}
		slog.Debug("lifecycle: sink connected", "stream", s.Stream, "sink", s.Name)
	}

	if err := c.engine.Play(); err != nil {
		return fmt.Errorf("lifecycle: failed to start pipeline: %w", err)
	}

	c.state.Store(int32(StateRunning))
	slog.Info("lifecycle: pipeline running", "streams", len(sinks))
	return nil
}

// Wait blocks until the pipeline reaches a final state.
//
// Each iteration of the loop:
//  1. Returns if the state is final (terminated or aborted)
//  2. Blocks on the engine bus for at most one poll interval
//  3. Applies the received event, if any (end of stream, stage error, noise)
//  4. Reads the interrupt flag and ctx, unless step 3 reached a final state
//
// Step 4 runs on every iteration, including those that received an event,
// so a steady stream of bus warnings cannot hide an interrupt. An interrupt
// is observed at most one poll interval after it was raised.
//
// Cancelling ctx has the same effect as a first interrupt. It never aborts:
// once the termination request is sent, only a real second interrupt or the
// pipeline itself ends the wait.
//
// The returned error is nil for StateTerminatedOK, a *RuntimeError for
// StateTerminatedError and ErrAborted for StateAborted.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	if st := c.State(); st == StateInit {
		return st, fmt.Errorf("lifecycle: wait called before start")
	}

	for {
		if st := c.State(); st.Final() {
			return st, c.result(st)
		}

		if ev, ok := c.engine.Poll(c.pollInterval); ok {
			c.handleEvent(ev)
			if c.State().Final() {
				continue
			}
		}

		c.checkInterrupt(ctx)
	}
}

// Close releases the engine.
func (c *Controller) Close() error {
	return c.engine.Stop()
}

func (c *Controller) handleEvent(ev Event) {
	switch ev.Kind {
	case EventTerminalOK:
		slog.Info("lifecycle: end of stream reached")
		c.finish(StateTerminatedOK)

	case EventTerminalError:
		failure := &RuntimeError{Source: ev.Source, Message: ev.Message, Debug: ev.Debug}
		debug := ev.Debug
		if debug == "" {
			debug = "none"
		}
		slog.Error("lifecycle: error received from element",
			"source", ev.Source,
			"error", ev.Message,
			"debug", debug,
		)
		c.mu.Lock()
		c.failure = failure
		c.mu.Unlock()
		c.finish(StateTerminatedError)

	default:
		slog.Warn("lifecycle: unexpected bus event",
			"event", ev.Name,
			"source", ev.Source,
			"state", c.State().String(),
		)
	}
}

func (c *Controller) checkInterrupt(ctx context.Context) {
	interrupted := c.interrupts.Take()
	st := c.State()
	if !interrupted && st == StateRunning && ctx.Err() != nil {
		slog.Info("lifecycle: context cancelled, draining pipeline")
		interrupted = true
	}
	if !interrupted {
		return
	}

	switch st {
	case StateRunning:
		slog.Info("lifecycle: handling interrupt, sending end of stream")
		c.terminations.Add(1)
		if err := c.engine.RequestTermination(); err != nil {
			slog.Error("lifecycle: termination request failed", "error", err)
		}
		c.state.Store(int32(StateAwaitingTermination))

	case StateAwaitingTermination:
		slog.Warn("lifecycle: second interrupt before end of stream, aborting")
		c.finish(StateAborted)
	}
}

func (c *Controller) finish(st State) {
	c.state.Store(int32(st))
	c.restoreOnce.Do(c.interrupts.Restore)
}

func (c *Controller) result(st State) error {
	switch st {
	case StateTerminatedError:
		if f := c.Failure(); f != nil {
			return f
		}
		return &RuntimeError{Message: "unknown failure"}
	case StateAborted:
		return ErrAborted
	default:
		return nil
	}
}
