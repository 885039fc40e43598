package lifecycle

import (
	"errors"
	"fmt"
)

// ErrAborted is returned when a second interrupt arrives before the pipeline
// finished draining.
var ErrAborted = errors.New("lifecycle: aborted by second interrupt")

// WiringError reports a stream whose reporting sink could not be connected.
// The stream keeps running without reporting.
type WiringError struct {
	Stream int
	Sink   string
	Err    error
}

func (e *WiringError) Error() string {
	return fmt.Sprintf("lifecycle: stream %d: sink %q not wired: %v", e.Stream, e.Sink, e.Err)
}

func (e *WiringError) Unwrap() error { return e.Err }

// RuntimeError is a stage failure reported by the engine.
type RuntimeError struct {
	Source  string
	Message string
	Debug   string
}

func (e *RuntimeError) Error() string {
	if e.Debug == "" {
		return fmt.Sprintf("lifecycle: error from element %s: %s", e.Source, e.Message)
	}
	return fmt.Sprintf("lifecycle: error from element %s: %s (debug: %s)", e.Source, e.Message, e.Debug)
}
