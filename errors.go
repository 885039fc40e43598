package streamtracker

import (
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/lifecycle"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/topology"
)

// ConfigError reports an invalid startup parameter (zero sources, zero
// devices, zero cadence). Nothing has been started when it is returned.
type ConfigError = topology.ConfigError

// WiringError reports a stream whose reporting sink could not be connected.
// The run continues without reporting for that stream.
type WiringError = lifecycle.WiringError

// RuntimeError is the stage failure that terminated a run.
type RuntimeError = lifecycle.RuntimeError

// ErrAborted is returned by Run after a second interrupt.
var ErrAborted = lifecycle.ErrAborted
