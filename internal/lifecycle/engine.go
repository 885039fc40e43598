package lifecycle

import (
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/metadata"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/topology"
)

// EventKind classifies a bus event.
type EventKind int

const (
	// EventOther is any event the controller does not act on.
	EventOther EventKind = iota
	// EventTerminalOK signals the pipeline drained (end of stream).
	EventTerminalOK
	// EventTerminalError signals a stage failure that halted the pipeline.
	EventTerminalError
)

// Event is a message popped from the engine's bus.
type Event struct {
	Kind EventKind
	// Name is the engine's own name for the message type.
	Name    string
	Source  string
	Message string
	Debug   string
}

func (e Event) String() string {
	switch e.Kind {
	case EventTerminalOK:
		return "terminal_ok"
	case EventTerminalError:
		return fmt.Sprintf("terminal_error(%s: %s)", e.Source, e.Message)
	default:
		return fmt.Sprintf("other(%s from %s)", e.Name, e.Source)
	}
}

// BufferFunc handles one buffer delivered to a reporting sink. It runs on the
// engine's streaming thread and must not block.
type BufferFunc func(buf metadata.Buffer)

// Engine runs a pipeline graph. Stages are opaque to the controller; the
// engine only has to deliver buffers to named sinks and report bus events.
type Engine interface {
	// Load instantiates the graph without starting it.
	Load(g *topology.Graph) error
	// ConnectSink registers fn on the sink with the given name.
	ConnectSink(name string, fn BufferFunc) error
	// Play starts data flow.
	Play() error
	// Poll waits up to timeout for the next bus event.
	Poll(timeout time.Duration) (Event, bool)
	// RequestTermination asks the pipeline to drain (end of stream).
	RequestTermination() error
	// Stop releases the pipeline. Safe to call more than once.
	Stop() error
}
