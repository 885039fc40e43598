package gstengine

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/lifecycle"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/metadata"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/roi"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/topology"
)

// TestEngine_NotLoaded verifies every pipeline operation fails cleanly before Load.
func TestEngine_NotLoaded(t *testing.T) {
	e := New()

	if err := e.ConnectSink("sink1", func(metadata.Buffer) {}); err == nil {
		t.Error("ConnectSink() before Load() succeeded")
	}
	if err := e.Play(); err == nil {
		t.Error("Play() before Load() succeeded")
	}
	if err := e.RequestTermination(); err == nil {
		t.Error("RequestTermination() before Load() succeeded")
	}
	if _, ok := e.Poll(time.Millisecond); ok {
		t.Error("Poll() before Load() returned an event")
	}

	// Stop is idempotent even without a pipeline
	if err := e.Stop(); err != nil {
		t.Errorf("first Stop() = %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestNopDecoder(t *testing.T) {
	b := &buffer{decoder: NopDecoder{}}

	root := b.ROI()
	if root == nil {
		t.Fatal("ROI() = nil, want empty root")
	}
	if n := len(root.Objects()); n != 0 {
		t.Errorf("root has %d objects, want 0", n)
	}
	if n := len(b.Parents()); n != 0 {
		t.Errorf("Parents() = %d refs, want 0", n)
	}
}

// testGraph is a single software stream ending in an appsink.
func testGraph() *topology.Graph {
	return &topology.Graph{Streams: []topology.Stream{{
		Chains: []topology.Chain{{Stages: []topology.Stage{
			{Kind: "videotestsrc", Name: "source1", Params: []topology.Param{{Key: "num-buffers", Value: "5"}}},
			{Kind: "video/x-raw", Caps: true, Params: []topology.Param{{Key: "width", Value: "64"}, {Key: "height", Value: "64"}}},
			{Kind: "appsink", Name: "sink1", Params: []topology.Param{{Key: "sync", Value: "false"}}},
		}}},
		ReportSink: "sink1",
	}}}
}

// TestEngine_RunsToEndOfStream runs a real pipeline. It needs GStreamer
// with the base plugins installed.
func TestEngine_RunsToEndOfStream(t *testing.T) {
	if os.Getenv("STREAM_TRACKER_GST_TESTS") == "" {
		t.Skip("Skipping integration test (set STREAM_TRACKER_GST_TESTS=1, requires GStreamer)")
	}

	e := New()
	if err := e.Load(testGraph()); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	defer e.Stop()

	var buffers atomic.Int32
	if err := e.ConnectSink("sink1", func(metadata.Buffer) { buffers.Add(1) }); err != nil {
		t.Fatalf("ConnectSink() = %v", err)
	}
	if err := e.ConnectSink("source1", func(metadata.Buffer) {}); err == nil {
		t.Error("ConnectSink() on a non-appsink succeeded")
	}
	if err := e.ConnectSink("missing", func(metadata.Buffer) {}); err == nil {
		t.Error("ConnectSink() on a missing element succeeded")
	}
	if err := e.Play(); err != nil {
		t.Fatalf("Play() = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ev, ok := e.Poll(100 * time.Millisecond)
		if !ok {
			continue
		}
		if ev.Kind == lifecycle.EventTerminalError {
			t.Fatalf("pipeline error: %s", ev)
		}
		if ev.Kind == lifecycle.EventTerminalOK {
			if got := buffers.Load(); got != 5 {
				t.Errorf("delivered %d buffers, want 5", got)
			}
			if e.Samples() != 5 {
				t.Errorf("Samples() = %d, want 5", e.Samples())
			}
			return
		}
	}
	t.Fatal("timeout waiting for end of stream")
}

func TestEngine_LoadRejectsUnknownElement(t *testing.T) {
	if os.Getenv("STREAM_TRACKER_GST_TESTS") == "" {
		t.Skip("Skipping integration test (set STREAM_TRACKER_GST_TESTS=1, requires GStreamer)")
	}

	g := testGraph()
	g.Streams[0].Chains[0].Stages[0].Kind = "no-such-element"
	if err := New().Load(g); err == nil {
		t.Error("Load() accepted an unknown element")
	}
}

func TestNew_DefaultDecoder(t *testing.T) {
	if _, ok := New().Decoder().(ParentMetaDecoder); !ok {
		t.Errorf("default decoder = %T, want ParentMetaDecoder", New().Decoder())
	}
	if _, ok := New(WithMetaDecoder(nil)).Decoder().(ParentMetaDecoder); !ok {
		t.Error("WithMetaDecoder(nil) replaced the default decoder")
	}
	if _, ok := New(WithMetaDecoder(NopDecoder{})).Decoder().(NopDecoder); !ok {
		t.Error("WithMetaDecoder() did not replace the default decoder")
	}
}

func TestParentMetaDecoder_Tree(t *testing.T) {
	tree := roi.New()
	tree.Add(&roi.Detection{Label: "person"})

	d := ParentMetaDecoder{Tree: func(*gst.Buffer) *roi.ROI { return tree }}
	b := &buffer{decoder: d}
	if got := b.ROI(); got != tree {
		t.Errorf("ROI() = %p, want the decoded tree %p", got, tree)
	}

	b = &buffer{decoder: ParentMetaDecoder{}}
	if got := b.ROI(); got == nil || len(got.Objects()) != 0 {
		t.Errorf("ROI() without Tree = %v, want empty root", got)
	}
}

// TestParentMetaDecoder_NestedBuffers attaches parent buffer metas to a real
// buffer. It needs GStreamer.
func TestParentMetaDecoder_NestedBuffers(t *testing.T) {
	if os.Getenv("STREAM_TRACKER_GST_TESTS") == "" {
		t.Skip("Skipping integration test (set STREAM_TRACKER_GST_TESTS=1, requires GStreamer)")
	}
	Init()

	frame := gst.NewBufferWithSize(16)
	first := gst.NewBufferFromBytes([]byte{1, 2, 3, 4})
	second := gst.NewBufferFromBytes([]byte{5, 6})
	frame.AddParentMeta(first)
	frame.AddParentMeta(second)

	d := ParentMetaDecoder{}
	parents := d.Parents(frame)
	if len(parents) != 2 {
		t.Fatalf("Parents() = %d buffers, want 2", len(parents))
	}
	if got := parents[0].GetSize(); got != 4 {
		t.Errorf("first nested buffer size = %d, want 4", got)
	}
	if got := parents[1].GetSize(); got != 2 {
		t.Errorf("second nested buffer size = %d, want 2", got)
	}

	// the tensor meta type is not registered without the accelerator plugins
	if _, ok := d.TensorInfo(parents[0]); ok {
		t.Error("TensorInfo() found tensor metadata on a plain buffer")
	}
	if n := len(d.Parents(first)); n != 0 {
		t.Errorf("Parents() of a plain buffer = %d, want 0", n)
	}

	b := &buffer{buf: frame, decoder: d}
	var st metadata.Stats
	metadata.Extract(b, metadata.WithStats(&st))
	if st.Parents != 2 || st.Mapped != st.Released || st.Tensors != 0 {
		t.Errorf("Extract stats = %+v, want 2 parents, balanced mappings, no tensors", st)
	}
}
