// Package streamtracker runs multi-stream object detection and tracking on a
// GStreamer pipeline and reports every detection it sees.
//
// Each configured source gets its own sub-pipeline: capture, scaling,
// inference on one of the accelerator devices (assigned round-robin),
// post-processing and tracking, ending in an appsink. Buffers arriving at
// that sink are turned into detection records and handed to the reporters
// (log, MQTT, websocket).
//
// # Quick Start
//
//	cfg := streamtracker.DefaultConfig()
//	cfg.Sources = 3
//	cfg.Devices = 2
//
//	tracker, err := streamtracker.New(cfg)
//	if err != nil {
//	    log.Fatal(err) // *streamtracker.ConfigError
//	}
//
//	state, err := tracker.Run(context.Background())
//	os.Exit(state.ExitCode())
//
// # Shutdown
//
// The first SIGINT (or cancelling the context passed to Run) sends end of
// stream into the pipeline and waits for it to drain. A second SIGINT
// before the drain completes aborts at once and restores the default
// signal behavior, so a third one kills the process.
//
// # Metadata
//
// Detections, tracking IDs and tensors travel as accelerator-specific
// buffer metadata. The engine reads them through a MetaDecoder. The default
// ParentMetaDecoder walks the nested buffers and attaches a Tensor for each
// one carrying tensor metadata (named by the tensor_meta_api setting). The
// ROI tree is a vendor C++ object: decode it in ParentMetaDecoder.Tree and
// pass the decoder with WithMetaDecoder.
package streamtracker
