package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	streamtracker "github.com/e7canasta/orion-care-sensor/modules/stream-tracker"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/config"
)

// Version information
const version = "v0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	envFile := flag.String("env", ".env", "Environment file with STREAM_TRACKER_* overrides")
	sources := flag.Int("sources", 0, "Number of sources (overrides config)")
	devices := flag.Int("devices", 0, "Number of accelerator devices (overrides config)")
	detectEvery := flag.Int("detect-every", 0, "Run detection every N frames (overrides config)")
	display := flag.Bool("display", true, "Show the annotated video (overrides config when set)")
	tensorMetaAPI := flag.String("tensor-meta-api", "", "GstMeta API name of the tensor metadata (overrides config)")
	printPipeline := flag.Bool("print-pipeline", false, "Print the gst-launch command and exit")
	statsInterval := flag.Int("stats-interval", 0, "Seconds between stats reports (0 = off)")
	logFormat := flag.String("log-format", "text", "Log format: text, json")
	debug := flag.Bool("debug", false, "Enable debug logging and GST_DEBUG=*:3")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("stream-tracker %s\n", version)
		return streamtracker.ExitOK
	}

	setupLogging(*logFormat, *debug)

	// GStreamer reads GST_DEBUG at initialization.
	if *debug {
		os.Setenv("GST_DEBUG", "*:3")
	}

	cfg, err := loadConfig(*configPath, *envFile)
	if err != nil {
		slog.Error("stream-tracker: invalid configuration", "error", err)
		return streamtracker.ExitConfig
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sources":
			cfg.Sources = *sources
		case "devices":
			cfg.Devices = *devices
		case "detect-every":
			cfg.DetectEveryN = *detectEvery
		case "display":
			cfg.Display = *display
		case "tensor-meta-api":
			cfg.Inference.TensorMetaAPI = *tensorMetaAPI
		}
	})

	tracker, err := streamtracker.New(cfg, streamtracker.WithDebug(*debug))
	if err != nil {
		var cerr *streamtracker.ConfigError
		if errors.As(err, &cerr) {
			slog.Error("stream-tracker: invalid configuration", "field", cerr.Field, "value", cerr.Value, "reason", cerr.Reason)
		} else {
			slog.Error("stream-tracker: failed to build pipeline", "error", err)
		}
		return streamtracker.ExitConfig
	}

	if *printPipeline {
		fmt.Printf("gst-launch-1.0 -v %s\n", tracker.Launch())
		return streamtracker.ExitOK
	}

	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *statsInterval > 0 {
		go reportStats(ctx, tracker, time.Duration(*statsInterval)*time.Second)
	}

	fmt.Printf("Press Ctrl+C to stop gracefully (twice to abort)\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n\n")

	state, err := tracker.Run(ctx)
	cancel()

	for _, werr := range tracker.WiringErrors() {
		slog.Warn("stream-tracker: stream ran without reporting", "stream", werr.Stream, "sink", werr.Sink, "error", werr.Err)
	}
	printStats(tracker.Stats())

	switch {
	case errors.Is(err, streamtracker.ErrAborted):
		slog.Warn("stream-tracker: aborted")
	case err != nil:
		slog.Error("stream-tracker: pipeline failed", "error", err, "state", state.String())
	default:
		slog.Info("stream-tracker: finished", "state", state.String())
	}
	return state.ExitCode()
}

func setupLogging(format string, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func loadConfig(path, envFile string) (*streamtracker.Config, error) {
	cfg := streamtracker.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = streamtracker.LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if err := config.LoadEnv(cfg, envFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printBanner(cfg *streamtracker.Config) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Stream Tracker - Orion 2.0 Module               ║\n")
	fmt.Printf("║                      Version %s                       ║\n", version)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Sources:       %d (%s)\n", cfg.Sources, cfg.Capture.Kind)
	fmt.Printf("  Devices:       %d\n", cfg.Devices)
	fmt.Printf("  Model:         %s\n", cfg.Model)
	fmt.Printf("  Detect every:  %d frame(s)\n", cfg.DetectEveryN)
	fmt.Printf("  Display:       %v\n", cfg.Display)
	if cfg.Report.MQTT.Broker != "" {
		fmt.Printf("  MQTT:          %s (%s)\n", cfg.Report.MQTT.Broker, cfg.Report.MQTT.TopicPrefix)
	}
	if cfg.Report.WebSocket.Listen != "" {
		fmt.Printf("  WebSocket:     %s%s\n", cfg.Report.WebSocket.Listen, cfg.Report.WebSocket.Path)
	}
	fmt.Printf("\n")
}

func reportStats(ctx context.Context, tracker *streamtracker.Tracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printStats(tracker.Stats())
		}
	}
}

func printStats(stats []streamtracker.StreamStats) {
	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Stream Statistics\n")
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	for _, s := range stats {
		fmt.Printf("│ Stream %d (device %d): %6d buffers, %6d records (%d tracked)\n",
			s.Stream, s.Device, s.Buffers, s.Records, s.Tracked)
		if s.Panics > 0 {
			fmt.Printf("│   handler panics:   %6d\n", s.Panics)
		}
		if !s.LastBuffer.IsZero() {
			fmt.Printf("│   last buffer:      %s ago\n", time.Since(s.LastBuffer).Round(time.Millisecond))
		}
	}
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
}
