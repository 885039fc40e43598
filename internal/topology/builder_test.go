package topology

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testParams(sources, devices int, display bool) Params {
	return Params{
		Sources:     sources,
		Devices:     devices,
		ModelRef:    "./resources/yolov5m_nv12.hef",
		PostprocRef: "./resources/libyolo_hailortpp_post.so",
		CropRef:     "./resources/libwhole_buffer.so",
		Cadence:     1,
		Display:     display,
	}
}

func devicesOf(g *Graph) []int {
	var out []int
	for _, s := range g.Streams {
		out = append(out, s.Config.Device)
	}
	return out
}

func TestAssignDevice_RangeAndPeriod(t *testing.T) {
	for devices := 1; devices <= 5; devices++ {
		for i := 1; i <= 20; i++ {
			d := AssignDevice(i, devices)
			if d < 1 || d > devices {
				t.Fatalf("AssignDevice(%d, %d) = %d, out of [1,%d]", i, devices, d, devices)
			}
			if next := AssignDevice(i+devices, devices); next != d {
				t.Fatalf("AssignDevice not periodic: i=%d -> %d, i+%d -> %d", i, d, devices, next)
			}
		}
		// every device is used within one period
		seen := map[int]bool{}
		for i := 1; i <= devices; i++ {
			seen[AssignDevice(i, devices)] = true
		}
		if len(seen) != devices {
			t.Errorf("devices=%d: only %d devices used in one period", devices, len(seen))
		}
	}
}

func TestAssignDevice_ZeroDevices(t *testing.T) {
	if d := AssignDevice(1, 0); d != 0 {
		t.Errorf("AssignDevice(1, 0) = %d, want 0", d)
	}
}

func TestBuild_DeviceAssignment(t *testing.T) {
	tests := []struct {
		sources, devices int
		want             []int
	}{
		{1, 1, []int{1}},
		{2, 1, []int{1, 1}},
		{3, 2, []int{1, 2, 1}},
		{4, 4, []int{1, 2, 3, 4}},
		{5, 2, []int{1, 2, 1, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_sources_%d_devices", tt.sources, tt.devices), func(t *testing.T) {
			g, err := Build(testParams(tt.sources, tt.devices, false))
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, devicesOf(g)); diff != "" {
				t.Errorf("device assignment mismatch (-want +got):\n%s", diff)
			}
			for _, s := range g.Streams {
				for _, st := range s.Stages() {
					if st.Kind != "hailonet" {
						continue
					}
					key, _ := st.Param("vdevice-key")
					if key != fmt.Sprint(s.Config.Device) {
						t.Errorf("stream %d: vdevice-key=%s, want %d", s.Config.Index, key, s.Config.Device)
					}
				}
			}
		})
	}
}

func TestBuild_ConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Params)
		field string
	}{
		{"zero sources", func(p *Params) { p.Sources = 0 }, "sources"},
		{"negative sources", func(p *Params) { p.Sources = -1 }, "sources"},
		{"zero devices", func(p *Params) { p.Devices = 0 }, "devices"},
		{"zero cadence", func(p *Params) { p.Cadence = 0 }, "detection_every_n_frames"},
		{"unknown capture", func(p *Params) { p.Capture.Kind = "usb" }, "capture.kind"},
		{"rtsp without url", func(p *Params) { p.Capture.Kind = CaptureRTSP }, "capture.locations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams(2, 1, false)
			tt.mod(&p)

			g, err := Build(p)
			if g != nil {
				t.Error("expected nil graph on error")
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestBuild_StageCountConstantPerStream(t *testing.T) {
	for _, display := range []bool{false, true} {
		g, err := Build(testParams(4, 2, display))
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		first := g.Streams[0].StageCount()
		for _, s := range g.Streams {
			if s.StageCount() != first {
				t.Errorf("display=%v: stream %d has %d stages, stream 1 has %d", display, s.Config.Index, s.StageCount(), first)
			}
		}
	}

	plain, _ := Build(testParams(1, 1, false))
	shown, _ := Build(testParams(1, 1, true))
	if got, want := len(shown.Streams[0].Chains), len(plain.Streams[0].Chains)+2; got != want {
		t.Errorf("display adds %d chains, want fan-out + presentation branch", got-len(plain.Streams[0].Chains))
	}
	if shown.StageCount() <= plain.StageCount() {
		t.Error("display branch did not add stages")
	}
}

func TestBuild_SizeLinearInSources(t *testing.T) {
	one, err := Build(testParams(1, 1, true))
	if err != nil {
		t.Fatal(err)
	}
	for n := 2; n <= 8; n++ {
		g, err := Build(testParams(n, 3, true))
		if err != nil {
			t.Fatal(err)
		}
		if g.StageCount() != n*one.StageCount() {
			t.Errorf("n=%d: %d stages, want %d", n, g.StageCount(), n*one.StageCount())
		}
	}
}

func TestBuild_ReportSinkNames(t *testing.T) {
	for _, display := range []bool{false, true} {
		g, err := Build(testParams(3, 1, display))
		if err != nil {
			t.Fatal(err)
		}
		for _, s := range g.Streams {
			want := fmt.Sprintf("sink%d", s.Config.Index)
			if s.ReportSink != want {
				t.Errorf("ReportSink = %q, want %q", s.ReportSink, want)
			}
			found := false
			for _, st := range s.Stages() {
				if st.Name == want {
					found = st.Kind == "appsink"
				}
			}
			if !found {
				t.Errorf("display=%v: appsink %q missing from stream %d", display, want, s.Config.Index)
			}
		}
	}
}

// TestBuild_QueuesBoundedAndLeaky checks that processing elements are always
// fed through a bounded leaky queue.
func TestBuild_QueuesBoundedAndLeaky(t *testing.T) {
	g, err := Build(testParams(2, 1, true))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range g.Streams {
		for _, c := range s.Chains {
			for n, st := range c.Stages {
				if st.Kind == "queue" {
					if v, _ := st.Param("leaky"); v != "downstream" {
						t.Errorf("queue %q: leaky=%q", st.Name, v)
					}
					if v, _ := st.Param("max-size-buffers"); v != "30" {
						t.Errorf("queue %q: max-size-buffers=%q", st.Name, v)
					}
					continue
				}
				if c.From != "" && n == 0 {
					t.Errorf("stream %d: branch from %s starts with %s instead of a queue", s.Config.Index, c.From, st.Kind)
				}
			}
		}
		for _, st := range s.Stages() {
			if st.Kind == "queue" {
				if v, _ := st.Param("leaky"); v == "no" {
					t.Errorf("non-leaky queue in stream %d", s.Config.Index)
				}
			}
		}
	}
}

func TestBuild_CadenceAndRefs(t *testing.T) {
	p := testParams(1, 1, false)
	p.Cadence = 5
	g, err := Build(p)
	if err != nil {
		t.Fatal(err)
	}
	launch := g.Launch()
	for _, want := range []string{
		"cropping-period=5",
		"hef-path=./resources/yolov5m_nv12.hef",
		"so-path=./resources/libyolo_hailortpp_post.so",
		"so-path=./resources/libwhole_buffer.so",
	} {
		if !strings.Contains(launch, want) {
			t.Errorf("launch missing %q", want)
		}
	}
}

func TestBuild_StreamsIndependent(t *testing.T) {
	g, err := Build(testParams(2, 2, true))
	if err != nil {
		t.Fatal(err)
	}
	own := map[int]map[string]bool{}
	for _, s := range g.Streams {
		own[s.Config.Index] = map[string]bool{}
		for _, st := range s.Stages() {
			if st.Name != "" {
				own[s.Config.Index][st.Name] = true
			}
		}
	}
	for _, s := range g.Streams {
		for _, c := range s.Chains {
			for _, ref := range []string{c.From, c.To} {
				if ref != "" && !own[s.Config.Index][ref] {
					t.Errorf("stream %d references %q outside its sub-graph", s.Config.Index, ref)
				}
			}
		}
	}
}

func TestBuild_CaptureKinds(t *testing.T) {
	tests := []struct {
		capture Capture
		want    []string
	}{
		{Capture{}, []string{"v4l2src device=/dev/video0 ! queue"}},
		{Capture{Kind: CaptureFile, Locations: []string{"a.mp4", "b.mp4"}}, []string{"filesrc location=a.mp4 ! decodebin", "filesrc location=b.mp4 ! decodebin"}},
		{Capture{Kind: CaptureRTSP, Locations: []string{"rtsp://cam/1"}}, []string{"rtspsrc location=rtsp://cam/1 protocols=4"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.capture.Kind), func(t *testing.T) {
			p := testParams(2, 1, false)
			p.Capture = tt.capture
			g, err := Build(p)
			if err != nil {
				t.Fatal(err)
			}
			launch := g.Launch()
			for _, want := range tt.want {
				if !strings.Contains(launch, want) {
					t.Errorf("launch missing %q:\n%s", want, launch)
				}
			}
		})
	}
}

func TestCapture_LocationReusesLast(t *testing.T) {
	c := Capture{Kind: CaptureFile, Locations: []string{"a", "b"}}
	got := []string{c.Location(1), c.Location(2), c.Location(3)}
	if diff := cmp.Diff([]string{"a", "b", "b"}, got); diff != "" {
		t.Errorf("Location mismatch (-want +got):\n%s", diff)
	}
}
