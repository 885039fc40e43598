package gstengine

import "testing"

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		debug   string
		want    ErrorCategory
	}{
		{
			name:    "missing model file",
			message: "Could not open resource for reading",
			debug:   "hailonet: failed to load ./resources/yolov5m_nv12.hef",
			want:    ErrCategoryModel,
		},
		{
			name:    "capture device busy",
			message: "Device '/dev/video0' is busy",
			want:    ErrCategoryDevice,
		},
		{
			name:    "caps negotiation",
			message: "Internal data stream error.",
			debug:   "streaming stopped, reason not-negotiated (-4): not negotiated",
			want:    ErrCategoryNegotiation,
		},
		{
			name:    "missing element",
			message: "no element \"hailotracker\"",
			want:    ErrCategoryResource,
		},
		{
			name:    "unclassified",
			message: "boom",
			want:    ErrCategoryUnknown,
		},
		{
			name: "empty",
			want: ErrCategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.message, tt.debug); got != tt.want {
				t.Errorf("ClassifyError(%q, %q) = %v, want %v", tt.message, tt.debug, got, tt.want)
			}
		})
	}
}

func TestErrorCategory_String(t *testing.T) {
	want := map[ErrorCategory]string{
		ErrCategoryDevice:      "device",
		ErrCategoryModel:       "model",
		ErrCategoryNegotiation: "negotiation",
		ErrCategoryResource:    "resource",
		ErrCategoryUnknown:     "unknown",
		ErrorCategory(99):      "unknown",
	}
	for c, s := range want {
		if c.String() != s {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", int(c), c.String(), s)
		}
	}
}
