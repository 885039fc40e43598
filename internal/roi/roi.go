// Package roi models the region-of-interest tree attached to a frame.
//
// The tree is rooted at an ROI covering the whole frame. Children are a
// closed set of kinds (Detection, Tensor, UniqueID, Classification); the
// Object interface is sealed so type switches over it are exhaustive.
package roi

import (
	"fmt"
	"strings"
)

// Kind identifies the concrete type of an Object.
type Kind int

const (
	KindDetection Kind = iota
	KindTensor
	KindUniqueID
	KindClassification
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case KindDetection:
		return "detection"
	case KindTensor:
		return "tensor"
	case KindUniqueID:
		return "unique_id"
	case KindClassification:
		return "classification"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Object is a node in the ROI tree. Only types in this package implement it.
type Object interface {
	Kind() Kind
	sealed()
}

// BBox is a normalized bounding box (0..1 relative to the frame).
type BBox struct {
	XMin   float64 `json:"xmin" msgpack:"xmin"`
	YMin   float64 `json:"ymin" msgpack:"ymin"`
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
}

// ROI is the root of a buffer's metadata tree.
type ROI struct {
	BBox    BBox
	objects []Object
}

// New returns an empty root covering the whole frame.
func New() *ROI {
	return &ROI{BBox: BBox{Width: 1, Height: 1}}
}

// Add attaches obj as a direct child of the root.
func (r *ROI) Add(obj Object) {
	r.objects = append(r.objects, obj)
}

// Objects returns the direct children in insertion order. The slice must not
// be modified.
func (r *ROI) Objects() []Object {
	return r.objects
}

// Tensors returns the tensors attached directly to the root.
func (r *ROI) Tensors() []*Tensor {
	var out []*Tensor
	for _, obj := range r.objects {
		if t, ok := obj.(*Tensor); ok {
			out = append(out, t)
		}
	}
	return out
}

// Detections returns the detections attached directly to the root.
func (r *ROI) Detections() []*Detection {
	var out []*Detection
	for _, obj := range r.objects {
		if d, ok := obj.(*Detection); ok {
			out = append(out, d)
		}
	}
	return out
}

// Detection is an object found by an inference stage.
type Detection struct {
	Label   string
	ClassID int
	Score   float64
	BBox    BBox

	objects []Object
}

func (*Detection) Kind() Kind { return KindDetection }
func (*Detection) sealed()    {}

// Add attaches obj as a direct child of the detection (e.g. its UniqueID).
func (d *Detection) Add(obj Object) {
	d.objects = append(d.objects, obj)
}

// Objects returns the detection's children in insertion order.
func (d *Detection) Objects() []Object {
	return d.objects
}

// UniqueID is a track identifier assigned by the tracking stage.
type UniqueID struct {
	ID int64
}

func (*UniqueID) Kind() Kind { return KindUniqueID }
func (*UniqueID) sealed()    {}

// Classification is a secondary label attached to a detection.
type Classification struct {
	Type  string
	Label string
	Score float64
}

func (*Classification) Kind() Kind { return KindClassification }
func (*Classification) sealed()    {}

// TensorInfo describes the layout of a tensor, as reported by the
// inference stage's output metadata.
type TensorInfo struct {
	Name   string
	Shape  []int
	Format string
	// Quantization parameters (zero point and scale) for quantized outputs.
	QuantZP    float64
	QuantScale float64
}

// String renders the shape as HxWxC
func (i TensorInfo) String() string {
	dims := make([]string, len(i.Shape))
	for n, d := range i.Shape {
		dims[n] = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s[%s]%s", i.Name, strings.Join(dims, "x"), i.Format)
}

// Tensor is a read-only view over a mapped buffer.
//
// The view is valid only while the mapping it was created from is held.
// Once Detach is called Data returns nil; Info stays available.
type Tensor struct {
	Info TensorInfo
	data []byte
}

// NewTensor binds a view over data. Callers own the lifetime of data and
// must Detach before releasing it.
func NewTensor(info TensorInfo, data []byte) *Tensor {
	return &Tensor{Info: info, data: data}
}

func (*Tensor) Kind() Kind { return KindTensor }
func (*Tensor) sealed()    {}

// Name returns the tensor's layer name.
func (t *Tensor) Name() string { return t.Info.Name }

// Data returns the mapped bytes, or nil once detached.
func (t *Tensor) Data() []byte { return t.data }

// Attached reports whether the view still references mapped memory.
func (t *Tensor) Attached() bool { return t.data != nil }

// Detach drops the reference to the mapped memory.
func (t *Tensor) Detach() { t.data = nil }
