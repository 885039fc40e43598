package gstengine

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/metadata"
	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/roi"
)

// MetaDecoder reads the accelerator's metadata off GStreamer buffers.
//
// Nested buffers and tensor metadata are decoded by ParentMetaDecoder, the
// engine default. The ROI tree is a vendor C++ object with no Go binding; a
// deployment decodes it in ParentMetaDecoder.Tree or supplies a decoder of
// its own.
type MetaDecoder interface {
	// MainROI returns the buffer's ROI tree, or nil when it has none.
	MainROI(buf *gst.Buffer) *roi.ROI
	// Parents returns the nested buffers attached to buf in discovery order.
	Parents(buf *gst.Buffer) []*gst.Buffer
	// TensorInfo returns the tensor metadata block of a nested buffer.
	TensorInfo(buf *gst.Buffer) (roi.TensorInfo, bool)
}

// NopDecoder decodes nothing. Every buffer yields an empty root ROI.
type NopDecoder struct{}

func (NopDecoder) MainROI(*gst.Buffer) *roi.ROI                  { return nil }
func (NopDecoder) Parents(*gst.Buffer) []*gst.Buffer             { return nil }
func (NopDecoder) TensorInfo(*gst.Buffer) (roi.TensorInfo, bool) { return roi.TensorInfo{}, false }

// buffer adapts a delivered GStreamer buffer to metadata.Buffer.
type buffer struct {
	buf     *gst.Buffer
	decoder MetaDecoder
}

func (b *buffer) ROI() *roi.ROI {
	if r := b.decoder.MainROI(b.buf); r != nil {
		return r
	}
	return roi.New()
}

func (b *buffer) Parents() []metadata.ParentRef {
	parents := b.decoder.Parents(b.buf)
	refs := make([]metadata.ParentRef, 0, len(parents))
	for _, p := range parents {
		refs = append(refs, &parentRef{buf: p, decoder: b.decoder})
	}
	return refs
}

type parentRef struct {
	buf     *gst.Buffer
	decoder MetaDecoder
}

func (p *parentRef) Map() (metadata.Mapping, error) {
	info := p.buf.Map(gst.MapRead | gst.MapWrite)
	if info == nil {
		return nil, fmt.Errorf("gstengine: map nested buffer")
	}
	data := info.Bytes()
	if len(data) == 0 {
		p.buf.Unmap()
		return nil, fmt.Errorf("gstengine: nested buffer mapped empty")
	}
	return &mapping{buf: p.buf, data: data}, nil
}

func (p *parentRef) TensorMeta() (roi.TensorInfo, bool) {
	return p.decoder.TensorInfo(p.buf)
}

type mapping struct {
	buf  *gst.Buffer
	data []byte
}

func (m *mapping) Data() []byte { return m.data }

func (m *mapping) Unmap() {
	m.data = nil
	m.buf.Unmap()
}
