package gstengine

/*
#cgo pkg-config: gstreamer-1.0
#include <stdlib.h>
#include <string.h>
#include <gst/gst.h>

// Leading fields of the accelerator's tensor meta. The vstream info block
// starts with the output layer name.
#define ST_TENSOR_NAME_SIZE 128

typedef struct {
	GstMeta meta;
	char    name[ST_TENSOR_NAME_SIZE];
} st_tensor_meta_prefix;

static GstBuffer *st_next_parent(GstBuffer *buf, gpointer *state) {
	GstMeta *meta = gst_buffer_iterate_meta_filtered(buf, state, GST_PARENT_BUFFER_META_API_TYPE);
	if (meta == NULL) {
		return NULL;
	}
	return ((GstParentBufferMeta *) meta)->buffer;
}

static GstMeta *st_find_meta(GstBuffer *buf, const char *api) {
	GType type = g_type_from_name(api);
	if (type == 0) {
		return NULL;
	}
	return gst_buffer_get_meta(buf, type);
}

static void st_tensor_name(GstMeta *meta, char *out) {
	st_tensor_meta_prefix *p = (st_tensor_meta_prefix *) meta;
	strncpy(out, p->name, ST_TENSOR_NAME_SIZE - 1);
	out[ST_TENSOR_NAME_SIZE - 1] = '\0';
}
*/
import "C"

import (
	"unsafe"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/roi"
)

// DefaultTensorMetaAPI is the GstMeta API name of the accelerator's
// inference output.
const DefaultTensorMetaAPI = "GstHailoTensorMetaAPI"

// ParentMetaDecoder is the engine's default decoder. It reads the parts of
// the accelerator metadata that live in core GStreamer types:
//
//  1. Nested buffers, from the GstParentBufferMeta entries of a delivered
//     buffer, in the order GStreamer iterates them
//  2. Tensor presence, by looking up a meta of the TensorAPI type on each
//     nested buffer (the type is resolved by name at runtime, so the vendor
//     plugin does not have to be linked)
//  3. The tensor's layer name, read from the leading fields of that meta
//
// The ROI tree itself is a vendor C++ object and is delegated to Tree. With
// no Tree every buffer starts from an empty root ROI, and tensors are still
// attached to it.
type ParentMetaDecoder struct {
	// TensorAPI is the tensor meta API name (DefaultTensorMetaAPI if empty).
	TensorAPI string
	// Tree decodes the vendor ROI tree of a delivered buffer.
	Tree func(buf *gst.Buffer) *roi.ROI
}

var _ MetaDecoder = ParentMetaDecoder{}

func (d ParentMetaDecoder) MainROI(buf *gst.Buffer) *roi.ROI {
	if d.Tree == nil {
		return nil
	}
	return d.Tree(buf)
}

func (d ParentMetaDecoder) Parents(buf *gst.Buffer) []*gst.Buffer {
	cbuf := (*C.GstBuffer)(unsafe.Pointer(buf.Instance()))

	var out []*gst.Buffer
	var state C.gpointer
	for {
		parent := C.st_next_parent(cbuf, &state)
		if parent == nil {
			return out
		}
		// the wrapper holds its own reference until collected
		out = append(out, gst.FromGstBufferUnsafeNone(unsafe.Pointer(parent)))
	}
}

func (d ParentMetaDecoder) TensorInfo(buf *gst.Buffer) (roi.TensorInfo, bool) {
	api := d.TensorAPI
	if api == "" {
		api = DefaultTensorMetaAPI
	}
	capi := C.CString(api)
	defer C.free(unsafe.Pointer(capi))

	meta := C.st_find_meta((*C.GstBuffer)(unsafe.Pointer(buf.Instance())), capi)
	if meta == nil {
		return roi.TensorInfo{}, false
	}

	var name [C.ST_TENSOR_NAME_SIZE]C.char
	C.st_tensor_name(meta, &name[0])
	return roi.TensorInfo{Name: C.GoString(&name[0])}, true
}
