// Package metadata rebuilds the ROI tree of a delivered buffer and attaches
// the tensors carried by its nested (parent) buffers.
package metadata

import (
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/roi"
)

// Mapping is a scoped read-write mapping of a buffer's memory.
type Mapping interface {
	Data() []byte
	Unmap()
}

// ParentRef is a nested buffer attached to a delivered buffer (cropped or
// aggregated sub-frames).
type ParentRef interface {
	// Map acquires a read-write mapping. Every successful Map is followed by
	// exactly one Unmap.
	Map() (Mapping, error)
	// TensorMeta reports the tensor metadata block of the nested buffer.
	TensorMeta() (roi.TensorInfo, bool)
}

// Buffer is a unit of streaming data as delivered to a sink.
type Buffer interface {
	// ROI returns the buffer's main ROI. Implementations create an empty
	// root when the buffer carries none.
	ROI() *roi.ROI
	// Parents returns the nested buffers in discovery order.
	Parents() []ParentRef
}

// Stats counts what one extraction did.
type Stats struct {
	Parents  int
	Mapped   int
	Released int
	Tensors  int
}

type options struct {
	onTensor func(*roi.Tensor)
	stats    *Stats
}

// Option configures Extract.
type Option func(*options)

// WithTensorHook calls fn for every attached tensor while its memory is
// still mapped. fn must not retain the tensor's Data.
func WithTensorHook(fn func(*roi.Tensor)) Option {
	return func(o *options) { o.onTensor = fn }
}

// WithStats records extraction counters into s.
func WithStats(s *Stats) Option {
	return func(o *options) { o.stats = s }
}

// Extract returns the ROI tree of buf with one Tensor child per nested
// buffer that carries tensor metadata.
//
// For each nested buffer, in discovery order, Extract:
//  1. Maps the buffer read-write; a buffer that cannot be mapped is logged
//     and skipped without affecting the others
//  2. Checks for tensor metadata; without it the buffer is released and
//     nothing is attached
//  3. Attaches a Tensor viewing the mapped bytes to the root ROI and calls
//     the tensor hook, if any
//  4. Detaches the tensor from the memory and releases the mapping
//
// Every mapping acquired here is released before Extract returns, on every
// path. Tensors stay in the tree after Extract returns, but only their Info
// remains; Data is nil. Code that needs the bytes reads them in the hook.
//
// A buffer without a main ROI yields an empty root, never nil.
func Extract(buf Buffer, opts ...Option) *roi.ROI {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	var st Stats

	root := buf.ROI()
	if root == nil {
		root = roi.New()
	}

	for _, ref := range buf.Parents() {
		st.Parents++
		if attachTensor(root, ref, &o, &st) {
			st.Tensors++
		}
	}

	if o.stats != nil {
		*o.stats = st
	}
	return root
}

// attachTensor maps ref and, when it carries tensor metadata, attaches a
// tensor view to root. The mapping is released on every path.
func attachTensor(root *roi.ROI, ref ParentRef, o *options, st *Stats) bool {
	m, err := ref.Map()
	if err != nil {
		slog.Debug("metadata: failed to map parent buffer, skipping", "error", err)
		return false
	}
	st.Mapped++

	var tensor *roi.Tensor
	defer func() {
		if tensor != nil {
			tensor.Detach()
		}
		m.Unmap()
		st.Released++
	}()

	info, ok := ref.TensorMeta()
	if !ok {
		return false
	}

	tensor = roi.NewTensor(info, m.Data())
	root.Add(tensor)
	if o.onTensor != nil {
		o.onTensor(tensor)
	}
	return true
}
