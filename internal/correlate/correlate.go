// Package correlate turns an ROI tree into per-detection records carrying
// the track identifier assigned by the tracking stage.
package correlate

import (
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/stream-tracker/internal/roi"
)

// Record is one detection correlated with its track, produced per buffer.
type Record struct {
	Stream  int      `json:"stream" msgpack:"stream"`
	Label   string   `json:"label" msgpack:"label"`
	Score   float64  `json:"score" msgpack:"score"`
	BBox    roi.BBox `json:"bbox" msgpack:"bbox"`
	TrackID int64    `json:"track_id" msgpack:"track_id"`
	Tracked bool     `json:"tracked" msgpack:"tracked"`
	// TraceID groups the records extracted from the same buffer.
	TraceID string `json:"trace_id,omitempty" msgpack:"trace_id,omitempty"`
}

// String renders the record the way the detection log lines read.
func (r Record) String() string {
	if r.Tracked {
		return fmt.Sprintf("%s detected with id %d in stream %d", r.Label, r.TrackID, r.Stream)
	}
	return fmt.Sprintf("%s detected in stream %d", r.Label, r.Stream)
}

// TrackID returns the first UniqueID found among the detection's direct
// children. When several are present the first one wins; which one that is
// depends on the tracker and is not meaningful.
func TrackID(det *roi.Detection) (int64, bool) {
	for _, obj := range det.Objects() {
		if id, ok := obj.(*roi.UniqueID); ok {
			return id.ID, true
		}
	}
	return 0, false
}

// Visit calls fn once per detection directly under the root, in tree order.
// The tree is never modified.
func Visit(tree *roi.ROI, stream int, fn func(Record)) {
	if tree == nil {
		return
	}
	for _, obj := range tree.Objects() {
		switch o := obj.(type) {
		case *roi.Detection:
			rec := Record{
				Stream: stream,
				Label:  o.Label,
				Score:  o.Score,
				BBox:   o.BBox,
			}
			rec.TrackID, rec.Tracked = TrackID(o)
			fn(rec)
		case *roi.Tensor, *roi.UniqueID, *roi.Classification:
			// only detections are reported
		}
	}
}

// Correlate returns all records for tree.
func Correlate(tree *roi.ROI, stream int) []Record {
	var out []Record
	Visit(tree, stream, func(r Record) {
		out = append(out, r)
	})
	return out
}
