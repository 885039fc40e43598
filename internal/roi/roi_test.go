package roi

import (
	"testing"
)

func TestROI_ChildrenKeepInsertionOrder(t *testing.T) {
	root := New()
	person := &Detection{Label: "person", Score: 0.9}
	car := &Detection{Label: "car", Score: 0.7}
	tensor := NewTensor(TensorInfo{Name: "out0"}, []byte{1, 2, 3})

	root.Add(person)
	root.Add(tensor)
	root.Add(car)

	objs := root.Objects()
	if len(objs) != 3 {
		t.Fatalf("expected 3 children, got %d", len(objs))
	}
	wantKinds := []Kind{KindDetection, KindTensor, KindDetection}
	for i, obj := range objs {
		if obj.Kind() != wantKinds[i] {
			t.Errorf("child %d: kind %v, want %v", i, obj.Kind(), wantKinds[i])
		}
	}

	dets := root.Detections()
	if len(dets) != 2 || dets[0] != person || dets[1] != car {
		t.Errorf("Detections() = %v, want [person car]", dets)
	}
	if ts := root.Tensors(); len(ts) != 1 || ts[0] != tensor {
		t.Errorf("Tensors() = %v, want [out0]", ts)
	}
}

func TestROI_RootCoversFrame(t *testing.T) {
	root := New()
	if root.BBox != (BBox{Width: 1, Height: 1}) {
		t.Errorf("root bbox = %+v, want full frame", root.BBox)
	}
}

func TestTensor_Detach(t *testing.T) {
	tensor := NewTensor(TensorInfo{Name: "yolov5/conv", Shape: []int{20, 20, 255}, Format: "uint8"}, []byte{0xff})

	if !tensor.Attached() {
		t.Fatal("new tensor should be attached")
	}
	tensor.Detach()
	if tensor.Attached() || tensor.Data() != nil {
		t.Error("detached tensor still exposes memory")
	}
	if tensor.Name() != "yolov5/conv" {
		t.Errorf("Name() = %q after detach", tensor.Name())
	}
}

func TestTensorInfo_String(t *testing.T) {
	info := TensorInfo{Name: "out", Shape: []int{80, 80, 18}, Format: "uint8"}
	if got, want := info.String(), "out[80x80x18]uint8"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestKind_String(t *testing.T) {
	tests := map[Kind]string{
		KindDetection:      "detection",
		KindTensor:         "tensor",
		KindUniqueID:       "unique_id",
		KindClassification: "classification",
		Kind(42):           "kind(42)",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}
