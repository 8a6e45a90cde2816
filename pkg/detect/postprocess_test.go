package detect

import (
	"math"
	"testing"

	"github.com/avsentry/videocore/pkg/vision"
)

func TestNMS_SuppressesOverlapInclusive(t *testing.T) {
	dets := []vision.Detection{
		{BBox: vision.BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.9, ClassID: 0},
		{BBox: vision.BBox{X: 1, Y: 1, W: 10, H: 10}, Confidence: 0.8, ClassID: 0},
	}
	kept := nms(dets, 0.1)
	if len(kept) != 1 {
		t.Fatalf("expected 1 kept detection, got %d", len(kept))
	}
	if kept[0].Confidence != 0.9 {
		t.Errorf("expected the higher-confidence box kept, got confidence %f", kept[0].Confidence)
	}
}

func TestNMS_DifferentClassesNotSuppressed(t *testing.T) {
	dets := []vision.Detection{
		{BBox: vision.BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.9, ClassID: 0},
		{BBox: vision.BBox{X: 0, Y: 0, W: 10, H: 10}, Confidence: 0.8, ClassID: 1},
	}
	kept := nms(dets, 0.1)
	if len(kept) != 2 {
		t.Fatalf("expected both detections kept across classes, got %d", len(kept))
	}
}

func TestNMS_StableTieBreakByIndex(t *testing.T) {
	dets := []vision.Detection{
		{BBox: vision.BBox{X: 0, Y: 0, W: 1, H: 1}, Confidence: 0.5, ClassID: 0},
		{BBox: vision.BBox{X: 100, Y: 100, W: 1, H: 1}, Confidence: 0.5, ClassID: 0},
	}
	kept := nms(dets, 0.45)
	if len(kept) != 2 {
		t.Fatalf("expected 2 disjoint boxes kept, got %d", len(kept))
	}
	if kept[0].BBox.X != 0 {
		t.Errorf("expected lower-index box first on tie, got %v", kept[0].BBox)
	}
}

func TestDFLExpectation_Uniform(t *testing.T) {
	// uniform logits -> softmax is uniform -> expectation is the mean index
	dflLen := 4
	box := make([]float32, dflLen)
	got := dflExpectation(box, 0, 0, 1, dflLen)
	want := float32(0+1+2+3) / 4
	if math.Abs(float64(got-want)) > 1e-4 {
		t.Errorf("expected uniform expectation %f, got %f", want, got)
	}
}

func TestDFLExpectation_PeakedAtOneBin(t *testing.T) {
	dflLen := 4
	box := []float32{-100, -100, 100, -100} // bin 2 dominates
	got := dflExpectation(box, 0, 0, 1, dflLen)
	if math.Abs(float64(got-2.0)) > 1e-3 {
		t.Errorf("expected expectation near 2.0, got %f", got)
	}
}

func TestDecodeShapeB_TransposedAndUntransposed(t *testing.T) {
	cfg := PostprocessConfig{ConfidenceThreshold: 0.5, ClassNames: []string{"person", "car"}}

	// untransposed [1, 6, 1]: channels 0-3 box, 4-5 class scores
	untransposed := Tensor{
		Shape: []int{1, 6, 1},
		Data:  []float32{50, 50, 20, 20, 0.9, 0.1},
	}
	dets := decodeShapeB(untransposed, cfg)
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].ClassName != "person" {
		t.Errorf("expected person class, got %s", dets[0].ClassName)
	}

	// transposed [1, 1, 6]: one anchor, 6 channels
	transposed := Tensor{
		Shape: []int{1, 1, 6},
		Data:  []float32{50, 50, 20, 20, 0.1, 0.9},
	}
	dets2 := decodeShapeB(transposed, cfg)
	if len(dets2) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets2))
	}
	if dets2[0].ClassName != "car" {
		t.Errorf("expected car class, got %s", dets2[0].ClassName)
	}
}

func TestDecodeShapeB_BelowThresholdDropped(t *testing.T) {
	cfg := PostprocessConfig{ConfidenceThreshold: 0.95, ClassNames: []string{"person"}}
	tensor := Tensor{Shape: []int{1, 5, 1}, Data: []float32{50, 50, 20, 20, 0.5}}
	dets := decodeShapeB(tensor, cfg)
	if len(dets) != 0 {
		t.Errorf("expected no detections below threshold, got %d", len(dets))
	}
}

func TestTensorDequantize_AffineINT8(t *testing.T) {
	tensor := Tensor{Int8Data: []int8{0, 64, -128, 127}, Scale: 0.1, ZeroPoint: 0}
	got := tensor.Dequantize()
	want := []float32{0, 6.4, -12.8, 12.7}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-4 {
			t.Errorf("index %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPostprocess_UnrecognizedShapeErrors(t *testing.T) {
	_, err := postprocess(RawOutput{Tensors: []Tensor{{Shape: []int{1, 2}}}}, PostprocessConfig{})
	if err == nil {
		t.Error("expected error for unrecognized tensor shape")
	}
}
