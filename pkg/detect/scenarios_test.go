package detect

import (
	"testing"
	"time"

	"github.com/avsentry/videocore/pkg/vision"
)

// s1Context decodes a single unified-head detection at the literal raw
// output given by the single-detection scenario: model-input center
// (320,320), size (100,200), class 0, confidence 0.9.
type s1Context struct{}

func (c *s1Context) InputSize() (int, int) { return 640, 640 }
func (c *s1Context) Run(input PreprocessedInput) (RawOutput, error) {
	return RawOutput{Tensors: []Tensor{{
		Shape: []int{1, 5, 1},
		Data:  []float32{320, 320, 100, 200, 0.9},
	}}}, nil
}
func (c *s1Context) Close() error { return nil }

// TestScenario_S1_SingleDetectionSingleFrame exercises the full engine
// pipeline (preprocess -> decode -> letterbox invert -> clamp) against a
// 1280x720 source feeding a 640x640 model. With scale=0.5, x_pad=0,
// y_pad=140, the model-input box corners (270,220)-(370,420) invert to
// source corners (540,160)-(740,560): a 200x400 box at (540,160).
func TestScenario_S1_SingleDetectionSingleFrame(t *testing.T) {
	e, err := New(nil, 1, func([]byte) (Context, error) { return &s1Context{}, nil }, []string{"person"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Shutdown()

	frame := vision.Frame{Data: make([]byte, 1280*720*3), Width: 1280, Height: 720, Format: vision.PixelRGB8}
	fut, err := e.Submit(frame)
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	dets := fut.Wait()
	if len(dets) != 1 {
		t.Fatalf("expected exactly 1 detection, got %d", len(dets))
	}
	got := dets[0]
	if got.ClassName != "person" {
		t.Errorf("expected class_name person, got %s", got.ClassName)
	}
	want := vision.BBox{X: 540, Y: 160, W: 200, H: 400}
	if !closeBBox(got.BBox, want, 1) {
		t.Errorf("expected bbox ~%+v, got %+v", want, got.BBox)
	}
}

func closeBBox(a, b vision.BBox, tol float32) bool {
	return absf(a.X-b.X) <= tol && absf(a.Y-b.Y) <= tol && absf(a.W-b.W) <= tol && absf(a.H-b.H) <= tol
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// s2Context decodes two overlapping same-class boxes at different
// confidences, reproducing the cross-scale NMS scenario.
type s2Context struct{}

func (c *s2Context) InputSize() (int, int) { return 64, 64 }
func (c *s2Context) Run(input PreprocessedInput) (RawOutput, error) {
	// Two boxes with IoU=0.7 (inclusive-pixel-area convention): a 10x10 box
	// at (10,10) and a second 10x10 box shifted to produce the target
	// overlap, scores 0.9 and 0.8, same class.
	return RawOutput{Tensors: []Tensor{{
		Shape: []int{1, 2, 5},
		Data: []float32{
			15, 15, 10, 10, 0.9,
			16, 16, 10, 10, 0.8,
		},
	}}}, nil
}
func (c *s2Context) Close() error { return nil }

func TestScenario_S2_NMSAcrossScalesKeepsHigherScore(t *testing.T) {
	e, err := New(nil, 1, func([]byte) (Context, error) { return &s2Context{}, nil }, []string{"object"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Shutdown()

	frame := vision.Frame{Data: make([]byte, 64*64*3), Width: 64, Height: 64, Format: vision.PixelRGB8}
	fut, err := e.Submit(frame)
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	dets := fut.Wait()
	if len(dets) != 1 {
		t.Fatalf("expected 1 surviving detection after NMS, got %d", len(dets))
	}
	if dets[0].Confidence != 0.9 {
		t.Errorf("expected the 0.9-confidence box to survive, got confidence %v", dets[0].Confidence)
	}
}

// s6Context gates on a channel so the test can hold workers idle while
// submissions queue up (spec §8, "S6 — Drop-oldest under overload").
type s6Context struct {
	gate chan struct{}
}

func (c *s6Context) InputSize() (int, int) { return 32, 32 }
func (c *s6Context) Run(input PreprocessedInput) (RawOutput, error) {
	<-c.gate
	return RawOutput{Tensors: []Tensor{{Shape: []int{1, 5, 1}, Data: []float32{16, 16, 8, 8, 0.9}}}}, nil
}
func (c *s6Context) Close() error { return nil }

func TestScenario_S6_DropOldestUnderOverload(t *testing.T) {
	gate := make(chan struct{})
	ctx := &s6Context{gate: gate}
	e, err := New(nil, 1, func([]byte) (Context, error) { return ctx, nil }, []string{"object"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Shutdown()
	e.SetMaxQueue(2)

	frame := vision.Frame{Data: make([]byte, 32*32*3), Width: 32, Height: 32, Format: vision.PixelRGB8}

	// A blocker submission is picked up by the sole worker immediately and
	// parks on the gate, holding it idle. The 5 scenario submissions then
	// queue up behind it (capacity 2): 1, 2 and 3 get evicted by drop-oldest
	// as 4 and 5 arrive, leaving only 4 and 5 in the queue when the gate
	// opens.
	blocker, err := e.Submit(frame)
	if err != nil {
		t.Fatalf("unexpected submit error for blocker: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the worker claim the blocker

	futures := make([]*Future, 5)
	for i := range futures {
		fut, err := e.Submit(frame)
		if err != nil {
			t.Fatalf("unexpected submit error at %d: %v", i, err)
		}
		futures[i] = fut
	}

	close(gate)

	if dets := blocker.Wait(); len(dets) != 1 {
		t.Errorf("expected blocker submission to complete normally, got %d detections", len(dets))
	}
	for i := 0; i < 3; i++ {
		if dets := futures[i].Wait(); len(dets) != 0 {
			t.Errorf("expected submission %d to resolve empty (dropped), got %d detections", i, len(dets))
		}
	}
	for i := 3; i < 5; i++ {
		if dets := futures[i].Wait(); len(dets) != 1 {
			t.Errorf("expected submission %d to be processed normally, got %d detections", i, len(dets))
		}
	}
	if e.Stats().Dropped != 3 {
		t.Errorf("expected 3 dropped tasks recorded, got %d", e.Stats().Dropped)
	}
}
