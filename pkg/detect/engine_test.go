package detect

import (
	"testing"
	"time"

	"github.com/avsentry/videocore/pkg/vision"
)

// fakeContext always returns a single above-threshold detection via the
// unified-head tensor shape, optionally blocking on a gate channel so tests
// can control worker timing precisely.
type fakeContext struct {
	gate   chan struct{}
	closed bool
}

func (c *fakeContext) InputSize() (int, int) { return 64, 64 }

func (c *fakeContext) Run(input PreprocessedInput) (RawOutput, error) {
	if c.gate != nil {
		<-c.gate
	}
	return RawOutput{Tensors: []Tensor{{
		Shape: []int{1, 5, 1},
		Data:  []float32{32, 32, 10, 10, 0.9},
	}}}, nil
}

func (c *fakeContext) Close() error { c.closed = true; return nil }

func testFrame() vision.Frame {
	return vision.Frame{
		Data:   make([]byte, 64*64*3),
		Width:  64,
		Height: 64,
		Format: vision.PixelRGB8,
	}
}

func TestEngine_SubmitResolvesDetections(t *testing.T) {
	e, err := New(nil, 1, func([]byte) (Context, error) { return &fakeContext{}, nil }, []string{"person"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Shutdown()

	fut, err := e.Submit(testFrame())
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	dets := fut.Wait()
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].ClassName != "person" {
		t.Errorf("expected class person, got %s", dets[0].ClassName)
	}
}

func TestEngine_DropOldestUnderLoad(t *testing.T) {
	gate := make(chan struct{})
	e, err := New(nil, 1, func([]byte) (Context, error) { return &fakeContext{gate: gate}, nil }, []string{"person"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Shutdown()
	e.SetMaxQueue(1)

	// first submission is immediately dequeued by the single worker and
	// blocks on the gate; the next two submissions queue up (capacity 1),
	// so the second must be dropped to admit the third.
	firstInFlight, _ := e.Submit(testFrame())
	time.Sleep(20 * time.Millisecond)

	oldest, _ := e.Submit(testFrame())
	newest, _ := e.Submit(testFrame())

	select {
	case dets := <-oldest.ch:
		if dets != nil {
			t.Errorf("expected dropped task to resolve empty, got %v", dets)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dropped future to resolve")
	}

	close(gate)

	if dets := firstInFlight.Wait(); len(dets) != 1 {
		t.Errorf("expected in-flight submission to complete normally, got %v", dets)
	}
	if dets := newest.Wait(); len(dets) != 1 {
		t.Errorf("expected newest queued submission to complete normally, got %v", dets)
	}

	if e.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped task recorded, got %d", e.Stats().Dropped)
	}
}

func TestEngine_ShutdownCancelsQueued(t *testing.T) {
	gate := make(chan struct{})
	e, err := New(nil, 1, func([]byte) (Context, error) { return &fakeContext{gate: gate}, nil }, []string{"person"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.SetMaxQueue(5)

	inFlight, _ := e.Submit(testFrame())
	time.Sleep(20 * time.Millisecond)
	queued, _ := e.Submit(testFrame())

	done := make(chan struct{})
	go func() {
		e.Shutdown()
		close(done)
	}()

	select {
	case dets := <-queued.ch:
		if dets != nil {
			t.Errorf("expected cancelled queued task to resolve empty, got %v", dets)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancelled future")
	}

	close(gate)
	inFlight.Wait()
	<-done

	if _, err := e.Submit(testFrame()); err != ErrEngineClosed {
		t.Errorf("expected ErrEngineClosed after shutdown, got %v", err)
	}
}

func TestEngine_SetEnabledCategoriesFilters(t *testing.T) {
	e, err := New(nil, 1, func([]byte) (Context, error) { return &fakeContext{}, nil }, []string{"person"}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer e.Shutdown()

	e.SetEnabledCategories([]string{"car"})
	fut, _ := e.Submit(testFrame())
	dets := fut.Wait()
	if len(dets) != 0 {
		t.Errorf("expected detections filtered out by category, got %d", len(dets))
	}
}

func TestNew_RejectsNonPositiveContexts(t *testing.T) {
	_, err := New(nil, 0, func([]byte) (Context, error) { return &fakeContext{}, nil }, nil, false)
	if err != ErrNoContexts {
		t.Errorf("expected ErrNoContexts, got %v", err)
	}
}
