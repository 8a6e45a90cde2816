package reid

import (
	"math"
	"testing"

	"github.com/avsentry/videocore/pkg/vision"
)

type fakeEmbedder struct {
	dim     int
	fixed   []float32
	failAll bool
}

func (f *fakeEmbedder) Dim() int { return f.dim }

func (f *fakeEmbedder) Embed(crop []byte, width, height int) ([]float32, error) {
	if f.failAll {
		return nil, errTestEmbed
	}
	out := make([]float32, len(f.fixed))
	copy(out, f.fixed)
	return out, nil
}

var errTestEmbed = testErr("embed failed")

type testErr string

func (e testErr) Error() string { return string(e) }

func testFrame(w, h int) vision.Frame {
	return vision.Frame{Data: make([]byte, w*h*3), Width: w, Height: h, Format: vision.PixelRGB8}
}

func TestExtract_ValidBoxProducesNormalizedEmbedding(t *testing.T) {
	e := New(&fakeEmbedder{dim: 4, fixed: []float32{3, 4, 0, 0}}, 16)
	embeddings, err := e.Extract(testFrame(100, 100), []vision.BBox{{X: 10, Y: 10, W: 20, H: 20}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embeddings) != 1 || !embeddings[0].Valid {
		t.Fatalf("expected valid embedding, got %+v", embeddings)
	}
	norm := math.Sqrt(float64(embeddings[0].Features[0]*embeddings[0].Features[0] + embeddings[0].Features[1]*embeddings[0].Features[1]))
	if math.Abs(norm-1.0) > 1e-4 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestExtract_DegenerateBoxInvalid(t *testing.T) {
	e := New(&fakeEmbedder{dim: 4, fixed: []float32{1, 0, 0, 0}}, 16)
	embeddings, err := e.Extract(testFrame(100, 100), []vision.BBox{{X: 200, Y: 200, W: 10, H: 10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embeddings[0].Valid {
		t.Error("expected invalid embedding for out-of-bounds box")
	}
	if len(embeddings[0].Features) != 0 {
		t.Error("expected empty features for invalid embedding")
	}
}

func TestExtract_EmbedderFailureYieldsInvalid(t *testing.T) {
	e := New(&fakeEmbedder{dim: 4, failAll: true}, 16)
	embeddings, err := e.Extract(testFrame(100, 100), []vision.BBox{{X: 10, Y: 10, W: 20, H: 20}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embeddings[0].Valid {
		t.Error("expected invalid embedding on embedder failure")
	}
}

func TestExtract_PreservesInputOrder(t *testing.T) {
	e := New(&fakeEmbedder{dim: 2, fixed: []float32{1, 0}}, 16)
	boxes := []vision.BBox{
		{X: 200, Y: 200, W: 10, H: 10}, // invalid
		{X: 10, Y: 10, W: 20, H: 20},   // valid
	}
	embeddings, _ := e.Extract(testFrame(100, 100), boxes)
	if embeddings[0].Valid {
		t.Error("expected index 0 invalid")
	}
	if !embeddings[1].Valid {
		t.Error("expected index 1 valid")
	}
}

func TestCosineSimilarity_IdenticalUnitVectors(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := CosineSimilarity(a, a); math.Abs(float64(got-1.0)) > 1e-6 {
		t.Errorf("expected similarity 1.0, got %f", got)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := CosineSimilarity(a, b); got != 0 {
		t.Errorf("expected similarity 0, got %f", got)
	}
}

func TestCosineSimilarity_MismatchedDims(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0, 0}
	if got := CosineSimilarity(a, b); got != 0 {
		t.Errorf("expected 0 for mismatched dims, got %f", got)
	}
}
