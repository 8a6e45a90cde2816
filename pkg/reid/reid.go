// Package reid implements appearance feature extraction and similarity
// scoring for cross-frame and cross-camera re-identification (spec §4.3).
package reid

import (
	"gonum.org/v1/gonum/floats"

	"github.com/avsentry/videocore/pkg/vision"
)

// Embedding is one appearance feature vector bound to a single bounding box
// (spec §4.3, "Embedding = { features, valid }").
type Embedding struct {
	Features []float32
	Valid    bool
}

// Embedder runs the appearance model over one cropped image, returning a
// feature vector before L2 normalization. Implementations live in
// backend-specific files (embedder_gocv.go under cgo).
type Embedder interface {
	// Dim reports the fixed output feature dimension.
	Dim() int
	// Embed runs inference on a single cropped, resized patch of RGB8 bytes.
	Embed(crop []byte, width, height int) ([]float32, error)
}

// Extractor implements the ReIDExtractor contract (spec §4.3, C6): crops
// are taken here, not by the caller, and invalid crops after clipping
// yield Valid=false with empty features rather than an error.
type Extractor struct {
	embedder Embedder
	cropSize int
}

// New builds an Extractor around embedder, resizing crops to cropSize x
// cropSize before inference (a standard ReID convention, e.g. 128x256 for
// person embedding models truncated here to a single square edge for
// backend simplicity).
func New(embedder Embedder, cropSize int) *Extractor {
	if cropSize <= 0 {
		cropSize = 128
	}
	return &Extractor{embedder: embedder, cropSize: cropSize}
}

// Extract returns one Embedding per input bbox, in the same order (spec
// §4.3, "same index as the input").
func (e *Extractor) Extract(frame vision.Frame, bboxes []vision.BBox) ([]Embedding, error) {
	out := make([]Embedding, len(bboxes))
	for i, box := range bboxes {
		clipped := box.Clamp(float32(frame.Width), float32(frame.Height))
		if clipped.Area() <= 0 {
			out[i] = Embedding{Valid: false}
			continue
		}

		crop, w, h, err := cropRegion(frame, clipped)
		if err != nil || w <= 0 || h <= 0 {
			out[i] = Embedding{Valid: false}
			continue
		}

		resized, err := resizeCrop(crop, w, h, e.cropSize, e.cropSize)
		if err != nil {
			out[i] = Embedding{Valid: false}
			continue
		}

		features, err := e.embedder.Embed(resized, e.cropSize, e.cropSize)
		if err != nil || len(features) == 0 {
			out[i] = Embedding{Valid: false}
			continue
		}

		normalizeL2(features)
		out[i] = Embedding{Features: features, Valid: true}
	}
	return out, nil
}

// normalizeL2 scales features in place to unit L2 norm. A zero vector is
// left unchanged since it cannot be normalized meaningfully.
func normalizeL2(features []float32) {
	f64 := make([]float64, len(features))
	for i, v := range features {
		f64[i] = float64(v)
	}
	norm := floats.Norm(f64, 2)
	if norm == 0 {
		return
	}
	for i := range features {
		features[i] = float32(f64[i] / norm)
	}
}

// CosineSimilarity computes the dot product of two unit-norm vectors (spec
// §4.3, "s = sum a_i*b_i"). Mismatched dimensions yield 0 rather than an
// error, matching the spec's tolerance for malformed inputs.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	if sum > 1 {
		return 1
	}
	if sum < -1 {
		return -1
	}
	return sum
}
