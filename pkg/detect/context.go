package detect

import "github.com/avsentry/videocore/pkg/vision"

// PreprocessedInput is the scratch-buffer payload bound to a Context before
// a run (spec §4.2, "Per-submission pipeline" steps 1-3).
type PreprocessedInput struct {
	// Data is the letterboxed, color-converted, cast image ready to bind.
	Data []byte
	// Width, Height are the model's fixed input dimensions.
	Width, Height int
	// Quantized is true when Data holds uint8 [0,255] values for an INT8
	// model; false means float32 normalized to [0,1] packed little-endian.
	Quantized bool
	Letterbox vision.LetterboxInfo
}

// Tensor is one named output of a context run, kept backend-agnostic so
// Shape A (multi-scale split heads) and Shape B (unified head) can both be
// represented without a model-format-specific dependency (spec §1 keeps
// model-file-format parsing out of scope beyond this operational contract).
type Tensor struct {
	Name  string
	Shape []int // as reported by the backend, e.g. [1,4*16,80,80] or [1,84,8400]
	// Data holds dequantized float32 values when the backend does the
	// dequantization itself. When the backend only exposes raw integers,
	// Int8Data, Scale and ZeroPoint are populated instead and Data is nil.
	Data      []float32
	Int8Data  []int8
	Scale     float32
	ZeroPoint int32
}

// Dequantize returns the tensor's values as float32, performing the
// per-tensor affine dequantization `(q - zero_point) * scale` when the
// tensor only carries integer data (spec §4.2, "For quantized (INT8)
// tensors, dequantize with per-tensor affine (zp, scale) before softmax").
func (t Tensor) Dequantize() []float32 {
	if t.Data != nil {
		return t.Data
	}
	out := make([]float32, len(t.Int8Data))
	for i, q := range t.Int8Data {
		out[i] = (float32(int32(q)) - float32(t.ZeroPoint)) * t.Scale
	}
	return out
}

// RawOutput is everything a context run produced, handed to the
// postprocessor unmodified.
type RawOutput struct {
	Tensors []Tensor
}

// Context is one accelerator execution context: single-threaded, not
// movable across goroutines after Init, matching the NPU/GPU contexts the
// engine pools one-per-worker (spec §4.2, "a fixed pool of accelerator
// contexts each of which is single-threaded and not movable across threads
// after init").
type Context interface {
	// InputSize reports the model's fixed input dimensions.
	InputSize() (width, height int)
	// Run binds input and executes the model, returning raw tensor outputs.
	Run(input PreprocessedInput) (RawOutput, error)
	// Close releases the context's resources. Idempotent.
	Close() error
}

// ContextFactory constructs one Context from model bytes. Implementations
// live in backend-specific files (e.g. a gocv dnn.Net-backed context, or a
// cgo-bridged NPU runtime gated by a build tag).
type ContextFactory func(modelBytes []byte) (Context, error)
