//go:build cgo

package reid

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"os"

	"gocv.io/x/gocv"
)

// DnnEmbedder runs a ReID embedding model (e.g. OSNet, a ResNet-based
// appearance model) through OpenCV's dnn module, mirroring the detection
// engine's GocvContext backend for the same reason: no NPU-specific
// dependency is needed for a CPU-portable default.
type DnnEmbedder struct {
	net gocv.Net
	dim int
}

// NewDnnEmbedder loads an ONNX-exported embedding model with the given
// fixed output dimension.
func NewDnnEmbedder(modelBytes []byte, dim int) (*DnnEmbedder, error) {
	tmp, err := os.CreateTemp("", "videocore-reid-*.onnx")
	if err != nil {
		return nil, fmt.Errorf("staging model: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(modelBytes); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("staging model: %w", err)
	}
	tmp.Close()

	net := gocv.ReadNetFromONNX(tmp.Name())
	if net.Empty() {
		return nil, fmt.Errorf("failed to load reid model")
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &DnnEmbedder{net: net, dim: dim}, nil
}

func (e *DnnEmbedder) Dim() int { return e.dim }

func (e *DnnEmbedder) Embed(crop []byte, width, height int) ([]float32, error) {
	mat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, crop)
	if err != nil {
		return nil, fmt.Errorf("wrapping crop bytes: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(width, height), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return nil, fmt.Errorf("reid forward produced no output")
	}

	raw := out.ToBytes()
	features := make([]float32, len(raw)/4)
	for i := range features {
		features[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return features, nil
}
