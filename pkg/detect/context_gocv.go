//go:build cgo

package detect

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"gocv.io/x/gocv"
)

// GocvContext runs a YOLOv8-family ONNX export through OpenCV's dnn module.
// It is the only Context implementation in this module; it requires nothing
// beyond the gocv dependency already used for camera capture.
type GocvContext struct {
	net       gocv.Net
	inputName string
	width     int
	height    int
}

// NewGocvContextFactory returns a ContextFactory that loads an ONNX model
// of the given fixed input size into OpenCV's dnn module, one independent
// gocv.Net per context (spec §4.2, "a fixed pool of accelerator contexts").
func NewGocvContextFactory(width, height int) ContextFactory {
	return func(modelBytes []byte) (Context, error) {
		tmp, err := os.CreateTemp("", "videocore-model-*.onnx")
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
			return nil, fmt.Errorf("failed to load model into dnn backend")
		}
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)

		return &GocvContext{net: net, width: width, height: height}, nil
	}
}

func (c *GocvContext) InputSize() (int, int) { return c.width, c.height }

func (c *GocvContext) Run(input PreprocessedInput) (RawOutput, error) {
	blob, err := gocv.NewMatFromBytes(1, len(input.Data), gocv.MatTypeCV32F, input.Data)
	if err != nil {
		return RawOutput{}, fmt.Errorf("wrapping input blob: %w", err)
	}
	defer blob.Close()

	c.net.SetInput(blob, "")
	out := c.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return RawOutput{}, fmt.Errorf("dnn forward produced no output")
	}

	shape := append([]int(nil), out.Size()...)

	raw := out.ToBytes()
	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	return RawOutput{Tensors: []Tensor{{Name: "output0", Shape: shape, Data: data}}}, nil
}

func (c *GocvContext) Close() error {
	return c.net.Close()
}
