//go:build !cgo

package reid

import (
	"fmt"

	"github.com/avsentry/videocore/pkg/vision"
)

const channels = 3

// cropRegion extracts the pixel data inside box from frame, portable
// fallback used when built without cgo/gocv.
func cropRegion(frame vision.Frame, box vision.BBox) ([]byte, int, int, error) {
	x0, y0 := int(box.X), int(box.Y)
	w, h := int(box.W), int(box.H)
	if w <= 0 || h <= 0 {
		return nil, 0, 0, fmt.Errorf("degenerate crop region")
	}

	srcStride := frame.Width * channels
	out := make([]byte, w*h*channels)
	for row := 0; row < h; row++ {
		srcY := y0 + row
		if srcY < 0 || srcY >= frame.Height {
			continue
		}
		srcOff := srcY*srcStride + x0*channels
		dstOff := row * w * channels
		n := w * channels
		if srcOff < 0 || srcOff+n > len(frame.Data) {
			continue
		}
		copy(out[dstOff:dstOff+n], frame.Data[srcOff:srcOff+n])
	}
	return out, w, h, nil
}

// resizeCrop nearest-neighbor resizes a tightly packed RGB8 crop.
func resizeCrop(src []byte, srcW, srcH, dstW, dstH int) ([]byte, error) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return nil, fmt.Errorf("non-positive resize dimensions")
	}
	out := make([]byte, dstW*dstH*channels)
	for y := 0; y < dstH; y++ {
		srcY := y * srcH / dstH
		for x := 0; x < dstW; x++ {
			srcX := x * srcW / dstW
			srcOff := (srcY*srcW + srcX) * channels
			dstOff := (y*dstW + x) * channels
			if srcOff+channels > len(src) {
				continue
			}
			copy(out[dstOff:dstOff+channels], src[srcOff:srcOff+channels])
		}
	}
	return out, nil
}
