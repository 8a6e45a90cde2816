//go:build cgo

package reid

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/avsentry/videocore/pkg/vision"
)

const channels = 3

func cropRegion(frame vision.Frame, box vision.BBox) ([]byte, int, int, error) {
	w, h := int(box.W), int(box.H)
	if w <= 0 || h <= 0 {
		return nil, 0, 0, fmt.Errorf("degenerate crop region")
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("wrapping frame bytes: %w", err)
	}
	defer mat.Close()

	rect := image.Rect(int(box.X), int(box.Y), int(box.X)+w, int(box.Y)+h)
	region := mat.Region(rect)
	defer region.Close()

	out := append([]byte(nil), region.ToBytes()...)
	return out, w, h, nil
}

func resizeCrop(src []byte, srcW, srcH, dstW, dstH int) ([]byte, error) {
	mat, err := gocv.NewMatFromBytes(srcH, srcW, gocv.MatTypeCV8UC3, src)
	if err != nil {
		return nil, fmt.Errorf("wrapping crop bytes: %w", err)
	}
	defer mat.Close()

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(dstW, dstH), 0, 0, gocv.InterpolationLinear)

	return append([]byte(nil), resized.ToBytes()...), nil
}
