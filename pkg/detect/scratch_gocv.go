//go:build cgo

package detect

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/avsentry/videocore/pkg/vision"
)

// Scratch is a per-worker reusable buffer (spec §4.2 C2). The gocv build
// uses OpenCV's resize + copyMakeBorder for the letterbox, matching the
// teacher's camera capture path's use of gocv.Mat for image operations.
type Scratch struct {
	resized gocv.Mat
	padded  gocv.Mat
	blob    gocv.Mat
}

func newScratch() *Scratch {
	return &Scratch{
		resized: gocv.NewMat(),
		padded:  gocv.NewMat(),
		blob:    gocv.NewMat(),
	}
}

func (s *Scratch) fill(src vision.Frame, dstW, dstH int, lb vision.LetterboxInfo, quantized bool) ([]byte, error) {
	if src.Width <= 0 || src.Height <= 0 {
		return nil, fmt.Errorf("source frame has non-positive dimensions")
	}

	mat, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV8UC3, src.Data)
	if err != nil {
		return nil, fmt.Errorf("wrapping source bytes: %w", err)
	}
	defer mat.Close()

	if src.Format == vision.PixelRGB8 {
		gocv.CvtColor(mat, &mat, gocv.ColorRGBToBGR)
	}

	newW := int(float32(src.Width) * lb.Scale)
	newH := int(float32(src.Height) * lb.Scale)
	if newW <= 0 || newH <= 0 {
		return nil, fmt.Errorf("letterbox produced non-positive resized dimensions")
	}
	gocv.Resize(mat, &s.resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationLinear)

	top := int(lb.YPad)
	bottom := dstH - newH - top
	left := int(lb.XPad)
	right := dstW - newW - left
	gocv.CopyMakeBorder(s.resized, &s.padded, top, bottom, left, right, gocv.BorderConstant, color.RGBA{R: 114, G: 114, B: 114})

	if quantized {
		gocv.CvtColor(s.padded, &s.resized, gocv.ColorBGRToRGB)
		out := append([]byte(nil), s.resized.ToBytes()...)
		return out, nil
	}

	s.blob = gocv.BlobFromImage(s.padded, 1.0/255.0, image.Pt(dstW, dstH), gocv.NewScalar(0, 0, 0, 0), true, false)
	out := append([]byte(nil), s.blob.ToBytes()...)
	return out, nil
}
