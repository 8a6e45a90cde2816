//go:build !cgo

package sink

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/avsentry/videocore/pkg/vision"
)

// EncodeJPEG renders frame to a JPEG byte slice. This portable build uses
// the standard library's encoder directly; the gocv build tags into
// OpenCV's IMEncode instead (see encode_gocv.go).
func EncodeJPEG(frame vision.Frame, quality int) ([]byte, error) {
	if len(frame.Data) < frame.Width*frame.Height*3 {
		return nil, fmt.Errorf("encode jpeg: frame data too short for %dx%d", frame.Width, frame.Height)
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			i := (y*frame.Width + x) * 3
			var r, g, bch byte
			if frame.Format == vision.PixelBGR8 {
				bch, g, r = frame.Data[i], frame.Data[i+1], frame.Data[i+2]
			} else {
				r, g, bch = frame.Data[i], frame.Data[i+1], frame.Data[i+2]
			}
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: bch, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
