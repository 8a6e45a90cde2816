//go:build cgo

package sink

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/avsentry/videocore/pkg/vision"
)

// EncodeJPEG renders frame to a JPEG byte slice via OpenCV's IMEncode,
// which is already linked in for the detection/ReID cgo builds.
func EncodeJPEG(frame vision.Frame, quality int) ([]byte, error) {
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: wrapping frame: %w", err)
	}
	defer mat.Close()

	bgr := mat
	if frame.Format == vision.PixelRGB8 {
		converted := gocv.NewMat()
		defer converted.Close()
		gocv.CvtColor(mat, &converted, gocv.ColorRGBToBGR)
		bgr = converted
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, bgr, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
