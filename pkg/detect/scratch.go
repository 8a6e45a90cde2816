//go:build !cgo

package detect

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/avsentry/videocore/pkg/vision"
)

// Scratch is a per-worker reusable buffer (spec §4.2 C2, "thread-local
// scratch buffer... never aliased across workers"). This is the portable
// fallback used when built without cgo/gocv; it resizes with nearest
// neighbor sampling rather than OpenCV's area/linear interpolation.
type Scratch struct {
	buf []byte
}

func newScratch() *Scratch { return &Scratch{} }

// fill letterbox-resizes src into the scratch buffer and casts to the
// requested dtype, returning a freshly owned copy safe for the caller.
func (s *Scratch) fill(src vision.Frame, dstW, dstH int, lb vision.LetterboxInfo, quantized bool) ([]byte, error) {
	if src.Width <= 0 || src.Height <= 0 {
		return nil, fmt.Errorf("source frame has non-positive dimensions")
	}

	newW := int(float32(src.Width) * lb.Scale)
	newH := int(float32(src.Height) * lb.Scale)
	if newW <= 0 || newH <= 0 {
		return nil, fmt.Errorf("letterbox produced non-positive resized dimensions")
	}
	xPad, yPad := int(lb.XPad), int(lb.YPad)

	const channels = 3
	pixelCount := dstW * dstH

	s.buf = s.buf[:0]
	if quantized {
		if cap(s.buf) < pixelCount*channels {
			s.buf = make([]byte, pixelCount*channels)
		} else {
			s.buf = s.buf[:pixelCount*channels]
		}
	} else {
		if cap(s.buf) < pixelCount*channels*4 {
			s.buf = make([]byte, pixelCount*channels*4)
		} else {
			s.buf = s.buf[:pixelCount*channels*4]
		}
	}
	if quantized {
		for i := range s.buf {
			s.buf[i] = 114 // padding color per spec §4.2 step 1
		}
	} else {
		pad := math.Float32bits(114.0 / 255.0) // same padding color, normalized
		for i := 0; i < len(s.buf); i += 4 {
			binary.LittleEndian.PutUint32(s.buf[i:], pad)
		}
	}

	srcStride := src.Width * channels
	for y := 0; y < newH; y++ {
		srcY := y * src.Height / newH
		if srcY >= src.Height {
			srcY = src.Height - 1
		}
		for x := 0; x < newW; x++ {
			srcX := x * src.Width / newW
			if srcX >= src.Width {
				srcX = src.Width - 1
			}
			srcOff := srcY*srcStride + srcX*channels
			if srcOff+channels > len(src.Data) {
				continue
			}
			r, g, b := swapIfBGR(src.Format, src.Data[srcOff], src.Data[srcOff+1], src.Data[srcOff+2])

			dstX, dstY := x+xPad, y+yPad
			if dstX < 0 || dstX >= dstW || dstY < 0 || dstY >= dstH {
				continue
			}

			if quantized {
				dstOff := (dstY*dstW + dstX) * channels
				s.buf[dstOff] = r
				s.buf[dstOff+1] = g
				s.buf[dstOff+2] = b
			} else {
				dstOff := (dstY*dstW + dstX) * channels * 4
				binary.LittleEndian.PutUint32(s.buf[dstOff:], math.Float32bits(float32(r)/255.0))
				binary.LittleEndian.PutUint32(s.buf[dstOff+4:], math.Float32bits(float32(g)/255.0))
				binary.LittleEndian.PutUint32(s.buf[dstOff+8:], math.Float32bits(float32(b)/255.0))
			}
		}
	}

	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

func swapIfBGR(format vision.PixelFormat, a, b, c byte) (r, g, bl byte) {
	if format == vision.PixelBGR8 {
		return c, b, a
	}
	return a, b, c
}
