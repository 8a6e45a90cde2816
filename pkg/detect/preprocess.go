package detect

import "github.com/avsentry/videocore/pkg/vision"

// letterbox computes the resize-with-pad transform for fitting a (srcW,
// srcH) image into a (dstW, dstH) model input, per spec §4.2 step 1:
// scale = min(Wi/W, Hi/H); new size (W*scale, H*scale); padding split evenly.
func letterbox(srcW, srcH, dstW, dstH int) vision.LetterboxInfo {
	scaleW := float32(dstW) / float32(srcW)
	scaleH := float32(dstH) / float32(srcH)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	newW := float32(srcW) * scale
	newH := float32(srcH) * scale

	padX := (float32(dstW) - newW) / 2
	padY := (float32(dstH) - newH) / 2

	return vision.LetterboxInfo{Scale: scale, XPad: padX, YPad: padY}
}

// preprocess letterboxes, BGR->RGB converts, and casts a frame into scratch
// in the layout Context.Run expects (spec §4.2 steps 1-3). Resizing and
// color conversion are delegated to the platform-specific scratch
// implementation (scratch_gocv.go under cgo, scratch.go otherwise); this function only
// computes the transform and dispatches.
func preprocess(scratch *Scratch, frame vision.Frame, dstW, dstH int, quantized bool) (PreprocessedInput, error) {
	lb := letterbox(frame.Width, frame.Height, dstW, dstH)
	data, err := scratch.fill(frame, dstW, dstH, lb, quantized)
	if err != nil {
		return PreprocessedInput{}, err
	}
	return PreprocessedInput{
		Data:      data,
		Width:     dstW,
		Height:    dstH,
		Quantized: quantized,
		Letterbox: lb,
	}, nil
}
