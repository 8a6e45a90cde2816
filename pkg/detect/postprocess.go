package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/avsentry/videocore/pkg/vision"
)

// PostprocessConfig carries the tunables the postprocessor needs per run
// (spec §4.2, "Postprocessor"); classNames maps class index to name for the
// Detection.ClassName field.
type PostprocessConfig struct {
	ConfidenceThreshold float32
	NMSThreshold        float32
	ClassNames          []string
	Strides             []int // stride order matching Shape A tensor groups, default {8,16,32}
}

func (c PostprocessConfig) className(id uint32) string {
	if int(id) < len(c.ClassNames) {
		return c.ClassNames[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// postprocess decodes raw tensors into model-input-coordinate detections,
// dispatching on tensor shape (spec §4.2, "Postprocessor — head decoding").
func postprocess(raw RawOutput, cfg PostprocessConfig) ([]vision.Detection, error) {
	if len(raw.Tensors) == 0 {
		return nil, &EngineError{Kind: ErrShapeMismatch, Err: fmt.Errorf("no output tensors")}
	}

	if isUnifiedHead(raw.Tensors) {
		dets := decodeShapeB(raw.Tensors[0], cfg)
		return nms(dets, cfg.NMSThreshold), nil
	}
	if isSplitHead(raw.Tensors) {
		dets, err := decodeShapeA(raw.Tensors, cfg)
		if err != nil {
			return nil, err
		}
		return nms(dets, cfg.NMSThreshold), nil
	}
	return nil, &EngineError{Kind: ErrShapeMismatch, Err: fmt.Errorf("unrecognized output tensor shapes")}
}

// isUnifiedHead reports Shape B: any single 3D tensor. Which dimension holds
// the 4+len(classNames) channels (84 for the 80-class COCO head) is worked
// out by decodeShapeB, not checked here.
func isUnifiedHead(tensors []Tensor) bool {
	return len(tensors) == 1 && len(tensors[0].Shape) == 3
}

func isSplitHead(tensors []Tensor) bool {
	return len(tensors) >= 3 && len(tensors)%3 == 0
}

// decodeShapeB decodes the unified [1,84,N] or [1,N,84] head (spec §4.2,
// "Shape B"). cx,cy,w,h in channels 0..3 are already in input-pixel
// coordinates per the Ultralytics export convention.
func decodeShapeB(t Tensor, cfg PostprocessConfig) []vision.Detection {
	data := t.Dequantize()
	shape := t.Shape // [1, C, N] or [1, N, C]

	dim1, dim2 := shape[1], shape[2]
	numClasses := len(cfg.ClassNames)
	if numClasses == 0 {
		numClasses = 80
	}
	channels := numClasses + 4

	transposed := dim2 == channels // [1,N,C]: N anchors, C channels per anchor
	var numAnchors int
	if transposed {
		numAnchors = dim1
	} else if dim1 == channels {
		numAnchors = dim2
	} else {
		// fall back to whichever dim is closer to `channels`
		if abs(dim1-channels) <= abs(dim2-channels) {
			numAnchors = dim2
			transposed = false
		} else {
			numAnchors = dim1
			transposed = true
		}
	}

	at := func(anchor, ch int) float32 {
		if transposed {
			return data[anchor*channels+ch]
		}
		return data[ch*numAnchors+anchor]
	}

	var out []vision.Detection
	for n := 0; n < numAnchors; n++ {
		cx, cy, w, h := at(n, 0), at(n, 1), at(n, 2), at(n, 3)

		bestCls := 0
		bestScore := float32(-math.MaxFloat32)
		for c := 0; c < numClasses; c++ {
			s := at(n, 4+c)
			if s > bestScore {
				bestScore = s
				bestCls = c
			}
		}
		if bestScore < cfg.ConfidenceThreshold {
			continue
		}

		x1, y1 := cx-w/2, cy-h/2
		out = append(out, vision.Detection{
			BBox:       vision.BBox{X: x1, Y: y1, W: w, H: h},
			Confidence: bestScore,
			ClassID:    uint32(bestCls),
			ClassName:  cfg.className(uint32(bestCls)),
		})
	}
	return out
}

// decodeShapeA decodes the multi-scale split-head output (spec §4.2,
// "Shape A"): groups of three tensors (box, score, score_sum) per stride.
func decodeShapeA(tensors []Tensor, cfg PostprocessConfig) ([]vision.Detection, error) {
	strides := cfg.Strides
	if len(strides) == 0 {
		strides = []int{8, 16, 32}
	}
	numGroups := len(tensors) / 3
	if numGroups != len(strides) {
		return nil, &EngineError{Kind: ErrShapeMismatch, Err: fmt.Errorf("expected %d stride groups, got %d tensors", len(strides), numGroups)}
	}

	var out []vision.Detection
	for g := 0; g < numGroups; g++ {
		boxT := tensors[g*3]
		scoreT := tensors[g*3+1]
		sumT := tensors[g*3+2]
		stride := strides[g]

		if len(boxT.Shape) != 4 || len(scoreT.Shape) != 4 {
			return nil, &EngineError{Kind: ErrShapeMismatch, Err: fmt.Errorf("split head tensor %d: unexpected rank", g)}
		}
		h, w := boxT.Shape[2], boxT.Shape[3]
		dflLen := boxT.Shape[1] / 4
		numClasses := scoreT.Shape[1]

		box := boxT.Dequantize()
		score := scoreT.Dequantize()
		sum := sumT.Dequantize()

		cellStride := h * w
		for i := 0; i < h; i++ {
			for j := 0; j < w; j++ {
				cell := i*w + j
				if len(sum) > cell && sum[cell] < cfg.ConfidenceThreshold {
					continue
				}

				bestCls := -1
				bestScore := float32(0)
				for c := 0; c < numClasses; c++ {
					v := score[c*cellStride+cell]
					if v > bestScore {
						bestScore = v
						bestCls = c
					}
				}
				if bestCls < 0 || bestScore < cfg.ConfidenceThreshold {
					continue
				}

				l := dflExpectation(box, 0*dflLen*cellStride, cell, cellStride, dflLen)
				top := dflExpectation(box, 1*dflLen*cellStride, cell, cellStride, dflLen)
				r := dflExpectation(box, 2*dflLen*cellStride, cell, cellStride, dflLen)
				b := dflExpectation(box, 3*dflLen*cellStride, cell, cellStride, dflLen)

				x1 := (-l + float32(j) + 0.5) * float32(stride)
				y1 := (-top + float32(i) + 0.5) * float32(stride)
				x2 := (r + float32(j) + 0.5) * float32(stride)
				y2 := (b + float32(i) + 0.5) * float32(stride)

				out = append(out, vision.Detection{
					BBox:       vision.BBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1},
					Confidence: bestScore,
					ClassID:    uint32(bestCls),
					ClassName:  cfg.className(uint32(bestCls)),
				})
			}
		}
	}
	return out, nil
}

// dflExpectation applies Distribution Focal Loss decoding: softmax the
// dflLen-length distribution for one of the four offsets at this cell, then
// take the expectation over bin indices 0..dflLen-1 (spec §4.2, "apply DFL").
// Softmax is always computed in f32 regardless of the tensor's source dtype.
func dflExpectation(box []float32, base, cell, cellStride, dflLen int) float32 {
	logits := make([]float32, dflLen)
	maxLogit := float32(-math.MaxFloat32)
	for k := 0; k < dflLen; k++ {
		v := box[base+k*cellStride+cell]
		logits[k] = v
		if v > maxLogit {
			maxLogit = v
		}
	}
	var sum float32
	for k := range logits {
		logits[k] = float32(math.Exp(float64(logits[k] - maxLogit)))
		sum += logits[k]
	}
	var expectation float32
	for k, l := range logits {
		p := l / sum
		expectation += p * float32(k)
	}
	return expectation
}

// nms performs greedy class-wise IoU-NMS, globally across scales (spec
// §4.2, "Non-maximum suppression"): stable descending sort by confidence,
// ties broken by lower linear index; boxes with IoU >= threshold against a
// kept box of the same class are suppressed (inclusive).
func nms(dets []vision.Detection, threshold float32) []vision.Detection {
	if len(dets) == 0 {
		return dets
	}

	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if dets[order[a]].Confidence != dets[order[b]].Confidence {
			return dets[order[a]].Confidence > dets[order[b]].Confidence
		}
		return order[a] < order[b]
	})

	suppressed := make([]bool, len(dets))
	var kept []vision.Detection
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		for _, j := range order {
			if j == i || suppressed[j] {
				continue
			}
			if dets[j].ClassID != dets[i].ClassID {
				continue
			}
			if vision.IoU(dets[i].BBox, dets[j].BBox) >= threshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
