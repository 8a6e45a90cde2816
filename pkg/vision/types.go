// Package vision defines the shared data model for the video processing
// pipeline (spec §3): detections, letterbox bookkeeping, tracks, and the
// FrameSource contract each camera pipeline is built on.
package vision

import "time"

// BBox is an axis-aligned box in pixel coordinates, stored as
// (x, y, width, height) with (x, y) the top-left corner.
type BBox struct {
	X, Y, W, H float32
}

// Area returns the box's area, 0 for degenerate (non-positive) boxes.
func (b BBox) Area() float32 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Center returns the box's center point.
func (b BBox) Center() (cx, cy float32) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Clamp restricts the box to the [0,w) x [0,h) image bounds, shrinking it
// if necessary. The returned box may have zero area if it lies entirely
// outside the bounds.
func (b BBox) Clamp(w, h float32) BBox {
	x1, y1 := b.X, b.Y
	x2, y2 := b.X+b.W, b.Y+b.H
	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > w {
		x2 = w
	}
	if y2 > h {
		y2 = h
	}
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return BBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// IoU computes the intersection-over-union of two boxes using the
// inclusive-pixel-area convention from the reference detector
// (area = (x2-x1+1)*(y2-y1+1)), matching spec §4.2's numerical semantics.
func IoU(a, b BBox) float32 {
	ax1, ay1, ax2, ay2 := a.X, a.Y, a.X+a.W, a.Y+a.H
	bx1, by1, bx2, by2 := b.X, b.Y, b.X+b.W, b.Y+b.H

	ix1, iy1 := max32(ax1, bx1), max32(ay1, by1)
	ix2, iy2 := min32(ax2, bx2), min32(ay2, by2)

	iw := max32(0, ix2-ix1+1)
	ih := max32(0, iy2-iy1+1)
	inter := iw * ih

	areaA := (ax2 - ax1 + 1) * (ay2 - ay1 + 1)
	areaB := (bx2 - bx1 + 1) * (by2 - by1 + 1)
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// Detection is a single object detection in source-image pixel coordinates
// (spec §3, "Detection").
type Detection struct {
	BBox       BBox
	Confidence float32
	ClassID    uint32
	ClassName  string
}

// LetterboxInfo records the resize-with-pad transform applied before
// inference, bound to one preprocessed frame (spec §3, "LetterboxInfo").
type LetterboxInfo struct {
	Scale float32
	XPad  float32
	YPad  float32
}

// InvertPoint maps a point from model-input coordinates back to source
// image coordinates.
func (l LetterboxInfo) InvertPoint(x, y float32) (float32, float32) {
	return (x - l.XPad) / l.Scale, (y - l.YPad) / l.Scale
}

// ForwardPoint maps a point from source image coordinates to model-input
// coordinates (the inverse of InvertPoint, used by round-trip tests).
func (l LetterboxInfo) ForwardPoint(x, y float32) (float32, float32) {
	return x*l.Scale + l.XPad, y*l.Scale + l.YPad
}

// TrackState is the lifecycle state of a Track (spec §3, "Lifecycles").
type TrackState int

const (
	TrackNew TrackState = iota
	TrackTracked
	TrackLost
	TrackRemoved
)

func (s TrackState) String() string {
	switch s {
	case TrackNew:
		return "new"
	case TrackTracked:
		return "tracked"
	case TrackLost:
		return "lost"
	case TrackRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Frame is a single decoded image handed between pipeline stages. Data is
// tightly-packed interleaved pixels in the given PixelFormat.
type Frame struct {
	Data          []byte
	Width, Height int
	Format        PixelFormat
	// MonotonicTS is the capture timestamp, taken with time.Now when the
	// frame is read; FrameResult.TimestampMS is derived from it.
	MonotonicTS time.Time
}

// PixelFormat identifies the byte layout of Frame.Data.
type PixelFormat int

const (
	PixelBGR8 PixelFormat = iota
	PixelRGB8
)
