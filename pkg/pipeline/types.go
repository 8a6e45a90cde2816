// Package pipeline implements the per-camera processing loop and the
// process-wide supervisor that manages one PipelineRunner per camera
// (spec §4.7-4.8, C9/C10).
package pipeline

import (
	"time"

	"github.com/avsentry/videocore/pkg/behavior"
	"github.com/avsentry/videocore/pkg/track"
	"github.com/avsentry/videocore/pkg/vision"
)

// DetectedObject is one detection entry inside a FrameResult.
type DetectedObject struct {
	BBox       vision.BBox
	Confidence float32
	ClassID    uint32
	ClassName  string
}

// FrameResult is the per-frame output contract handed to downstream
// collaborators (spec §6, "FrameResult (produced)").
type FrameResult struct {
	CameraID       string
	Frame          vision.Frame
	TimestampMS    int64
	Detections     []DetectedObject
	TrackIDs       []int64
	GlobalTrackIDs []int64
	ReIDEmbeddings [][]float32
	Events         []behavior.BehaviorEvent
	ActiveROIs     []behavior.ROI
}

// Health is the pipeline's current status (spec §4.7, "Health signals").
// Healthy turns false as soon as the source reports a non-recoverable error
// or MaxConsecutiveErrors errors in a row, and true again after a successful
// reconnect. It is not recomputed on a fixed interval, and frame rate and
// frame timeouts do not affect it; FPS and Uptime are not filled in.
type Health struct {
	Healthy           bool
	Fatal             bool
	LastError         string
	ConsecutiveErrors int
	FPS               float64
	Uptime            time.Duration
}

// Stats aggregates one pipeline's counters for the supervisor (spec §4.8).
type Stats struct {
	CameraID  string
	FPS       float64
	Processed uint64
	Dropped   uint64
	Uptime    time.Duration
	Health    Health
	LastError string
	Track     track.Stats
}
