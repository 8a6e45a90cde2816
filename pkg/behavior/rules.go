package behavior

import (
	"fmt"
	"time"
)

// IntrusionRule binds one ROI to a dwell-time condition (spec §4.5).
type IntrusionRule struct {
	ID                  string
	ROIID               string
	MinDuration         time.Duration
	Confidence          float32
	MinObjectSize       float32
}

// BehaviorEvent is emitted when a dwell condition is satisfied (spec §4.5
// step 4). BBox is fixed-size by design, not the object's actual box — see
// eventBoxSize in analyzer.go on the historical 50x50 quirk.
type BehaviorEvent struct {
	ID         string
	TrackID    int64
	RuleID     string
	ROIID      string
	Confidence float32
	BBox       BBox
	Metadata   EventMetadata
	EmittedAt  time.Time
}

// BBox is a minimal axis-aligned box, kept separate from vision.BBox so
// this package has no dependency on the detection pipeline's types.
type BBox struct {
	X, Y, W, H float32
}

// EventMetadata carries the human-readable context the original system
// attached to every intrusion event (spec §4.5 step 4, "metadata includes
// duration, ROI name, chosen priority, and a summary of the conflict set").
type EventMetadata struct {
	DurationS    float64
	ROIName      string
	Priority     int
	ConflictSet  []string
}

// Summary renders the conflict set the way the original implementation's
// log/alert payloads formatted it (spec §9 supplement; grounded in
// original_source BehaviorAnalyzer.cpp's conflict metadata formatting).
func (m EventMetadata) Summary() string {
	if len(m.ConflictSet) <= 1 {
		return fmt.Sprintf("roi=%s priority=%d", m.ROIName, m.Priority)
	}
	return fmt.Sprintf("roi=%s priority=%d conflicts_with=%v", m.ROIName, m.Priority, m.ConflictSet)
}
