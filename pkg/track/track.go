package track

import "github.com/avsentry/videocore/pkg/vision"

// Track is one tracked object's accumulated state (spec §4.4, C5).
type Track struct {
	ID       int64
	State    vision.TrackState
	ClassID  uint32
	Confidence float32

	// Features holds the most recent valid ReID embedding for this track,
	// used as the appearance side of the association cost. nil if no valid
	// embedding has ever been observed.
	Features []float32

	FramesSinceUpdate int

	// Age counts the frames in which this track was matched to a detection,
	// its birth frame included, used to derive the supervisor's
	// average-track-length stat.
	Age int

	kf *kalmanFilter
}

// BBox returns the track's current estimated box, derived from the Kalman
// filter's (cx, cy, w, h) state.
func (t *Track) BBox() vision.BBox {
	cx, cy, w, h := t.kf.position()
	return vision.BBox{X: cx - w/2, Y: cy - h/2, W: w, H: h}
}

func bboxToMeasurement(b vision.BBox) (cx, cy, w, h float32) {
	cx, cy = b.Center()
	return cx, cy, b.W, b.H
}

func newTrack(id int64, det vision.Detection, features []float32) *Track {
	cx, cy, w, h := bboxToMeasurement(det.BBox)
	return &Track{
		ID:         id,
		State:      vision.TrackTracked, // birth is the first association (spec §4.4)
		ClassID:    det.ClassID,
		Confidence: det.Confidence,
		Features:   features,
		Age:        1,
		kf:         newKalmanFilter(cx, cy, w, h),
	}
}

func (t *Track) predict() { t.kf.predict() }

func (t *Track) applyDetection(det vision.Detection, features []float32) {
	cx, cy, w, h := bboxToMeasurement(det.BBox)
	t.kf.update(cx, cy, w, h)
	t.ClassID = det.ClassID
	t.Confidence = det.Confidence
	if len(features) > 0 {
		t.Features = features
	}
	t.FramesSinceUpdate = 0
	t.Age++
}
