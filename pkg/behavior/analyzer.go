package behavior

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/avsentry/videocore/pkg/vision"
)

const (
	defaultTrackingTimeoutS = 30
	maxTrajectoryPoints     = 100
	eventBoxSize            = 50 // spec §4.5 step 4, historical quirk (see §9)
)

// ObjectState is the per-track bookkeeping the analyzer maintains across
// frames (spec §4.5 step 1).
type ObjectState struct {
	TrackID    int64
	X, Y       float64
	VX, VY     float64
	Trajectory []Point
	LastSeen   time.Time
}

// roiEntry records when a track entered a given ROI, keyed by (trackID, roiID).
type roiEntry struct {
	trackID int64
	roiID   string
}

// Analyzer implements the BehaviorAnalyzer contract (spec §4.5, C7). No
// error propagates from Update; malformed rules are rejected at add-time.
type Analyzer struct {
	rois  map[string]ROI
	rules []IntrusionRule

	objects map[int64]*ObjectState
	entries map[roiEntry]time.Time

	trackingTimeout time.Duration
}

// New builds an empty Analyzer.
func New() *Analyzer {
	return &Analyzer{
		rois:            make(map[string]ROI),
		objects:         make(map[int64]*ObjectState),
		entries:         make(map[roiEntry]time.Time),
		trackingTimeout: defaultTrackingTimeoutS * time.Second,
	}
}

// ErrPolygonTooSmall, ErrDuplicateROI are returned by AddROI for malformed
// input (spec §4.5, "malformed rules are rejected at add-time").
var (
	ErrPolygonTooSmall = errors.New("roi polygon must have at least 3 points")
	ErrDuplicateROI    = errors.New("roi id already registered")
	ErrUnknownROI      = errors.New("intrusion rule references unknown roi")
)

// AddROI registers a region of interest.
func (a *Analyzer) AddROI(roi ROI) error {
	if len(roi.Polygon) < 3 {
		return ErrPolygonTooSmall
	}
	if _, exists := a.rois[roi.ID]; exists {
		return ErrDuplicateROI
	}
	a.rois[roi.ID] = roi
	return nil
}

// AddRule registers an intrusion rule bound to an already-registered ROI.
func (a *Analyzer) AddRule(rule IntrusionRule) error {
	if _, ok := a.rois[rule.ROIID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownROI, rule.ROIID)
	}
	a.rules = append(a.rules, rule)
	return nil
}

// conflictCandidate is one ROI actively containing an object's center,
// carried through tie-break resolution (spec §4.5 step 3).
type conflictCandidate struct {
	roi ROI
}

// Update advances the analyzer by one frame (spec §4.5, "Update each
// frame"). dets and trackIDs are index-aligned; only entries with
// trackIDs[i] >= 0 participate.
func (a *Analyzer) Update(dets []vision.Detection, trackIDs []int64, minObjectSize float32, now time.Time) []BehaviorEvent {
	var events []BehaviorEvent

	for i, d := range dets {
		if i >= len(trackIDs) || trackIDs[i] < 0 {
			continue
		}
		if d.BBox.W < minObjectSize || d.BBox.H < minObjectSize {
			continue
		}
		id := trackIDs[i]
		cx, cy := d.BBox.Center()
		state := a.updateObjectState(id, float64(cx), float64(cy), now)

		winner, conflictSet := a.resolveConflicts(cx, cy, now)
		if winner == nil {
			continue
		}

		key := roiEntry{trackID: id, roiID: winner.ID}
		if _, entered := a.entries[key]; !entered {
			a.entries[key] = now
			continue
		}

		for _, rule := range a.rules {
			if rule.ROIID != winner.ID {
				continue
			}
			entryTime := a.entries[key]
			dwell := now.Sub(entryTime)
			if dwell < rule.MinDuration {
				continue
			}
			events = append(events, BehaviorEvent{
				ID:         uuid.NewString(),
				TrackID:    id,
				RuleID:     rule.ID,
				ROIID:      winner.ID,
				Confidence: rule.Confidence,
				BBox: BBox{
					X: float32(state.X) - eventBoxSize/2,
					Y: float32(state.Y) - eventBoxSize/2,
					W: eventBoxSize,
					H: eventBoxSize,
				},
				Metadata: EventMetadata{
					DurationS:   dwell.Seconds(),
					ROIName:     winner.Name,
					Priority:    winner.Priority,
					ConflictSet: conflictSet,
				},
				EmittedAt: now,
			})
			delete(a.entries, key) // no duplicate event until a re-entry (spec §4.5 step 4)
		}
	}

	a.expireStaleEntries(dets, trackIDs, now)
	a.cleanup(now)
	return events
}

// expireStaleEntries deletes (track, roi) entries for tracks that were
// present this frame but whose center left the ROI (spec §4.5 step 2,
// "On exit, delete the entry").
func (a *Analyzer) expireStaleEntries(dets []vision.Detection, trackIDs []int64, now time.Time) {
	present := make(map[int64][2]float64, len(dets))
	for i, d := range dets {
		if i >= len(trackIDs) || trackIDs[i] < 0 {
			continue
		}
		cx, cy := d.BBox.Center()
		present[trackIDs[i]] = [2]float64{float64(cx), float64(cy)}
	}

	for key := range a.entries {
		pos, ok := present[key.trackID]
		if !ok {
			continue // handled by cleanup once the track itself goes stale
		}
		roi, ok := a.rois[key.roiID]
		if !ok || !roi.active(now) || !roi.contains(pos[0], pos[1]) {
			delete(a.entries, key)
		}
	}
}

func (a *Analyzer) updateObjectState(id int64, x, y float64, now time.Time) *ObjectState {
	state, ok := a.objects[id]
	if !ok {
		state = &ObjectState{TrackID: id, X: x, Y: y, LastSeen: now}
		a.objects[id] = state
	} else {
		dt := now.Sub(state.LastSeen).Seconds()
		if dt > 0 {
			state.VX = (x - state.X) / dt
			state.VY = (y - state.Y) / dt
		}
		state.X, state.Y = x, y
		state.LastSeen = now
	}

	state.Trajectory = append(state.Trajectory, Point{X: x, Y: y})
	if len(state.Trajectory) > maxTrajectoryPoints {
		state.Trajectory = state.Trajectory[len(state.Trajectory)-maxTrajectoryPoints:]
	}
	return state
}

// resolveConflicts picks the single winning ROI among all active ROIs
// containing (x, y): highest priority, then explicit-time-window
// specificity, then lexicographic ID (spec §4.5 step 3).
func (a *Analyzer) resolveConflicts(x, y float32, now time.Time) (*ROI, []string) {
	var candidates []ROI
	for _, roi := range a.rois {
		if !roi.active(now) {
			continue
		}
		if roi.contains(float64(x), float64(y)) {
			candidates = append(candidates, roi)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.Priority != cj.Priority {
			return ci.Priority > cj.Priority
		}
		if ci.hasExplicitWindow() != cj.hasExplicitWindow() {
			return ci.hasExplicitWindow()
		}
		return ci.ID < cj.ID
	})

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.ID
	}
	winner := candidates[0]
	return &winner, names
}

// cleanup prunes ObjectStates that have not been seen recently (spec §4.5
// step 5, default tracking_timeout_s=30).
func (a *Analyzer) cleanup(now time.Time) {
	for id, state := range a.objects {
		if now.Sub(state.LastSeen) > a.trackingTimeout {
			delete(a.objects, id)
			for key := range a.entries {
				if key.trackID == id {
					delete(a.entries, key)
				}
			}
		}
	}
}

// ActiveROIs returns every registered ROI currently active at wall time now,
// for inclusion in the per-frame result contract (spec §6, "FrameResult").
func (a *Analyzer) ActiveROIs(now time.Time) []ROI {
	var out []ROI
	for _, roi := range a.rois {
		if roi.active(now) {
			out = append(out, roi)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ObjectState returns a copy of the tracked state for id, if present.
func (a *Analyzer) ObjectState(id int64) (ObjectState, bool) {
	s, ok := a.objects[id]
	if !ok {
		return ObjectState{}, false
	}
	return *s, true
}
