// Package track implements multi-object tracking with appearance
// re-identification: a constant-velocity Kalman filter per track and a
// ByteTrack-style two-stage association, plus a lost-track ReID recovery
// pass (spec §4.4, C5).
package track

import (
	"sync"

	"github.com/avsentry/videocore/pkg/reid"
	"github.com/avsentry/videocore/pkg/vision"
)

// Config holds the tracker's tunables (spec §4.4).
type Config struct {
	TrackThreshold          float32
	HighThreshold           float32
	MatchThreshold          float32
	MaxLostFrames           int
	ReIDWeight              float32
	ReIDSimilarityThreshold float32
	ReIDEnabled             bool
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		TrackThreshold:          0.5,
		HighThreshold:           0.6,
		MatchThreshold:          0.8,
		MaxLostFrames:           30,
		ReIDWeight:              0.3,
		ReIDSimilarityThreshold: 0.7,
		ReIDEnabled:             true,
	}
}

// Tracker maintains a monotonically increasing set of track IDs, unique
// within this Tracker, for one camera's detection stream.
type Tracker struct {
	mu           sync.Mutex
	cfg          Config
	tracks       map[int64]*Track
	nextID       int64
	totalCreated int64
}

// Stats reports track-count and lifetime bookkeeping consumed by the
// supervisor's aggregated stats (spec §4.8; adapted from
// ByteTracker.h's getAverageTrackLength/active+total counters).
type Stats struct {
	Active             int
	Lost               int
	TotalCreated       int64
	AverageTrackLength float64
}

// New builds a Tracker with cfg.
func New(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, tracks: make(map[int64]*Track)}
}

// Update runs one frame's association (spec §4.4, "Update step"). dets and
// embeddings must be the same length and index-aligned; embeddings may be
// nil when ReID is disabled. Returns one track_id per input detection, -1
// for detections that did not match or spawn a track (detections below
// track_threshold never match or birth).
func (tr *Tracker) Update(dets []vision.Detection, embeddings []reid.Embedding) []int64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	result := make([]int64, len(dets))
	for i := range result {
		result[i] = -1
	}

	alpha := float32(0)
	if tr.cfg.ReIDEnabled {
		alpha = tr.cfg.ReIDWeight
	}

	features := func(i int) []float32 {
		if embeddings == nil || i >= len(embeddings) || !embeddings[i].Valid {
			return nil
		}
		return embeddings[i].Features
	}

	var highIdx, lowIdx []int
	for i, d := range dets {
		switch {
		case d.Confidence >= tr.cfg.HighThreshold:
			highIdx = append(highIdx, i)
		case d.Confidence >= tr.cfg.TrackThreshold:
			lowIdx = append(lowIdx, i)
		}
	}

	var trackedIDs, lostIDs []int64
	for id, t := range tr.tracks {
		switch t.State {
		case vision.TrackTracked:
			t.predict()
			trackedIDs = append(trackedIDs, id)
		case vision.TrackLost:
			t.predict()
			lostIDs = append(lostIDs, id)
		}
	}

	highUsed := make(map[int]bool, len(highIdx))
	lowUsed := make(map[int]bool, len(lowIdx))
	trackedUsed := make(map[int64]bool, len(trackedIDs))

	// first association: high detections x Tracked tracks.
	tr.associate(dets, highIdx, trackedIDs, features, highUsed, trackedUsed, alpha, 1-tr.cfg.MatchThreshold, result, false)

	// second association: remaining low detections x remaining Tracked tracks, IoU only.
	tr.associate(dets, lowIdx, trackedIDs, features, lowUsed, trackedUsed, 0, 1-tr.cfg.MatchThreshold, result, true)

	// lost-track recovery: remaining high detections x Lost tracks, stricter threshold.
	lostUsed := make(map[int64]bool, len(lostIDs))
	tr.associate(dets, highIdx, lostIDs, features, highUsed, lostUsed, alpha, 1-tr.cfg.ReIDSimilarityThreshold, result, false)
	for id := range lostUsed {
		if t, ok := tr.tracks[id]; ok {
			t.State = vision.TrackTracked
			trackedUsed[id] = true
		}
	}

	// birth: remaining high detections spawn new tracks.
	for _, i := range highIdx {
		if highUsed[i] {
			continue
		}
		tr.nextID++
		id := tr.nextID
		tr.tracks[id] = newTrack(id, dets[i], features(i))
		tr.totalCreated++
		trackedUsed[id] = true
		result[i] = id
		highUsed[i] = true
	}

	// state aging (spec §4.4 step 7).
	for id, t := range tr.tracks {
		switch t.State {
		case vision.TrackTracked:
			if !trackedUsed[id] {
				t.FramesSinceUpdate++
				t.State = vision.TrackLost
			}
		case vision.TrackLost:
			if !lostUsed[id] {
				t.FramesSinceUpdate++
			}
			if t.FramesSinceUpdate > tr.cfg.MaxLostFrames {
				t.State = vision.TrackRemoved
			}
		}
	}
	for id, t := range tr.tracks {
		if t.State == vision.TrackRemoved {
			delete(tr.tracks, id)
		}
	}

	return result
}

// associate runs one greedy matching round between a subset of detections
// and a subset of tracks by ID, writing winners into result and marking
// used maps. When iouOnly is true, ReID features are never consulted
// (spec §4.4 step 4, "IoU-only").
func (tr *Tracker) associate(
	dets []vision.Detection,
	detIndices []int,
	trackIDs []int64,
	features func(int) []float32,
	detUsed map[int]bool,
	trackUsed map[int64]bool,
	alpha float32,
	maxCost float32,
	result []int64,
	iouOnly bool,
) {
	var remainingDets []int
	for _, i := range detIndices {
		if !detUsed[i] {
			remainingDets = append(remainingDets, i)
		}
	}
	var remainingTracks []int64
	for _, id := range trackIDs {
		if !trackUsed[id] {
			remainingTracks = append(remainingTracks, id)
		}
	}
	if len(remainingDets) == 0 || len(remainingTracks) == 0 {
		return
	}

	var costs []pairCost
	for di, detI := range remainingDets {
		for ti, id := range remainingTracks {
			t := tr.tracks[id]
			var cost float32
			if iouOnly {
				cost = iouCost(dets[detI].BBox, t.BBox())
			} else {
				cost = iouReidCost(dets[detI].BBox, features(detI), t.BBox(), t.Features, alpha)
			}
			costs = append(costs, pairCost{detIdx: di, trackIdx: ti, cost: cost})
		}
	}

	localDetUsed := make([]bool, len(remainingDets))
	localTrackUsed := make([]bool, len(remainingTracks))
	matches := greedyAssign(costs, maxCost, localDetUsed, localTrackUsed)

	for di, ti := range matches {
		detI := remainingDets[di]
		id := remainingTracks[ti]
		t := tr.tracks[id]
		t.applyDetection(dets[detI], features(detI))
		result[detI] = id
		detUsed[detI] = true
		trackUsed[id] = true
	}
}

// ActiveTracks returns a snapshot of all non-removed tracks (spec §4.4,
// "active_tracks()").
func (tr *Tracker) ActiveTracks() []Track {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := make([]Track, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		out = append(out, *t)
	}
	return out
}

// TrackByID returns a copy of the track with the given ID, if present
// (spec §4.4, "track_by_id()").
func (tr *Tracker) TrackByID(id int64) (Track, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	t, ok := tr.tracks[id]
	if !ok {
		return Track{}, false
	}
	return *t, true
}

// Stats reports the tracker's current counts and average track length
// across all live tracks (spec §4.8).
func (tr *Tracker) Stats() Stats {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	var active, lost int
	var ageSum int64
	for _, t := range tr.tracks {
		if t.State == vision.TrackLost {
			lost++
		} else {
			active++
		}
		ageSum += int64(t.Age)
	}

	var avgLen float64
	if n := active + lost; n > 0 {
		avgLen = float64(ageSum) / float64(n)
	}

	return Stats{
		Active:             active,
		Lost:               lost,
		TotalCreated:       tr.totalCreated,
		AverageTrackLength: avgLen,
	}
}
