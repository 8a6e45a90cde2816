// Package registry implements the cross-camera global track registry: it
// maps each camera's local track IDs to a stable global identity via ReID
// similarity (spec §4.6, C8).
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/avsentry/videocore/pkg/reid"
	"github.com/avsentry/videocore/pkg/vision"
)

// Config holds the registry's tunables (spec §4.6).
type Config struct {
	SimilarityThreshold float32
	MaxTrackAgeS        int
	MaxGlobalTracks     int
	MatchingEnabled     bool
	Enabled             bool
}

// DefaultConfig matches the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.7,
		MaxTrackAgeS:        30,
		MaxGlobalTracks:     10000,
		MatchingEnabled:     true,
		Enabled:             true,
	}
}

const emaAlpha = 0.3

// GlobalTrack is one cross-camera identity (spec §4.6).
type GlobalTrack struct {
	GlobalID   uint64
	Cameras    map[string]int64 // camera_id -> local_id
	Features   []float32
	BBox       vision.BBox
	ClassID    uint32
	Confidence float32
	LastSeen   time.Time
}

func (g GlobalTrack) expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(g.LastSeen) > maxAge
}

// Match is one candidate returned by FindMatches, sorted by similarity
// descending (spec §4.6, "find_matches").
type Match struct {
	GlobalID   uint64
	Similarity float32
}

type localKey struct {
	cameraID string
	localID  int64
}

// Registry implements the GlobalTrackRegistry contract.
type Registry struct {
	mu sync.Mutex

	cfg Config

	globals map[uint64]*GlobalTrack
	byLocal map[localKey]uint64
	nextID  uint64

	now func() time.Time
}

// New builds a Registry with cfg. nowFn defaults to time.Now; tests may
// override it for deterministic expiry behavior.
func New(cfg Config, nowFn func() time.Time) *Registry {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Registry{
		cfg:     cfg,
		globals: make(map[uint64]*GlobalTrack),
		byLocal: make(map[localKey]uint64),
		now:     nowFn,
	}
}

// Report associates a camera-local track with a global identity, creating
// or updating one as needed (spec §4.6, "Association rule on report").
// No error is returned; malformed inputs (empty features, size mismatch
// against existing globals) are silently ignored.
func (r *Registry) Report(cameraID string, localID int64, features []float32, bbox vision.BBox, classID uint32, confidence float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cfg.Enabled || len(features) == 0 {
		return
	}
	for _, g := range r.globals {
		if len(g.Features) != len(features) {
			return // size mismatch against the existing globals' dimension
		}
		break
	}
	now := r.now()
	key := localKey{cameraID: cameraID, localID: localID}

	if gid, ok := r.byLocal[key]; ok {
		if g, ok := r.globals[gid]; ok {
			r.applyEMA(g, features, bbox, classID, confidence, now)
			return
		}
	}

	if r.cfg.MatchingEnabled {
		if gid, sim := r.bestMatch(features, cameraID, now); sim >= r.cfg.SimilarityThreshold {
			g := r.globals[gid]
			g.Cameras[cameraID] = localID
			r.byLocal[key] = gid
			r.applyEMA(g, features, bbox, classID, confidence, now)
			return
		}
	}

	r.nextID++
	gid := r.nextID
	r.globals[gid] = &GlobalTrack{
		GlobalID:   gid,
		Cameras:    map[string]int64{cameraID: localID},
		Features:   append([]float32(nil), features...),
		BBox:       bbox,
		ClassID:    classID,
		Confidence: confidence,
		LastSeen:   now,
	}
	r.byLocal[key] = gid

	if len(r.globals) > int(float64(r.cfg.MaxGlobalTracks)*0.8) {
		r.evictExpiredLocked(now)
	}
}

func (r *Registry) applyEMA(g *GlobalTrack, features []float32, bbox vision.BBox, classID uint32, confidence float32, now time.Time) {
	if len(g.Features) != len(features) {
		g.Features = append([]float32(nil), features...)
	} else {
		for i := range g.Features {
			g.Features[i] = emaAlpha*features[i] + (1-emaAlpha)*g.Features[i]
		}
	}
	g.BBox = bbox
	g.ClassID = classID
	g.Confidence = confidence
	g.LastSeen = now
}

// bestMatch scans non-expired globals that do not already contain
// cameraID, returning the one with highest cosine similarity (spec §4.6
// step 2, "a global must not have two locals from the same camera").
func (r *Registry) bestMatch(features []float32, cameraID string, now time.Time) (uint64, float32) {
	maxAge := time.Duration(r.cfg.MaxTrackAgeS) * time.Second
	var bestID uint64
	bestSim := float32(-1)
	for id, g := range r.globals {
		if g.expired(now, maxAge) {
			continue
		}
		if _, has := g.Cameras[cameraID]; has {
			continue
		}
		sim := reid.CosineSimilarity(features, g.Features)
		if sim > bestSim {
			bestSim = sim
			bestID = id
		}
	}
	return bestID, bestSim
}

// GlobalID returns the global identity assigned to (cameraID, localID), if any.
func (r *Registry) GlobalID(cameraID string, localID int64) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byLocal[localKey{cameraID: cameraID, localID: localID}]
	return id, ok
}

// ActiveTracks returns all non-expired global tracks (spec §4.6, "active_tracks").
func (r *Registry) ActiveTracks() []GlobalTrack {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxAge := time.Duration(r.cfg.MaxTrackAgeS) * time.Second
	now := r.now()
	out := make([]GlobalTrack, 0, len(r.globals))
	for _, g := range r.globals {
		if !g.expired(now, maxAge) {
			out = append(out, *g)
		}
	}
	return out
}

// FindMatches returns candidate globals for features, excluding any global
// already containing excludeCameraID, sorted by similarity descending
// (spec §4.6, "find_matches").
func (r *Registry) FindMatches(features []float32, excludeCameraID string) []Match {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxAge := time.Duration(r.cfg.MaxTrackAgeS) * time.Second
	now := r.now()

	var matches []Match
	for id, g := range r.globals {
		if g.expired(now, maxAge) {
			continue
		}
		if _, has := g.Cameras[excludeCameraID]; has {
			continue
		}
		sim := reid.CosineSimilarity(features, g.Features)
		matches = append(matches, Match{GlobalID: id, Similarity: sim})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches
}

// evictExpiredLocked sweeps expired globals, removing their local mappings
// too (spec §4.6, "Eviction"). Caller must hold r.mu.
func (r *Registry) evictExpiredLocked(now time.Time) {
	maxAge := time.Duration(r.cfg.MaxTrackAgeS) * time.Second
	for id, g := range r.globals {
		if !g.expired(now, maxAge) {
			continue
		}
		for cam, local := range g.Cameras {
			delete(r.byLocal, localKey{cameraID: cam, localID: local})
		}
		delete(r.globals, id)
	}
}
