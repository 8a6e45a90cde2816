package registry

import (
	"testing"
	"time"

	"github.com/avsentry/videocore/pkg/vision"
)

func TestReport_CreatesNewGlobalTrack(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Report("cam1", 1, []float32{1, 0, 0}, vision.BBox{W: 10, H: 10}, 0, 0.9)

	gid, ok := r.GlobalID("cam1", 1)
	if !ok {
		t.Fatal("expected a global id assigned")
	}
	if gid != 1 {
		t.Errorf("expected first global id to be 1, got %d", gid)
	}
}

func TestReport_SameLocalIsIdempotentAndUpdatesEMA(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Report("cam1", 1, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9)
	r.Report("cam1", 1, []float32{0, 1, 0}, vision.BBox{}, 0, 0.9)

	tracks := r.ActiveTracks()
	if len(tracks) != 1 {
		t.Fatalf("expected 1 global track, got %d", len(tracks))
	}
	if tracks[0].Features[0] == 1 {
		t.Error("expected EMA to have shifted features away from the original value")
	}
}

func TestReport_MatchesAcrossCamerasBySimilarity(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Report("cam1", 1, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9)
	r.Report("cam2", 7, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9)

	gid1, _ := r.GlobalID("cam1", 1)
	gid2, _ := r.GlobalID("cam2", 7)
	if gid1 != gid2 {
		t.Errorf("expected matching appearance to merge into one global id, got %d and %d", gid1, gid2)
	}
}

func TestReport_SameCameraNeverDoubleAssignedToOneGlobal(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Report("cam1", 1, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9)
	r.Report("cam1", 2, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9) // same camera, same appearance

	gid1, _ := r.GlobalID("cam1", 1)
	gid2, _ := r.GlobalID("cam1", 2)
	if gid1 == gid2 {
		t.Error("expected a global to never contain two locals from the same camera")
	}
}

func TestReport_BelowSimilarityThresholdCreatesNewGlobal(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Report("cam1", 1, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9)
	r.Report("cam2", 1, []float32{0, 1, 0}, vision.BBox{}, 0, 0.9) // orthogonal, no match

	gid1, _ := r.GlobalID("cam1", 1)
	gid2, _ := r.GlobalID("cam2", 1)
	if gid1 == gid2 {
		t.Error("expected dissimilar appearance to get a distinct global id")
	}
}

func TestReport_EmptyFeaturesIgnored(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Report("cam1", 1, nil, vision.BBox{}, 0, 0.9)
	if _, ok := r.GlobalID("cam1", 1); ok {
		t.Error("expected empty features to be ignored, no global created")
	}
}

func TestFindMatches_SortedBySimilarityDescending(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Report("cam1", 1, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9)
	r.Report("cam1", 2, []float32{0.9, 0.1, 0}, vision.BBox{}, 0, 0.9)

	matches := r.FindMatches([]float32{1, 0, 0}, "cam2")
	if len(matches) != 2 {
		t.Fatalf("expected 2 candidate matches, got %d", len(matches))
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("expected matches sorted by similarity descending")
	}
}

func TestFindMatches_ExcludesOwnCamera(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Report("cam1", 1, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9)

	matches := r.FindMatches([]float32{1, 0, 0}, "cam1")
	if len(matches) != 0 {
		t.Errorf("expected no matches when excluding the only contributing camera, got %d", len(matches))
	}
}

func TestActiveTracks_ExcludesExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	r := New(DefaultConfig(), func() time.Time { return clock })

	r.Report("cam1", 1, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9)
	if len(r.ActiveTracks()) != 1 {
		t.Fatal("expected 1 active track immediately after report")
	}

	clock = now.Add(31 * time.Second)
	if len(r.ActiveTracks()) != 0 {
		t.Error("expected track to be expired after max_track_age_s")
	}
}

func TestReport_DisabledRegistryIgnoresReports(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	r := New(cfg, nil)
	r.Report("cam1", 1, []float32{1, 0, 0}, vision.BBox{}, 0, 0.9)
	if _, ok := r.GlobalID("cam1", 1); ok {
		t.Error("expected disabled registry to ignore reports")
	}
}
