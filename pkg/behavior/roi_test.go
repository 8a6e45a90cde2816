package behavior

import (
	"testing"
	"time"
)

func square(x0, y0, size float64) []Point {
	return []Point{{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}}
}

func TestROIContains_InsideAndOutside(t *testing.T) {
	roi := ROI{Polygon: square(0, 0, 10)}
	if !roi.contains(5, 5) {
		t.Error("expected point inside square to be contained")
	}
	if roi.contains(50, 50) {
		t.Error("expected point outside square to not be contained")
	}
}

func TestROIContains_BoundaryPointsAreInside(t *testing.T) {
	roi := ROI{Polygon: square(0, 0, 10)}
	if !roi.contains(10, 5) {
		t.Error("expected point on right edge to be contained")
	}
	if !roi.contains(5, 10) {
		t.Error("expected point on bottom edge to be contained")
	}
	if !roi.contains(10, 10) {
		t.Error("expected corner vertex to be contained")
	}
	if !roi.contains(0, 0) {
		t.Error("expected origin vertex to be contained")
	}
}

func TestROIContains_ClosedPolygon(t *testing.T) {
	pts := square(0, 0, 10)
	closed := append(append([]Point{}, pts...), pts[0])
	roi := ROI{Polygon: closed}
	if !roi.contains(5, 5) {
		t.Error("expected closed polygon (first==last) to still work")
	}
}

func TestROIActive_NoWindowMeansAlwaysActive(t *testing.T) {
	roi := ROI{Enabled: true, HasWindow: false}
	if !roi.active(time.Now()) {
		t.Error("expected no-window ROI to be active")
	}
}

func TestROIActive_Disabled(t *testing.T) {
	roi := ROI{Enabled: false}
	if roi.active(time.Now()) {
		t.Error("expected disabled ROI to never be active")
	}
}

func TestROIActive_WindowSpansMidnight(t *testing.T) {
	roi := ROI{
		Enabled:   true,
		HasWindow: true,
		StartTime: 22 * time.Hour,
		EndTime:   2 * time.Hour,
	}
	late := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	early := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !roi.active(late) {
		t.Error("expected active at 23:00 for a 22:00-02:00 window")
	}
	if !roi.active(early) {
		t.Error("expected active at 01:00 for a 22:00-02:00 window")
	}
	if roi.active(midday) {
		t.Error("expected inactive at 12:00 for a 22:00-02:00 window")
	}
}

func TestROIActive_NormalWindow(t *testing.T) {
	roi := ROI{
		Enabled:   true,
		HasWindow: true,
		StartTime: 9 * time.Hour,
		EndTime:   17 * time.Hour,
	}
	inWindow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	outWindow := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	if !roi.active(inWindow) {
		t.Error("expected active within 9-17 window")
	}
	if roi.active(outWindow) {
		t.Error("expected inactive outside 9-17 window")
	}
}
