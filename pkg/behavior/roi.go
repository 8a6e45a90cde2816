// Package behavior implements regions-of-interest and the intrusion rule
// evaluation over tracked objects (spec §4.5, C7).
package behavior

import "time"

// Point is a 2D polygon vertex in image pixel coordinates.
type Point struct {
	X, Y float64
}

// ROI is a polygonal region with activation windows and priority, used to
// resolve overlapping region membership (spec §4.5).
type ROI struct {
	ID       string
	Name     string
	Polygon  []Point
	Priority int
	Enabled  bool

	// StartTime/EndTime bound the ROI's active wall-clock window. Both
	// zero means "always active" when Enabled. EndTime <= StartTime means
	// the window spans midnight (spec §4.5, "ROI activeness").
	StartTime time.Duration // offset since midnight
	EndTime   time.Duration
	HasWindow bool
}

// active reports whether the ROI is active at wall clock t (spec §4.5,
// "A ROI is active at monotonic time T iff enabled=true AND either (a)
// both times empty, or (b) current wall time falls in [start,end] with
// wrap-around support").
func (r ROI) active(t time.Time) bool {
	if !r.Enabled {
		return false
	}
	if !r.HasWindow {
		return true
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	sinceMidnight := t.Sub(midnight)

	if r.EndTime <= r.StartTime {
		// spans midnight: active if after start OR before end
		return sinceMidnight >= r.StartTime || sinceMidnight <= r.EndTime
	}
	return sinceMidnight >= r.StartTime && sinceMidnight <= r.EndTime
}

// contains reports whether (x, y) lies inside the polygon via ray casting,
// tolerant of closed polygons where the first vertex repeats as the last
// (spec §4.5, "Point-in-polygon"). A point lying exactly on an edge is
// treated as inside (spec §8, "point on polygon edge: considered inside").
func (r ROI) contains(x, y float64) bool {
	poly := r.Polygon
	n := len(poly)
	if n > 1 && poly[0] == poly[n-1] {
		poly = poly[:n-1]
		n--
	}
	if n < 3 {
		return false
	}

	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if onSegment(poly[j], poly[i], x, y) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > y) != (pj.Y > y) {
			xCross := (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if x < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

const boundaryEpsilon = 1e-9

// onSegment reports whether (x, y) lies on the closed segment a-b.
func onSegment(a, b Point, x, y float64) bool {
	cross := (b.X-a.X)*(y-a.Y) - (b.Y-a.Y)*(x-a.X)
	if cross > boundaryEpsilon || cross < -boundaryEpsilon {
		return false
	}
	if x < min(a.X, b.X)-boundaryEpsilon || x > max(a.X, b.X)+boundaryEpsilon {
		return false
	}
	if y < min(a.Y, b.Y)-boundaryEpsilon || y > max(a.Y, b.Y)+boundaryEpsilon {
		return false
	}
	return true
}

// hasExplicitWindow reports whether this ROI carries specific time
// restrictions, used as the conflict tie-break's "more specific" rule.
func (r ROI) hasExplicitWindow() bool { return r.HasWindow }
