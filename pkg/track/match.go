package track

import (
	"sort"

	"github.com/avsentry/videocore/pkg/reid"
	"github.com/avsentry/videocore/pkg/vision"
)

// pairCost is one candidate (detection, track) pairing with its
// association cost, used to drive greedy assignment (spec §4.4 steps 3-5).
type pairCost struct {
	detIdx, trackIdx int
	cost             float32
}

// greedyAssign picks pairs in ascending cost order, accepting a pair only
// if both its detection and track are still unmatched and its cost does
// not exceed maxCost (spec §4.4, "Greedy selection of best pairs where
// cost <= 1 - match_threshold").
func greedyAssign(costs []pairCost, maxCost float32, detUsed, trackUsed []bool) map[int]int {
	sort.Slice(costs, func(i, j int) bool { return costs[i].cost < costs[j].cost })

	matches := make(map[int]int)
	for _, c := range costs {
		if c.cost > maxCost {
			break
		}
		if detUsed[c.detIdx] || trackUsed[c.trackIdx] {
			continue
		}
		detUsed[c.detIdx] = true
		trackUsed[c.trackIdx] = true
		matches[c.detIdx] = c.trackIdx
	}
	return matches
}

// iouReidCost computes 1 - α·IoU - (1-α)·cos_sim when both appearance
// features are present, else 1 - IoU (spec §4.4 step 3).
func iouReidCost(detBox vision.BBox, detFeatures []float32, trackBox vision.BBox, trackFeatures []float32, alpha float32) float32 {
	iou := vision.IoU(detBox, trackBox)
	if alpha <= 0 || len(detFeatures) == 0 || len(trackFeatures) == 0 {
		return 1 - iou
	}
	sim := reid.CosineSimilarity(detFeatures, trackFeatures)
	return 1 - alpha*iou - (1-alpha)*sim
}

func iouCost(a, b vision.BBox) float32 {
	return 1 - vision.IoU(a, b)
}
