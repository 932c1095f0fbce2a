package search

import (
	"math"
	"sort"

	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// candidate is one fused result before access filtering and truncation.
type candidate struct {
	point vectorstore.Point
	score float64
}

// fuseRRF merges ranked lists with reciprocal rank fusion. Each appearance
// contributes 1/(k + rank) with ranks starting at 1. Ties keep first-seen
// order: the order in which a point first appears across the lists is the
// order it keeps among equals.
func fuseRRF(lists [][]vectorstore.Hit, k int) []candidate {
	scores := make(map[string]float64)
	var order []string
	points := make(map[string]vectorstore.Point)

	for _, list := range lists {
		for rank, hit := range list {
			if _, seen := scores[hit.ID]; !seen {
				order = append(order, hit.ID)
				points[hit.ID] = hit.Point
			}
			scores[hit.ID] += 1.0 / float64(k+rank+1)
		}
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		out = append(out, candidate{point: points[id], score: scores[id]})
	}
	sortCandidates(out)
	return out
}

// fuseDBSF merges lists with distribution-based score fusion. Each list's
// scores are standardized to [0,1] using a mean plus/minus three sigma
// window, then summed across lists, so a point both channels agree on
// outranks any single-channel hit. The summed scores are normalized by the
// maximum and clamped so presented scores stay in [0,1].
func fuseDBSF(lists [][]vectorstore.Hit) []candidate {
	scores := make(map[string]float64)
	var order []string
	points := make(map[string]vectorstore.Point)

	for _, list := range lists {
		lo, hi := sigmaWindow(list)
		for _, hit := range list {
			norm := 0.5
			if hi > lo {
				norm = (float64(hit.Score) - lo) / (hi - lo)
				norm = math.Max(0, math.Min(1, norm))
			}
			if _, seen := scores[hit.ID]; !seen {
				order = append(order, hit.ID)
				points[hit.ID] = hit.Point
			}
			scores[hit.ID] += norm
		}
	}

	var max float64
	for _, s := range scores {
		if s > max {
			max = s
		}
	}

	out := make([]candidate, 0, len(order))
	for _, id := range order {
		score := scores[id]
		if max > 0 {
			score /= max
		}
		score = math.Max(0, math.Min(1, score))
		out = append(out, candidate{point: points[id], score: score})
	}
	sortCandidates(out)
	return out
}

// sigmaWindow returns the [mean-3s, mean+3s] score window of one list.
func sigmaWindow(list []vectorstore.Hit) (float64, float64) {
	if len(list) == 0 {
		return 0, 0
	}
	var mean float64
	for _, h := range list {
		mean += float64(h.Score)
	}
	mean /= float64(len(list))

	var variance float64
	for _, h := range list {
		d := float64(h.Score) - mean
		variance += d * d
	}
	variance /= float64(len(list))
	sigma := math.Sqrt(variance)
	return mean - 3*sigma, mean + 3*sigma
}

// normalizeByMax scales a single channel's scores so the best hit is 1.
// Single-mode searches use it so score thresholds behave like fused scores.
func normalizeByMax(list []vectorstore.Hit) []candidate {
	out := make([]candidate, 0, len(list))
	var max float64
	for _, h := range list {
		if float64(h.Score) > max {
			max = float64(h.Score)
		}
	}
	for _, h := range list {
		score := float64(h.Score)
		if max > 0 {
			score /= max
		}
		out = append(out, candidate{point: h.Point, score: score})
	}
	return out
}

// sortCandidates orders by score descending, preserving existing order among
// equal scores.
func sortCandidates(out []candidate) {
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
}
