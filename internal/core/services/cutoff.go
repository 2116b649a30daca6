package services

import (
	"github.com/gravitycar/lorekeeper/internal/core/domain"
	"github.com/gravitycar/lorekeeper/internal/logger"
)

// cutoffCount decides how many leading candidates to keep, given the
// distance sequence of the (already reordered) candidate pool.
//
// Strategy 1 (cliff): find the largest gap between consecutive
// distances, starting from the slot after position 2 — the gap
// immediately after the best result is skipped because an
// exceptionally good top match must not trigger an early cut. If that
// gap reaches gapThreshold, cut just before it.
//
// Strategy 2 (threshold): no qualifying gap, so keep everything within
// distanceThreshold of the best result.
//
// The kept count is clamped to [minKeep, k] and never exceeds the
// number of available candidates. Deterministic for identical input.
func cutoffCount(distances []float64, k int, gapThreshold, distanceThreshold float64) (int, domain.CutoffStrategy) {
	n := len(distances)
	if n == 0 {
		return 0, domain.StrategyThreshold
	}

	// Gaps are only considered within the first k results.
	limit := n
	if k < limit {
		limit = k
	}

	maxGapPos := 0
	maxGap := 0.0
	for i := 2; i < limit; i++ {
		gap := distances[i] - distances[i-1]
		if gap > maxGap {
			maxGap = gap
			maxGapPos = i
		}
	}

	var keep int
	var strategy domain.CutoffStrategy

	if maxGapPos > 0 && maxGap >= gapThreshold {
		keep = maxGapPos
		strategy = domain.StrategyCliff
		logger.Debug("Cutoff: cliff at position %d (gap=%.4f)", maxGapPos, maxGap)
	} else {
		cutoff := distances[0] + distanceThreshold
		keep = 1
		for i := 1; i < n; i++ {
			if distances[i] > cutoff {
				break
			}
			keep++
		}
		strategy = domain.StrategyThreshold
		logger.Debug("Cutoff: distance threshold %.4f keeps %d", cutoff, keep)
	}

	// Clamp to [minKeep, k] within the available count.
	if n > 1 && keep < domain.MinKeep {
		keep = domain.MinKeep
	}
	if keep > k {
		keep = k
	}
	if keep > n {
		keep = n
	}

	return keep, strategy
}

// poolDistances extracts the distance sequence of a candidate pool.
func poolDistances(pool []domain.Candidate) []float64 {
	distances := make([]float64, len(pool))
	for i := range pool {
		distances[i] = pool[i].Distance
	}
	return distances
}
