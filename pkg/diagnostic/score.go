package diagnostic

import "math"

// BenchmarkWastePct is the waste percentage treated as acceptable. A dataset
// wasting exactly this much scores 100.
const BenchmarkWastePct = 30.0

// defaultMaxCost is the unit cost used as the denominator when no issues
// were detected, so an issue-free dataset still has a meaningful scale.
const defaultMaxCost = 60

// Grade constants returned by Grade.
const (
	GradeGood = "good"
	GradeFair = "fair"
	GradePoor = "poor"
)

// Thresholds that map an efficiency score to a grade.
const (
	ThresholdGood = 85
	ThresholdFair = 60
)

// observedWastePct is total cost as a percentage of the worst case, where
// every row costs maxCost. It is 0 for an empty dataset.
func observedWastePct(totalCost, maxCost, rows int) float64 {
	possible := rows * maxCost
	if possible == 0 {
		return 0
	}
	return float64(totalCost) / float64(possible) * 100
}

// efficiencyScore maps observed waste to the 0–100 score relative to
// BenchmarkWastePct. Halves round to even.
func efficiencyScore(wastePct float64) int {
	score := math.RoundToEven(100 - (wastePct - BenchmarkWastePct))
	return int(clamp(score, 0, 100))
}

// Grade maps an efficiency score to a named band.
func Grade(score int) string {
	switch {
	case score >= ThresholdGood:
		return GradeGood
	case score >= ThresholdFair:
		return GradeFair
	default:
		return GradePoor
	}
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
