package matching

import (
	"math"

	"github.com/vira-platform/vira-engine/internal/vendor"
)

// neutralScore is the baseline a vendor with no track record converges to.
const neutralScore = 50.0

// PreScore computes the deterministic performance score of a vendor in
// [0,100]. It is a pure function of the record's aggregates: identical input
// always yields an identical score, with no AI and no randomness involved.
func PreScore(r *vendor.Record, w Weights) float64 {
	rating := clamp(r.AvgRating/10, 0, 1) * 100
	recommendation := clamp(r.RecommendationPct, 0, 100)
	availability := availabilityScore(r.Availability)

	sum := w.Rating + w.Recommendation + w.Availability
	if sum <= 0 {
		return neutralScore
	}

	base := (w.Rating*rating + w.Recommendation*recommendation + w.Availability*availability) / sum

	// Saturating confidence in 0..1: 0 projects -> 0, pivot projects -> 0.5,
	// many projects -> ~1. Low-evidence vendors are blended toward neutral.
	pivot := w.ConfidencePivot
	if pivot <= 0 {
		pivot = DefaultWeights().ConfidencePivot
	}
	confidence := float64(r.TotalProjects) / (float64(r.TotalProjects) + pivot)

	score := neutralScore + (base-neutralScore)*confidence

	// 0.1 precision keeps scores readable and comparison stable.
	return clamp(math.Round(score*10)/10, 0, 100)
}

func availabilityScore(a vendor.Availability) float64 {
	switch a {
	case vendor.AvailabilityAvailable:
		return 100
	case vendor.AvailabilityLimited:
		return 60
	case vendor.AvailabilityUnavailable:
		return 10
	case vendor.AvailabilityOnLeave:
		return 0
	default:
		return 50
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
