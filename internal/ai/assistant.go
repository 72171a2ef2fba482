package ai

import (
	"context"

	"github.com/vira-platform/vira-engine/internal/matching"
	"github.com/vira-platform/vira-engine/internal/vendor"
)

// Recommendation is the qualitative assessment of one candidate against a
// project scope. Score is the model-assigned match score in [0,100]; PreScore
// stays independently computed and is only carried for tie-breaking and
// explainability.
type Recommendation struct {
	VendorID       string
	VendorName     string
	Vendor         *vendor.Record
	Score          int
	Reason         string
	KeyStrengths   []string
	Considerations string
	PreScore       float64
	Fallback       bool
}

// Ranker ranks candidates for a project scope. Implementations call an
// external model; the deterministic fallback lives with the caller so the
// orchestration stays testable without network access.
type Ranker interface {
	Rank(ctx context.Context, category, scope string, candidates []matching.Candidate) ([]*Recommendation, error)
}
