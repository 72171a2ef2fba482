package matching

import (
	"sort"

	"go.uber.org/zap"

	"github.com/vira-platform/vira-engine/internal/vendor"
)

// Candidate is a vendor that matched the requested category, together with
// its deterministic pre-score.
type Candidate struct {
	Vendor   *vendor.Record
	PreScore float64
}

// Selection is the outcome of candidate selection for one match request.
type Selection struct {
	// Selected holds the top candidates by pre-score, bounded by the
	// configured cap. These are the ones sent to the model.
	Selected []Candidate
	// Remaining holds the rest of the matched candidates, possibly truncated
	// for payload economy. Truncation stays observable through Analyzed.
	Remaining []Candidate
	// Analyzed is the total category match count before any truncation.
	Analyzed int
}

// Selector filters and deterministically pre-scores vendors for a category.
type Selector struct {
	weights      Weights
	topK         int
	remainingCap int
	logger       *zap.Logger
}

func NewSelector(weights Weights, topK, remainingCap int, logger *zap.Logger) *Selector {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if remainingCap <= 0 {
		remainingCap = DefaultRemainingCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{weights: weights, topK: topK, remainingCap: remainingCap, logger: logger}
}

func (s *Selector) TopK() int { return s.topK }

// Select narrows the pool to active vendors serving the category, scores
// them, sorts descending by pre-score with vendor id as the tiebreak, and
// splits the result into the AI-bound subset and the remainder. Zero matches
// produce an empty selection, not an error.
func (s *Selector) Select(category string, pool *vendor.Vendors) Selection {
	matched := Run(s.logger, []Filter{NewActive(), NewCategory(category)}, pool)

	candidates := make([]Candidate, 0, matched.Len())
	for _, r := range matched.Items {
		candidates = append(candidates, Candidate{Vendor: r, PreScore: PreScore(r, s.weights)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].PreScore != candidates[j].PreScore {
			return candidates[i].PreScore > candidates[j].PreScore
		}
		return candidates[i].Vendor.ID < candidates[j].Vendor.ID
	})

	sel := Selection{Analyzed: len(candidates)}
	if len(candidates) > s.topK {
		sel.Selected = candidates[:s.topK]
		sel.Remaining = candidates[s.topK:]
	} else {
		sel.Selected = candidates
	}
	if len(sel.Remaining) > s.remainingCap {
		sel.Remaining = sel.Remaining[:s.remainingCap]
	}

	s.logger.Debug("candidate selection",
		zap.String("category", category),
		zap.Int("analyzed", sel.Analyzed),
		zap.Int("selected", len(sel.Selected)),
		zap.Int("remaining", len(sel.Remaining)),
	)

	return sel
}
