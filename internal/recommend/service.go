package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/vira-platform/vira-engine/internal/ai"
	"github.com/vira-platform/vira-engine/internal/matching"
	"github.com/vira-platform/vira-engine/internal/vendor"
)

// ErrInvalidQuery marks requests rejected by validation. These surface
// immediately to the caller and are never retried.
var ErrInvalidQuery = errors.New("invalid match query")

// FallbackReason is the rationale attached to recommendations produced from
// the pre-score when the model is unavailable or its output is unusable.
const FallbackReason = "Ranked by historical performance data."

// Query is one vendor match request.
type Query struct {
	Category string
	Scope    string
}

// RemainingVendor is a matched candidate that was not sent to the model. It
// carries the pre-score only and is never AI-scored.
type RemainingVendor struct {
	Vendor   *vendor.Record
	PreScore float64
}

// Result is the composed outcome of one match request.
type Result struct {
	Matches            []*ai.Recommendation
	Remaining          []RemainingVendor
	CandidatesAnalyzed int
	SentToAI           int
}

// Service orchestrates selection, AI ranking and result composition.
type Service struct {
	repo        vendor.Repository
	selector    *matching.Selector
	ranker      ai.Ranker
	logger      *zap.Logger
	minScopeLen int
}

// Config tunes the orchestration.
type Config struct {
	// MinScopeLen is the minimum project scope length in runes. Zero disables
	// the check.
	MinScopeLen int
}

func NewService(repo vendor.Repository, selector *matching.Selector, ranker ai.Ranker, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		selector:    selector,
		ranker:      ranker,
		logger:      logger,
		minScopeLen: cfg.MinScopeLen,
	}
}

// Match produces the ordered, explainable recommendation result for a query.
// Model failures degrade to the pre-score fallback; only validation and
// repository failures surface as errors.
func (s *Service) Match(ctx context.Context, q Query) (*Result, error) {
	category := strings.TrimSpace(q.Category)
	scope := strings.TrimSpace(q.Scope)

	if category == "" {
		return nil, fmt.Errorf("%w: service category is required", ErrInvalidQuery)
	}
	if s.minScopeLen > 0 && utf8.RuneCountInString(scope) < s.minScopeLen {
		return nil, fmt.Errorf("%w: project scope must be at least %d characters", ErrInvalidQuery, s.minScopeLen)
	}

	pool, err := s.repo.Active(ctx)
	if err != nil {
		s.logger.Error("vendor repository query failed",
			zap.String("category", category),
			zap.Int("scope_length", utf8.RuneCountInString(scope)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("query vendors: %w", err)
	}

	sel := s.selector.Select(category, pool)
	if len(sel.Selected) == 0 {
		// Zero matches is a valid empty result, not an error.
		return &Result{CandidatesAnalyzed: sel.Analyzed}, nil
	}

	matches := s.rank(ctx, category, scope, sel.Selected)
	sortRecommendations(matches)

	remaining := make([]RemainingVendor, 0, len(sel.Remaining))
	for _, c := range sel.Remaining {
		remaining = append(remaining, RemainingVendor{Vendor: c.Vendor, PreScore: c.PreScore})
	}

	return &Result{
		Matches:            matches,
		Remaining:          remaining,
		CandidatesAnalyzed: sel.Analyzed,
		SentToAI:           len(matches),
	}, nil
}

// rank asks the model for a qualitative ranking and falls back to pre-score
// stand-ins on any failure, so recommendations stay best-effort.
func (s *Service) rank(ctx context.Context, category, scope string, selected []matching.Candidate) []*ai.Recommendation {
	if s.ranker != nil {
		recs, err := s.ranker.Rank(ctx, category, scope, selected)
		if err == nil {
			return recs
		}

		s.logger.Warn("ai ranking failed, falling back to pre-score",
			zap.String("category", category),
			zap.Int("scope_length", utf8.RuneCountInString(scope)),
			zap.Int("candidates", len(selected)),
			zap.Error(err),
		)
	}

	return Fallback(selected)
}

// Fallback builds recommendation stand-ins directly from the pre-score.
func Fallback(selected []matching.Candidate) []*ai.Recommendation {
	recs := make([]*ai.Recommendation, 0, len(selected))
	for _, c := range selected {
		recs = append(recs, &ai.Recommendation{
			VendorID:   c.Vendor.ID,
			VendorName: c.Vendor.Name,
			Vendor:     c.Vendor,
			Score:      int(c.PreScore + 0.5),
			Reason:     FallbackReason,
			PreScore:   c.PreScore,
			Fallback:   true,
		})
	}
	return recs
}

// sortRecommendations applies the ordering contract: descending score, ties
// broken by descending pre-score, then ascending vendor id. It holds whether
// the scores came from the model or from fallback.
func sortRecommendations(recs []*ai.Recommendation) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].PreScore != recs[j].PreScore {
			return recs[i].PreScore > recs[j].PreScore
		}
		return recs[i].VendorID < recs[j].VendorID
	})
}
