package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/vira-platform/vira-engine/internal/ai"
	"github.com/vira-platform/vira-engine/internal/matching"
	"github.com/vira-platform/vira-engine/internal/utils"
)

// ErrMalformed marks model responses that failed schema validation. One
// invalid candidate rejects the whole response, never a single field.
var ErrMalformed = errors.New("malformed model response")

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = 2 * time.Second
	defaultMaxLogLength = 200
)

// RankerConfig tunes the external call behavior of the Ranker.
type RankerConfig struct {
	// Timeout bounds a single model call.
	Timeout time.Duration
	// RetryBackoff is the pause before the single retry of a failed call.
	RetryBackoff time.Duration
	// MaxLogLength caps prompt/response previews in debug logs.
	MaxLogLength int
}

// Ranker asks Gemini for a qualitative ranking of the selected candidates.
type Ranker struct {
	generator contentGenerator
	logger    *zap.Logger
	timeout   time.Duration
	backoff   time.Duration
	maxLogLen int
}

func NewRanker(generator contentGenerator, logger *zap.Logger, cfg RankerConfig) *Ranker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ranker{
		generator: generator,
		logger:    logger,
		timeout:   cfg.Timeout,
		backoff:   cfg.RetryBackoff,
		maxLogLen: cfg.MaxLogLength,
	}
}

// Rank sends the candidates and project scope to the model and parses its
// structured answer. The returned recommendations cover exactly the input
// candidate set; order is the model's and callers apply the final sort.
func (r *Ranker) Rank(ctx context.Context, category, scope string, candidates []matching.Candidate) ([]*ai.Recommendation, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt, err := buildPrompt(category, scope, candidates)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("gemini ranking request",
		zap.String("category", category),
		zap.Int("candidates", len(candidates)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
	)

	raw, err := r.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("gemini ranking response",
		zap.String("category", category),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)

	recs, err := parseResponse(raw, candidates)
	if err != nil {
		return nil, err
	}

	return recs, nil
}

// generate performs one bounded call, retried once with backoff.
func (r *Ranker) generate(ctx context.Context, prompt string) (string, error) {
	raw, err := r.generateOnce(ctx, prompt)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return "", err
	}

	r.logger.Warn("gemini call failed, retrying once", zap.Error(err))
	if waitErr := utils.WaitFor(ctx, r.backoff); waitErr != nil {
		return "", waitErr
	}

	return r.generateOnce(ctx, prompt)
}

func (r *Ranker) generateOnce(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.generator.GenerateContent(callCtx, prompt)
}

type promptCandidate struct {
	VendorID          string   `json:"vendor_id"`
	Name              string   `json:"name"`
	Categories        []string `json:"categories"`
	Skills            string   `json:"skills,omitempty"`
	AvgRating         float64  `json:"avg_rating"`
	TotalProjects     int      `json:"total_projects"`
	RecommendationPct float64  `json:"recommendation_pct"`
	Availability      string   `json:"availability"`
	PreScore          float64  `json:"pre_score"`
}

func buildPrompt(category, scope string, candidates []matching.Candidate) (string, error) {
	payload := make([]promptCandidate, 0, len(candidates))
	for _, c := range candidates {
		payload = append(payload, promptCandidate{
			VendorID:          c.Vendor.ID,
			Name:              c.Vendor.Name,
			Categories:        c.Vendor.CategoryList(),
			Skills:            c.Vendor.Skills,
			AvgRating:         c.Vendor.AvgRating,
			TotalProjects:     c.Vendor.TotalProjects,
			RecommendationPct: c.Vendor.RecommendationPct,
			Availability:      string(c.Vendor.Availability),
			PreScore:          c.PreScore,
		})
	}

	candidatesJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates payload: %w", err)
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Category: {{CATEGORY}}\nScope:\n{{PROJECT_SCOPE}}\n\nCandidates:\n{{CANDIDATES_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{CATEGORY}}", category)
	prompt = strings.ReplaceAll(prompt, "{{PROJECT_SCOPE}}", scope)
	prompt = strings.ReplaceAll(prompt, "{{CANDIDATES_JSON}}", string(candidatesJSON))
	return prompt, nil
}

type rankedCandidate struct {
	VendorID       string   `json:"vendor_id"`
	Score          float64  `json:"score"`
	Reason         string   `json:"reason"`
	KeyStrengths   []string `json:"key_strengths"`
	Considerations string   `json:"considerations"`
}

// parseResponse validates the model output against the expected schema. Any
// missing required field, out-of-range score, unknown or duplicated vendor,
// or uncovered candidate rejects the whole response.
func parseResponse(raw string, candidates []matching.Candidate) ([]*ai.Recommendation, error) {
	cleaned := extractJSON(raw)

	var items []map[string]any
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, fmt.Errorf("%w: parse json array: %v", ErrMalformed, err)
	}

	byID := make(map[string]matching.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.Vendor.ID] = c
	}

	seen := make(map[string]bool, len(items))
	recs := make([]*ai.Recommendation, 0, len(items))

	for i, item := range items {
		for _, required := range []string{"vendor_id", "score", "reason"} {
			if _, ok := item[required]; !ok {
				return nil, fmt.Errorf("%w: candidate %d is missing %q", ErrMalformed, i, required)
			}
		}

		var ranked rankedCandidate
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &ranked,
			TagName: "json",
		})
		if err != nil {
			return nil, fmt.Errorf("build decoder: %w", err)
		}
		if err := decoder.Decode(item); err != nil {
			return nil, fmt.Errorf("%w: candidate %d: %v", ErrMalformed, i, err)
		}

		candidate, ok := byID[ranked.VendorID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown vendor id %q", ErrMalformed, ranked.VendorID)
		}
		if seen[ranked.VendorID] {
			return nil, fmt.Errorf("%w: duplicated vendor id %q", ErrMalformed, ranked.VendorID)
		}
		seen[ranked.VendorID] = true

		if ranked.Score < 0 || ranked.Score > 100 || ranked.Score != float64(int(ranked.Score)) {
			return nil, fmt.Errorf("%w: vendor %q score %v out of range", ErrMalformed, ranked.VendorID, ranked.Score)
		}
		if strings.TrimSpace(ranked.Reason) == "" {
			return nil, fmt.Errorf("%w: vendor %q has empty reason", ErrMalformed, ranked.VendorID)
		}

		recs = append(recs, &ai.Recommendation{
			VendorID:       candidate.Vendor.ID,
			VendorName:     candidate.Vendor.Name,
			Vendor:         candidate.Vendor,
			Score:          int(ranked.Score),
			Reason:         strings.TrimSpace(ranked.Reason),
			KeyStrengths:   ranked.KeyStrengths,
			Considerations: strings.TrimSpace(ranked.Considerations),
			PreScore:       candidate.PreScore,
		})
	}

	if len(recs) != len(candidates) {
		return nil, fmt.Errorf("%w: expected %d candidates, got %d", ErrMalformed, len(candidates), len(recs))
	}

	return recs, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
