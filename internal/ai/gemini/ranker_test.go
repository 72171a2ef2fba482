package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vira-platform/vira-engine/internal/matching"
	"github.com/vira-platform/vira-engine/internal/vendor"
)

type stubGenerator struct {
	responses  []string
	errs       []error
	calls      int
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", errors.New("no scripted response")
}

func (s *stubGenerator) Model() string { return "stub-model" }

func candidates() []matching.Candidate {
	return []matching.Candidate{
		{
			Vendor: &vendor.Record{
				ID:           "v1",
				Name:         "Acme Web",
				Categories:   []string{"web development"},
				Availability: vendor.AvailabilityAvailable,
			},
			PreScore: 81.5,
		},
		{
			Vendor: &vendor.Record{
				ID:           "v2",
				Name:         "Pixel Forge",
				Categories:   []string{"web development"},
				Availability: vendor.AvailabilityLimited,
			},
			PreScore: 74.2,
		},
	}
}

const validResponse = `[
  {"vendor_id": "v1", "score": 92, "reason": "Strong portfolio", "key_strengths": ["react", "golang"], "considerations": "Busy until June"},
  {"vendor_id": "v2", "score": 70, "reason": "Solid but limited availability", "key_strengths": []}
]`

func newTestRanker(stub *stubGenerator) *Ranker {
	return NewRanker(stub, zap.NewNop(), RankerConfig{
		Timeout:      time.Second,
		RetryBackoff: time.Millisecond,
	})
}

func TestRankParsesStructuredResponse(t *testing.T) {
	stub := &stubGenerator{responses: []string{validResponse}}
	ranker := newTestRanker(stub)

	recs, err := ranker.Rank(context.Background(), "web development", "Build a storefront", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if recs[0].VendorID != "v1" || recs[0].Score != 92 {
		t.Fatalf("unexpected first recommendation: %+v", recs[0])
	}
	if recs[0].Considerations != "Busy until June" {
		t.Fatalf("expected considerations to be carried, got %q", recs[0].Considerations)
	}
	if len(recs[0].KeyStrengths) != 2 {
		t.Fatalf("expected 2 key strengths, got %v", recs[0].KeyStrengths)
	}
	if recs[1].PreScore != 74.2 {
		t.Fatalf("expected pre-score carried over, got %v", recs[1].PreScore)
	}

	if !strings.Contains(stub.lastPrompt, `"vendor_id": "v1"`) {
		t.Fatalf("expected candidates payload in prompt")
	}
	if !strings.Contains(stub.lastPrompt, "Build a storefront") {
		t.Fatalf("expected project scope in prompt")
	}
	if !strings.Contains(stub.lastPrompt, "web development") {
		t.Fatalf("expected category in prompt")
	}
}

func TestRankStripsMarkdownFences(t *testing.T) {
	stub := &stubGenerator{responses: []string{"```json\n" + validResponse + "\n```"}}
	ranker := newTestRanker(stub)

	recs, err := ranker.Rank(context.Background(), "web development", "Build a storefront", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
}

func TestRankRetriesOnceAfterFailure(t *testing.T) {
	stub := &stubGenerator{
		errs:      []error{errors.New("transient")},
		responses: []string{"", validResponse},
	}
	ranker := newTestRanker(stub)

	recs, err := ranker.Rank(context.Background(), "web development", "Build a storefront", candidates())
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", stub.calls)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
}

func TestRankGivesUpAfterSecondFailure(t *testing.T) {
	stub := &stubGenerator{errs: []error{errors.New("down"), errors.New("still down")}}
	ranker := newTestRanker(stub)

	if _, err := ranker.Rank(context.Background(), "web development", "Build a storefront", candidates()); err == nil {
		t.Fatalf("expected error after retry exhaustion")
	}
	if stub.calls != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", stub.calls)
	}
}

func TestRankRejectsWholeResponseOnSchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{
			name:     "not json",
			response: "The best vendor is clearly Acme Web.",
		},
		{
			name: "missing reason",
			response: `[
  {"vendor_id": "v1", "score": 92, "reason": "ok", "key_strengths": []},
  {"vendor_id": "v2", "score": 70, "key_strengths": []}
]`,
		},
		{
			name: "score out of range",
			response: `[
  {"vendor_id": "v1", "score": 140, "reason": "ok", "key_strengths": []},
  {"vendor_id": "v2", "score": 70, "reason": "ok", "key_strengths": []}
]`,
		},
		{
			name: "unknown vendor id",
			response: `[
  {"vendor_id": "v1", "score": 90, "reason": "ok", "key_strengths": []},
  {"vendor_id": "ghost", "score": 70, "reason": "ok", "key_strengths": []}
]`,
		},
		{
			name: "uncovered candidate",
			response: `[
  {"vendor_id": "v1", "score": 90, "reason": "ok", "key_strengths": []}
]`,
		},
		{
			name: "duplicated vendor",
			response: `[
  {"vendor_id": "v1", "score": 90, "reason": "ok", "key_strengths": []},
  {"vendor_id": "v1", "score": 80, "reason": "again", "key_strengths": []}
]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubGenerator{responses: []string{tt.response}}
			ranker := newTestRanker(stub)

			_, err := ranker.Rank(context.Background(), "web development", "Build a storefront", candidates())
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestRankEmptyCandidatesSkipsModel(t *testing.T) {
	stub := &stubGenerator{}
	ranker := newTestRanker(stub)

	recs, err := ranker.Rank(context.Background(), "web development", "Build a storefront", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recs != nil {
		t.Fatalf("expected nil recommendations, got %v", recs)
	}
	if stub.calls != 0 {
		t.Fatalf("expected no model call, got %d", stub.calls)
	}
}
