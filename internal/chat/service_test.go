package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vira-platform/vira-engine/internal/intent"
	"github.com/vira-platform/vira-engine/internal/matching"
	"github.com/vira-platform/vira-engine/internal/recommend"
	"github.com/vira-platform/vira-engine/internal/session"
	"github.com/vira-platform/vira-engine/internal/vendor"
)

type stubContentGenerator struct {
	response string
	err      error
}

func (s *stubContentGenerator) GenerateContent(context.Context, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func seedRepo() *vendor.Memory {
	return vendor.NewMemory(
		&vendor.Record{
			ID: "v1", Name: "Acme Web", Categories: []string{"web development"},
			AvgRating: 9.2, TotalProjects: 40, RecommendationPct: 95,
			Availability: vendor.AvailabilityAvailable, Active: true,
		},
		&vendor.Record{
			ID: "v2", Name: "SearchCraft", Categories: []string{"seo"},
			Skills:    "technical seo, link building",
			AvgRating: 8.1, TotalProjects: 22, RecommendationPct: 88,
			Availability: vendor.AvailabilityLimited, Active: true,
		},
	)
}

func newChatService(repo vendor.Repository, generator ContentGenerator) *Service {
	selector := matching.NewSelector(matching.DefaultWeights(), 3, 10, zap.NewNop())
	recommender := recommend.NewService(repo, selector, nil, zap.NewNop(), recommend.Config{MinScopeLen: 10})
	svc := NewService(recommender, repo, session.NewMemory(), generator, zap.NewNop())

	// Deterministic, strictly increasing timestamps.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		base = base.Add(time.Second)
		return base
	}
	return svc
}

func TestHandleRejectsEmptyMessage(t *testing.T) {
	svc := newChatService(seedRepo(), nil)

	if _, err := svc.Handle(context.Background(), Request{Message: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestHandleThreeTurnSessionFlow(t *testing.T) {
	svc := newChatService(seedRepo(), &stubContentGenerator{response: "Happy to help!"})

	var last *Response
	for _, message := range []string{
		"Hello there, how are you doing?",
		"What can you do for me exactly?",
		"Thanks, that sounds great to me!",
	} {
		resp, err := svc.Handle(context.Background(), Request{Message: message, SessionID: "s1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = resp
	}

	if len(last.History) != 6 {
		t.Fatalf("expected 6 messages after three turns, got %d", len(last.History))
	}
	for i, msg := range last.History {
		wantRole := session.RoleUser
		if i%2 == 1 {
			wantRole = session.RoleAssistant
		}
		if msg.Role != wantRole {
			t.Fatalf("message %d: expected role %s, got %s", i, wantRole, msg.Role)
		}
		if i > 0 && !last.History[i-1].Timestamp.Before(msg.Timestamp) {
			t.Fatalf("history is not strictly chronological at %d", i)
		}
	}
}

func TestHandleVisibleHistoryIsTruncated(t *testing.T) {
	svc := newChatService(seedRepo(), &stubContentGenerator{response: "ok"})

	var last *Response
	for i := 0; i < 8; i++ {
		resp, err := svc.Handle(context.Background(), Request{Message: "Tell me something interesting.", SessionID: "s1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = resp
	}

	if len(last.History) != session.VisibleHistory {
		t.Fatalf("expected visible history capped at %d, got %d", session.VisibleHistory, len(last.History))
	}
}

func TestHandleClientHistoryIsAuthoritative(t *testing.T) {
	svc := newChatService(seedRepo(), &stubContentGenerator{response: "ok"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Handle(ctx, Request{Message: "Hello, anyone home today?", SessionID: "s1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	clientHistory := []session.Message{
		{Role: session.RoleUser, Content: "from the client", Timestamp: time.Now()},
	}
	resp, err := svc.Handle(ctx, Request{Message: "Good morning to you!", SessionID: "s1", History: clientHistory})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 1 client message + this turn's user and assistant messages.
	if len(resp.History) != 3 {
		t.Fatalf("expected client history to replace server history, got %d messages", len(resp.History))
	}
	if resp.History[0].Content != "from the client" {
		t.Fatalf("expected client message first, got %q", resp.History[0].Content)
	}
}

func TestHandleRecommendationIntent(t *testing.T) {
	svc := newChatService(seedRepo(), nil)

	resp, err := svc.Handle(context.Background(), Request{
		Message: "Can you recommend vendors for my web project?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Intent != intent.KindRecommendation {
		t.Fatalf("expected recommendation intent, got %s", resp.Intent)
	}
	if resp.SessionID != session.DefaultID {
		t.Fatalf("expected default session id, got %q", resp.SessionID)
	}
	if len(resp.Vendors) != 1 || resp.Vendors[0].VendorID != "v1" {
		t.Fatalf("expected Acme Web recommended, got %+v", resp.Vendors)
	}
	if !strings.Contains(resp.Message, "Acme Web") {
		t.Fatalf("expected reply to mention the vendor, got %q", resp.Message)
	}
}

func TestHandleSearchIntent(t *testing.T) {
	svc := newChatService(seedRepo(), nil)

	resp, err := svc.Handle(context.Background(), Request{Message: "Show me all vendors in SEO"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Intent != intent.KindSearch {
		t.Fatalf("expected search intent, got %s", resp.Intent)
	}
	if len(resp.Vendors) != 1 || resp.Vendors[0].VendorID != "v2" {
		t.Fatalf("expected SearchCraft found, got %+v", resp.Vendors)
	}
}

func TestHandleGeneralWithoutGeneratorUsesCannedReply(t *testing.T) {
	svc := newChatService(seedRepo(), nil)

	resp, err := svc.Handle(context.Background(), Request{Message: "What's the weather today?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Intent != intent.KindGeneral {
		t.Fatalf("expected general intent, got %s", resp.Intent)
	}
	if resp.Message != generalFallbackReply {
		t.Fatalf("expected canned reply, got %q", resp.Message)
	}
	if resp.Vendors != nil {
		t.Fatalf("general replies carry no vendor data")
	}
}

func TestHandleGeneralGeneratorFailureStillAnswers(t *testing.T) {
	svc := newChatService(seedRepo(), &stubContentGenerator{err: errors.New("quota exhausted")})

	resp, err := svc.Handle(context.Background(), Request{Message: "What's the weather today?"})
	if err != nil {
		t.Fatalf("the conversational surface must always answer: %v", err)
	}
	if resp.Message != generalFallbackReply {
		t.Fatalf("expected canned reply, got %q", resp.Message)
	}
}

func TestHandleRepositoryFailureStillAnswers(t *testing.T) {
	svc := newChatService(brokenRepo{}, nil)

	resp, err := svc.Handle(context.Background(), Request{Message: "Show me all vendors in SEO"})
	if err != nil {
		t.Fatalf("expected a safe reply, got error %v", err)
	}
	if resp.Message != genericReply {
		t.Fatalf("expected generic fallback reply, got %q", resp.Message)
	}
}

type brokenRepo struct{}

func (brokenRepo) Active(context.Context) (*vendor.Vendors, error) {
	return nil, errors.New("database is down")
}

func (brokenRepo) Search(context.Context, string, int) (*vendor.Vendors, error) {
	return nil, errors.New("database is down")
}
