package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vira-platform/vira-engine/internal/intent"
	"github.com/vira-platform/vira-engine/internal/recommend"
	"github.com/vira-platform/vira-engine/internal/session"
	"github.com/vira-platform/vira-engine/internal/vendor"
)

// ErrEmptyMessage marks chat requests without a usable message.
var ErrEmptyMessage = errors.New("chat message is required")

const (
	// genericReply is the catch-all answer. The conversational surface must
	// always answer, whatever broke underneath.
	genericReply = "I'm sorry, I ran into a problem handling that. Could you try rephrasing your request?"

	generalFallbackReply = "I'm VIRA, your vendor intelligence assistant. Ask me to recommend vendors for a project, or to search the vendor directory."

	defaultSearchLimit = 10
)

// ContentGenerator produces free-form replies for general conversation.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// VendorSummary is the compact vendor shape attached to chat responses.
type VendorSummary struct {
	VendorID      string   `json:"vendor_id"`
	Name          string   `json:"vendorName"`
	Categories    []string `json:"categories"`
	Availability  string   `json:"availability_status,omitempty"`
	AvgRating     float64  `json:"avgRating"`
	TotalProjects int      `json:"totalProjects"`
}

// Request is one inbound chat turn.
type Request struct {
	Message   string
	SessionID string
	// History, when non-nil, is the client-held conversation and replaces the
	// server-side history for this turn.
	History []session.Message
}

// Response is the computed chat turn.
type Response struct {
	Message   string
	SessionID string
	Intent    intent.Kind
	Vendors   []VendorSummary
	History   []session.Message
	Timestamp time.Time
}

// Service routes chat messages by intent and maintains session history.
type Service struct {
	recommender *recommend.Service
	repo        vendor.Repository
	store       session.Store
	generator   ContentGenerator
	logger      *zap.Logger
	searchLimit int
	now         func() time.Time
}

func NewService(recommender *recommend.Service, repo vendor.Repository, store session.Store, generator ContentGenerator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		recommender: recommender,
		repo:        repo,
		store:       store,
		generator:   generator,
		logger:      logger,
		searchLimit: defaultSearchLimit,
		now:         time.Now,
	}
}

// Handle processes one chat turn: classify, route, append both messages to
// the session, and return the reply with the trailing visible history.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = session.DefaultID
	}

	log := s.logger.With(zap.String("session_id", sessionID))

	// Client-supplied history is authoritative for this turn.
	if req.History != nil {
		if err := s.store.Replace(ctx, sessionID, req.History); err != nil {
			log.Warn("replacing session history failed", zap.Error(err))
		}
	}

	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		log.Warn("reading session history failed", zap.Error(err))
	}

	userMsg := session.Message{Role: session.RoleUser, Content: message, Timestamp: s.now()}
	if err := s.store.Append(ctx, sessionID, userMsg); err != nil {
		log.Warn("appending user message failed", zap.Error(err))
	}

	classified := intent.Classify(message)
	log.Debug("classified chat message",
		zap.String("intent", string(classified.Kind)),
		zap.String("category", classified.Category),
		zap.String("search_term", classified.SearchTerm),
	)

	reply, vendors := s.route(ctx, log, classified, message, history)

	assistantMsg := session.Message{Role: session.RoleAssistant, Content: reply, Timestamp: s.now()}
	if err := s.store.Append(ctx, sessionID, assistantMsg); err != nil {
		log.Warn("appending assistant message failed", zap.Error(err))
	}

	full, err := s.store.History(ctx, sessionID)
	if err != nil {
		log.Warn("reading session history failed", zap.Error(err))
		full = append(append(history, userMsg), assistantMsg)
	}

	return &Response{
		Message:   reply,
		SessionID: sessionID,
		Intent:    classified.Kind,
		Vendors:   vendors,
		History:   session.Tail(full, session.VisibleHistory),
		Timestamp: assistantMsg.Timestamp,
	}, nil
}

// route dispatches by intent. Any unexpected failure, panics included, turns
// into the generic safe reply instead of an error to the end user.
func (s *Service) route(ctx context.Context, log *zap.Logger, classified intent.Intent, message string, history []session.Message) (reply string, vendors []VendorSummary) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("chat intent handling panicked", zap.Any("panic", r))
			reply, vendors = genericReply, nil
		}
	}()

	switch classified.Kind {
	case intent.KindRecommendation:
		return s.recommendationReply(ctx, log, classified.Category, message)
	case intent.KindSearch:
		return s.searchReply(ctx, log, classified.SearchTerm)
	default:
		return s.generalReply(ctx, log, message, history), nil
	}
}

func (s *Service) recommendationReply(ctx context.Context, log *zap.Logger, category, scope string) (string, []VendorSummary) {
	result, err := s.recommender.Match(ctx, recommend.Query{Category: category, Scope: scope})
	if err != nil {
		if errors.Is(err, recommend.ErrInvalidQuery) {
			return "Could you tell me a bit more about the project so I can match the right vendors?", nil
		}
		log.Warn("recommendation via chat failed", zap.String("category", category), zap.Error(err))
		return genericReply, nil
	}

	if len(result.Matches) == 0 {
		return fmt.Sprintf("I couldn't find any active vendors for %q. Try another category or broaden the description.", category), nil
	}

	summaries := make([]VendorSummary, 0, len(result.Matches))
	var b strings.Builder
	fmt.Fprintf(&b, "Here are my top vendor picks for %s:\n", category)
	for i, rec := range result.Matches {
		fmt.Fprintf(&b, "%d. %s (score %d) — %s\n", i+1, rec.VendorName, rec.Score, rec.Reason)
		summaries = append(summaries, VendorSummary{VendorID: rec.VendorID, Name: rec.VendorName})
	}
	fmt.Fprintf(&b, "Analyzed %d candidates in total.", result.CandidatesAnalyzed)

	return b.String(), summaries
}

func (s *Service) searchReply(ctx context.Context, log *zap.Logger, term string) (string, []VendorSummary) {
	found, err := s.repo.Search(ctx, term, s.searchLimit)
	if err != nil {
		log.Warn("vendor search via chat failed", zap.String("term", term), zap.Error(err))
		return genericReply, nil
	}

	if found.Len() == 0 {
		return fmt.Sprintf("No vendors in the directory match %q.", term), nil
	}

	summaries := make([]VendorSummary, 0, found.Len())
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d vendors matching %q:\n", found.Len(), term)
	for _, r := range found.Items {
		fmt.Fprintf(&b, "- %s (%s)\n", r.Name, strings.Join(r.CategoryList(), ", "))
		summaries = append(summaries, VendorSummary{
			VendorID:      r.ID,
			Name:          r.Name,
			Categories:    r.CategoryList(),
			Availability:  string(r.Availability),
			AvgRating:     r.AvgRating,
			TotalProjects: r.TotalProjects,
		})
	}

	return strings.TrimRight(b.String(), "\n"), summaries
}

func (s *Service) generalReply(ctx context.Context, log *zap.Logger, message string, history []session.Message) string {
	if s.generator == nil {
		return generalFallbackReply
	}

	reply, err := s.generator.GenerateContent(ctx, generalPrompt(message, history))
	if err != nil {
		log.Warn("general chat generation failed", zap.Error(err))
		return generalFallbackReply
	}
	return strings.TrimSpace(reply)
}

func generalPrompt(message string, history []session.Message) string {
	var b strings.Builder
	b.WriteString("You are VIRA, a concise assistant inside a vendor management platform. ")
	b.WriteString("Answer the user's message helpfully in a few sentences. ")
	b.WriteString("If the user seems to want vendors, suggest asking for a recommendation.\n\n")

	recent := session.Tail(history, session.VisibleHistory)
	if len(recent) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, msg := range recent {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "user: %s\nassistant:", message)
	return b.String()
}
