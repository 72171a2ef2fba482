package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vira-platform/vira-engine/internal/chat"
	"github.com/vira-platform/vira-engine/internal/recommend"
	"github.com/vira-platform/vira-engine/internal/session"
)

// Server exposes the matching engine and the conversational surface over HTTP.
type Server struct {
	recommender *recommend.Service
	chat        *chat.Service
	logger      *zap.Logger
	version     string
}

func NewServer(recommender *recommend.Service, chatSvc *chat.Service, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{recommender: recommender, chat: chatSvc, logger: logger, version: version}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/vendors/match", s.handleMatch)
	mux.HandleFunc("/api/chat", s.handleChat)
	return s.withRequestLog(mux)
}

// withRequestLog tags every request with an id and logs its outcome.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		s.logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "vira-engine",
		"version": s.version,
		"capabilities": []string{
			"vendor_matching",
			"vendor_search",
			"chat",
		},
	})
}

// MatchRequest is the wire form of a match query.
type MatchRequest struct {
	ServiceCategory string `json:"serviceCategory"`
	ProjectScope    string `json:"projectScope"`
}

// MatchEntry is one AI-ranked recommendation on the wire.
type MatchEntry struct {
	VendorName       string   `json:"vendorName"`
	VendorID         string   `json:"vendor_id"`
	ViraScore        int      `json:"viraScore"`
	Reason           string   `json:"reason"`
	KeyStrengths     []string `json:"keyStrengths"`
	Considerations   string   `json:"considerations,omitempty"`
	TotalProjects    int      `json:"totalProjects,omitempty"`
	Category         string   `json:"category"`
	Availability     string   `json:"availability_status,omitempty"`
	PricingStructure string   `json:"pricingStructure,omitempty"`
	RateCost         string   `json:"rateCost,omitempty"`
}

// RemainingEntry is one pre-scored, never AI-scored candidate on the wire.
type RemainingEntry struct {
	VendorName        string   `json:"vendorName"`
	VendorID          string   `json:"vendor_id"`
	Category          string   `json:"category"`
	PreScore          float64  `json:"preScore"`
	TotalProjects     int      `json:"totalProjects"`
	AvgRating         *float64 `json:"avgRating"`
	RecommendationPct *float64 `json:"recommendationPct"`
	PricingStructure  *string  `json:"pricingStructure"`
	RateCost          *string  `json:"rateCost"`
}

// QueryInfo reports the selection counts of a match request.
type QueryInfo struct {
	CandidatesAnalyzed int `json:"candidates_analyzed"`
	SentToAI           int `json:"sent_to_ai"`
}

// MatchResponse is the composed result payload.
type MatchResponse struct {
	Matches          []MatchEntry     `json:"matches"`
	RemainingVendors []RemainingEntry `json:"remainingVendors"`
	QueryInfo        QueryInfo        `json:"query_info"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.recommender.Match(r.Context(), recommend.Query{
		Category: req.ServiceCategory,
		Scope:    req.ProjectScope,
	})
	if err != nil {
		if errors.Is(err, recommend.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Upstream details stay in the logs, never in the response body.
		writeError(w, http.StatusInternalServerError, "vendor matching failed")
		return
	}

	writeJSON(w, http.StatusOK, composeMatchResponse(req.ServiceCategory, result))
}

func composeMatchResponse(category string, result *recommend.Result) MatchResponse {
	resp := MatchResponse{
		Matches:          make([]MatchEntry, 0, len(result.Matches)),
		RemainingVendors: make([]RemainingEntry, 0, len(result.Remaining)),
		QueryInfo: QueryInfo{
			CandidatesAnalyzed: result.CandidatesAnalyzed,
			SentToAI:           result.SentToAI,
		},
	}

	for _, rec := range result.Matches {
		entry := MatchEntry{
			VendorName:     rec.VendorName,
			VendorID:       rec.VendorID,
			ViraScore:      rec.Score,
			Reason:         rec.Reason,
			KeyStrengths:   rec.KeyStrengths,
			Considerations: rec.Considerations,
			Category:       category,
		}
		if entry.KeyStrengths == nil {
			entry.KeyStrengths = []string{}
		}
		if rec.Vendor != nil {
			entry.TotalProjects = rec.Vendor.TotalProjects
			entry.Availability = string(rec.Vendor.Availability)
			entry.PricingStructure = rec.Vendor.PricingStructure
			entry.RateCost = rec.Vendor.RateCost
		}
		resp.Matches = append(resp.Matches, entry)
	}

	for _, rem := range result.Remaining {
		v := rem.Vendor
		resp.RemainingVendors = append(resp.RemainingVendors, RemainingEntry{
			VendorName:        v.Name,
			VendorID:          v.ID,
			Category:          category,
			PreScore:          rem.PreScore,
			TotalProjects:     v.TotalProjects,
			AvgRating:         nullableFloat(v.AvgRating, v.TotalProjects > 0),
			RecommendationPct: nullableFloat(v.RecommendationPct, v.TotalProjects > 0),
			PricingStructure:  nullableString(v.PricingStructure),
			RateCost:          nullableString(v.RateCost),
		})
	}

	return resp
}

// ChatRequest is the wire form of a chat turn.
type ChatRequest struct {
	Message             string            `json:"message"`
	SessionID           string            `json:"sessionId"`
	ConversationHistory []session.Message `json:"conversationHistory"`
}

// ChatResponse is the computed chat turn on the wire.
type ChatResponse struct {
	Message             string               `json:"message"`
	SessionID           string               `json:"sessionId"`
	Intent              string               `json:"intent"`
	VendorData          []chat.VendorSummary `json:"vendorData"`
	ConversationHistory []session.Message    `json:"conversationHistory"`
	Timestamp           time.Time            `json:"timestamp"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.chat.Handle(r.Context(), chat.Request{
		Message:   req.Message,
		SessionID: req.SessionID,
		History:   req.ConversationHistory,
	})
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "chat handling failed")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Message:             resp.Message,
		SessionID:           resp.SessionID,
		Intent:              string(resp.Intent),
		VendorData:          resp.Vendors,
		ConversationHistory: resp.History,
		Timestamp:           resp.Timestamp,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func nullableFloat(v float64, known bool) *float64 {
	if !known {
		return nil
	}
	return &v
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
