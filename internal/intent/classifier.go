// Package intent classifies free-text chat messages into the purposes the
// engine can serve: asking for a recommendation, searching the directory, or
// general conversation. Classification is a pure function of the message
// text, driven entirely by keyword tables, so it stays trivially testable and
// swappable for a learned classifier later without touching callers.
package intent

import (
	"strings"
)

// Kind is the classified purpose of a chat message.
type Kind string

const (
	KindRecommendation Kind = "vendor_recommendation"
	KindSearch         Kind = "vendor_search"
	KindGeneral        Kind = "general"
)

// Intent is a classified message with its extracted parameters.
type Intent struct {
	Kind Kind
	// Category is set for recommendation intents.
	Category string
	// SearchTerm is set for search intents.
	SearchTerm string
}

// DefaultCategory is assumed when a recommendation is requested but no
// category can be inferred from the message.
const DefaultCategory = "consulting"

// recommendKeywords signal that the user wants a vendor recommendation.
var recommendKeywords = []string{
	"recommend",
	"suggest",
	"who should i",
	"who would you",
	"looking for",
	"need help",
	"i need",
	"can you find",
	"best vendor",
	"best fit",
}

// searchKeywords signal an explicit directory search.
var searchKeywords = []string{
	"show me",
	"list",
	"all vendors",
	"search for",
	"browse",
	"display",
}

// categories is the fixed service category vocabulary. Multi-word entries
// first so "web development" wins over a later bare mention.
var categories = []string{
	"web development",
	"mobile development",
	"graphic design",
	"seo",
	"design",
	"content",
	"marketing",
	"video",
	"consulting",
}

// impliedCategories maps adjacent wording to a canonical category when the
// message never names one directly.
var impliedCategories = []struct {
	term     string
	category string
}{
	{"writer", "content"},
	{"writing", "content"},
	{"copywrit", "content"},
	{"blog", "content"},
	{"article", "content"},
	{"website", "web development"},
	{"web site", "web development"},
	{"web ", "web development"},
	{"frontend", "web development"},
	{"backend", "web development"},
	{"app", "mobile development"},
	{"mobile", "mobile development"},
	{"logo", "design"},
	{"graphic", "design"},
	{"designer", "design"},
	{"search engine", "seo"},
	{"ranking", "seo"},
	{"ads", "marketing"},
	{"campaign", "marketing"},
	{"social media", "marketing"},
	{"video", "video"},
	{"animation", "video"},
}

// Classify determines the intent of a raw chat message.
//
// Precedence: recommendation-seeking keywords, or a category mention without
// an explicit search keyword, classify as Recommendation. Otherwise explicit
// search keywords or a category mention classify as Search. Everything else
// is General.
func Classify(message string) Intent {
	lower := strings.ToLower(message)

	hasRecommend := containsAny(lower, recommendKeywords)
	hasSearch := containsAny(lower, searchKeywords)
	category := directCategory(lower)

	if hasRecommend || (category != "" && !hasSearch) {
		if category == "" {
			category = inferCategory(lower)
		}
		return Intent{Kind: KindRecommendation, Category: category}
	}

	if hasSearch || category != "" {
		return Intent{Kind: KindSearch, SearchTerm: extractSearchTerm(message)}
	}

	return Intent{Kind: KindGeneral}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func directCategory(lower string) string {
	for _, c := range categories {
		if strings.Contains(lower, c) {
			return c
		}
	}
	return ""
}

func inferCategory(lower string) string {
	for _, m := range impliedCategories {
		if strings.Contains(lower, m.term) {
			return m.category
		}
	}
	return DefaultCategory
}

// extractSearchTerm picks the search term from the first quoted substring,
// failing that from capitalized tokens past the first word, failing that the
// raw message.
func extractSearchTerm(message string) string {
	if quoted := firstQuoted(message); quoted != "" {
		return strings.ToLower(quoted)
	}

	fields := strings.Fields(message)
	var capitalized []string
	for i, f := range fields {
		if i == 0 {
			// Sentence-initial capitals carry no signal.
			continue
		}
		trimmed := strings.Trim(f, ".,!?\"'")
		if trimmed == "" {
			continue
		}
		if first := rune(trimmed[0]); first >= 'A' && first <= 'Z' {
			capitalized = append(capitalized, trimmed)
		}
	}
	if len(capitalized) > 0 {
		return strings.ToLower(strings.Join(capitalized, " "))
	}

	return strings.TrimSpace(message)
}

func firstQuoted(message string) string {
	for _, quote := range []string{`"`, "'"} {
		start := strings.Index(message, quote)
		if start == -1 {
			continue
		}
		rest := message[start+1:]
		end := strings.Index(rest, quote)
		if end > 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return ""
}
