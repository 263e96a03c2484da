package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const (
	defaultMarketRequirement = "- Comprehensive analysis based on query"
	defaultNewsFocus         = "- Comprehensive news coverage and synthesis"
	noPriorContext           = "No prior context"

	taskContextTurns    = 3
	taskContextMaxRunes = 200
	tickerFallbackMsgs  = 3
)

// DecisionEngine routes queries to specialists using lexicon matching only.
// It is pure: no I/O besides logging.
type DecisionEngine struct {
	lex domain.Lexicon
}

func NewDecisionEngine(lex domain.Lexicon) *DecisionEngine {
	return &DecisionEngine{lex: lex}
}

func (e *DecisionEngine) Lexicon() domain.Lexicon {
	return e.lex
}

// ShouldInvoke evaluates the immediate-invocation rules in priority order;
// the first matching rule wins.
func (e *DecisionEngine) ShouldInvoke(query string, history []domain.Message, profile domain.UserProfile) domain.Decision {
	q := strings.ToLower(query)

	if e.containsJargon(q) {
		return e.decide(domain.SpecialistMarketData, domain.ReasonTechnicalJargon)
	}
	if containsAny(q, e.lex.DepthRequests) {
		if containsAny(q, e.lex.DepthNewsTerms) {
			return e.decide(domain.SpecialistNews, domain.ReasonDepthRequest)
		}
		return e.decide(domain.SpecialistMarketData, domain.ReasonDepthRequest)
	}
	if len(history) >= 2 && containsAny(q, e.lex.DissatisfactionMarkers) {
		previous := history[len(history)-1].Content
		return e.decide(e.classifyFollowup(q, previous), domain.ReasonDissatisfaction)
	}
	if profile.QueryCount >= e.lex.PowerUserThreshold && containsAny(q, e.lex.AnalyticalVerbs) {
		return e.decide(domain.SpecialistMarketData, domain.ReasonPowerUserAnalytical)
	}

	slog.Debug("specialist_not_needed", "reason", domain.ReasonGeneralistSufficient)
	return domain.Decision{Reason: domain.ReasonGeneralistSufficient}
}

// ShouldPrefetch decides whether to warm a specialist result after a
// generalist-only answer.
func (e *DecisionEngine) ShouldPrefetch(query, primaryResponse string, history []domain.Message) domain.Decision {
	q := strings.ToLower(query)
	responseWords := len(strings.Fields(primaryResponse))

	if containsAny(q, e.lex.WhatMovedPhrases) &&
		responseWords < e.lex.WhatMovedMaxWords &&
		strings.Contains(primaryResponse, "$") {
		return e.decide(domain.SpecialistNews, domain.ReasonWhatMovedPattern)
	}
	if e.hasFollowupPattern(history) {
		return e.decide(domain.SpecialistMarketData, domain.ReasonFollowupPattern)
	}
	if len(domain.UserMessages(history)) >= e.lex.PowerUserNewsMinTurns &&
		containsAny(q, e.lex.PowerUserNewsTerms) &&
		responseWords < e.lex.PowerUserNewsMaxWords {
		return e.decide(domain.SpecialistNews, domain.ReasonPowerUserNews)
	}

	return domain.Decision{Reason: domain.ReasonLowConfidence}
}

// ExtractTask renders the specialist task text. Output depends only on the
// arguments, so it doubles as the task cache key.
func (e *DecisionEngine) ExtractTask(query string, history []domain.Message, specialistType domain.SpecialistType) string {
	recent := recentContext(history, taskContextTurns, taskContextMaxRunes)
	tickers := "Determine from query"
	if found := e.ExtractTickers(query, history); len(found) > 0 {
		tickers = strings.Join(found, ", ")
	}

	switch specialistType {
	case domain.SpecialistMarketData:
		return fmt.Sprintf(marketTaskTemplate, query, tickers, recent,
			bullets(strings.ToLower(query), e.lex.MarketRequirements, defaultMarketRequirement))
	case domain.SpecialistNews:
		return fmt.Sprintf(newsTaskTemplate, query, tickers, recent,
			bullets(strings.ToLower(query), e.lex.NewsFocus, defaultNewsFocus))
	default:
		return fmt.Sprintf("Analyze: %s\n\nRecent context:\n%s", query, recent)
	}
}

// ExtractTickers matches watch-list symbols as substrings of the upper-cased
// query, falling back to the last few history messages.
func (e *DecisionEngine) ExtractTickers(query string, history []domain.Message) []string {
	found := matchWatchList(strings.ToUpper(query), e.lex.WatchList)
	if len(found) > 0 || len(history) == 0 {
		return found
	}
	parts := make([]string, 0, tickerFallbackMsgs)
	for _, m := range domain.LastMessages(history, tickerFallbackMsgs) {
		parts = append(parts, m.Content)
	}
	return matchWatchList(strings.ToUpper(strings.Join(parts, " ")), e.lex.WatchList)
}

func (e *DecisionEngine) decide(st domain.SpecialistType, reason string) domain.Decision {
	slog.Info("specialist_decision", "type", st, "reason", reason)
	return domain.Decision{Invoke: true, Type: st, Reason: reason}
}

func (e *DecisionEngine) containsJargon(q string) bool {
	for _, terms := range e.lex.TechnicalJargon {
		if containsAny(q, terms) {
			return true
		}
	}
	return false
}

// classifyFollowup picks the specialist for a dissatisfied follow-up; news
// leaning terms in the query or the previous answer win.
func (e *DecisionEngine) classifyFollowup(q, previousResponse string) domain.SpecialistType {
	if containsAny(q, e.lex.NewsLeaningTerms) || containsAny(strings.ToLower(previousResponse), e.lex.NewsLeaningTerms) {
		return domain.SpecialistNews
	}
	return domain.SpecialistMarketData
}

func (e *DecisionEngine) hasFollowupPattern(history []domain.Message) bool {
	if len(history) < 4 {
		return false
	}
	users := domain.LastMessages(domain.UserMessages(history), 4)
	if len(users) < 2 {
		return false
	}
	for _, m := range users[len(users)-2:] {
		if !containsAny(strings.ToLower(m.Content), e.lex.FollowupIndicators) {
			return false
		}
	}
	return true
}

func recentContext(history []domain.Message, turns, maxRunes int) string {
	if len(history) == 0 {
		return noPriorContext
	}
	lines := make([]string, 0, turns*2)
	for _, m := range domain.LastMessages(history, turns*2) {
		lines = append(lines, roleTitle(m.Role)+": "+truncateRunes(m.Content, maxRunes))
	}
	return strings.Join(lines, "\n")
}

func bullets(q string, rules []domain.BulletRule, fallback string) string {
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		if containsAny(q, rule.Terms) {
			out = append(out, rule.Bullet)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return strings.Join(out, "\n")
}

func matchWatchList(text string, watchList []string) []string {
	var found []string
	for _, ticker := range watchList {
		if strings.Contains(text, ticker) {
			found = append(found, ticker)
		}
	}
	return found
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func roleTitle(role domain.Role) string {
	r := string(role)
	if r == "" {
		return "Unknown"
	}
	return strings.ToUpper(r[:1]) + strings.ToLower(r[1:])
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
