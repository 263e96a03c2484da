package domain

import (
	"fmt"
	"strings"
)

type SpecialistType string

const (
	SpecialistMarketData SpecialistType = "market_data"
	SpecialistNews       SpecialistType = "news"
)

func ParseSpecialistType(raw string) (SpecialistType, error) {
	switch SpecialistType(strings.ToLower(strings.TrimSpace(raw))) {
	case SpecialistMarketData:
		return SpecialistMarketData, nil
	case SpecialistNews:
		return SpecialistNews, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse specialist type", fmt.Errorf("unknown type %q", raw))
	}
}

type TokenUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:              u.InputTokens + other.InputTokens,
		OutputTokens:             u.OutputTokens + other.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + other.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + other.CacheReadInputTokens,
	}
}

type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// CacheSystem marks the system prompt as a cacheable prefix.
	CacheSystem bool
}

type Completion struct {
	Text    string     `json:"text"`
	Model   string     `json:"model"`
	Usage   TokenUsage `json:"usage"`
	CostUSD float64    `json:"cost_usd"`
}

// SpecialistResult is the outcome of one specialist run. Failures are
// carried as data so the pool can cache and evict them uniformly.
type SpecialistResult struct {
	Type    SpecialistType `json:"specialist_type"`
	Content string         `json:"content"`
	CostUSD float64        `json:"cost_usd"`
	Usage   TokenUsage     `json:"usage"`
	Error   string         `json:"error,omitempty"`
}

func (r *SpecialistResult) Failed() bool {
	return r != nil && r.Error != ""
}

const (
	ReasonTechnicalJargon      = "technical_jargon"
	ReasonDepthRequest         = "depth_request"
	ReasonDissatisfaction      = "dissatisfaction"
	ReasonPowerUserAnalytical  = "power_user_analytical"
	ReasonGeneralistSufficient = "generalist_sufficient"

	ReasonWhatMovedPattern = "what_moved_pattern"
	ReasonFollowupPattern  = "followup_pattern"
	ReasonPowerUserNews    = "power_user_news"
	ReasonLowConfidence    = "low_confidence"
)

type Decision struct {
	Invoke bool           `json:"invoke"`
	Type   SpecialistType `json:"specialist_type,omitempty"`
	Reason string         `json:"reason"`
}

type QueryResult struct {
	Response          string  `json:"response"`
	CostUSD           float64 `json:"cost"`
	Agent             string  `json:"agent"`
	SessionID         string  `json:"session_id"`
	PrefetchActive    bool    `json:"prefetch_active"`
	DecisionReason    string  `json:"decision_reason"`
	SpecialistCostUSD float64 `json:"specialist_cost,omitempty"`
	SynthesisCostUSD  float64 `json:"synthesis_cost,omitempty"`
}

// Diagnostic explains how a query would be routed without running any agent.
type Diagnostic struct {
	Query         string         `json:"query"`
	Decision      Decision       `json:"decision"`
	ExtractedTask string         `json:"extracted_task,omitempty"`
	Tickers       []string       `json:"tickers"`
	Lexicon       map[string]int `json:"lexicon_sizes"`
}
