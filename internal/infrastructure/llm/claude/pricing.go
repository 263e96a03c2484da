package claude

import (
	"strings"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const (
	ModelSonnet = "claude-sonnet-4-20250514"
	ModelOpus   = "claude-opus-4-20250514"
)

// ModelPrice is expressed in USD per million tokens.
type ModelPrice struct {
	Input      float64
	Output     float64
	CacheWrite float64
	CacheRead  float64
}

type PriceTable map[string]ModelPrice

func DefaultPrices() PriceTable {
	return PriceTable{
		ModelSonnet: {Input: 3.00, Output: 15.00, CacheWrite: 3.75, CacheRead: 0.30},
		ModelOpus:   {Input: 15.00, Output: 75.00, CacheWrite: 18.75, CacheRead: 1.50},
	}
}

// Lookup resolves an exact model id first, then the model family, and falls
// back to Sonnet pricing for anything unknown.
func (t PriceTable) Lookup(model string) ModelPrice {
	if p, ok := t[model]; ok {
		return p
	}
	if strings.Contains(model, "opus") {
		if p, ok := t[ModelOpus]; ok {
			return p
		}
	}
	return t[ModelSonnet]
}

// Cost prices one response. input_tokens as reported by the API already
// excludes cached prefix tokens, so the four buckets are disjoint.
func (t PriceTable) Cost(model string, u domain.TokenUsage) float64 {
	p := t.Lookup(model)
	return (float64(u.InputTokens)*p.Input +
		float64(u.CacheCreationInputTokens)*p.CacheWrite +
		float64(u.CacheReadInputTokens)*p.CacheRead +
		float64(u.OutputTokens)*p.Output) / 1_000_000
}
