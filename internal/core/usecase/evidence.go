package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
	"github.com/kirillkom/fin-research-assistant/internal/core/ports"
)

const (
	maxEvidenceTickers  = 5
	generalistNewsK     = 3
	specialistNewsK     = 8
	dataUnavailableNote = "data unavailable"
)

// evidenceGatherer collects market data and news for prompts. Every lookup
// is best-effort; gaps are rendered as notes rather than errors.
type evidenceGatherer struct {
	market ports.MarketDataProvider
	news   ports.NewsSearchService
}

func (g evidenceGatherer) prices(ctx context.Context, b *strings.Builder, tickers []string) {
	if g.market == nil {
		return
	}
	for _, t := range limitTickers(tickers) {
		p := g.market.Price(ctx, t)
		if p == nil {
			fmt.Fprintf(b, "- %s price: %s\n", t, dataUnavailableNote)
			continue
		}
		fmt.Fprintf(b, "- %s price: $%.2f (%+.2f, %+.2f%%) as of %s\n",
			t, p.Price, p.Change, p.ChangePercent, p.AsOf.Format("2006-01-02"))
	}
}

func (g evidenceGatherer) marketData(ctx context.Context, b *strings.Builder, tickers []string) {
	if len(tickers) == 0 {
		b.WriteString("- no tickers identified\n")
		return
	}
	g.prices(ctx, b, tickers)
	if g.market == nil {
		return
	}
	for _, t := range limitTickers(tickers) {
		if f := g.market.Fundamentals(ctx, t); f != nil {
			fmt.Fprintf(b, "- %s fundamentals: name=%q sector=%q market_cap=%.0f pe=%.2f eps=%.2f dividend_yield=%.4f beta=%.2f\n",
				t, f.Name, f.Sector, f.MarketCap, f.PERatio, f.EPS, f.DividendYield, f.Beta)
		} else {
			fmt.Fprintf(b, "- %s fundamentals: %s\n", t, dataUnavailableNote)
		}
		if ind := g.market.Indicators(ctx, t); ind != nil {
			fmt.Fprintf(b, "- %s indicators (%d bars): sma50=%.2f sma200=%.2f ema12=%.2f rsi14=%.2f macd=%.4f volatility=%.4f golden_cross=%t\n",
				t, ind.BarsUsed, ind.SMA50, ind.SMA200, ind.EMA12, ind.RSI14, ind.MACD, ind.Volatility, ind.GoldenCross)
		} else {
			fmt.Fprintf(b, "- %s indicators: %s\n", t, dataUnavailableNote)
		}
	}
}

func (g evidenceGatherer) articles(ctx context.Context, b *strings.Builder, query string, k int, tickers []string) int {
	if g.news == nil {
		return 0
	}
	articles := g.news.SearchNews(ctx, query, k, tickers)
	if len(articles) == 0 {
		b.WriteString("- no matching articles\n")
		return 0
	}
	for i, a := range articles {
		published := "unknown date"
		if a.PublishedAt != nil {
			published = a.PublishedAt.Format("2006-01-02")
		}
		fmt.Fprintf(b, "[%d] %s (%s, %s) tickers=%s\n%s\n", i+1, a.Title, a.Publisher, published,
			strings.Join(a.Tickers, ","), a.Text)
	}
	return len(articles)
}

func limitTickers(tickers []string) []string {
	if len(tickers) > maxEvidenceTickers {
		return tickers[:maxEvidenceTickers]
	}
	return tickers
}

func withEvidence(domainLabel, query, evidence string) string {
	if strings.TrimSpace(evidence) == "" {
		return query
	}
	return query + "\n\n" + domainLabel + ":\n" + strings.TrimRight(evidence, "\n")
}

func isNewsQuery(q string, lex domain.Lexicon) bool {
	q = strings.ToLower(q)
	return containsAny(q, lex.NewsLeaningTerms) || containsAny(q, lex.PowerUserNewsTerms) || containsAny(q, lex.WhatMovedPhrases)
}
