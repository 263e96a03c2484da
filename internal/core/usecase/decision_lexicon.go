package usecase

import "github.com/kirillkom/fin-research-assistant/internal/core/domain"

func DefaultLexicon() domain.Lexicon {
	return domain.Lexicon{
		TechnicalJargon: map[string][]string{
			"indicators": {
				"rsi", "macd", "moving average", "sma", "ema", "golden cross",
				"death cross", "bollinger", "momentum", "oscillator",
			},
			"analysis": {
				"technical analysis", "fundamental analysis", "valuation", "dcf",
				"intrinsic value", "discounted cash flow",
			},
			"metrics": {
				"momentum", "volatility", "beta", "sharpe ratio", "overbought",
				"oversold", "resistance", "support",
			},
			"comparative": {
				"relative strength", "peer comparison", "sector analysis", "correlation",
			},
		},
		DepthRequests: []string{
			"detailed analysis", "comprehensive report", "deep dive", "full breakdown",
			"complete analysis", "thorough examination", "in-depth look", "extensive analysis",
		},
		DepthNewsTerms: []string{"news", "article", "sentiment", "narrative"},
		DissatisfactionMarkers: []string{
			"not enough", "more detail", "elaborate", "tell me more", "that's not helpful",
			"why did", "what caused", "doesn't explain", "but why", "how come",
			"what about", "is that all", "too vague", "be more specific", "give me details",
			"not satisfied", "disappointing", "insufficient",
		},
		NewsLeaningTerms:   []string{"news", "why", "article", "story", "narrative", "sentiment"},
		AnalyticalVerbs:    []string{"analyze", "compare", "evaluate", "assess"},
		PowerUserThreshold: 10,

		WhatMovedPhrases:      []string{"what moved", "why did", "what caused"},
		WhatMovedMaxWords:     30,
		FollowupIndicators:    []string{"why", "how", "what about", "tell me", "more", "?"},
		PowerUserNewsTerms:    []string{"news", "latest", "recent", "update"},
		PowerUserNewsMinTurns: 8,
		PowerUserNewsMaxWords: 40,

		WatchList: []string{
			"AAPL", "MSFT", "GOOGL", "NVDA", "META", "AMZN", "JPM", "V", "BRK-B", "XOM",
			"CVX", "JNJ", "UNH", "PG", "KO", "NKE", "BA", "GE", "TSLA", "F",
		},
		MarketRequirements: []domain.BulletRule{
			{Terms: []string{"price", "trading at", "current"}, Bullet: "- Current price and price changes"},
			{Terms: []string{"technical", "indicator", "rsi", "macd", "moving average"}, Bullet: "- Technical indicators (RSI, MACD, moving averages)"},
			{Terms: []string{"compare", "vs", "versus", "compared to"}, Bullet: "- Cross-stock comparison analysis"},
			{Terms: []string{"momentum", "trend", "direction"}, Bullet: "- Momentum and trend analysis"},
			{Terms: []string{"fundamental", "valuation", "metrics"}, Bullet: "- Fundamental metrics and valuation"},
		},
		NewsFocus: []domain.BulletRule{
			{Terms: []string{"recent", "latest", "today", "this week"}, Bullet: "- Focus on most recent articles"},
			{Terms: []string{"sentiment", "mood", "perception"}, Bullet: "- Analyze market sentiment and tone"},
			{Terms: []string{"moved", "cause", "driven", "impact"}, Bullet: "- Identify price-moving events and catalysts"},
			{Terms: []string{"earnings", "results", "report"}, Bullet: "- Focus on earnings and financial results"},
		},
	}
}
