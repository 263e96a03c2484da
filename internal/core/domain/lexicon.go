package domain

// BulletRule adds Bullet to a specialist task when any of Terms occurs in the query.
type BulletRule struct {
	Terms  []string `yaml:"terms" json:"terms"`
	Bullet string   `yaml:"bullet" json:"bullet"`
}

// Lexicon is the closed vocabulary that drives specialist routing and task
// extraction. Matching is case-insensitive substring matching throughout.
type Lexicon struct {
	TechnicalJargon        map[string][]string `yaml:"technical_jargon"`
	DepthRequests          []string            `yaml:"depth_requests"`
	DepthNewsTerms         []string            `yaml:"depth_news_terms"`
	DissatisfactionMarkers []string            `yaml:"dissatisfaction_markers"`
	NewsLeaningTerms       []string            `yaml:"news_leaning_terms"`
	AnalyticalVerbs        []string            `yaml:"analytical_verbs"`
	PowerUserThreshold     int                 `yaml:"power_user_threshold"`

	WhatMovedPhrases      []string `yaml:"what_moved_phrases"`
	WhatMovedMaxWords     int      `yaml:"what_moved_max_words"`
	FollowupIndicators    []string `yaml:"followup_indicators"`
	PowerUserNewsTerms    []string `yaml:"power_user_news_terms"`
	PowerUserNewsMinTurns int      `yaml:"power_user_news_min_turns"`
	PowerUserNewsMaxWords int      `yaml:"power_user_news_max_words"`

	WatchList          []string     `yaml:"watch_list"`
	MarketRequirements []BulletRule `yaml:"market_requirements"`
	NewsFocus          []BulletRule `yaml:"news_focus"`
}

func (l Lexicon) Sizes() map[string]int {
	jargon := 0
	for _, terms := range l.TechnicalJargon {
		jargon += len(terms)
	}
	return map[string]int{
		"technical_jargon":        jargon,
		"depth_requests":          len(l.DepthRequests),
		"dissatisfaction_markers": len(l.DissatisfactionMarkers),
		"analytical_verbs":        len(l.AnalyticalVerbs),
		"watch_list":              len(l.WatchList),
	}
}
